// Package pool provides bounded MySQL connection pooling.
package pool

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/models"
)

// Config represents pool configuration. Host and User are mandatory: their
// absence is a fatal configuration error at pool creation, never at query
// time.
type Config struct {
	Host               string        `json:"host"`
	Port               int           `json:"port"`
	User               string        `json:"user"`
	Password           string        `json:"-"`
	Database           string        `json:"database"`
	MaxOpenConnections int           `json:"max_open_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `json:"conn_max_idle_time"`
	ConnectTimeout     time.Duration `json:"connect_timeout"`
}

// Validate checks mandatory fields and applies defaults.
func (c *Config) Validate() error {
	if c.Host == "" {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "database host is required")
	}
	if c.User == "" {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "database user is required")
	}
	if c.Port <= 0 {
		c.Port = 3306
	}
	if c.MaxOpenConnections <= 0 {
		c.MaxOpenConnections = 2
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return nil
}

// DSN builds the driver DSN from the connection parameters.
func (c *Config) DSN() string {
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", c.Host, c.Port)
	mc.DBName = c.Database
	mc.Timeout = c.ConnectTimeout
	mc.ParseTime = true
	mc.MultiStatements = false
	return mc.FormatDSN()
}

// ConnectionPool manages a bounded set of reusable database connections.
type ConnectionPool interface {
	// Acquire returns one connection, blocking until a pool slot is free.
	Acquire(ctx context.Context) (Connection, error)
	// HealthCheck performs a liveness probe against the database.
	HealthCheck(ctx context.Context) error
	// Stats returns pool statistics.
	Stats() PoolStats
	// Close closes the connection pool.
	Close() error
}

// Connection is a single acquired pool connection. Release must be called
// exactly once per acquisition; the implementation tolerates (and logs)
// double release rather than corrupting the pool.
type Connection interface {
	Query(ctx context.Context, query string, args ...interface{}) (*models.RowSet, error)
	Exec(ctx context.Context, query string, args ...interface{}) error
	Release() error
	// Discard drops the underlying connection instead of returning it to
	// the pool. Use it when session state has been mutated in a way the
	// next borrower must not observe.
	Discard() error
}

// PoolStats represents connection pool statistics.
type PoolStats struct {
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration"`
}

type connectionPool struct {
	db     *sql.DB
	config Config
	logger zerolog.Logger

	closed atomic.Bool

	waitCount    atomic.Int64
	waitDuration atomic.Int64
}

// New creates a new connection pool and verifies connectivity.
func New(cfg Config, logger zerolog.Logger) (ConnectionPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Info().
		Str("dsn", maskDSN(cfg.DSN())).
		Int("max_open", cfg.MaxOpenConnections).
		Dur("conn_lifetime", cfg.ConnMaxLifetime).
		Msg("Creating MySQL connection pool")

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to open database")
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxOpenConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pool := &connectionPool{
		db:     db,
		config: cfg,
		logger: logger,
	}

	probeCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := pool.HealthCheck(probeCtx); err != nil {
		db.Close()
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "initial health check failed")
	}

	logger.Info().Msg("MySQL connection pool created")
	return pool, nil
}

// Acquire returns one connection from the pool. When every slot is in use
// this blocks until a connection is released; that wait is the gateway's
// backpressure mechanism.
func (p *connectionPool) Acquire(ctx context.Context) (Connection, error) {
	if p.closed.Load() {
		return nil, pkgerrors.ErrPoolClosed
	}

	start := time.Now()
	p.waitCount.Add(1)

	conn, err := p.db.Conn(ctx)
	p.waitDuration.Add(int64(time.Since(start)))
	if err != nil {
		p.logger.Error().Err(err).Msg("Connection acquisition failed")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "could not obtain a pool connection")
	}

	return &pooledConnection{conn: conn, logger: p.logger}, nil
}

// HealthCheck performs a liveness probe against the database.
func (p *connectionPool) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return pkgerrors.ErrPoolClosed
	}

	if err := p.db.PingContext(ctx); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "health check ping failed")
	}

	var result int
	if err := p.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil || result != 1 {
		return pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "health check query failed")
	}
	return nil
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	dbStats := p.db.Stats()
	return PoolStats{
		OpenConnections: dbStats.OpenConnections,
		InUse:           dbStats.InUse,
		Idle:            dbStats.Idle,
		WaitCount:       p.waitCount.Load(),
		WaitDuration:    time.Duration(p.waitDuration.Load()),
	}
}

// Close closes the connection pool. Executing against a closed pool is an
// error; the pool is never implicitly recreated.
func (p *connectionPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.logger.Info().Msg("Closing MySQL connection pool")
	if err := p.db.Close(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to close database")
	}
	return nil
}

// pooledConnection wraps one acquired *sql.Conn.
type pooledConnection struct {
	conn     *sql.Conn
	logger   zerolog.Logger
	released atomic.Bool
}

// Query executes a query on this connection and materializes the result set.
func (c *pooledConnection) Query(ctx context.Context, query string, args ...interface{}) (*models.RowSet, error) {
	if c.released.Load() {
		return nil, pkgerrors.New(pkgerrors.CodeConnectionFailed, "connection already released")
	}

	start := time.Now()
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		c.logger.Debug().
			Dur("duration", time.Since(start)).
			Str("query", truncateQuery(query)).
			Err(err).
			Msg("Query failed")
		return nil, err
	}
	defer rows.Close()

	rowSet, err := scanRowSet(rows)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Dur("duration", time.Since(start)).
		Str("query", truncateQuery(query)).
		Int("rows", len(rowSet.Rows)).
		Msg("Query executed")

	return rowSet, nil
}

// Exec executes a statement that returns no result set.
func (c *pooledConnection) Exec(ctx context.Context, query string, args ...interface{}) error {
	if c.released.Load() {
		return pkgerrors.New(pkgerrors.CodeConnectionFailed, "connection already released")
	}
	_, err := c.conn.ExecContext(ctx, query, args...)
	return err
}

// Release returns the connection to the pool. Double release is a bug in the
// caller; it is logged and ignored so the pool slot is not double-freed.
func (c *pooledConnection) Release() error {
	if !c.released.CompareAndSwap(false, true) {
		c.logger.Warn().Msg("Connection released more than once")
		return nil
	}
	return c.conn.Close()
}

// Discard marks the underlying driver connection as bad so database/sql
// opens a fresh one in its place rather than reusing it.
func (c *pooledConnection) Discard() error {
	if !c.released.CompareAndSwap(false, true) {
		c.logger.Warn().Msg("Connection released more than once")
		return nil
	}
	// Returning ErrBadConn from Raw makes database/sql drop the driver
	// connection on Close.
	_ = c.conn.Raw(func(interface{}) error { return driver.ErrBadConn })
	if err := c.conn.Close(); err != nil && err != driver.ErrBadConn && err != sql.ErrConnDone {
		return err
	}
	return nil
}

// Column database types whose values are raw binary rather than text.
var binaryColumnTypes = map[string]bool{
	"BINARY":     true,
	"VARBINARY":  true,
	"BLOB":       true,
	"TINYBLOB":   true,
	"MEDIUMBLOB": true,
	"LONGBLOB":   true,
	"BIT":        true,
	"GEOMETRY":   true,
}

// scanRowSet materializes rows into a generic row set. Byte slices from text
// columns become strings; byte slices from binary columns are kept raw for
// the executor's encoding transform.
func scanRowSet(rows *sql.Rows) (*models.RowSet, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}

	fields := make([]models.Field, len(columnTypes))
	binary := make([]bool, len(columnTypes))
	for i, ct := range columnTypes {
		fields[i] = models.Field{Name: ct.Name(), DatabaseType: ct.DatabaseTypeName()}
		binary[i] = binaryColumnTypes[strings.ToUpper(ct.DatabaseTypeName())]
	}

	result := &models.RowSet{Fields: fields}
	for rows.Next() {
		values := make([]interface{}, len(fields))
		pointers := make([]interface{}, len(fields))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(models.Row, len(fields))
		for i, field := range fields {
			val := values[i]
			if b, ok := val.([]byte); ok && !binary[i] {
				val = string(b)
			}
			row[field.Name] = val
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// maskDSN hides the password but keeps the DSN recognisable in logs.
func maskDSN(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return dsn
	}
	colon := strings.Index(dsn[:at], ":")
	if colon < 0 {
		return dsn
	}
	return dsn[:colon] + ":*****" + dsn[at:]
}

// truncateQuery truncates long queries for logging.
func truncateQuery(query string) string {
	const maxLen = 100
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
