package services

import (
	"context"
	"strings"
	"time"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/infrastructure/pool"
	"github.com/TFMV/turnstile/pkg/models"
)

const (
	// DefaultQueryTimeout bounds statement execution when the request does
	// not carry its own deadline.
	DefaultQueryTimeout = 10 * time.Second

	// DefaultRowLimit caps the number of rows returned from a single
	// statement.
	DefaultRowLimit = 1000
)

// ExecutorConfig carries the per-handle execution limits. DefaultDatabase
// is the schema the pool's connections start in; it is what a connection is
// restored to after a per-request database override.
type ExecutorConfig struct {
	QueryTimeout    time.Duration
	RowLimit        int
	DefaultDatabase string
}

func (c *ExecutorConfig) applyDefaults() {
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.RowLimit <= 0 {
		c.RowLimit = DefaultRowLimit
	}
}

type queryService struct {
	pool       pool.ConnectionPool
	policy     Policy
	classifier *StatementClassifier
	config     ExecutorConfig
	logger     Logger
	metrics    MetricsCollector
}

// NewQueryService creates a query executor bound to a pool and a permission
// policy. The policy is fixed for the lifetime of the service.
func NewQueryService(connPool pool.ConnectionPool, policy Policy, config ExecutorConfig, logger Logger, metrics MetricsCollector) QueryService {
	config.applyDefaults()
	return &queryService{
		pool:       connPool,
		policy:     policy,
		classifier: NewStatementClassifier(),
		config:     config,
		logger:     logger,
		metrics:    metrics,
	}
}

func (s *queryService) Policy() Policy {
	return s.policy
}

// ExecuteQuery runs a single statement end to end: acquire a connection,
// select the target database, classify and permission-check the statement,
// bind parameters, execute under a deadline, and post-process the rows. The
// connection is released exactly once on every exit path.
func (s *queryService) ExecuteQuery(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error) {
	timer := s.metrics.StartTimer("query_execution_duration")
	defer timer.Stop()

	if req == nil || strings.TrimSpace(req.SQL) == "" {
		s.metrics.IncrementCounter("query_requests_total", "status", "invalid")
		return nil, errors.ErrEmptyStatement
	}

	s.logger.Debug("Executing query", "query", truncateForLog(req.SQL))

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		s.metrics.IncrementCounter("query_requests_total", "status", "error")
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "failed to acquire connection")
	}
	schemaChanged := false
	defer func() { s.releaseConnection(conn, schemaChanged) }()

	if req.Database != "" && req.Database != s.config.DefaultDatabase {
		if !ValidIdentifier(req.Database) {
			s.metrics.IncrementCounter("query_requests_total", "status", "invalid")
			return nil, errors.Newf(errors.CodeInvalidArgument, "invalid database name format: %s", req.Database)
		}
		schemaChanged = true
		if err := conn.Exec(ctx, "USE `"+req.Database+"`"); err != nil {
			s.metrics.IncrementCounter("query_requests_total", "status", "error")
			return nil, s.wrapExecutionError(err, ctx)
		}
	}

	category, keyword, err := s.classifier.Classify(req.SQL)
	if err != nil {
		s.metrics.IncrementCounter("query_requests_total", "status", "invalid")
		return nil, err
	}

	decision := s.policy.Decide(category, keyword)
	s.logger.Info("Permission decision",
		"keyword", keyword,
		"category", category.String(),
		"allowed", decision.Allowed,
		"reason", decision.Reason)
	if !decision.Allowed {
		s.metrics.IncrementCounter("query_requests_total", "status", "denied")
		return nil, errors.New(errors.CodePermissionDenied, decision.Reason).
			WithDetail("keyword", keyword).
			WithDetail("category", category.String())
	}

	sqlText, args, err := bindParameters(req)
	if err != nil {
		s.metrics.IncrementCounter("query_requests_total", "status", "invalid")
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.config.QueryTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	rowSet, err := conn.Query(execCtx, sqlText, args...)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.IncrementCounter("query_requests_total", "status", "error")
		return nil, s.wrapExecutionError(err, execCtx)
	}

	encodeBinaryValues(rowSet.Rows)

	limit := req.MaxRows
	if limit <= 0 {
		limit = s.config.RowLimit
	}
	rows, truncated := capRows(rowSet.Rows, limit)
	if truncated {
		s.metrics.IncrementCounter("query_rows_truncated_total")
		s.logger.Warn("Result truncated",
			"row_limit", limit,
			"query", truncateForLog(sqlText))
	}

	s.metrics.IncrementCounter("query_requests_total", "status", "success")
	s.metrics.RecordHistogram("query_rows_returned", float64(len(rows)))
	s.logger.Debug("Query completed",
		"rows", len(rows),
		"truncated", truncated,
		"duration", elapsed)

	return &models.QueryResult{
		Fields:        rowSet.Fields,
		Rows:          rows,
		Truncated:     truncated,
		ExecutionTime: elapsed,
	}, nil
}

// releaseConnection returns the connection to the pool. A connection whose
// session schema was overridden must not rejoin the pool in that state: the
// driver does not restore the default database between borrows, so a later
// request without an override would silently run against the previous
// caller's schema. The restore uses a fresh context because the request
// context may already be expired.
func (s *queryService) releaseConnection(conn pool.Connection, schemaChanged bool) {
	if !schemaChanged {
		if err := conn.Release(); err != nil {
			s.logger.Warn("Connection release failed", "error", err)
		}
		return
	}

	if s.config.DefaultDatabase != "" && ValidIdentifier(s.config.DefaultDatabase) {
		restoreCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := conn.Exec(restoreCtx, "USE `"+s.config.DefaultDatabase+"`"); err == nil {
			if err := conn.Release(); err != nil {
				s.logger.Warn("Connection release failed", "error", err)
			}
			return
		}
		s.logger.Warn("Failed to restore default database, discarding connection",
			"database", s.config.DefaultDatabase)
	}

	s.metrics.IncrementCounter("pool_connections_discarded_total")
	if err := conn.Discard(); err != nil {
		s.logger.Warn("Connection discard failed", "error", err)
	}
}

// wrapExecutionError maps driver failures onto stable error codes. The
// deadline check comes first so a cancelled query reads as a timeout rather
// than a generic driver error.
func (s *queryService) wrapExecutionError(err error, ctx context.Context) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Wrap(err, errors.CodeDeadlineExceeded, "query timed out")
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "Unknown database"):
		return errors.Wrap(err, errors.CodeNotFound, "database not found")
	case strings.Contains(msg, "doesn't exist"):
		return errors.Wrap(err, errors.CodeNotFound, "table not found")
	case strings.Contains(msg, "Access denied"):
		return errors.Wrap(err, errors.CodePermissionDenied, "access denied by server")
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "invalid connection"), strings.Contains(msg, "broken pipe"):
		return errors.Wrap(err, errors.CodeConnectionFailed, "connection failed during execution")
	default:
		return errors.Wrap(err, errors.CodeExecutionFailed, "query execution failed")
	}
}

func truncateForLog(query string) string {
	const max = 100
	if len(query) <= max {
		return query
	}
	return query[:max] + "..."
}
