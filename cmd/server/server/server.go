package server

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/TFMV/turnstile/cmd/server/config"
	"github.com/TFMV/turnstile/pkg/handlers"
	"github.com/TFMV/turnstile/pkg/infrastructure/metrics"
	"github.com/TFMV/turnstile/pkg/infrastructure/pool"
	mysqlrepo "github.com/TFMV/turnstile/pkg/repositories/mysql"
	"github.com/TFMV/turnstile/pkg/server"
	"github.com/TFMV/turnstile/pkg/services"
)

// Gateway owns the pool, services, and MCP transport for one process.
type Gateway struct {
	pool      pool.ConnectionPool
	mcpServer *server.MCPServer
	logger    zerolog.Logger
}

// New builds the full service stack from configuration. The permission
// policy and pool size are fixed here and cannot change while the process
// runs.
func New(cfg *config.Config, in io.Reader, out io.Writer, logger zerolog.Logger, collector metrics.Collector) (*Gateway, error) {
	connPool, err := pool.New(pool.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		Database:           cfg.Database,
		MaxOpenConnections: cfg.ConnectionPool.MaxOpenConnections,
		ConnMaxLifetime:    cfg.ConnectionPool.ConnMaxLifetime,
		ConnMaxIdleTime:    cfg.ConnectionPool.ConnMaxIdleTime,
		ConnectTimeout:     cfg.ConnectionPool.ConnectTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	policy := services.Policy{
		AllowMutation:   cfg.AllowMutation,
		AllowDefinition: cfg.AllowDefinition,
	}

	serviceLogger := &loggerAdapter{logger: logger}
	serviceMetrics := &serviceMetricsAdapter{collector: collector}
	handlerMetrics := &handlerMetricsAdapter{collector: collector}

	queryService := services.NewQueryService(connPool, policy, services.ExecutorConfig{
		QueryTimeout:    cfg.QueryTimeout,
		RowLimit:        cfg.RowLimit,
		DefaultDatabase: cfg.Database,
	}, serviceLogger, serviceMetrics)

	metadataRepo := mysqlrepo.NewMetadataRepository(queryService, logger)
	schemaService := services.NewSchemaService(metadataRepo, cfg.Database, serviceLogger, serviceMetrics)

	queryHandler := handlers.NewQueryHandler(queryService, serviceLogger, handlerMetrics)
	schemaHandler := handlers.NewSchemaHandler(schemaService, serviceLogger, handlerMetrics)

	mcpServer := server.NewMCPServer(in, out, queryHandler, schemaHandler, policy, logger, collector)

	return &Gateway{
		pool:      connPool,
		mcpServer: mcpServer,
		logger:    logger,
	}, nil
}

// Run serves MCP requests until the context is cancelled or the input stream
// closes.
func (g *Gateway) Run(ctx context.Context) error {
	return g.mcpServer.Run(ctx)
}

// HealthCheck probes the database connection.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	return g.pool.HealthCheck(ctx)
}

// Close releases the connection pool.
func (g *Gateway) Close() error {
	g.logger.Info().Msg("Closing gateway")
	return g.pool.Close()
}
