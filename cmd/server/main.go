// Command server runs the Turnstile MySQL gateway over MCP stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/TFMV/turnstile/cmd/server/config"
	"github.com/TFMV/turnstile/cmd/server/server"
	"github.com/TFMV/turnstile/pkg/infrastructure/metrics"
)

var (
	// Version information (set by build flags)
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "turnstile",
	Short: "Turnstile MySQL gateway",
	Long: `A policy-gated MySQL gateway speaking MCP over stdio.

Turnstile classifies every statement before it runs: read-only queries are
always permitted, DML and DDL only when explicitly enabled, and everything
else is denied.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Turnstile gateway",
	Long: `Start the Turnstile gateway with the specified configuration.

Example:
  turnstile serve --host localhost --user reader --database orders
  turnstile serve --host db.internal --user agent --allow-mutation`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "MySQL host")
	serveCmd.Flags().Int("port", 3306, "MySQL port")
	serveCmd.Flags().String("user", "", "MySQL user")
	serveCmd.Flags().String("password", "", "MySQL password")
	serveCmd.Flags().String("database", "", "default database")
	serveCmd.Flags().Bool("allow-mutation", false, "permit DML statements (INSERT, UPDATE, DELETE, REPLACE)")
	serveCmd.Flags().Bool("allow-definition", false, "permit DDL statements (CREATE, ALTER, DROP, TRUNCATE, RENAME)")
	serveCmd.Flags().Duration("query-timeout", 10*time.Second, "default statement timeout")
	serveCmd.Flags().Int("row-limit", 1000, "maximum rows returned per statement")
	serveCmd.Flags().Int("pool-size", 2, "maximum open connections")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	serveCmd.Flags().Bool("metrics", false, "enable Prometheus metrics")
	serveCmd.Flags().String("metrics-address", ":9090", "metrics server address")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "graceful shutdown timeout")

	if err := viper.BindPFlags(serveCmd.Flags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("TURNSTILE")
	viper.AutomaticEnv()

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("turnstile %s (commit %s, built %s)\n", version, commit, buildDate)
		},
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogging(cfg.LogLevel)
	logger.Info().
		Str("version", version).
		Str("commit", commit).
		Str("build_date", buildDate).
		Bool("allow_mutation", cfg.AllowMutation).
		Bool("allow_definition", cfg.AllowDefinition).
		Msg("Starting Turnstile gateway")

	var collector metrics.Collector
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		prom := metrics.NewPrometheusCollector()
		collector = prom
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Address, prom.Registry())
		go func() {
			logger.Info().Str("address", cfg.Metrics.Address).Msg("Starting metrics server")
			if err := metricsServer.Start(); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	} else {
		collector = metrics.NewNoOpCollector()
	}

	gateway, err := server.New(cfg, os.Stdin, os.Stdout, logger, collector)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- gateway.Run(ctx)
	}()

	select {
	case <-shutdownCh:
		logger.Info().Msg("Received shutdown signal")
		cancel()
	case err = <-serverErrCh:
		if err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("Server error")
		}
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout).Msg("Starting graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if metricsServer != nil {
		if stopErr := metricsServer.Stop(shutdownCtx); stopErr != nil {
			logger.Error().Err(stopErr).Msg("Error stopping metrics server")
		}
	}
	if closeErr := gateway.Close(); closeErr != nil {
		logger.Error().Err(closeErr).Msg("Error closing gateway")
	}

	logger.Info().Msg("Shutdown complete")
	return err
}

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{
		Host:            viper.GetString("host"),
		Port:            viper.GetInt("port"),
		User:            viper.GetString("user"),
		Password:        viper.GetString("password"),
		Database:        viper.GetString("database"),
		AllowMutation:   viper.GetBool("allow-mutation"),
		AllowDefinition: viper.GetBool("allow-definition"),
		QueryTimeout:    viper.GetDuration("query-timeout"),
		RowLimit:        viper.GetInt("row-limit"),
		LogLevel:        viper.GetString("log-level"),
		ShutdownTimeout: viper.GetDuration("shutdown-timeout"),
		ConnectionPool: config.ConnectionPoolConfig{
			MaxOpenConnections: viper.GetInt("pool-size"),
		},
		Metrics: config.MetricsConfig{
			Enabled: viper.GetBool("metrics"),
			Address: viper.GetString("metrics-address"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging configures zerolog. Logs go to stderr; stdout carries the
// MCP protocol stream.
func setupLogging(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
		zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
			short := file
			for i := len(file) - 1; i > 0; i-- {
				if file[i] == '/' {
					short = file[i+1:]
					break
				}
			}
			return fmt.Sprintf("%s:%d", short, line)
		}
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	logger := zerolog.New(os.Stderr).
		Level(logLevel).
		With().
		Timestamp().
		Str("service", "turnstile")

	if logLevel == zerolog.DebugLevel {
		logger = logger.Caller()
	}

	return logger.Logger()
}
