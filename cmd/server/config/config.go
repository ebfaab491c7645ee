// Package config provides configuration structures for the gateway.
package config

import (
	"fmt"
	"time"
)

// Config represents the gateway configuration.
type Config struct {
	// MySQL connection settings
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`

	// Permission policy, fixed for the lifetime of the process
	AllowMutation   bool `yaml:"allow_mutation" json:"allow_mutation"`
	AllowDefinition bool `yaml:"allow_definition" json:"allow_definition"`

	// Execution limits
	QueryTimeout time.Duration `yaml:"query_timeout" json:"query_timeout"`
	RowLimit     int           `yaml:"row_limit" json:"row_limit"`

	LogLevel        string        `yaml:"log_level" json:"log_level"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Connection pool configuration
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool" json:"connection_pool"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// ConnectionPoolConfig represents connection pool configuration.
type ConnectionPoolConfig struct {
	MaxOpenConnections int           `yaml:"max_open_connections" json:"max_open_connections"`
	ConnMaxLifetime    time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
	Path    string `yaml:"path" json:"path"`
}

// Validate validates the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}

	if c.Port <= 0 {
		c.Port = 3306
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.RowLimit <= 0 {
		c.RowLimit = 1000
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	// Set defaults for connection pool
	if c.ConnectionPool.MaxOpenConnections <= 0 {
		c.ConnectionPool.MaxOpenConnections = 2
	}
	if c.ConnectionPool.ConnMaxLifetime <= 0 {
		c.ConnectionPool.ConnMaxLifetime = 30 * time.Minute
	}
	if c.ConnectionPool.ConnMaxIdleTime <= 0 {
		c.ConnectionPool.ConnMaxIdleTime = 10 * time.Minute
	}
	if c.ConnectionPool.ConnectTimeout <= 0 {
		c.ConnectionPool.ConnectTimeout = 10 * time.Second
	}

	// Set defaults for metrics
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}

	return nil
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            3306,
		User:            "root",
		LogLevel:        "info",
		QueryTimeout:    10 * time.Second,
		RowLimit:        1000,
		ShutdownTimeout: 30 * time.Second,
		ConnectionPool: ConnectionPoolConfig{
			MaxOpenConnections: 2,
			ConnMaxLifetime:    30 * time.Minute,
			ConnMaxIdleTime:    10 * time.Minute,
			ConnectTimeout:     10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
			Path:    "/metrics",
		},
	}
}
