// Package handlers translates tool-call argument bags into service requests.
package handlers

import (
	"context"
	"time"
)

// QueryHandler handles the statement execution tool.
type QueryHandler interface {
	// HandleQuery executes a single SQL statement described by the tool
	// arguments and returns a serializable result payload.
	HandleQuery(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// SchemaHandler handles the catalog and schema analysis tools.
type SchemaHandler interface {
	// HandleAnalyzeSchema analyzes the requested tables at a detail level.
	HandleAnalyzeSchema(ctx context.Context, args map[string]interface{}) (interface{}, error)

	// HandleListDatabases lists the databases visible to the account.
	HandleListDatabases(ctx context.Context) (interface{}, error)

	// HandleListTables lists the tables of one database.
	HandleListTables(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Logger defines the logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines the metrics interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
