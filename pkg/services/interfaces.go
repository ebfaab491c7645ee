package services

import (
	"context"
	"time"

	"github.com/TFMV/turnstile/pkg/models"
)

// QueryService executes single statements under the handle's permission
// policy.
type QueryService interface {
	ExecuteQuery(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error)
	Policy() Policy
}

// SchemaService orchestrates schema analysis and catalog listings. All of
// its statements run through the query executor and are therefore subject to
// the same permission policy (they are read-only and always permitted).
type SchemaService interface {
	AnalyzeTables(ctx context.Context, tables []string, detailLevel string, database string) (map[string]models.TableAnalysis, error)
	ListDatabases(ctx context.Context) (*models.QueryResult, error)
	ListTables(ctx context.Context, database string) (*models.QueryResult, error)
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
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
