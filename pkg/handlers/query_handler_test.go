package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/models"
	"github.com/TFMV/turnstile/pkg/services"
)

type fakeQueryService struct {
	lastRequest *models.QueryRequest
	result      *models.QueryResult
	err         error
}

func (s *fakeQueryService) ExecuteQuery(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error) {
	s.lastRequest = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *fakeQueryService) Policy() services.Policy { return services.Policy{} }

type testLogger struct{}

func (testLogger) Debug(msg string, keysAndValues ...interface{}) {}
func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

type testTimer struct{}

func (testTimer) Stop() time.Duration { return 0 }

type testMetrics struct{}

func (testMetrics) IncrementCounter(name string, labels ...string) {}

func (testMetrics) RecordHistogram(name string, value float64, labels ...string) {}

func (testMetrics) RecordGauge(name string, value float64, labels ...string) {}

func (testMetrics) StartTimer(name string) Timer { return testTimer{} }

func TestHandleQuery(t *testing.T) {
	svc := &fakeQueryService{
		result: &models.QueryResult{
			Fields:        []models.Field{{Name: "id"}, {Name: "name"}},
			Rows:          []models.Row{{"id": int64(1), "name": "alice"}},
			ExecutionTime: 42 * time.Millisecond,
		},
	}
	handler := NewQueryHandler(svc, testLogger{}, testMetrics{})

	payload, err := handler.HandleQuery(context.Background(), map[string]interface{}{
		"sql":      "SELECT id, name FROM users WHERE id = ?",
		"params":   []interface{}{float64(1)},
		"database": "orders",
	})
	require.NoError(t, err)

	resp, ok := payload.(*QueryResponse)
	require.True(t, ok)
	assert.Equal(t, []string{"id", "name"}, resp.Columns)
	assert.Equal(t, 1, resp.RowCount)
	assert.Equal(t, int64(42), resp.ExecutionTimeMs)
	assert.False(t, resp.Truncated)

	require.NotNil(t, svc.lastRequest)
	assert.Equal(t, "orders", svc.lastRequest.Database)
	assert.Equal(t, []interface{}{float64(1)}, svc.lastRequest.Positional)
	assert.Nil(t, svc.lastRequest.Named)
}

func TestHandleQueryNamedParams(t *testing.T) {
	svc := &fakeQueryService{result: &models.QueryResult{}}
	handler := NewQueryHandler(svc, testLogger{}, testMetrics{})

	_, err := handler.HandleQuery(context.Background(), map[string]interface{}{
		"sql":    "SELECT * FROM users WHERE id = :id",
		"params": map[string]interface{}{"id": float64(7)},
	})
	require.NoError(t, err)
	assert.Nil(t, svc.lastRequest.Positional)
	assert.Equal(t, map[string]interface{}{"id": float64(7)}, svc.lastRequest.Named)
}

func TestHandleQueryTimeoutArgument(t *testing.T) {
	svc := &fakeQueryService{result: &models.QueryResult{}}
	handler := NewQueryHandler(svc, testLogger{}, testMetrics{})

	_, err := handler.HandleQuery(context.Background(), map[string]interface{}{
		"sql":        "SELECT 1",
		"timeout_ms": float64(2500),
	})
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, svc.lastRequest.Timeout)
}

func TestHandleQueryArgumentErrors(t *testing.T) {
	handler := NewQueryHandler(&fakeQueryService{}, testLogger{}, testMetrics{})

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{name: "missing sql", args: map[string]interface{}{}},
		{name: "empty sql", args: map[string]interface{}{"sql": ""}},
		{name: "sql not a string", args: map[string]interface{}{"sql": float64(1)}},
		{name: "params wrong shape", args: map[string]interface{}{"sql": "SELECT 1", "params": "nope"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := handler.HandleQuery(context.Background(), tt.args)
			assert.True(t, errors.IsInvalidArgument(err), "got %v", err)
		})
	}
}

func TestHandleQueryServiceError(t *testing.T) {
	svc := &fakeQueryService{err: errors.New(errors.CodePermissionDenied, "denied")}
	handler := NewQueryHandler(svc, testLogger{}, testMetrics{})

	_, err := handler.HandleQuery(context.Background(), map[string]interface{}{"sql": "DELETE FROM t"})
	assert.True(t, errors.IsPermissionDenied(err))
}
