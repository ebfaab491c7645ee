package handlers

import (
	"context"
	"time"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/models"
	"github.com/TFMV/turnstile/pkg/services"
)

// QueryResponse is the serializable payload returned by the query tool.
type QueryResponse struct {
	Columns         []string     `json:"columns"`
	Rows            []models.Row `json:"rows"`
	RowCount        int          `json:"row_count"`
	Truncated       bool         `json:"truncated,omitempty"`
	ExecutionTimeMs int64        `json:"execution_time_ms"`
}

type queryHandler struct {
	queryService services.QueryService
	logger       Logger
	metrics      MetricsCollector
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(queryService services.QueryService, logger Logger, metrics MetricsCollector) QueryHandler {
	return &queryHandler{
		queryService: queryService,
		logger:       logger,
		metrics:      metrics,
	}
}

// HandleQuery parses the tool arguments, executes the statement, and shapes
// the result for serialization. Positional parameters arrive as a JSON
// array, named parameters as a JSON object; the shape picks the binding
// mode.
func (h *queryHandler) HandleQuery(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	timer := h.metrics.StartTimer("handler_query_duration")
	defer timer.Stop()

	sql, err := requiredString(args, "sql")
	if err != nil {
		return nil, err
	}

	req := &models.QueryRequest{
		SQL:      sql,
		Database: optionalString(args, "database"),
		MaxRows:  optionalInt(args, "max_rows"),
	}
	if ms := optionalInt(args, "timeout_ms"); ms > 0 {
		req.Timeout = time.Duration(ms) * time.Millisecond
	}

	switch params := args["params"].(type) {
	case nil:
	case []interface{}:
		req.Positional = params
	case map[string]interface{}:
		req.Named = params
	default:
		return nil, errors.New(errors.CodeInvalidArgument,
			"params must be an array (positional) or an object (named)")
	}

	result, err := h.queryService.ExecuteQuery(ctx, req)
	if err != nil {
		h.metrics.IncrementCounter("handler_query_errors")
		h.logger.Error("Query tool failed", "error", err)
		return nil, err
	}

	columns := make([]string, 0, len(result.Fields))
	for _, f := range result.Fields {
		columns = append(columns, f.Name)
	}

	rows := result.Rows
	if rows == nil {
		rows = []models.Row{}
	}

	return &QueryResponse{
		Columns:         columns,
		Rows:            rows,
		RowCount:        len(rows),
		Truncated:       result.Truncated,
		ExecutionTimeMs: result.ExecutionTime.Milliseconds(),
	}, nil
}

// requiredString extracts a mandatory string argument.
func requiredString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", errors.Newf(errors.CodeInvalidArgument, "missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", errors.Newf(errors.CodeInvalidArgument, "argument %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalString(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

// optionalInt extracts an optional numeric argument. JSON numbers decode as
// float64.
func optionalInt(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
