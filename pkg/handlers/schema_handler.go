package handlers

import (
	"context"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/models"
	"github.com/TFMV/turnstile/pkg/services"
)

// SchemaResponse is the serializable payload returned by the schema analysis
// tool, keyed by table name.
type SchemaResponse struct {
	Database string                          `json:"database,omitempty"`
	Tables   map[string]models.TableAnalysis `json:"tables"`
}

// ListResponse is the serializable payload of the catalog listing tools.
type ListResponse struct {
	Columns []string     `json:"columns"`
	Rows    []models.Row `json:"rows"`
}

type schemaHandler struct {
	schemaService services.SchemaService
	logger        Logger
	metrics       MetricsCollector
}

// NewSchemaHandler creates a new schema handler.
func NewSchemaHandler(schemaService services.SchemaService, logger Logger, metrics MetricsCollector) SchemaHandler {
	return &schemaHandler{
		schemaService: schemaService,
		logger:        logger,
		metrics:       metrics,
	}
}

// HandleAnalyzeSchema parses the tool arguments and runs the per-table
// analysis. Tables may arrive as a JSON array of names or as a single name.
func (h *schemaHandler) HandleAnalyzeSchema(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	timer := h.metrics.StartTimer("handler_analyze_schema_duration")
	defer timer.Stop()

	tables, err := tableNames(args)
	if err != nil {
		return nil, err
	}
	detailLevel := optionalString(args, "detail_level")
	database := optionalString(args, "database")

	results, err := h.schemaService.AnalyzeTables(ctx, tables, detailLevel, database)
	if err != nil {
		h.metrics.IncrementCounter("handler_schema_errors")
		h.logger.Error("Schema analysis tool failed", "error", err)
		return nil, err
	}

	return &SchemaResponse{
		Database: database,
		Tables:   results,
	}, nil
}

// HandleListDatabases lists the databases visible to the account.
func (h *schemaHandler) HandleListDatabases(ctx context.Context) (interface{}, error) {
	result, err := h.schemaService.ListDatabases(ctx)
	if err != nil {
		h.metrics.IncrementCounter("handler_schema_errors")
		return nil, err
	}
	return listResponse(result), nil
}

// HandleListTables lists the tables of the requested database.
func (h *schemaHandler) HandleListTables(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	result, err := h.schemaService.ListTables(ctx, optionalString(args, "database"))
	if err != nil {
		h.metrics.IncrementCounter("handler_schema_errors")
		return nil, err
	}
	return listResponse(result), nil
}

func listResponse(result *models.QueryResult) *ListResponse {
	columns := make([]string, 0, len(result.Fields))
	for _, f := range result.Fields {
		columns = append(columns, f.Name)
	}
	rows := result.Rows
	if rows == nil {
		rows = []models.Row{}
	}
	return &ListResponse{Columns: columns, Rows: rows}
}

// tableNames accepts either "tables": ["a", "b"] or "table": "a".
func tableNames(args map[string]interface{}) ([]string, error) {
	if raw, ok := args["tables"]; ok {
		list, ok := raw.([]interface{})
		if !ok {
			return nil, errors.New(errors.CodeInvalidArgument, "tables must be an array of table names")
		}
		names := make([]string, 0, len(list))
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				return nil, errors.New(errors.CodeInvalidArgument, "tables must contain only strings")
			}
			names = append(names, name)
		}
		return names, nil
	}

	if name := optionalString(args, "table"); name != "" {
		return []string{name}, nil
	}

	return nil, errors.New(errors.CodeInvalidArgument, "at least one table name is required")
}
