package services

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/models"
)

type fakeMetadataRepo struct {
	tables       map[string]bool
	existsErr    map[string]error
	columnsErr   map[string]error
	fullRequests []string
	facetCalls   []string
}

func (r *fakeMetadataRepo) TableExists(ctx context.Context, database, table string) (bool, error) {
	if err := r.existsErr[table]; err != nil {
		return false, err
	}
	return r.tables[table], nil
}

func (r *fakeMetadataRepo) GetColumns(ctx context.Context, database, table string, full bool) ([]models.Column, error) {
	if err := r.columnsErr[table]; err != nil {
		return nil, err
	}
	r.facetCalls = append(r.facetCalls, "columns:"+table)
	if full {
		r.fullRequests = append(r.fullRequests, table)
	}
	return []models.Column{{Name: "id", Type: "bigint"}}, nil
}

func (r *fakeMetadataRepo) GetForeignKeys(ctx context.Context, database, table string) ([]models.ForeignKey, error) {
	r.facetCalls = append(r.facetCalls, "fks:"+table)
	return []models.ForeignKey{{ConstraintName: "fk_test", Column: "id"}}, nil
}

func (r *fakeMetadataRepo) GetIndexes(ctx context.Context, database, table string) ([]models.Index, error) {
	r.facetCalls = append(r.facetCalls, "indexes:"+table)
	return []models.Index{{Name: "PRIMARY", Columns: []string{"id"}}}, nil
}

func (r *fakeMetadataRepo) GetIndexDetails(ctx context.Context, database, table string) ([]models.IndexDetail, error) {
	r.facetCalls = append(r.facetCalls, "index_details:"+table)
	return []models.IndexDetail{{Name: "PRIMARY", Column: "id"}}, nil
}

func (r *fakeMetadataRepo) ListDatabases(ctx context.Context) (*models.QueryResult, error) {
	return &models.QueryResult{Rows: []models.Row{{"Database": "orders"}}}, nil
}

func (r *fakeMetadataRepo) ListTables(ctx context.Context, database string) (*models.QueryResult, error) {
	rows := make([]models.Row, 0, len(r.tables))
	for name := range r.tables {
		rows = append(rows, models.Row{"table_name": name})
	}
	return &models.QueryResult{Rows: rows}, nil
}

func newTestSchemaService(repo *fakeMetadataRepo) SchemaService {
	return NewSchemaService(repo, "orders", nopLogger{}, nopMetrics{})
}

func TestAnalyzeTablesEmptyList(t *testing.T) {
	svc := newTestSchemaService(&fakeMetadataRepo{})

	_, err := svc.AnalyzeTables(context.Background(), nil, "BASIC", "")
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestAnalyzeTablesBasic(t *testing.T) {
	repo := &fakeMetadataRepo{tables: map[string]bool{"users": true}}
	svc := newTestSchemaService(repo)

	results, err := svc.AnalyzeTables(context.Background(), []string{"users"}, "BASIC", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	analysis := results["users"]
	if analysis.Error != "" {
		t.Fatalf("unexpected table error: %s", analysis.Error)
	}
	if len(analysis.Columns) != 1 {
		t.Errorf("columns = %v", analysis.Columns)
	}
	if analysis.ForeignKeys != nil || analysis.Indexes != nil || analysis.IndexDetails != nil {
		t.Errorf("BASIC must fetch columns only, got %+v", analysis)
	}
	if len(repo.fullRequests) != 0 {
		t.Errorf("BASIC must request basic columns, got full for %v", repo.fullRequests)
	}
}

func TestAnalyzeTablesStandard(t *testing.T) {
	repo := &fakeMetadataRepo{tables: map[string]bool{"users": true}}
	svc := newTestSchemaService(repo)

	results, err := svc.AnalyzeTables(context.Background(), []string{"users"}, "STANDARD", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	analysis := results["users"]
	if analysis.Columns == nil || analysis.ForeignKeys == nil || analysis.Indexes == nil {
		t.Errorf("STANDARD should fetch columns, fks, indexes: %+v", analysis)
	}
	if analysis.IndexDetails != nil {
		t.Errorf("STANDARD must not fetch index details")
	}
}

func TestAnalyzeTablesFull(t *testing.T) {
	repo := &fakeMetadataRepo{tables: map[string]bool{"users": true}}
	svc := newTestSchemaService(repo)

	results, err := svc.AnalyzeTables(context.Background(), []string{"users"}, "FULL", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	analysis := results["users"]
	if analysis.Columns == nil || analysis.ForeignKeys == nil || analysis.IndexDetails == nil {
		t.Errorf("FULL should fetch full columns, fks, index details: %+v", analysis)
	}
	if analysis.Indexes != nil {
		t.Errorf("FULL uses index details, not the basic index list")
	}
	if len(repo.fullRequests) != 1 || repo.fullRequests[0] != "users" {
		t.Errorf("FULL must request full column detail, got %v", repo.fullRequests)
	}
}

func TestAnalyzeTablesUnknownLevelDefaultsToStandard(t *testing.T) {
	repo := &fakeMetadataRepo{tables: map[string]bool{"users": true}}
	svc := newTestSchemaService(repo)

	results, err := svc.AnalyzeTables(context.Background(), []string{"users"}, "extreme", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	analysis := results["users"]
	if analysis.Columns == nil || analysis.ForeignKeys == nil || analysis.Indexes == nil {
		t.Errorf("unknown level should behave like STANDARD: %+v", analysis)
	}
}

func TestAnalyzeTablesNonexistentTable(t *testing.T) {
	repo := &fakeMetadataRepo{tables: map[string]bool{"users": true}}
	svc := newTestSchemaService(repo)

	results, err := svc.AnalyzeTables(context.Background(), []string{"ghost"}, "BASIC", "")
	if err != nil {
		t.Fatalf("per-table problems must not raise: %v", err)
	}
	if !strings.Contains(results["ghost"].Error, "does not exist") {
		t.Errorf("error = %q, want mention of nonexistence", results["ghost"].Error)
	}
}

func TestAnalyzeTablesInvalidName(t *testing.T) {
	repo := &fakeMetadataRepo{tables: map[string]bool{"users": true}}
	svc := newTestSchemaService(repo)

	results, err := svc.AnalyzeTables(context.Background(), []string{"bad name!"}, "BASIC", "")
	if err != nil {
		t.Fatalf("per-table problems must not raise: %v", err)
	}
	if !strings.Contains(results["bad name!"].Error, "invalid table name format") {
		t.Errorf("error = %q", results["bad name!"].Error)
	}
	if len(repo.facetCalls) != 0 {
		t.Errorf("no metadata may be fetched for an invalid name, got %v", repo.facetCalls)
	}
}

func TestAnalyzeTablesSiblingsSurviveFailure(t *testing.T) {
	repo := &fakeMetadataRepo{
		tables:     map[string]bool{"good": true, "broken": true},
		columnsErr: map[string]error{"broken": fmt.Errorf("lock wait timeout")},
	}
	svc := newTestSchemaService(repo)

	results, err := svc.AnalyzeTables(context.Background(), []string{"broken", "good"}, "BASIC", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results["broken"].Error == "" {
		t.Error("broken table should carry an error entry")
	}
	if results["good"].Error != "" || results["good"].Columns == nil {
		t.Errorf("sibling table must still be analyzed: %+v", results["good"])
	}
}

func TestAnalyzeTablesFailedFacetDropsPartialResults(t *testing.T) {
	repo := &fakeMetadataRepo{
		tables:     map[string]bool{"users": true},
		columnsErr: map[string]error{"users": fmt.Errorf("boom")},
	}
	svc := newTestSchemaService(repo)

	results, err := svc.AnalyzeTables(context.Background(), []string{"users"}, "STANDARD", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	analysis := results["users"]
	if analysis.Error == "" {
		t.Fatal("expected an error entry")
	}
	if analysis.Columns != nil || analysis.ForeignKeys != nil || analysis.Indexes != nil {
		t.Errorf("a failed facet must not leave partial results: %+v", analysis)
	}
}

func TestAnalyzeTablesNoDatabase(t *testing.T) {
	svc := NewSchemaService(&fakeMetadataRepo{}, "", nopLogger{}, nopMetrics{})

	_, err := svc.AnalyzeTables(context.Background(), []string{"users"}, "BASIC", "")
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestListTablesResolvesDefaultDatabase(t *testing.T) {
	repo := &fakeMetadataRepo{tables: map[string]bool{"users": true}}
	svc := newTestSchemaService(repo)

	result, err := svc.ListTables(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Rows) != 1 {
		t.Errorf("rows = %v", result.Rows)
	}

	_, err = svc.ListTables(context.Background(), "bad;name")
	if !errors.IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
