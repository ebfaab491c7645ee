package services

import (
	"context"
	"fmt"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/models"
	"github.com/TFMV/turnstile/pkg/repositories"
)

type schemaService struct {
	repo            repositories.MetadataRepository
	defaultDatabase string
	logger          Logger
	metrics         MetricsCollector
}

// NewSchemaService creates a schema analysis service. The default database
// is used when a request does not name one.
func NewSchemaService(repo repositories.MetadataRepository, defaultDatabase string, logger Logger, metrics MetricsCollector) SchemaService {
	return &schemaService{
		repo:            repo,
		defaultDatabase: defaultDatabase,
		logger:          logger,
		metrics:         metrics,
	}
}

// AnalyzeTables fetches the facets selected by the detail level for each
// requested table. A failure on one table is recorded in that table's entry
// and never aborts the remaining tables.
func (s *schemaService) AnalyzeTables(ctx context.Context, tables []string, detailLevel string, database string) (map[string]models.TableAnalysis, error) {
	timer := s.metrics.StartTimer("schema_analysis_duration")
	defer timer.Stop()

	if len(tables) == 0 {
		return nil, errors.New(errors.CodeInvalidArgument, "at least one table name is required")
	}

	db, err := s.resolveDatabase(database)
	if err != nil {
		return nil, err
	}

	level := models.ParseDetailLevel(detailLevel)
	facets := level.Facets()
	s.logger.Info("Analyzing schema",
		"database", db,
		"tables", len(tables),
		"detail_level", string(level))

	results := make(map[string]models.TableAnalysis, len(tables))
	for _, table := range tables {
		results[table] = s.analyzeTable(ctx, db, table, facets)
	}
	return results, nil
}

func (s *schemaService) analyzeTable(ctx context.Context, db, table string, facets models.FacetSet) models.TableAnalysis {
	if !ValidIdentifier(table) {
		s.metrics.IncrementCounter("schema_table_errors_total", "reason", "invalid_name")
		return models.TableAnalysis{Error: fmt.Sprintf("invalid table name format: %s", table)}
	}

	exists, err := s.repo.TableExists(ctx, db, table)
	if err != nil {
		s.metrics.IncrementCounter("schema_table_errors_total", "reason", "lookup_failed")
		return models.TableAnalysis{Error: fmt.Sprintf("failed to check table %s: %v", table, err)}
	}
	if !exists {
		s.metrics.IncrementCounter("schema_table_errors_total", "reason", "not_found")
		return models.TableAnalysis{Error: fmt.Sprintf("table %q does not exist in database %q", table, db)}
	}

	var analysis models.TableAnalysis

	if facets[models.FacetColumnsBasic] || facets[models.FacetColumnsFull] {
		full := facets[models.FacetColumnsFull]
		columns, err := s.repo.GetColumns(ctx, db, table, full)
		if err != nil {
			return s.facetFailure(table, "columns", err)
		}
		analysis.Columns = columns
	}

	if facets[models.FacetForeignKeys] {
		keys, err := s.repo.GetForeignKeys(ctx, db, table)
		if err != nil {
			return s.facetFailure(table, "foreign keys", err)
		}
		analysis.ForeignKeys = keys
	}

	if facets[models.FacetIndexesBasic] {
		indexes, err := s.repo.GetIndexes(ctx, db, table)
		if err != nil {
			return s.facetFailure(table, "indexes", err)
		}
		analysis.Indexes = indexes
	}

	if facets[models.FacetIndexesFull] {
		details, err := s.repo.GetIndexDetails(ctx, db, table)
		if err != nil {
			return s.facetFailure(table, "index details", err)
		}
		analysis.IndexDetails = details
	}

	return analysis
}

func (s *schemaService) facetFailure(table, facet string, err error) models.TableAnalysis {
	s.metrics.IncrementCounter("schema_table_errors_total", "reason", "facet_failed")
	s.logger.Warn("Schema facet fetch failed", "table", table, "facet", facet, "error", err)
	return models.TableAnalysis{Error: fmt.Sprintf("failed to fetch %s for table %s: %v", facet, table, err)}
}

func (s *schemaService) ListDatabases(ctx context.Context) (*models.QueryResult, error) {
	return s.repo.ListDatabases(ctx)
}

func (s *schemaService) ListTables(ctx context.Context, database string) (*models.QueryResult, error) {
	db, err := s.resolveDatabase(database)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTables(ctx, db)
}

func (s *schemaService) resolveDatabase(database string) (string, error) {
	db := database
	if db == "" {
		db = s.defaultDatabase
	}
	if db == "" {
		return "", errors.New(errors.CodeInvalidArgument, "no database specified and no default configured")
	}
	if !ValidIdentifier(db) {
		return "", errors.Newf(errors.CodeInvalidArgument, "invalid database name format: %s", db)
	}
	return db, nil
}
