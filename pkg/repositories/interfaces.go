package repositories

import (
	"context"

	"github.com/TFMV/turnstile/pkg/models"
)

// StatementExecutor runs a single statement. Repository implementations go
// through it rather than holding connections of their own, so every metadata
// fetch is subject to the same classification, permission, and timeout rules
// as user statements.
type StatementExecutor interface {
	ExecuteQuery(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error)
}

// MetadataRepository fetches catalog and schema metadata for a single
// database target.
type MetadataRepository interface {
	// TableExists reports whether the table is present in the database.
	TableExists(ctx context.Context, database, table string) (bool, error)

	// GetColumns returns column definitions in ordinal position order.
	// When full is set the descriptions carry nullability, keys, defaults,
	// comments, and character set information.
	GetColumns(ctx context.Context, database, table string, full bool) ([]models.Column, error)

	// GetForeignKeys returns outbound foreign key constraints.
	GetForeignKeys(ctx context.Context, database, table string) ([]models.ForeignKey, error)

	// GetIndexes returns index names with their column lists.
	GetIndexes(ctx context.Context, database, table string) ([]models.Index, error)

	// GetIndexDetails returns per-column index statistics.
	GetIndexDetails(ctx context.Context, database, table string) ([]models.IndexDetail, error)

	// ListDatabases returns the databases visible to the connected account.
	ListDatabases(ctx context.Context) (*models.QueryResult, error)

	// ListTables returns the tables of the given database.
	ListTables(ctx context.Context, database string) (*models.QueryResult, error)
}
