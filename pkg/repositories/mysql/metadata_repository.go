package mysql

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/TFMV/turnstile/pkg/errors"
	"github.com/TFMV/turnstile/pkg/models"
	"github.com/TFMV/turnstile/pkg/repositories"
	"github.com/TFMV/turnstile/pkg/services"
)

// Catalog queries are issued against information_schema with bound
// parameters wherever MySQL accepts them. SHOW INDEX takes identifiers only,
// so the table reference is validated immediately before interpolation.
const (
	columnsBasicQuery = `SELECT column_name AS name, column_type AS type
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`

	columnsFullQuery = `SELECT column_name AS name, column_type AS type,
       is_nullable AS nullable, column_key AS column_key,
       column_default AS default_value, extra AS extra,
       column_comment AS comment, character_set_name AS charset,
       collation_name AS collation
FROM information_schema.columns
WHERE table_schema = ? AND table_name = ?
ORDER BY ordinal_position`

	foreignKeysQuery = `SELECT kcu.constraint_name AS constraint_name,
       kcu.column_name AS column_name,
       kcu.referenced_table_schema AS referenced_schema,
       kcu.referenced_table_name AS referenced_table,
       kcu.referenced_column_name AS referenced_column,
       rc.update_rule AS update_rule,
       rc.delete_rule AS delete_rule
FROM information_schema.key_column_usage kcu
JOIN information_schema.referential_constraints rc
  ON rc.constraint_schema = kcu.constraint_schema
 AND rc.constraint_name = kcu.constraint_name
WHERE kcu.table_schema = ? AND kcu.table_name = ?
  AND kcu.referenced_table_name IS NOT NULL
ORDER BY kcu.constraint_name, kcu.ordinal_position`

	indexesQuery = `SELECT index_name AS index_name, column_name AS column_name
FROM information_schema.statistics
WHERE table_schema = ? AND table_name = ?
ORDER BY index_name, seq_in_index`

	tableExistsQuery = `SELECT COUNT(*) AS cnt
FROM information_schema.tables
WHERE table_schema = ? AND table_name = ?`

	listTablesQuery = `SELECT table_name, table_type
FROM information_schema.tables
WHERE table_schema = ?
ORDER BY table_name`
)

// MetadataRepository implements repositories.MetadataRepository against a
// MySQL catalog, routing every statement through the query executor.
type MetadataRepository struct {
	exec   repositories.StatementExecutor
	logger zerolog.Logger
}

// NewMetadataRepository creates a MySQL metadata repository.
func NewMetadataRepository(exec repositories.StatementExecutor, logger zerolog.Logger) *MetadataRepository {
	return &MetadataRepository{
		exec:   exec,
		logger: logger.With().Str("component", "metadata_repository").Logger(),
	}
}

func (r *MetadataRepository) query(ctx context.Context, sql string, params ...interface{}) (*models.QueryResult, error) {
	return r.exec.ExecuteQuery(ctx, &models.QueryRequest{
		SQL:        sql,
		Positional: params,
	})
}

func (r *MetadataRepository) TableExists(ctx context.Context, database, table string) (bool, error) {
	result, err := r.query(ctx, tableExistsQuery, database, table)
	if err != nil {
		return false, err
	}
	if len(result.Rows) == 0 {
		return false, nil
	}
	return asInt64(result.Rows[0]["cnt"]) > 0, nil
}

func (r *MetadataRepository) GetColumns(ctx context.Context, database, table string, full bool) ([]models.Column, error) {
	sql := columnsBasicQuery
	if full {
		sql = columnsFullQuery
	}
	result, err := r.query(ctx, sql, database, table)
	if err != nil {
		return nil, err
	}

	columns := make([]models.Column, 0, len(result.Rows))
	for _, row := range result.Rows {
		col := models.Column{
			Name: asString(row["name"]),
			Type: asString(row["type"]),
		}
		if full {
			col.Nullable = asString(row["nullable"])
			col.Key = asString(row["column_key"])
			col.Default = asStringPtr(row["default_value"])
			col.Extra = asString(row["extra"])
			col.Comment = asString(row["comment"])
			col.Charset = asString(row["charset"])
			col.Collation = asString(row["collation"])
		}
		columns = append(columns, col)
	}
	return columns, nil
}

func (r *MetadataRepository) GetForeignKeys(ctx context.Context, database, table string) ([]models.ForeignKey, error) {
	result, err := r.query(ctx, foreignKeysQuery, database, table)
	if err != nil {
		return nil, err
	}

	keys := make([]models.ForeignKey, 0, len(result.Rows))
	for _, row := range result.Rows {
		keys = append(keys, models.ForeignKey{
			ConstraintName:   asString(row["constraint_name"]),
			Column:           asString(row["column_name"]),
			ReferencedSchema: asString(row["referenced_schema"]),
			ReferencedTable:  asString(row["referenced_table"]),
			ReferencedColumn: asString(row["referenced_column"]),
			UpdateRule:       asString(row["update_rule"]),
			DeleteRule:       asString(row["delete_rule"]),
		})
	}
	return keys, nil
}

func (r *MetadataRepository) GetIndexes(ctx context.Context, database, table string) ([]models.Index, error) {
	result, err := r.query(ctx, indexesQuery, database, table)
	if err != nil {
		return nil, err
	}

	var indexes []models.Index
	position := make(map[string]int)
	for _, row := range result.Rows {
		name := asString(row["index_name"])
		column := asString(row["column_name"])
		if i, ok := position[name]; ok {
			indexes[i].Columns = append(indexes[i].Columns, column)
			continue
		}
		position[name] = len(indexes)
		indexes = append(indexes, models.Index{Name: name, Columns: []string{column}})
	}
	return indexes, nil
}

func (r *MetadataRepository) GetIndexDetails(ctx context.Context, database, table string) ([]models.IndexDetail, error) {
	// SHOW INDEX does not accept bound parameters, so both identifiers are
	// validated right before they are written into the statement.
	if !services.ValidIdentifier(database) {
		return nil, errors.Newf(errors.CodeInvalidArgument, "invalid database name format: %s", database)
	}
	if !services.ValidIdentifier(table) {
		return nil, errors.Newf(errors.CodeInvalidArgument, "invalid table name format: %s", table)
	}

	result, err := r.query(ctx, fmt.Sprintf("SHOW INDEX FROM `%s`.`%s`", database, table))
	if err != nil {
		return nil, err
	}

	details := make([]models.IndexDetail, 0, len(result.Rows))
	for _, row := range result.Rows {
		details = append(details, models.IndexDetail{
			Name:        asString(row["Key_name"]),
			NonUnique:   asInt64(row["Non_unique"]),
			SeqInIndex:  asInt64(row["Seq_in_index"]),
			Column:      asString(row["Column_name"]),
			Collation:   asString(row["Collation"]),
			Cardinality: asInt64(row["Cardinality"]),
			Nullable:    asString(row["Null"]),
			IndexType:   asString(row["Index_type"]),
		})
	}
	return details, nil
}

func (r *MetadataRepository) ListDatabases(ctx context.Context) (*models.QueryResult, error) {
	return r.query(ctx, "SHOW DATABASES")
}

func (r *MetadataRepository) ListTables(ctx context.Context, database string) (*models.QueryResult, error) {
	return r.query(ctx, listTablesQuery, database)
}

// asString coerces a scanned catalog value to a string. The executor hands
// text columns back as strings already; numeric catalog columns show up as
// int64.
func asString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asStringPtr(v interface{}) *string {
	if v == nil {
		return nil
	}
	s := asString(v)
	return &s
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(t), 10, 64)
		return n
	default:
		return 0
	}
}
