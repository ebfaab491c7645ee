package models

import "strings"

// SchemaFacet identifies one category of table metadata fetched during analysis.
type SchemaFacet int

const (
	FacetColumnsBasic SchemaFacet = iota
	FacetColumnsFull
	FacetForeignKeys
	FacetIndexesBasic
	FacetIndexesFull
)

// String returns the string representation of the facet.
func (f SchemaFacet) String() string {
	switch f {
	case FacetColumnsBasic:
		return "COLUMNS_BASIC"
	case FacetColumnsFull:
		return "COLUMNS_FULL"
	case FacetForeignKeys:
		return "FOREIGN_KEYS"
	case FacetIndexesBasic:
		return "INDEXES_BASIC"
	case FacetIndexesFull:
		return "INDEXES_FULL"
	default:
		return "UNKNOWN"
	}
}

// FacetSet is the set of facets resolved from a detail level.
type FacetSet map[SchemaFacet]bool

// DetailLevel is the caller-selected analysis verbosity tier.
type DetailLevel string

const (
	DetailBasic    DetailLevel = "BASIC"
	DetailStandard DetailLevel = "STANDARD"
	DetailFull     DetailLevel = "FULL"
)

// ParseDetailLevel resolves a case-insensitive detail level name.
// Unknown values resolve to STANDARD.
func ParseDetailLevel(s string) DetailLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BASIC":
		return DetailBasic
	case "FULL":
		return DetailFull
	default:
		return DetailStandard
	}
}

// Facets maps the detail level to its fixed facet set.
func (d DetailLevel) Facets() FacetSet {
	switch d {
	case DetailBasic:
		return FacetSet{FacetColumnsBasic: true}
	case DetailFull:
		return FacetSet{FacetColumnsFull: true, FacetForeignKeys: true, FacetIndexesFull: true}
	default:
		return FacetSet{FacetColumnsBasic: true, FacetForeignKeys: true, FacetIndexesBasic: true}
	}
}

// Column describes one table column. The basic fetch populates Name and Type
// only; the full fetch populates every field.
type Column struct {
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Nullable  string  `json:"nullable,omitempty"`
	Key       string  `json:"key,omitempty"`
	Default   *string `json:"default,omitempty"`
	Extra     string  `json:"extra,omitempty"`
	Comment   string  `json:"comment,omitempty"`
	Charset   string  `json:"character_set,omitempty"`
	Collation string  `json:"collation,omitempty"`
}

// ForeignKey describes one referential constraint column.
type ForeignKey struct {
	ConstraintName   string `json:"constraint_name"`
	Column           string `json:"column"`
	ReferencedSchema string `json:"referenced_schema"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
	UpdateRule       string `json:"update_rule"`
	DeleteRule       string `json:"delete_rule"`
}

// Index describes one index as an ordered column list (basic detail).
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// IndexDetail is one row of the database's native index inspection output
// (full detail).
type IndexDetail struct {
	Name        string `json:"name"`
	NonUnique   int64  `json:"non_unique"`
	SeqInIndex  int64  `json:"seq_in_index"`
	Column      string `json:"column"`
	Collation   string `json:"collation,omitempty"`
	Cardinality int64  `json:"cardinality"`
	Nullable    string `json:"nullable,omitempty"`
	IndexType   string `json:"index_type,omitempty"`
}

// TableAnalysis aggregates the facet results for one table, or carries the
// error that prevented analysis. Exactly one of Error or the facet fields is
// populated.
type TableAnalysis struct {
	Columns      []Column      `json:"columns,omitempty"`
	ForeignKeys  []ForeignKey  `json:"foreign_keys,omitempty"`
	Indexes      []Index       `json:"indexes,omitempty"`
	IndexDetails []IndexDetail `json:"index_details,omitempty"`
	Error        string        `json:"error,omitempty"`
}
