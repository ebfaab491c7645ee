// Package models provides data structures used throughout the Turnstile gateway.
package models

import "time"

// QueryRequest represents a statement execution request.
//
// Positional and Named are mutually exclusive binding modes: Positional binds
// `?` placeholders in order, Named binds `:name` placeholders by key. Leaving
// both empty means "no parameters".
type QueryRequest struct {
	SQL        string                 `json:"sql"`
	Positional []interface{}          `json:"positional,omitempty"`
	Named      map[string]interface{} `json:"named,omitempty"`
	Database   string                 `json:"database,omitempty"`
	MaxRows    int                    `json:"max_rows,omitempty"`
	Timeout    time.Duration          `json:"timeout,omitempty"`
}

// HasPositional reports whether the request carries positional parameters.
func (r *QueryRequest) HasPositional() bool { return len(r.Positional) > 0 }

// HasNamed reports whether the request carries named parameters.
func (r *QueryRequest) HasNamed() bool { return len(r.Named) > 0 }

// Field describes one result-set column.
type Field struct {
	Name         string `json:"name"`
	DatabaseType string `json:"type,omitempty"`
}

// Row is one result record keyed by column name.
type Row map[string]interface{}

// RowSet is a fully materialized, JSON-serializable result set.
type RowSet struct {
	Fields []Field `json:"fields"`
	Rows   []Row   `json:"rows"`
}

// QueryResult represents the result of a statement execution.
type QueryResult struct {
	Fields        []Field       `json:"fields"`
	Rows          []Row         `json:"rows"`
	Truncated     bool          `json:"truncated,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
}
