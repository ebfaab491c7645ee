// Package services contains business logic implementations.
package services

import (
	"regexp"
	"strings"

	"github.com/TFMV/turnstile/pkg/errors"
)

// CommandCategory represents the coarse category of a SQL statement.
type CommandCategory int

const (
	CategoryQuery        CommandCategory = iota // SELECT, SHOW, DESCRIBE, DESC, EXPLAIN
	CategoryMutation                            // INSERT, UPDATE, DELETE, REPLACE
	CategoryDefinition                          // CREATE, ALTER, DROP, TRUNCATE, RENAME
	CategoryForbidden                           // always denied regardless of policy
	CategoryUnrecognized                        // unknown leading keyword, denied by default
)

// String returns the string representation of the command category.
func (c CommandCategory) String() string {
	switch c {
	case CategoryQuery:
		return "QUERY"
	case CategoryMutation:
		return "MUTATION"
	case CategoryDefinition:
		return "DEFINITION"
	case CategoryForbidden:
		return "FORBIDDEN"
	case CategoryUnrecognized:
		return "UNRECOGNIZED"
	default:
		return "UNKNOWN"
	}
}

var categoryByKeyword = map[string]CommandCategory{
	// DQL
	"SELECT":   CategoryQuery,
	"SHOW":     CategoryQuery,
	"DESCRIBE": CategoryQuery,
	"DESC":     CategoryQuery,
	"EXPLAIN":  CategoryQuery,
	// DML
	"INSERT":  CategoryMutation,
	"UPDATE":  CategoryMutation,
	"DELETE":  CategoryMutation,
	"REPLACE": CategoryMutation,
	// DDL
	"CREATE":   CategoryDefinition,
	"ALTER":    CategoryDefinition,
	"DROP":     CategoryDefinition,
	"TRUNCATE": CategoryDefinition,
	"RENAME":   CategoryDefinition,
	// Never permitted: privilege, session, procedural, and transaction
	// control statements.
	"GRANT":      CategoryForbidden,
	"REVOKE":     CategoryForbidden,
	"SET":        CategoryForbidden,
	"LOCK":       CategoryForbidden,
	"UNLOCK":     CategoryForbidden,
	"CALL":       CategoryForbidden,
	"EXEC":       CategoryForbidden,
	"EXECUTE":    CategoryForbidden,
	"PREPARE":    CategoryForbidden,
	"DEALLOCATE": CategoryForbidden,
	"START":      CategoryForbidden,
	"BEGIN":      CategoryForbidden,
	"COMMIT":     CategoryForbidden,
	"ROLLBACK":   CategoryForbidden,
	"SAVEPOINT":  CategoryForbidden,
	"USE":        CategoryForbidden,
}

var (
	lineCommentPattern  = regexp.MustCompile(`--[^\n]*`)
	blockCommentPattern = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
	leadingTokenPattern = regexp.MustCompile(`^[^\s;(]+`)
)

// StatementClassifier classifies SQL statements by their normalized leading
// keyword. It is a deliberate string-based heuristic, not a SQL parser: the
// multi-statement check rejects any interior semicolon, including semicolons
// inside string literals, and does not know about dialect-specific statement
// separators.
type StatementClassifier struct{}

// NewStatementClassifier creates a new statement classifier.
func NewStatementClassifier() *StatementClassifier {
	return &StatementClassifier{}
}

// Classify normalizes a raw SQL string and classifies its leading keyword.
// It returns the category and the uppercase leading keyword, or an
// INVALID_ARGUMENT error when the statement is empty or contains multiple
// statements.
func (sc *StatementClassifier) Classify(rawSQL string) (CommandCategory, string, error) {
	normalized := normalizeStatement(rawSQL)
	if normalized == "" {
		return CategoryUnrecognized, "", errors.ErrEmptyStatement
	}

	// One trailing semicolon is tolerated; any other semicolon means more
	// than one statement.
	normalized = strings.TrimSuffix(normalized, ";")
	normalized = strings.TrimSpace(normalized)
	if normalized == "" {
		return CategoryUnrecognized, "", errors.ErrEmptyStatement
	}
	if strings.Contains(normalized, ";") {
		return CategoryUnrecognized, "", errors.New(errors.CodeInvalidArgument,
			"multiple statements are not allowed")
	}

	// A statement that starts on a token boundary (for example a leading
	// parenthesis) has no leading keyword and falls through to the
	// fail-closed unrecognized category.
	keyword := leadingTokenPattern.FindString(normalized)
	if keyword == "" {
		return CategoryUnrecognized, "", nil
	}

	category, ok := categoryByKeyword[keyword]
	if !ok {
		return CategoryUnrecognized, keyword, nil
	}
	return category, keyword, nil
}

// normalizeStatement strips comments, collapses whitespace runs, trims, and
// uppercases the statement.
func normalizeStatement(sql string) string {
	s := blockCommentPattern.ReplaceAllString(sql, " ")
	s = lineCommentPattern.ReplaceAllString(s, " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return strings.ToUpper(s)
}
