package services

import "regexp"

// Database and table names are interpolated into USE statements and schema
// filters where the driver cannot bind identifiers as parameters, so they are
// gated by a restrictive allow-list. The pattern is never relaxed, even for
// internal callers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidIdentifier reports whether a database or table name is safe to
// interpolate into SQL text.
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
