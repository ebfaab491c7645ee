package services

import (
	"encoding/hex"

	"github.com/TFMV/turnstile/pkg/models"
)

// Result post-processing is split into two independent, order-preserving
// transforms so each can be tested against synthetic row sets: binary
// encoding first, then row capping.

// encodeBinaryValues replaces every raw byte-slice column value with its
// lowercase hexadecimal text encoding so results stay JSON-serializable.
// Rows are modified in place; row order is preserved.
func encodeBinaryValues(rows []models.Row) {
	for _, row := range rows {
		for col, val := range row {
			if b, ok := val.([]byte); ok {
				row[col] = hex.EncodeToString(b)
			}
		}
	}
}

// capRows truncates the row slice to limit rows, preserving original order,
// and reports whether truncation occurred. A non-positive limit disables
// capping.
func capRows(rows []models.Row, limit int) ([]models.Row, bool) {
	if limit <= 0 || len(rows) <= limit {
		return rows, false
	}
	return rows[:limit], true
}
