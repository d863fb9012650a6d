package coredb

import (
	"errors"
	"strings"

	sqlite3 "modernc.org/sqlite/lib"
)

// IsQuotaExceeded reports whether err means the journal cannot take more
// data: either one payload is larger than the journal budget, or SQLite hit
// max_page_count (SQLITE_FULL, possibly as an extended code).
func IsQuotaExceeded(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrJournalQuotaExceeded) {
		return true
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == int(sqlite3.SQLITE_FULL) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "database or disk is full")
}
