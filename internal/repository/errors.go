// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// tracker service and the handlers to distinguish between different
// failure scenarios without inspecting driver errors themselves.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row does not exist or is owned by a
// different user. Handlers translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a unique key, such as a
// second completion for the same routine and day. It is retryable: the
// competing write has already taken effect.
var ErrConflict = errors.New("conflict")

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is a unique-key violation from either
// supported driver.
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
