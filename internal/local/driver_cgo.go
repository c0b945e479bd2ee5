//go:build !purego
// +build !purego

package local

// Default build: the cgo SQLite driver. Build with -tags purego to swap in
// the pure-Go driver instead; both expose identical pragmas through the DSN.

import (
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// driverName is the database/sql driver to open connections with.
const driverName = "sqlite3"

// databaseDSN builds the connection string for the database file. Exclusive
// locking mode is requested in the DSN so it is configured before any other
// statement reaches the connection.
func databaseDSN(path string, busyTimeoutMS int) string {
	return fmt.Sprintf(
		"file:%s?_locking_mode=EXCLUSIVE&_busy_timeout=%d&_foreign_keys=on",
		path, busyTimeoutMS,
	)
}

// isLockedError reports whether err is the engine's busy/locked condition,
// i.e. another connection holds a conflicting lock on the database file.
func isLockedError(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}
