//go:build purego
// +build purego

package local

// Pure-Go build: no cgo required, at some cost in speed. Selected with
// -tags purego; the default build uses the cgo driver.

import (
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
)

// driverName is the database/sql driver to open connections with.
const driverName = "sqlite"

// Primary result codes from the engine that indicate lock contention.
const (
	codeBusy   = 5 // SQLITE_BUSY
	codeLocked = 6 // SQLITE_LOCKED
)

// databaseDSN builds the connection string for the database file. Exclusive
// locking mode is requested in the DSN so it is configured before any other
// statement reaches the connection.
func databaseDSN(path string, busyTimeoutMS int) string {
	return fmt.Sprintf(
		"file:%s?_pragma=locking_mode(EXCLUSIVE)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)",
		path, busyTimeoutMS,
	)
}

// isLockedError reports whether err is the engine's busy/locked condition,
// i.e. another connection holds a conflicting lock on the database file.
func isLockedError(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		code := serr.Code() & 0xff
		return code == codeBusy || code == codeLocked
	}
	return false
}
