package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/nerrad567/driftdb/internal/infrastructure/logging"
)

// Filesystem permission modes for the storage directory and database file.
const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// msPerSecond converts the configured busy timeout to milliseconds.
const msPerSecond = 1000

// ErrDatabaseLocked is returned from Start when exclusive access to the
// database file cannot be acquired because another connection holds it.
// This is distinct from ordinary I/O failures: the remedy is to stop using
// persistence from more than one process, not to check disk or file health.
var ErrDatabaseLocked = errors.New("database is locked by another process")

// DatabaseName derives the on-disk database name for a client installation.
// The name is uniquely determined by the persistence key (stable per logical
// installation), the project identifier, and the database identifier.
//
// Format is "storage.{persistence-key}.{project-id}.{database-id}", each part
// percent-encoded. This must stay stable across releases: changing the
// derivation would strand existing installations' data.
func DatabaseName(persistenceKey, projectID, databaseID string) string {
	return "storage." +
		url.QueryEscape(persistenceKey) + "." +
		url.QueryEscape(projectID) + "." +
		url.QueryEscape(databaseID)
}

// opener owns the connection open/create/upgrade lifecycle. The sequence is
// strictly linear so that locking configuration always precedes any other
// statement on the connection:
//
//  1. Ensure the storage directory exists
//  2. Open the database file with exclusive locking requested in the DSN
//  3. Pin the single connection and eagerly acquire the file lock
//  4. Read the persisted schema version and dispatch to migrations
type opener struct {
	cfg Config
	log *logging.Logger
}

// open establishes the database connection and brings the schema to the
// compiled target version. On success the returned connection is ready for
// statements; the caller owns closing both handles.
func (o *opener) open(ctx context.Context) (*sql.DB, *sql.Conn, error) {
	if err := os.MkdirAll(o.cfg.Dir, dirPermissions); err != nil {
		return nil, nil, fmt.Errorf("creating storage directory: %w", err)
	}

	name := DatabaseName(o.cfg.PersistenceKey, o.cfg.ProjectID, o.cfg.DatabaseID)
	path := filepath.Join(o.cfg.Dir, name)

	db, err := sql.Open(driverName, databaseDSN(path, o.cfg.BusyTimeout*msPerSecond))
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	// The core is single-writer by contract: one pinned connection, never
	// recycled, so the exclusive lock and transaction state stay with it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, fmt.Errorf("acquiring connection: %w", err)
	}

	if err := o.acquireExclusiveLock(ctx, conn); err != nil {
		_ = conn.Close() //nolint:errcheck // Best effort cleanup on error path
		_ = db.Close()   //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, err
	}

	if err := o.migrate(ctx, conn); err != nil {
		_ = conn.Close() //nolint:errcheck // Best effort cleanup on error path
		_ = db.Close()   //nolint:errcheck // Best effort cleanup on error path
		return nil, nil, err
	}

	// First run creates the file during open; tighten it to owner-only.
	_ = os.Chmod(path, filePermissions) //nolint:errcheck // Best effort hardening

	return db, conn, nil
}

// acquireExclusiveLock forces the engine to take the file lock now rather
// than on first write. In exclusive locking mode the lock is then held until
// the connection closes, guaranteeing no other process can interleave.
func (o *opener) acquireExclusiveLock(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return o.classifyLockError(err)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return o.classifyLockError(err)
	}
	return nil
}

// classifyLockError separates lock contention from ordinary I/O failures,
// because the caller needs a different remedy for each.
func (o *opener) classifyLockError(err error) error {
	if isLockedError(err) {
		return fmt.Errorf(
			"failed to gain exclusive access to the offline persistence database. "+
				"This usually means it is open from more than one process; offline "+
				"persistence can only be enabled in one process per installation: %w",
			errors.Join(ErrDatabaseLocked, err),
		)
	}
	return fmt.Errorf("acquiring exclusive database lock: %w", err)
}

// migrate reads the persisted schema version and applies whatever steps are
// needed to reach the compiled target. A fresh file starts at version zero.
func (o *opener) migrate(ctx context.Context, conn *sql.Conn) error {
	version, err := readSchemaVersion(ctx, conn)
	if err != nil {
		return err
	}

	steps, err := loadMigrationSteps(MigrationsFS, MigrationsDir, schemaVersion)
	if err != nil {
		return err
	}

	if err := runMigrations(ctx, conn, o.log, steps, version, schemaVersion); err != nil {
		return err
	}
	return nil
}
