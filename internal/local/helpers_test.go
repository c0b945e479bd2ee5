package local

import (
	"context"
	"database/sql"
	"embed"
	"path/filepath"
	"testing"
)

//go:embed testdata/*.sql
var testMigrationFiles embed.FS

// useTestMigrations points schema loading at the fixture steps for the
// duration of the test.
func useTestMigrations(t *testing.T) {
	t.Helper()
	prevFS, prevDir := MigrationsFS, MigrationsDir
	MigrationsFS = testMigrationFiles
	MigrationsDir = "testdata"
	t.Cleanup(func() {
		MigrationsFS = prevFS
		MigrationsDir = prevDir
	})
}

func testConfig(dir string) Config {
	return Config{
		Dir:            dir,
		PersistenceKey: "test-key",
		ProjectID:      "test-project",
		DatabaseID:     "(default)",
		BusyTimeout:    0,
	}
}

// startTestPersistence opens a started Persistence over the fixture schema
// and registers a best-effort shutdown.
func startTestPersistence(t *testing.T, dir string) *Persistence {
	t.Helper()
	useTestMigrations(t)

	p := New(testConfig(dir))
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if p.IsStarted() {
			_ = p.Shutdown() //nolint:errcheck // Test cleanup
		}
	})
	return p
}

// testDatabasePath is where startTestPersistence puts the database file.
func testDatabasePath(dir string) string {
	return filepath.Join(dir, DatabaseName("test-key", "test-project", "(default)"))
}

// openRaw opens the database file directly, bypassing the persistence layer.
// Only valid while no Persistence holds the exclusive lock.
func openRaw(t *testing.T, dir string) *sql.DB {
	t.Helper()
	db, err := sql.Open(driverName, testDatabasePath(dir))
	if err != nil {
		t.Fatalf("opening raw database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close() //nolint:errcheck // Test cleanup
	})
	return db
}

// migrationLogCounts returns how many times each fixture step has run.
func migrationLogCounts(t *testing.T, p *Persistence) map[int64]int64 {
	t.Helper()
	counts := make(map[int64]int64)
	err := p.Query(
		"SELECT version, COUNT(*) FROM migration_log GROUP BY version",
	).ForEach(context.Background(), func(row Row) error {
		counts[row.Int64(0)] = row.Int64(1)
		return nil
	})
	if err != nil {
		t.Fatalf("reading migration log: %v", err)
	}
	return counts
}

// expectPanic fails the test unless the calling deferred context is
// unwinding from a panic.
func expectPanic(t *testing.T, what string) {
	t.Helper()
	if recover() == nil {
		t.Errorf("%s should panic", what)
	}
}
