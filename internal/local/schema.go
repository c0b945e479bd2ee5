package local

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/nerrad567/driftdb/internal/infrastructure/logging"
)

// schemaVersion is the schema version this build migrates databases to.
// Every migration step is keyed to a target version at or below it. The
// constant only ever increases across releases.
const schemaVersion = 3

// MigrationsFS should be set by the root migrations package to the embedded
// migration files. Tests may substitute their own filesystem.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS containing the
// migration files.
var MigrationsDir = "."

// migrationStep is a single versioned schema transformation. Version is the
// schema version the step upgrades to.
type migrationStep struct {
	version int
	name    string
	sql     string
}

// loadMigrationSteps reads every migration step from the registered
// filesystem, sorted by version. The steps must form the exact contiguous
// sequence 1..target; a gap, duplicate, or overshoot is a fatal invariant
// breach because it would make the version bookkeeping meaningless.
func loadMigrationSteps(fsys fs.FS, dir string, target int) ([]migrationStep, error) {
	hardAssert(fsys != nil, "no migration steps registered (import the migrations package)")

	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var steps []migrationStep
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, ok := parseStepFilename(entry.Name())
		if !ok {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		steps = append(steps, migrationStep{
			version: version,
			name:    name,
			sql:     string(data),
		})
	}

	sort.Slice(steps, func(i, j int) bool {
		return steps[i].version < steps[j].version
	})

	hardAssert(len(steps) == target,
		"migration steps do not cover versions 1..%d: found %d steps", target, len(steps))
	for i, step := range steps {
		hardAssert(step.version == i+1,
			"migration step %q out of order: version %d at position %d", step.name, step.version, i+1)
	}
	return steps, nil
}

// parseStepFilename extracts the target version and description from a
// migration filename of the form NNNN_description.sql.
func parseStepFilename(filename string) (version int, name string, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return 0, "", false
	}
	prefix, desc, found := strings.Cut(base, "_")
	if !found {
		return 0, "", false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", false
	}
	return version, desc, true
}

// runMigrations brings the database from version `from` to version `target`.
//
// Every step with from < version <= target runs in its own transaction
// together with the version bump, so a failed step rolls back completely and
// the recorded version never includes a half-applied step. A `from` equal to
// target is a no-op. A `from` above target is treated as a downgrade and
// deliberately does nothing: the stored version is not rewound and no data
// is touched. That is safe only while no step has made a non-reversible
// structural change; revisit before shipping one.
func runMigrations(ctx context.Context, conn *sql.Conn, log *logging.Logger, steps []migrationStep, from, target int) error {
	if from == target {
		return nil
	}
	if from > target {
		log.Warn("database schema is newer than this build, leaving it untouched",
			"persisted_version", from,
			"target_version", target,
		)
		return nil
	}

	for _, step := range steps {
		if step.version <= from {
			continue
		}
		if err := applyStep(ctx, conn, step); err != nil {
			return fmt.Errorf("applying migration %d (%s): %w", step.version, step.name, err)
		}
		log.Info("applied schema migration", "version", step.version, "name", step.name)
	}
	return nil
}

// applyStep executes one migration step and its version bump atomically.
func applyStep(ctx context.Context, conn *sql.Conn, step migrationStep) error {
	if _, err := conn.ExecContext(ctx, "BEGIN"); err != nil {
		return fmt.Errorf("beginning step transaction: %w", err)
	}

	if _, err := conn.ExecContext(ctx, step.sql); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK") //nolint:errcheck // Best effort on error path
		return fmt.Errorf("executing step SQL: %w", err)
	}

	// PRAGMA does not accept bind parameters; version is a trusted integer.
	bump := fmt.Sprintf("PRAGMA user_version = %d", step.version)
	if _, err := conn.ExecContext(ctx, bump); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK") //nolint:errcheck // Best effort on error path
		return fmt.Errorf("recording schema version: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("committing step: %w", err)
	}
	return nil
}

// readSchemaVersion returns the schema version persisted in the database.
func readSchemaVersion(ctx context.Context, conn *sql.Conn) (int, error) {
	var version int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}
