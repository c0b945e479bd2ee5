// Package migrations embeds the schema migration steps into the binary.
//
// Each file is named NNNN_description.sql where NNNN is the integer schema
// version the step upgrades to. Steps must form a contiguous sequence from
// 1 up to the compiled target version in internal/local.
package migrations

import (
	"embed"

	"github.com/nerrad567/driftdb/internal/local"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migration steps with the persistence core.
	local.MigrationsFS = migrationsFS
	local.MigrationsDir = "." // Files are at root of embedded FS
}
