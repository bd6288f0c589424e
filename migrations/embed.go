// Package migrations embeds the Gatekeeper schema into the binary so a fresh
// site needs nothing but the executable and a config file.
package migrations

import (
	"embed"

	"github.com/nerrad567/gatekeeper-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// Source returns the embedded migration files.
func Source() database.Source {
	return database.Source{FS: migrationsFS, Dir: "."}
}
