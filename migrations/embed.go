// Package migrations embeds the hapticd SQL migrations into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-haptics/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
