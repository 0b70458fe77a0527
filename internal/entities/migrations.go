package entities

import (
	"embed"

	"github.com/fixhub/fixhub/internal/orm/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrations returns the schema migrations for the registered entities
func Migrations() ([]*migrate.Migration, error) {
	return migrate.Load(migrationFiles, "migrations")
}
