package postgres

import (
	"context"
	"embed"
	"io/fs"

	"github.com/kozaktomas/cornea/internal/database"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var dialect = database.Dialect{
	CreateTable: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`,
	Record: "INSERT INTO schema_migrations (version) VALUES ($1)",
}

// Migrate applies all pending migrations.
func (p *Pool) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	_, err = database.Migrate(ctx, p.db, sub, dialect, p.log)
	return err
}

// MigrationsApplied returns the list of applied migrations.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]string, error) {
	return database.AppliedMigrations(ctx, p.db)
}
