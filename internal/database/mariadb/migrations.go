package mariadb

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
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`,
	Record: "INSERT INTO schema_migrations (version) VALUES (?)",
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
