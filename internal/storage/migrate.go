package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Migrate creates the tables and indexes for the dialect. Statements use
// IF NOT EXISTS so running it repeatedly is safe.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) error {
	raw, err := schemaFS.ReadFile("schema/" + dialect.schemaFile())
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", dialect, err)
		}
	}
	return nil
}
