package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"gradegate/internal/platform/database"
	"gradegate/internal/platform/logger"
	"gradegate/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Database.Driver == database.DriverMemory {
			return errors.New("migrate needs a SQL driver; DATABASE_DRIVER is memory")
		}
		log := logger.New(cfg.Log.Level, cfg.Log.Format)

		ctx := cmd.Context()
		db, err := database.Open(ctx, cfg.Database.Driver, cfg.Database.URL, cfg.DatabaseOptions())
		if err != nil {
			return err
		}
		defer db.Close()

		dialect := dialectFor(cfg.Database.Driver)
		if err := storage.Migrate(ctx, db, dialect); err != nil {
			return err
		}
		log.InfoContext(ctx, "schema migrated", "driver", cfg.Database.Driver, "dialect", dialect)
		return nil
	},
}

func dialectFor(driver string) storage.Dialect {
	if driver == database.DriverSQLite {
		return storage.DialectSQLite
	}
	return storage.DialectPostgres
}
