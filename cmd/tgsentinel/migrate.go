package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/store"
	"github.com/redoracle/tgsentinel/internal/store/pg"
	"github.com/redoracle/tgsentinel/internal/store/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply outstanding schema migrations to the configured database and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	switch store.DetectBackend(cfg.DBURI) {
	case store.BackendPostgres:
		db, err := pg.Open(cfg.DBURI)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := pg.Migrate(db, "migrations"); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	default:
		path := store.SQLitePathFromURI(cfg.DBURI)
		db, err := sqlite.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := sqlite.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}

	fmt.Println("migrations applied")
	return nil
}
