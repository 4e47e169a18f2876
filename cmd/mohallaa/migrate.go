package main

import (
	"github.com/spf13/cobra"

	"github.com/mohallaa/mohallaa/internal/store"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := store.OpenDB(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			v, err := store.Migrate(db)
			if err != nil {
				return err
			}
			success("Schema at version %d (%s)", v, cfg.Store.Path)
			return nil
		},
	}
}
