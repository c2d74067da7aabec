package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"lendingdesk/internal/store"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status|version]",
		Short:     "Manage the database schema",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{store.MigrateUp, store.MigrateDown, store.MigrateStatus, store.MigrateVersion},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := store.Open(cmd.Context(), cfg.DatabaseURL, store.Options{MaxOpenConns: 2})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context(), logger, args[0]); err != nil {
				return fmt.Errorf("migrate %s: %w", args[0], err)
			}
			return nil
		},
	}
}
