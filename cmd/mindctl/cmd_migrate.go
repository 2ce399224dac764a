package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/janhstrom/mindreminder-sub000/db/migrations"
	"github.com/janhstrom/mindreminder-sub000/internal/persistence/postgres"
)

var migrateStatusOnly bool

// migrateCmd applies the embedded schema migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := openEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		migrator := postgres.NewMigrator(e.pool, migrations.FS, e.logger)
		if migrateStatusOnly {
			current, err := migrator.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			all, err := migrator.Migrations()
			if err != nil {
				return err
			}
			latest := 0
			if len(all) > 0 {
				latest = all[len(all)-1].Version
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (latest %d)\n", current, latest)
			return nil
		}

		applied, err := migrator.Up(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", applied)
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatusOnly, "status", false, "print the current schema version without applying anything")
	rootCmd.AddCommand(migrateCmd)
}
