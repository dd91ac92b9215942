package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kidney-match-server/internal/config"
	"github.com/kidney-match-server/internal/database"
)

func newMigrateCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back registry schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(root, func(mr *database.MigrationRunner) error {
				return mr.Up(cmd.Context())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(root, func(mr *database.MigrationRunner) error {
				return mr.Down(cmd.Context())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(root, func(mr *database.MigrationRunner) error {
				status, err := mr.Status()
				if err != nil {
					return err
				}
				out, err := json.Marshal(status)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	})

	return cmd
}

func withMigrations(root *rootFlags, fn func(*database.MigrationRunner) error) error {
	manager, err := root.loadConfig()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(manager.GetConfig().Logging)
	if err != nil {
		return err
	}

	mr, err := database.NewMigrationRunner(manager.GetDatabaseURL(), manager.GetConfig().Database.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer mr.Close()

	return fn(mr)
}
