package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kidney-match-server/internal/kidneymatch"
)

func newMatchesCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "Export or import clinician kidney match records",
	}

	var out string
	export := &cobra.Command{
		Use:   "export",
		Short: "Write every kidney match record as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(root, func(store kidneymatch.Store) error {
				var w io.Writer = cmd.OutOrStdout()
				if out != "" {
					file, err := os.Create(out)
					if err != nil {
						return fmt.Errorf("creating %s: %w", out, err)
					}
					defer file.Close()
					w = file
				}
				return store.ExportJSON(cmd.Context(), w)
			})
		},
	}
	export.Flags().StringVar(&out, "out", "", "Output file path (default: stdout)")

	var in string
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Load kidney match records from a JSON export, skipping existing pairs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(in)
			if err != nil {
				return fmt.Errorf("opening %s: %w", in, err)
			}
			defer file.Close()

			return withStore(root, func(store kidneymatch.Store) error {
				imported, skipped, err := store.ImportJSON(cmd.Context(), file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d, skipped %d\n", imported, skipped)
				return nil
			})
		},
	}
	importCmd.Flags().StringVar(&in, "in", "", "JSON export file")
	_ = importCmd.MarkFlagRequired("in")

	cmd.AddCommand(export, importCmd)
	return cmd
}

func withStore(root *rootFlags, fn func(kidneymatch.Store) error) error {
	manager, err := root.loadConfig()
	if err != nil {
		return err
	}

	store, err := kidneymatch.Open(manager.GetConfig().MatchStore, manager.GetDatabaseURL())
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(store)
}
