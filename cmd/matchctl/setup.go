package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kidney-match-server/internal/config"
	"github.com/kidney-match-server/internal/setup"
)

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the MCP server with a desktop MCP client",
	}

	opts := setup.Options{}
	desktop := &cobra.Command{
		Use:   "desktop",
		Short: "Add or update the kidney match entry in the client config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.DataDir == "" {
				opts.DataDir = config.LoadLiteConfig().DataDir
			}
			path, err := setup.Configure(opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configured %s in %s\n", setup.ServerKey, path)
			return nil
		},
	}
	desktop.Flags().StringVar(&opts.ConfigPath, "client-config", "", "Client config file (default: platform location)")
	desktop.Flags().StringVar(&opts.BinaryPath, "binary", "", "Path to the mcp-server binary (default: search PATH)")
	desktop.Flags().StringVar(&opts.DataDir, "data-dir", "", "Data directory for match records")

	var statusPath string
	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the client is configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := setup.GetStatus(statusPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(st); err != nil {
				return err
			}
			if len(st.Issues) > 0 {
				return &exitErr{code: 3, msg: "setup has issues"}
			}
			return nil
		},
	}
	status.Flags().StringVar(&statusPath, "client-config", "", "Client config file (default: platform location)")

	cmd.AddCommand(desktop, status)
	return cmd
}
