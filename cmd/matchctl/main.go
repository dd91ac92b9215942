// Command matchctl evaluates donor-patient pairs offline and administers the kidney match
// databases.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kidney-match-server/internal/config"
)

var version = "1.0.0"

type rootFlags struct {
	configFile string
}

// exitErr carries a specific process exit code.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var ee *exitErr
		if errors.As(err, &ee) {
			fmt.Fprintln(os.Stderr, ee.msg)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	root := &cobra.Command{
		Use:           "matchctl",
		Short:         "Evaluate kidney donor compatibility and manage match databases",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&f.configFile, "config", "", "Config file (default: search ./config.yaml, ./config, /etc/kidney-match-server)")

	root.AddCommand(newEvaluateCmd())
	root.AddCommand(newMigrateCmd(f))
	root.AddCommand(newMatchesCmd(f))
	root.AddCommand(newSetupCmd())

	return root
}

// loadConfig reads and validates the server configuration.
func (f *rootFlags) loadConfig() (*config.Manager, error) {
	manager, err := config.NewManagerFromFile(f.configFile)
	if err != nil {
		return nil, err
	}
	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return manager, nil
}
