// Package cmd implements the momentum CLI surface (spec.md §6.3): the
// orchestrator start|stop|restart|status|monitor command group, a
// standalone `run <service>` entrypoint for debugging one service at a
// time, a live `dashboard`, and config init/validate helpers. Grounded on
// rustyeddy-trader/cmd/trader-cobra/cmd's spf13/cobra command layout.
package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "momentum",
	Short: "Momentum is a live intraday momentum-trading execution core",
	Long: `Momentum supervises the five cooperating services of an intraday
momentum strategy — PreMarketScanner, Scanner, Buyer, Monitor, and
Seller — coordinating through durable state files and a shared broker-API
rate budget, with crash/restart recovery via the orchestrator subcommands.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// usageError marks an error as a CLI usage mistake (spec.md §6.3 exit code
// 2), as opposed to a runtime failure (exit code 1).
type usageError struct{ err error }

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func newUsageError(err error) error {
	if err == nil {
		return nil
	}
	return usageError{err: err}
}

// ExitCode maps a command error to spec.md §6.3's process exit codes: 0 on
// success (no error), 2 for a usage mistake, 1 for any other runtime error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var u usageError
	if errors.As(err, &u) {
		return 2
	}
	return 1
}

// Execute runs the root command, printing any error before returning it for
// main to translate into a process exit code.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML or JSON)")
}
