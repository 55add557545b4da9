// Package cli implements the integrity-verifier command line.
package cli

import (
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Exit codes
const (
	ExitOK          = 0
	ExitFailed      = 1
	ExitConfigError = 2
)

var globalConfigPath string

// exitError carries the process exit code of a failed command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error {
	return &exitError{code: ExitConfigError, err: err}
}

// ExitCode maps an error returned by Execute to a process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitFailed
}

// Execute runs the CLI
func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "integrity-verifier",
		Short: "Verify deployed smart contracts against their build artifacts",
		Long: `integrity-verifier checks that deployed contracts match their compiled
artifacts: bytecode, ABI function selectors and on-chain state.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&globalConfigPath, "global-config", "", "global config file (default: ~/.integrity-verifier/config.yaml)")

	rootCmd.AddCommand(createVerifyCmd())
	rootCmd.AddCommand(createSlotCmd())
	rootCmd.AddCommand(createGenerateSchemaCmd())
	rootCmd.AddCommand(createSelectorsCmd())
	rootCmd.AddCommand(createConfigCmd())

	return rootCmd
}

// isTerminal reports whether w is an interactive terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

// paint colors s when w is a terminal
func paint(w io.Writer, color, s string) string {
	if !isTerminal(w) {
		return s
	}
	return color + s + ansiReset
}
