// Package stencil is the CLI entry point shared by cmd/stencil and the
// acceptance tests.
package stencil

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/cmd/factory"
	"github.com/schmitthub/stencil/internal/cmd/root"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/logger"
)

// Build-time variables injected via ldflags
var (
	Version = "dev"
	Commit  = ""
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// Main runs the CLI with os.Args and returns the process exit code.
func Main() int {
	defer logger.CloseFileWriter()

	f := factory.New(Version, Commit)
	rootCmd := root.NewCmdRoot(f)

	cmd, err := rootCmd.ExecuteC()
	return handleError(f.IOStreams.ErrOut, cmd, err)
}

func handleError(w io.Writer, cmd *cobra.Command, err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, cmdutil.SilentError) {
		return exitError
	}

	var exitErr *cmdutil.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	fmt.Fprintf(w, "Error: %v\n", err)

	var flagErr *cmdutil.FlagError
	if errors.As(err, &flagErr) {
		if cmd != nil {
			fmt.Fprintf(w, "\n%s", cmd.UsageString())
		}
		return exitUsage
	}
	if cmd != nil {
		fmt.Fprintf(w, "Run '%s --help' for usage.\n", cmd.CommandPath())
	}
	return exitError
}
