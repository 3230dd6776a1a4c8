package version

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/cmdutil"
)

// NewCmdVersion creates the version command.
func NewCmdVersion(f *cmdutil.Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of stencil",
		Args:  cmdutil.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(f.IOStreams.Out, Format(f.Version, f.Commit))
		},
	}
}

// Format returns the version line for display.
func Format(version, commit string) string {
	version = strings.TrimPrefix(version, "v")
	if version == "" {
		version = "DEV"
	}

	var commitStr string
	if commit != "" {
		if len(commit) > 12 {
			commit = commit[:12]
		}
		commitStr = fmt.Sprintf(" (%s)", commit)
	}

	return fmt.Sprintf("stencil version %s%s\n", version, commitStr)
}
