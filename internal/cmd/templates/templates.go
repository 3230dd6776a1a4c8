package templates

import (
	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/cmd/templates/list"
	"github.com/schmitthub/stencil/internal/cmdutil"
)

// NewCmdTemplates creates the templates command.
func NewCmdTemplates(f *cmdutil.Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template"},
		Short:   "Inspect the template catalog",
		Args:    cmdutil.NoArgs,
	}

	cmd.AddCommand(list.NewCmdList(f, nil))

	return cmd
}
