package config

import (
	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/cmd/config/check"
	initcmd "github.com/schmitthub/stencil/internal/cmd/config/init"
	"github.com/schmitthub/stencil/internal/cmdutil"
)

// NewCmdConfig creates the config command.
func NewCmdConfig(f *cmdutil.Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Settings file commands",
		Long:  `Commands for creating and validating the stencil settings file.`,
		Args:  cmdutil.NoArgs,
	}

	cmd.AddCommand(initcmd.NewCmdInit(f, nil))
	cmd.AddCommand(check.NewCmdCheck(f, nil))

	return cmd
}
