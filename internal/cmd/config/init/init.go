package init

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/iostreams"
)

// InitOptions contains the options for the config init command.
type InitOptions struct {
	IOStreams *iostreams.IOStreams
	// ConfigPath is the --config value, read when the command runs.
	ConfigPath func() string

	Force bool
}

// NewCmdInit creates the config init command.
func NewCmdInit(f *cmdutil.Factory, runF func(context.Context, *InitOptions) error) *cobra.Command {
	opts := &InitOptions{
		IOStreams:  f.IOStreams,
		ConfigPath: func() string { return f.ConfigPath },
	}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with the default values",
		Long: `Writes every setting with its default value to the settings file
($STENCIL_HOME/stencil.yaml, or the --config path).

An existing file is left alone unless --force is given.`,
		Example: `  stencil config init
  stencil --config ./stencil.yaml config init --force`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return initRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "Overwrite an existing settings file")

	return cmd
}

func initRun(_ context.Context, opts *InitOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	loader, err := config.NewLoader(opts.ConfigPath())
	if err != nil {
		return err
	}
	path := loader.ConfigPath()
	if loader.Exists() && !opts.Force {
		fmt.Fprintf(ios.ErrOut, "%s %s already exists (use --force to overwrite)\n", cs.WarningIcon(), path)
		return cmdutil.SilentError
	}
	if err := config.WriteDefault(path, opts.Force); err != nil {
		return err
	}
	fmt.Fprintf(ios.ErrOut, "%s Wrote default settings\n", cs.SuccessIcon())
	fmt.Fprintln(ios.Out, path)
	return nil
}
