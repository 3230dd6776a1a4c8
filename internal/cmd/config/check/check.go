package check

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/iostreams"
	"github.com/schmitthub/stencil/internal/logger"
)

// CheckOptions holds options for the config check command.
type CheckOptions struct {
	IOStreams *iostreams.IOStreams
	// ConfigPath is the --config value, read when the command runs.
	ConfigPath func() string
}

// NewCmdCheck creates the config check command.
func NewCmdCheck(f *cmdutil.Factory, runF func(context.Context, *CheckOptions) error) *cobra.Command {
	opts := &CheckOptions{
		IOStreams:  f.IOStreams,
		ConfigPath: func() string { return f.ConfigPath },
	}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate settings and the template catalog",
		Long: `Loads the settings file and STENCIL_* environment overrides, validates the
result, and checks that every template in the configured catalog has a valid
manifest.`,
		Example: `  # Validate the default settings file
  stencil config check

  # Validate a specific file
  stencil --config ./stencil.yaml config check`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return checkRun(cmd.Context(), opts)
		},
	}

	return cmd
}

func checkRun(_ context.Context, opts *CheckOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	loader, err := config.NewLoader(opts.ConfigPath())
	if err != nil {
		return err
	}
	source := loader.ConfigPath()
	if !loader.Exists() {
		source = "defaults and environment (no file at " + source + ")"
	}
	logger.Debug().Str("source", source).Msg("checking settings")

	settings, err := loader.Load()
	if err != nil {
		fmt.Fprintf(ios.ErrOut, "%s Settings are invalid\n  %v\n", cs.FailureIcon(), err)
		fmt.Fprintln(ios.ErrOut, "\nNext steps:\n  Fix the values above, or run 'stencil config init --force' to start over")
		return cmdutil.SilentError
	}

	cat, err := catalog.Resolve(settings.CatalogDir)
	if err != nil {
		fmt.Fprintf(ios.ErrOut, "%s Catalog is unavailable\n  %v\n", cs.FailureIcon(), err)
		return cmdutil.SilentError
	}
	templates, err := cat.Templates()
	if err != nil {
		fmt.Fprintf(ios.ErrOut, "%s Catalog %s has an invalid template\n  %v\n", cs.FailureIcon(), cat.Source(), err)
		return cmdutil.SilentError
	}

	fmt.Fprintf(ios.ErrOut, "%s Settings are valid\n\n", cs.SuccessIcon())
	fmt.Fprintf(ios.ErrOut, "  Source:     %s\n", source)
	fmt.Fprintf(ios.ErrOut, "  Catalog:    %s (%d templates)\n", cat.Source(), len(templates))
	fmt.Fprintf(ios.ErrOut, "  Work dir:   %s\n", settings.WorkDir)
	fmt.Fprintf(ios.ErrOut, "  Ports:      %d-%d\n", settings.Ports.Min, settings.Ports.Max)
	fmt.Fprintf(ios.ErrOut, "  Startup:    %s\n", settings.Timeouts.Startup)
	return nil
}
