package root

import (
	"github.com/spf13/cobra"

	configcmd "github.com/schmitthub/stencil/internal/cmd/config"
	newcmd "github.com/schmitthub/stencil/internal/cmd/new"
	runcmd "github.com/schmitthub/stencil/internal/cmd/run"
	"github.com/schmitthub/stencil/internal/cmd/templates"
	verifycmd "github.com/schmitthub/stencil/internal/cmd/verify"
	versioncmd "github.com/schmitthub/stencil/internal/cmd/version"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/logger"
)

// NewCmdRoot creates the root command for the stencil CLI.
func NewCmdRoot(f *cmdutil.Factory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stencil",
		Short: "Materialize, build and launch project templates",
		Long: `Stencil renders project templates into throwaway directories, builds them,
launches them on free loopback ports and checks their HTTP endpoints.

Quick start:
  stencil templates list     # Show the available template kinds
  stencil new WebApi         # Render a project and print its directory
  stencil run WebApi         # Build and serve it until Ctrl+C
  stencil verify             # Check the documentation endpoint contract`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			initializeLogger(f)
			logger.Debug().
				Str("version", f.Version).
				Bool("debug", f.Debug).
				Str("config", f.ConfigPath).
				Msg("stencil starting")
			return nil
		},
		Version: f.Version,
	}

	cmd.PersistentFlags().BoolVarP(&f.Debug, "debug", "D", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&f.ConfigPath, "config", "", "Settings `FILE` (default $STENCIL_HOME/stencil.yaml)")

	cmd.SetVersionTemplate(versioncmd.Format(f.Version, f.Commit))
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return cmdutil.FlagErrorWrap(err)
	})

	registerAliases(cmd, f)

	cmd.AddCommand(newcmd.NewCmdNew(f, nil))
	cmd.AddCommand(runcmd.NewCmdRun(f, nil))
	cmd.AddCommand(verifycmd.NewCmdVerify(f, nil))
	cmd.AddCommand(templates.NewCmdTemplates(f))
	cmd.AddCommand(configcmd.NewCmdConfig(f))
	cmd.AddCommand(versioncmd.NewCmdVersion(f))

	return cmd
}

// initializeLogger sets up file logging when settings allow it, falling
// back to console-only logging on any error.
func initializeLogger(f *cmdutil.Factory) {
	if f.Settings == nil {
		logger.Init(f.Debug)
		return
	}
	settings, err := f.Settings()
	if err != nil {
		logger.Init(f.Debug)
		logger.Warn().Err(err).Msg("file logging unavailable: failed to load settings")
		return
	}
	logsDir, err := config.LogsDir()
	if err != nil {
		logger.Init(f.Debug)
		logger.Warn().Err(err).Msg("file logging unavailable: failed to get logs directory")
		return
	}
	if err := logger.InitWithFile(f.Debug, logsDir, settings.LoggerConfig()); err != nil {
		logger.Init(f.Debug)
		logger.Warn().Err(err).Msg("file logging unavailable: failed to initialize file writer")
	}
}
