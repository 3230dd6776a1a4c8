package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/instance"
	"github.com/schmitthub/stencil/internal/iostreams"
	"github.com/schmitthub/stencil/internal/signals"
)

// Runner is the part of an instance the run command uses.
type Runner interface {
	BaseURL() (string, error)
	Close() error
}

// RunOptions contains the options for the run command.
type RunOptions struct {
	IOStreams       *iostreams.IOStreams
	Settings        func() (*config.Settings, error)
	InstanceOptions func() ([]instance.Option, error)

	// Start launches one instance; defaults to instance.Start.
	Start func(ctx context.Context, req instance.Request, opts ...instance.Option) (Runner, error)
	// Watch blocks until ctx is done, calling onChange after template edits;
	// defaults to catalog.Watch.
	Watch func(ctx context.Context, dir string, onChange func([]string)) error

	cmdutil.RequestFlags
	Kind     string
	WatchDir bool
}

// NewCmdRun creates the run command.
func NewCmdRun(f *cmdutil.Factory, runF func(context.Context, *RunOptions) error) *cobra.Command {
	opts := &RunOptions{
		IOStreams:       f.IOStreams,
		Settings:        f.Settings,
		InstanceOptions: f.InstanceOptions,
		Start: func(ctx context.Context, req instance.Request, o ...instance.Option) (Runner, error) {
			return instance.Start(ctx, req, o...)
		},
		Watch: func(ctx context.Context, dir string, onChange func([]string)) error {
			return catalog.Watch(ctx, dir, catalog.DefaultWatchDebounce, onChange)
		},
	}

	cmd := &cobra.Command{
		Use:   "run [KIND]",
		Short: "Build and launch a template instance until interrupted",
		Long: `Materializes the template for KIND (default WebApi), builds it, launches it on
a free loopback port and prints its base URL. The instance runs until SIGINT or
SIGTERM, then it is stopped and its directory removed.

--watch restarts the instance whenever a file of the on-disk template catalog
(catalog_dir) changes.`,
		Example: `  # Debug WebApi on a free port
  stencil run

  # Release build, restarted on template edits
  STENCIL_CATALOG_DIR=./templates stencil run -c Release --watch`,
		Args: cmdutil.RequiresMaxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Kind = args[0]
			}
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return runRun(cmd.Context(), opts)
		},
	}

	opts.RequestFlags.AddFlags(cmd.Flags())
	cmd.Flags().BoolVarP(&opts.WatchDir, "watch", "w", false, "Restart when template files change")

	return cmd
}

func runRun(ctx context.Context, opts *RunOptions) error {
	req, err := opts.Request(opts.Kind)
	if err != nil {
		return err
	}
	instOpts, err := opts.InstanceOptions()
	if err != nil {
		return err
	}

	var watchDir string
	if opts.WatchDir {
		s, err := opts.Settings()
		if err != nil {
			return err
		}
		if s.CatalogDir == "" {
			return cmdutil.FlagErrorf("--watch needs an on-disk catalog; set catalog_dir or STENCIL_CATALOG_DIR")
		}
		watchDir = filepath.Join(s.CatalogDir, req.Kind.String())
	}

	ctx, cancel := signals.SetupSignalContext(ctx)
	defer cancel()

	if watchDir == "" {
		inst, err := start(ctx, opts, req, instOpts)
		if err != nil {
			return err
		}
		<-ctx.Done()
		return stop(opts, inst)
	}
	return watchLoop(ctx, opts, req, instOpts, watchDir)
}

func start(ctx context.Context, opts *RunOptions, req instance.Request, instOpts []instance.Option) (Runner, error) {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	fmt.Fprintf(ios.ErrOut, "Starting %s...\n", req)
	inst, err := opts.Start(ctx, req, instOpts...)
	if err != nil {
		return nil, err
	}
	url, err := inst.BaseURL()
	if err != nil {
		return nil, errors.Join(err, inst.Close())
	}
	fmt.Fprintf(ios.ErrOut, "%s Listening on %s (Ctrl+C to stop)\n", cs.SuccessIcon(), url)
	fmt.Fprintln(ios.Out, url)
	return inst, nil
}

func stop(opts *RunOptions, inst Runner) error {
	fmt.Fprintln(opts.IOStreams.ErrOut, "Stopping...")
	return inst.Close()
}

// watchLoop keeps one instance running, replacing it after each template
// change. A failed restart is reported and retried on the next change.
func watchLoop(ctx context.Context, opts *RunOptions, req instance.Request, instOpts []instance.Option, dir string) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	changes := make(chan []string, 1)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- opts.Watch(ctx, dir, func(paths []string) {
			select {
			case changes <- paths:
			default:
			}
		})
	}()

	inst, err := start(ctx, opts, req, instOpts)
	if err != nil {
		fmt.Fprintf(ios.ErrOut, "%s %v\n", cs.FailureIcon(), err)
	}
	defer func() {
		if inst != nil {
			_ = stop(opts, inst)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watchErr:
			if err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		case paths := <-changes:
			fmt.Fprintf(ios.ErrOut, "%s %d template file(s) changed, restarting\n", cs.WarningIcon(), len(paths))
			if inst != nil {
				if err := stop(opts, inst); err != nil {
					ios.Logger.Warn().Err(err).Msg("failed to stop previous instance")
				}
				inst = nil
			}
			next, err := start(ctx, opts, req, instOpts)
			if err != nil {
				fmt.Fprintf(ios.ErrOut, "%s %v\n", cs.FailureIcon(), err)
				continue
			}
			inst = next
		}
	}
}
