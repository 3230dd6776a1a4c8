package verify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/instance"
	"github.com/schmitthub/stencil/internal/iostreams"
	"github.com/schmitthub/stencil/internal/signals"
	intverify "github.com/schmitthub/stencil/internal/verify"
)

// VerifyOptions contains the options for the verify command.
type VerifyOptions struct {
	IOStreams       *iostreams.IOStreams
	Settings        func() (*config.Settings, error)
	Catalog         func() (*catalog.Catalog, error)
	InstanceOptions func() ([]instance.Option, error)

	// Starter overrides how cases are started; nil starts real instances.
	Starter intverify.Starter

	Kind     string
	Parallel int
	JSON     bool
}

// NewCmdVerify creates the verify command.
func NewCmdVerify(f *cmdutil.Factory, runF func(context.Context, *VerifyOptions) error) *cobra.Command {
	opts := &VerifyOptions{
		IOStreams:       f.IOStreams,
		Settings:        f.Settings,
		Catalog:         f.Catalog,
		InstanceOptions: f.InstanceOptions,
	}

	cmd := &cobra.Command{
		Use:   "verify [KIND]",
		Short: "Check the documentation endpoint contract of a template",
		Long: `Builds and launches KIND (default WebApi) in every combination of build
configuration and documentation option, probes the Swagger UI and OpenAPI
document endpoints, and compares the statuses against the contract:

  Debug with docs included       200 / 200
  Release, or docs excluded      404 / 404

Exits non-zero when any case fails.`,
		Example: `  stencil verify
  stencil verify WebApi --parallel 4 --json`,
		Args: cmdutil.RequiresMaxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Kind = args[0]
			}
			if opts.Parallel < 0 {
				return cmdutil.FlagErrorf("--parallel must not be negative")
			}
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return verifyRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "p", 0, "Maximum instances alive at once (default from settings)")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output results as JSON")

	return cmd
}

type jsonResult struct {
	Case          string                `json:"case"`
	Kind          string                `json:"kind"`
	Configuration string                `json:"configuration"`
	Excluded      []string              `json:"excluded"`
	Expected      intverify.Expectation `json:"expected"`
	UI            int                   `json:"ui"`
	Docs          int                   `json:"docs"`
	Passed        bool                  `json:"passed"`
	ElapsedMS     int64                 `json:"elapsed_ms"`
	Error         string                `json:"error,omitempty"`
}

func verifyRun(ctx context.Context, opts *VerifyOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	kind := catalog.WebAPI
	if opts.Kind != "" {
		kind = catalog.Kind(opts.Kind)
	}
	settings, err := opts.Settings()
	if err != nil {
		return err
	}
	cat, err := opts.Catalog()
	if err != nil {
		return err
	}
	cases, err := intverify.Matrix(cat, kind)
	if err != nil {
		return err
	}

	start := opts.Starter
	if start == nil {
		instOpts, err := opts.InstanceOptions()
		if err != nil {
			return err
		}
		start = intverify.InstanceStarter(instOpts...)
	}
	parallel := opts.Parallel
	if parallel == 0 {
		parallel = settings.Verify.Parallel
	}

	ctx, cancel := signals.SetupSignalContext(ctx)
	defer cancel()

	if !opts.JSON {
		fmt.Fprintf(ios.ErrOut, "Verifying %s: %d cases, %d at a time\n", kind, len(cases), parallel)
	}
	begin := time.Now()
	results := intverify.Run(ctx, start, cases, parallel)
	elapsed := time.Since(begin)

	passed := 0
	for _, r := range results {
		if r.Passed() {
			passed++
		}
	}

	if opts.JSON {
		out := make([]jsonResult, 0, len(results))
		for _, r := range results {
			jr := jsonResult{
				Case:          r.Name(),
				Kind:          r.Request.Kind.String(),
				Configuration: r.Request.Configuration.String(),
				Excluded:      r.Request.Options.Excluded(),
				Expected:      r.Expect,
				UI:            r.UI,
				Docs:          r.Docs,
				Passed:        r.Passed(),
				ElapsedMS:     r.Elapsed.Milliseconds(),
			}
			if r.Err != nil {
				jr.Error = r.Err.Error()
			}
			out = append(out, jr)
		}
		if err := cmdutil.WriteJSON(ios.Out, out); err != nil {
			return err
		}
	} else {
		tp := ios.NewTablePrinter("CASE", "UI", "DOCS", "RESULT", "TIME")
		for _, r := range results {
			result := cs.Green("PASS")
			if !r.Passed() {
				result = cs.Red("FAIL")
			}
			tp.AddRow(r.Name(),
				status(r.UI, r.Expect.UI),
				status(r.Docs, r.Expect.Docs),
				result,
				iostreams.FormatDuration(r.Elapsed))
		}
		if err := tp.Render(); err != nil {
			return err
		}
		for _, r := range results {
			if r.Err != nil {
				fmt.Fprintf(ios.ErrOut, "%s %s: %v\n", cs.FailureIcon(), r.Name(), r.Err)
			}
		}
		icon := cs.SuccessIcon()
		if passed != len(results) {
			icon = cs.FailureIcon()
		}
		fmt.Fprintf(ios.ErrOut, "%s %d/%d cases passed in %s\n", icon, passed, len(results), iostreams.FormatDuration(elapsed))
	}

	if passed != len(results) {
		return cmdutil.SilentError
	}
	return nil
}

// status renders a probed status, noting the expected one on mismatch.
// Zero means the probe never ran.
func status(got, want int) string {
	if got == 0 {
		return "-"
	}
	if got == want {
		return strconv.Itoa(got)
	}
	return fmt.Sprintf("%d (want %d)", got, want)
}
