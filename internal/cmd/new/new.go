package new

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/iostreams"
	"github.com/schmitthub/stencil/internal/logger"
	"github.com/schmitthub/stencil/internal/materialize"
)

// NewOptions contains the options for the new command.
type NewOptions struct {
	IOStreams *iostreams.IOStreams
	Settings  func() (*config.Settings, error)
	Catalog   func() (*catalog.Catalog, error)

	cmdutil.RequestFlags
	Kind   string
	Output string
}

// NewCmdNew creates the new command.
func NewCmdNew(f *cmdutil.Factory, runF func(context.Context, *NewOptions) error) *cobra.Command {
	opts := &NewOptions{
		IOStreams: f.IOStreams,
		Settings:  f.Settings,
		Catalog:   f.Catalog,
	}

	cmd := &cobra.Command{
		Use:   "new [KIND]",
		Short: "Materialize a project from a template",
		Long: `Renders the template for KIND (default WebApi) into a fresh directory and
prints its path. The project is kept on disk.

With --output the project is copied into DIR, which must not already contain
any of the generated files.`,
		Example: `  # Debug WebApi project with every feature
  stencil new

  # Release build without the OpenAPI docs wiring, written to ./api
  stencil new WebApi -c Release --exclude OpenApiDocs --output ./api`,
		Args: cmdutil.RequiresMaxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Kind = args[0]
			}
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return newRun(cmd.Context(), opts)
		},
	}

	opts.RequestFlags.AddFlags(cmd.Flags())
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Copy the project into `DIR`")

	return cmd
}

func newRun(ctx context.Context, opts *NewOptions) error {
	ios := opts.IOStreams
	cs := ios.ColorScheme()

	req, err := opts.Request(opts.Kind)
	if err != nil {
		return err
	}
	settings, err := opts.Settings()
	if err != nil {
		return err
	}
	cat, err := opts.Catalog()
	if err != nil {
		return err
	}

	m := materialize.New(cat, settings.WorkDir, materialize.WithLogger(ios.Logger))
	project, err := m.Materialize(ctx, req.Kind, req.Options, req.Configuration)
	if err != nil {
		return err
	}

	dir := project.Dir
	if opts.Output != "" {
		dir, err = copyProject(project, opts.Output)
		if err != nil {
			return err
		}
	}

	enabled := make([]string, 0, len(project.Features))
	for _, name := range project.Manifest().FeatureNames() {
		if project.Features[name] {
			enabled = append(enabled, name)
		}
	}
	fmt.Fprintf(ios.ErrOut, "%s Created %s project (%s, features: %s)\n",
		cs.SuccessIcon(), cs.Bold(req.Kind.String()), req.Configuration, featureList(enabled))
	fmt.Fprintln(ios.Out, dir)
	return nil
}

// copyProject copies p into output and removes the staging directory. The
// staging directory is removed on every path. Existing files are never
// overwritten: any collision is reported before a single file is written.
func copyProject(p *materialize.Project, output string) (dir string, err error) {
	defer func() {
		if rmErr := p.Remove(); rmErr != nil {
			if err != nil {
				err = errors.Join(err, fmt.Errorf("removing %s: %w", p.Dir, rmErr))
				return
			}
			logger.Warn().Err(rmErr).Str("dir", p.Dir).Msg("failed to remove staging directory")
		}
	}()

	abs, err := filepath.Abs(output)
	if err != nil {
		return "", err
	}
	src := os.DirFS(p.Dir)
	if err := checkCollisions(src, abs); err != nil {
		return "", fmt.Errorf("copying project to %s: %w", abs, err)
	}
	if err := os.CopyFS(abs, src); err != nil {
		return "", fmt.Errorf("copying project to %s: %w", abs, err)
	}
	return abs, nil
}

// checkCollisions reports the first file in src whose destination under dst
// already exists. Existing directories are fine; CopyFS merges into them.
func checkCollisions(src fs.FS, dst string) error {
	return fs.WalkDir(src, ".", func(rel string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := os.Lstat(filepath.Join(dst, filepath.FromSlash(rel)))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil
		case err != nil:
			return err
		case d.IsDir() && info.IsDir():
			return nil
		}
		return &fs.PathError{Op: "copy", Path: filepath.Join(dst, filepath.FromSlash(rel)), Err: fs.ErrExist}
	})
}

func featureList(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}
