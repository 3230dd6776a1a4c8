package list

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/cmdutil"
	"github.com/schmitthub/stencil/internal/iostreams"
)

// ListOptions contains the options for the templates list command.
type ListOptions struct {
	IOStreams *iostreams.IOStreams
	Catalog   func() (*catalog.Catalog, error)

	JSON bool
}

// NewCmdList creates the templates list command.
func NewCmdList(f *cmdutil.Factory, runF func(context.Context, *ListOptions) error) *cobra.Command {
	opts := &ListOptions{
		IOStreams: f.IOStreams,
		Catalog:   f.Catalog,
	}

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List template kinds and their optional features",
		Example: `  stencil templates list
  stencil templates ls --json`,
		Args: cmdutil.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runF != nil {
				return runF(cmd.Context(), opts)
			}
			return listRun(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output as JSON")

	return cmd
}

type featureJSON struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Files       []string `json:"files"`
}

type templateJSON struct {
	Kind           string            `json:"kind"`
	Description    string            `json:"description,omitempty"`
	Features       []featureJSON     `json:"features"`
	Endpoints      map[string]string `json:"endpoints"`
	ReadyPath      string            `json:"ready_path"`
	Configurations []string          `json:"configurations"`
}

func listRun(_ context.Context, opts *ListOptions) error {
	ios := opts.IOStreams

	cat, err := opts.Catalog()
	if err != nil {
		return err
	}
	templates, err := cat.Templates()
	if err != nil {
		return err
	}

	if opts.JSON {
		out := make([]templateJSON, 0, len(templates))
		for _, t := range templates {
			m := t.Manifest
			tj := templateJSON{
				Kind:        t.Kind.String(),
				Description: m.Description,
				Features:    make([]featureJSON, 0, len(m.Features)),
				Endpoints:   endpoints(m),
				ReadyPath:   m.Ready.Path,
			}
			for _, f := range m.Features {
				tj.Features = append(tj.Features, featureJSON{Name: f.Name, Description: f.Description, Files: f.Files})
			}
			for name := range m.Configurations {
				tj.Configurations = append(tj.Configurations, name)
			}
			slices.Sort(tj.Configurations)
			out = append(out, tj)
		}
		return cmdutil.WriteJSON(ios.Out, out)
	}

	if len(templates) == 0 {
		fmt.Fprintf(ios.ErrOut, "No templates in catalog %s\n", cat.Source())
		return nil
	}

	tp := ios.NewTablePrinter("KIND", "FEATURES", "DESCRIPTION")
	for _, t := range templates {
		features := strings.Join(t.Manifest.FeatureNames(), ", ")
		if features == "" {
			features = "-"
		}
		tp.AddRow(t.Kind.String(), features, t.Manifest.Description)
	}
	return tp.Render()
}

func endpoints(m *catalog.Manifest) map[string]string {
	out := make(map[string]string, 3)
	for _, name := range []string{catalog.EndpointSwaggerUI, catalog.EndpointSwaggerDocs, catalog.EndpointHealth} {
		out[name] = m.Endpoint(name)
	}
	return out
}
