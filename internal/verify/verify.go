// Package verify checks running instances against the documentation
// endpoint contract: Debug builds with docs enabled serve both endpoints,
// everything else answers 404.
package verify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/endpoint"
	"github.com/schmitthub/stencil/internal/instance"
	"github.com/schmitthub/stencil/internal/options"
)

// Expectation is the status each documentation endpoint should return.
type Expectation struct {
	UI   int `json:"ui"`
	Docs int `json:"docs"`
}

// Expect returns the documented contract for a template, configuration and option set.
func Expect(m *catalog.Manifest, cfg options.Configuration, opts options.OptionSet) Expectation {
	docs := m.HasFeature(options.FeatureOpenApiDocs) && opts.Enabled(options.FeatureOpenApiDocs)
	if cfg == options.Debug && docs {
		return Expectation{UI: http.StatusOK, Docs: http.StatusOK}
	}
	return Expectation{UI: http.StatusNotFound, Docs: http.StatusNotFound}
}

// Case is one cell of the verification matrix.
type Case struct {
	Request instance.Request
	Expect  Expectation
}

// Name is a short label such as "WebApi/Release/-OpenApiDocs".
func (c Case) Name() string { return c.Request.String() }

// Matrix enumerates both configurations with docs included and excluded.
func Matrix(cat *catalog.Catalog, kind catalog.Kind) ([]Case, error) {
	tmpl, err := cat.Lookup(kind)
	if err != nil {
		return nil, err
	}
	sets := []options.OptionSet{
		options.New(),
		options.New().WithExcludeOpenApiDocs(),
	}
	var cases []Case
	for _, cfg := range options.Configurations() {
		for _, set := range sets {
			cases = append(cases, Case{
				Request: instance.Request{Kind: tmpl.Kind, Configuration: cfg, Options: set},
				Expect:  Expect(tmpl.Manifest, cfg, set),
			})
		}
	}
	return cases, nil
}

// Target is a started instance as seen by the verifier.
type Target interface {
	Swagger() *endpoint.SwaggerClient
	Close() error
}

// Starter starts the instance for a request.
type Starter func(ctx context.Context, req instance.Request) (Target, error)

// InstanceStarter starts real instances with opts.
func InstanceStarter(opts ...instance.Option) Starter {
	return func(ctx context.Context, req instance.Request) (Target, error) {
		inst, err := instance.Start(ctx, req, opts...)
		if err != nil {
			return nil, err
		}
		return inst, nil
	}
}

// Result is the outcome of one case.
type Result struct {
	Case
	UI      int
	Docs    int
	Elapsed time.Duration
	Err     error
}

// Passed reports whether the case ran and matched its expectation.
func (r Result) Passed() bool {
	return r.Err == nil && r.UI == r.Expect.UI && r.Docs == r.Expect.Docs
}

// Run executes cases with at most parallel instances alive at once. Results
// keep the order of cases.
func Run(ctx context.Context, start Starter, cases []Case, parallel int) []Result {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]Result, len(cases))
	var g errgroup.Group
	g.SetLimit(parallel)
	for i, c := range cases {
		g.Go(func() error {
			results[i] = runCase(ctx, start, c)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runCase(ctx context.Context, start Starter, c Case) (res Result) {
	res.Case = c
	begin := time.Now()
	defer func() { res.Elapsed = time.Since(begin) }()

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}

	target, err := start(ctx, c.Request)
	if err != nil {
		res.Err = err
		return res
	}
	defer func() {
		if closeErr := target.Close(); closeErr != nil && res.Err == nil {
			res.Err = fmt.Errorf("closing instance: %w", closeErr)
		}
	}()

	sw := target.Swagger()
	ui, err := sw.GetSwaggerUI(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.UI = ui.StatusCode

	docs, err := sw.GetSwaggerDocs(ctx)
	if err != nil {
		res.Err = err
		return res
	}
	res.Docs = docs.StatusCode

	if docs.StatusCode == http.StatusOK {
		if _, err := endpoint.ParseOpenAPI(ctx, docs.Body); err != nil {
			res.Err = err
		}
	}
	return res
}
