// Package instance owns one running template instance: its materialized
// directory and its process. Closing the instance is the only way to release
// both, and it always releases both.
package instance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/schmitthub/stencil/internal/build"
	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/endpoint"
	"github.com/schmitthub/stencil/internal/logger"
	"github.com/schmitthub/stencil/internal/materialize"
	"github.com/schmitthub/stencil/internal/options"
	"github.com/schmitthub/stencil/internal/ports"
	"github.com/schmitthub/stencil/internal/supervisor"
)

// stopSlack is added to the shutdown grace period when bounding Close.
const stopSlack = 5 * time.Second

// Request describes the instance to start.
type Request struct {
	Kind          catalog.Kind
	Configuration options.Configuration
	Options       options.OptionSet
}

func (r Request) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Kind, r.Configuration, r.Options)
}

// Instance is a running, ready template instance.
type Instance struct {
	mu      sync.RWMutex
	state   State
	req     Request
	project *materialize.Project
	proc    *supervisor.Process
	timeout time.Duration
	grace   time.Duration
	log     logger.Logger

	closeOnce sync.Once
}

type startConfig struct {
	settings  *config.Settings
	catalog   *catalog.Catalog
	allocator supervisor.PortReserver
	builder   supervisor.Builder
	observer  supervisor.Observer
	log       logger.Logger
}

// Option configures Start.
type Option func(*startConfig)

// WithSettings replaces the settings loaded from the environment.
func WithSettings(s *config.Settings) Option {
	return func(c *startConfig) { c.settings = s }
}

// WithCatalog replaces the catalog named by settings.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(c *startConfig) { c.catalog = cat }
}

// WithAllocator replaces the process-wide port allocator.
func WithAllocator(a supervisor.PortReserver) Option {
	return func(c *startConfig) { c.allocator = a }
}

// WithBuilder replaces the builder created from settings.
func WithBuilder(b supervisor.Builder) Option {
	return func(c *startConfig) { c.builder = b }
}

// WithObserver receives build and process output.
func WithObserver(o supervisor.Observer) Option {
	return func(c *startConfig) { c.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *startConfig) { c.log = l }
}

var loadSettings = sync.OnceValues(func() (*config.Settings, error) {
	return config.Load("")
})

func (c *startConfig) complete() error {
	if c.log == nil {
		c.log = logger.Global()
	}
	if c.settings == nil {
		s, err := loadSettings()
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		c.settings = s
	}
	if c.catalog == nil {
		cat, err := catalog.Resolve(c.settings.CatalogDir)
		if err != nil {
			return err
		}
		c.catalog = cat
	}
	if c.allocator == nil {
		a, err := ports.Shared(c.settings)
		if err != nil {
			return fmt.Errorf("creating port allocator: %w", err)
		}
		c.allocator = a
	}
	if c.builder == nil {
		b, err := build.FromSettings(c.settings, build.WithLogger(c.log))
		if err != nil {
			return err
		}
		c.builder = b
	}
	return nil
}

// Start materializes and launches req, returning a Running instance. On any
// failure everything created so far is removed and the typed error
// (*materialize.MaterializationError or *supervisor.LaunchError) is returned.
func Start(ctx context.Context, req Request, opts ...Option) (*Instance, error) {
	cfg := &startConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.complete(); err != nil {
		return nil, err
	}
	log := cfg.log

	inst := &Instance{
		state:   Created,
		req:     req,
		timeout: cfg.settings.Timeouts.Request,
		grace:   cfg.settings.Timeouts.ShutdownGrace,
		log:     log,
	}

	m := materialize.New(cfg.catalog, cfg.settings.WorkDir, materialize.WithLogger(log))
	project, err := m.Materialize(ctx, req.Kind, req.Options, req.Configuration)
	if err != nil {
		return nil, err
	}

	svOpts := []supervisor.Option{supervisor.WithLogger(log)}
	if cfg.observer != nil {
		svOpts = append(svOpts, supervisor.WithObserver(cfg.observer))
	}
	sv := supervisor.New(cfg.builder, cfg.allocator, cfg.settings, svOpts...)
	proc, err := sv.Launch(ctx, project)
	if err != nil {
		if rmErr := project.Remove(); rmErr != nil {
			err = errors.Join(err, fmt.Errorf("removing %s: %w", project.Dir, rmErr))
		}
		return nil, err
	}

	inst.project = project
	inst.proc = proc
	inst.state = Running
	log.Debug().
		Str("instance", req.String()).
		Str("url", proc.BaseURL()).
		Str("dir", project.Dir).
		Msg("instance running")
	return inst, nil
}

// StartNew starts a WebApi instance from either a build configuration (all
// features enabled) or an option set (Debug build). A Request is used as is.
func StartNew(ctx context.Context, arg any, opts ...Option) (*Instance, error) {
	req := Request{Kind: catalog.WebAPI, Configuration: options.Debug, Options: options.New()}
	switch v := arg.(type) {
	case nil:
	case options.Configuration:
		req.Configuration = v
	case options.OptionSet:
		req.Options = v
	case Request:
		req = v
	default:
		return nil, fmt.Errorf("StartNew: unsupported argument type %T", arg)
	}
	return Start(ctx, req, opts...)
}

// Use starts an instance, runs fn with it and closes it on every exit path,
// including a panic in fn.
func Use(ctx context.Context, req Request, fn func(*Instance) error, opts ...Option) (err error) {
	inst, err := Start(ctx, req, opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, inst.Close())
	}()
	return fn(inst)
}

// State returns the lifecycle state.
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Request returns what the instance was started from.
func (i *Instance) Request() Request { return i.req }

func (i *Instance) running(op string) error {
	if i.state != Running {
		return &InvalidStateError{Op: op, State: i.state}
	}
	return nil
}

// BaseURL returns the instance root URL.
func (i *Instance) BaseURL() (string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.running("BaseURL"); err != nil {
		return "", err
	}
	return i.proc.BaseURL(), nil
}

// Port returns the port the instance listens on.
func (i *Instance) Port() (int, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.running("Port"); err != nil {
		return 0, err
	}
	return i.proc.Port(), nil
}

// Dir returns the project directory.
func (i *Instance) Dir() (string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if err := i.running("Dir"); err != nil {
		return "", err
	}
	return i.project.Dir, nil
}

// Project returns the materialized project. It stays readable after Close
// although its directory no longer exists.
func (i *Instance) Project() *materialize.Project { return i.project }

// Output returns the most recent process output.
func (i *Instance) Output() string { return i.proc.Output() }

func (i *Instance) client() *endpoint.Client {
	return endpoint.NewClient(i.BaseURL, endpoint.WithTimeout(i.timeout))
}

// Swagger returns a client for the documentation endpoints. The client
// resolves the base URL on every call, so calls after Close fail with ErrInvalidState.
func (i *Instance) Swagger() *endpoint.SwaggerClient {
	m := i.project.Manifest()
	return endpoint.NewSwaggerClient(i.client(),
		m.Endpoint(catalog.EndpointSwaggerUI),
		m.Endpoint(catalog.EndpointSwaggerDocs))
}

// Health returns a client for the liveness endpoint.
func (i *Instance) Health() *endpoint.HealthClient {
	return endpoint.NewHealthClient(i.client(), i.project.Manifest().Endpoint(catalog.EndpointHealth))
}

// Close stops the process, gracefully and then forcibly, and deletes the
// project directory. Only the first call does any work; later calls return nil.
func (i *Instance) Close() error {
	var err error
	i.closeOnce.Do(func() { err = i.dispose() })
	return err
}

func (i *Instance) dispose() error {
	i.mu.Lock()
	i.state = Disposed
	i.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), i.grace+stopSlack)
	defer cancel()

	var errs []error
	if err := i.proc.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := i.project.Remove(); err != nil {
		errs = append(errs, fmt.Errorf("removing %s: %w", i.project.Dir, err))
	}
	i.log.Debug().Str("instance", i.req.String()).Str("dir", i.project.Dir).Msg("instance disposed")
	return errors.Join(errs...)
}
