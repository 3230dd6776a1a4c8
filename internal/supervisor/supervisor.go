// Package supervisor turns a materialized project into a running, ready
// process: build, reserve a port, start, and wait for the readiness probe.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"time"

	"github.com/schmitthub/stencil/internal/build"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/logger"
	"github.com/schmitthub/stencil/internal/materialize"
	"github.com/schmitthub/stencil/internal/ports"
	"github.com/schmitthub/stencil/internal/procout"
)

// OutputLines bounds the process output kept for error reports.
const OutputLines = 200

// Builder produces the executable for a project.
type Builder interface {
	Build(ctx context.Context, p *materialize.Project, onLine func(procout.Line)) (*build.Artifact, error)
}

// PortReserver hands out ports for launch attempts.
type PortReserver interface {
	Reserve() (*ports.Reservation, error)
}

// RunData is what manifest run env values and args are rendered with.
type RunData struct {
	Port          int
	Configuration string
	Kind          string
	Dir           string
}

// Supervisor launches projects.
type Supervisor struct {
	builder      Builder
	ports        PortReserver
	host         string
	bindRetries  int
	startup      time.Duration
	grace        time.Duration
	pollInterval time.Duration
	probeTimeout time.Duration
	observer     Observer
	log          logger.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithObserver receives build and process output.
func WithObserver(o Observer) Option {
	return func(s *Supervisor) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Supervisor) { s.log = l }
}

// New creates a Supervisor using the host, retry and timeout settings.
func New(b Builder, r PortReserver, settings *config.Settings, opts ...Option) *Supervisor {
	s := &Supervisor{
		builder:      b,
		ports:        r,
		host:         settings.Host,
		bindRetries:  settings.Ports.BindRetries,
		startup:      settings.Timeouts.Startup,
		grace:        settings.Timeouts.ShutdownGrace,
		pollInterval: settings.Ready.PollInterval,
		probeTimeout: settings.Timeouts.Request,
		log:          logger.Global(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.bindRetries < 1 {
		s.bindRetries = 1
	}
	if s.probeTimeout <= 0 || s.probeTimeout > 2*time.Second {
		s.probeTimeout = 2 * time.Second
	}
	return s
}

// Launch builds p once and starts it, retrying with a fresh port when the
// process reports its port was taken. On error nothing is left running.
func (s *Supervisor) Launch(ctx context.Context, p *materialize.Project) (*Process, error) {
	log := s.log
	start := time.Now()

	art, err := s.builder.Build(ctx, p, s.forward(SourceBuild))
	if err != nil {
		le := &LaunchError{Kind: BuildFailed, Err: err}
		var be *build.Error
		if errors.As(err, &be) {
			le.Output = be.Output
			le.ExitCode = be.ExitCode
		}
		if ctx.Err() != nil {
			le.Kind = Canceled
		}
		return nil, le
	}
	log.Debug().
		Str("kind", p.Kind.String()).
		Str("artifact", art.Path).
		Bool("cached", art.Cached).
		Dur("duration", art.Duration).
		Msg("build complete")

	var last *LaunchError
	for attempt := 1; attempt <= s.bindRetries; attempt++ {
		proc, retry, err := s.attempt(ctx, p, art)
		if err == nil {
			log.Debug().
				Str("kind", p.Kind.String()).
				Int("port", proc.Port()).
				Int("pid", proc.PID()).
				Int("attempt", attempt).
				Dur("elapsed", time.Since(start)).
				Msg("instance ready")
			return proc, nil
		}
		last = err
		last.Attempts = attempt
		if !retry {
			return nil, last
		}
		log.Debug().Int("port", err.Port).Int("attempt", attempt).Msg("port bind failed, retrying with a new port")
	}
	return nil, last
}

// attempt runs one reserve, start and wait cycle. retry reports whether a new port might help.
func (s *Supervisor) attempt(ctx context.Context, p *materialize.Project, art *build.Artifact) (proc *Process, retry bool, lerr *LaunchError) {
	if err := ctx.Err(); err != nil {
		return nil, false, &LaunchError{Kind: Canceled, Err: err}
	}

	res, err := s.ports.Reserve()
	if err != nil {
		return nil, false, &LaunchError{Kind: PortBindFailed, Err: err}
	}
	port := res.Port()

	cmd, err := s.command(p, art, port)
	if err != nil {
		res.Release()
		return nil, false, &LaunchError{Kind: ProcessExited, Port: port, Err: err}
	}

	output := procout.NewBuffer(OutputLines)
	forward := s.forward(SourceProcess)
	sink := func(l procout.Line) {
		output.Add(l)
		if forward != nil {
			forward(l)
		}
	}
	baseURL := "http://" + net.JoinHostPort(s.host, strconv.Itoa(port))
	proc, err = startProcess(cmd, res, baseURL, output,
		procout.NewWriter(procout.Stdout, sink),
		procout.NewWriter(procout.Stderr, sink),
		s.grace, s.log)
	if err != nil {
		res.Release()
		return nil, false, &LaunchError{Kind: ProcessExited, Port: port, Err: fmt.Errorf("starting %s: %w", art.Path, err)}
	}
	s.log.Debug().Int("pid", proc.PID()).Int("port", port).Str("dir", p.Dir).Msg("process started")

	readyURL := baseURL + p.Manifest().Ready.Path
	if lerr := s.waitReady(ctx, proc, readyURL); lerr != nil {
		proc.kill()
		lerr.Port = port
		lerr.Output = proc.Output()
		return nil, lerr.Kind == PortBindFailed, lerr
	}
	return proc, false, nil
}

// command prepares the child process for a given port.
func (s *Supervisor) command(p *materialize.Project, art *build.Artifact, port int) (*exec.Cmd, error) {
	run := p.Manifest().Run
	data := &RunData{
		Port:          port,
		Configuration: p.Configuration.String(),
		Kind:          p.Kind.String(),
		Dir:           p.Dir,
	}

	args := make([]string, 0, len(run.Args))
	for i, a := range run.Args {
		v, err := materialize.RenderString("run.args["+strconv.Itoa(i)+"]", a, data)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	env := os.Environ()
	keys := make([]string, 0, len(run.Env))
	for k := range run.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := materialize.RenderString("run.env."+k, run.Env[k], data)
		if err != nil {
			return nil, err
		}
		env = append(env, k+"="+v)
	}
	env = append(env, run.PortEnv+"="+strconv.Itoa(port))

	cmd := exec.Command(art.Path, args...)
	cmd.Dir = p.Dir
	cmd.Env = env
	return cmd, nil
}

// waitReady polls url until it answers 2xx, the process exits, or the startup deadline passes.
func (s *Supervisor) waitReady(ctx context.Context, proc *Process, url string) *LaunchError {
	deadline, cancel := context.WithTimeout(ctx, s.startup)
	defer cancel()

	client := &http.Client{Timeout: s.probeTimeout}
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if probe(deadline, client, url) {
			return nil
		}
		select {
		case <-proc.Exited():
			le := &LaunchError{Kind: ProcessExited, ExitCode: proc.ExitCode(), Err: fmt.Errorf("process exited before becoming ready: %v", proc.ExitErr())}
			if isBindFailure(proc.Output()) {
				le.Kind = PortBindFailed
				le.Err = fmt.Errorf("port %d already in use", proc.Port())
			}
			return le
		case <-deadline.Done():
			if err := ctx.Err(); err != nil {
				return &LaunchError{Kind: Canceled, Err: err}
			}
			return &LaunchError{Kind: StartupTimeout, Err: fmt.Errorf("not ready after %s: %w", s.startup, context.DeadlineExceeded)}
		case <-ticker.C:
		}
	}
}

func probe(ctx context.Context, client *http.Client, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func (s *Supervisor) forward(source string) func(procout.Line) {
	if s.observer == nil {
		return nil
	}
	return func(l procout.Line) { s.observer.OnOutput(source, l) }
}
