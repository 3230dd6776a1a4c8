// Package build compiles materialized projects with the command their
// template manifest declares, caching artifacts by content.
package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/shlex"

	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/logger"
	"github.com/schmitthub/stencil/internal/materialize"
	"github.com/schmitthub/stencil/internal/procout"
)

const (
	// BinDir is the project-relative directory build commands write into.
	BinDir = "bin"
	// OutputLines bounds the build output kept for error reports.
	OutputLines = 200
)

// CommandData is what a manifest build command is rendered with.
type CommandData struct {
	Go            string
	Flags         string
	Output        string
	Configuration string
}

// Artifact is a built executable ready to launch.
type Artifact struct {
	Path     string
	Key      string
	Cached   bool
	Duration time.Duration
	Output   string
}

// Error reports a build command that could not run or exited non-zero.
type Error struct {
	Command  []string
	ExitCode int
	Output   string
	Err      error
}

func (e *Error) Error() string {
	msg := "build failed"
	if e.ExitCode > 0 {
		msg += " with exit code " + strconv.Itoa(e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Builder runs template build commands.
type Builder struct {
	goBinary string
	timeout  time.Duration
	cacheDir string
	log      logger.Logger

	toolchainOnce sync.Once
	toolchain     string
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Builder) { b.log = l }
}

// WithCacheDir enables the artifact cache rooted at dir. An empty dir disables it.
func WithCacheDir(dir string) Option {
	return func(b *Builder) { b.cacheDir = dir }
}

// WithTimeout bounds each build command.
func WithTimeout(d time.Duration) Option {
	return func(b *Builder) { b.timeout = d }
}

// WithGoBinary sets the toolchain substituted for {{.Go}}.
func WithGoBinary(path string) Option {
	return func(b *Builder) { b.goBinary = path }
}

// NewBuilder creates a Builder with no cache and a five minute timeout.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		goBinary: "go",
		timeout:  5 * time.Minute,
		log:      logger.Global(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FromSettings creates a Builder configured from settings.
func FromSettings(s *config.Settings, opts ...Option) (*Builder, error) {
	base := []Option{
		WithGoBinary(s.GoBinary),
		WithTimeout(s.Timeouts.Build),
	}
	if s.Build.Cache {
		dir, err := s.ResolvedCacheDir()
		if err != nil {
			return nil, fmt.Errorf("resolving build cache directory: %w", err)
		}
		base = append(base, WithCacheDir(dir))
	}
	return NewBuilder(append(base, opts...)...), nil
}

// Build produces the executable for p. Output lines are passed to onLine as
// they arrive; onLine may be nil.
func (b *Builder) Build(ctx context.Context, p *materialize.Project, onLine func(procout.Line)) (*Artifact, error) {
	start := time.Now()
	manifest := p.Manifest()

	outputName := manifest.Build.Output
	if runtime.GOOS == "windows" && !strings.HasSuffix(outputName, ".exe") {
		outputName += ".exe"
	}
	relOutput := filepath.ToSlash(filepath.Join(BinDir, outputName))

	line, err := materialize.RenderString("build.command", manifest.Build.Command, &CommandData{
		Go:            b.goBinary,
		Flags:         manifest.Flags(p.Configuration),
		Output:        relOutput,
		Configuration: p.Configuration.String(),
	})
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("rendering build command: %w", err)}
	}
	argv, err := shlex.Split(line)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("splitting build command %q: %w", line, err)}
	}
	if len(argv) == 0 {
		return nil, &Error{Err: errors.New("build command is empty")}
	}

	env := map[string]string{
		"GOWORK":      "off",
		"CGO_ENABLED": "0",
		"GOOS":        runtime.GOOS,
		"GOARCH":      runtime.GOARCH,
	}
	key := CacheKey(p.Hash, b.toolchainID(), argv, env)
	built := filepath.Join(p.Dir, filepath.FromSlash(relOutput))

	if b.cacheDir == "" {
		out, err := b.run(ctx, p.Dir, argv, env, built, onLine)
		if err != nil {
			return nil, err
		}
		return &Artifact{Path: built, Key: key, Duration: time.Since(start), Output: out}, nil
	}

	entry := filepath.Join(b.cacheDir, strings.ToLower(p.Kind.String())+"-"+key)
	cached := filepath.Join(entry, outputName)
	var (
		out string
		hit bool
	)
	err = b.withEntryLock(ctx, entry, func() error {
		if _, statErr := os.Stat(cached); statErr == nil {
			hit = true
			return nil
		}
		var runErr error
		out, runErr = b.run(ctx, p.Dir, argv, env, built, onLine)
		if runErr != nil {
			return runErr
		}
		return storeArtifact(built, entry, cached)
	})
	if err != nil {
		return nil, err
	}

	if hit {
		b.log.Debug().Str("kind", p.Kind.String()).Str("key", key).Msg("build cache hit")
	}
	return &Artifact{Path: cached, Key: key, Cached: hit, Duration: time.Since(start), Output: out}, nil
}

// run executes argv in dir and checks it produced want.
func (b *Builder) run(ctx context.Context, dir string, argv []string, env map[string]string, want string, onLine func(procout.Line)) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	buf := procout.NewBuffer(OutputLines)
	sink := func(l procout.Line) {
		buf.Add(l)
		if onLine != nil {
			onLine(l)
		}
	}
	stdout := procout.NewWriter(procout.Stdout, sink)
	stderr := procout.NewWriter(procout.Stderr, sink)

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = 2 * time.Second

	b.log.Debug().Strs("argv", argv).Str("dir", dir).Msg("running build command")
	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if err != nil {
		be := &Error{Command: argv, Output: buf.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			be.ExitCode = exitErr.ExitCode()
		}
		switch {
		case ctx.Err() != nil:
			be.ExitCode = 0
			be.Err = ctx.Err()
		case runCtx.Err() != nil:
			be.ExitCode = 0
			be.Err = fmt.Errorf("timed out after %s: %w", b.timeout, context.DeadlineExceeded)
		}
		return "", be
	}

	if _, err := os.Stat(want); err != nil {
		return "", &Error{Command: argv, Output: buf.String(), Err: fmt.Errorf("build produced no artifact at %s", want)}
	}
	return buf.String(), nil
}

// withEntryLock serializes builders of the same cache entry across processes.
func (b *Builder) withEntryLock(ctx context.Context, entry string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(entry), 0o755); err != nil {
		return &Error{Err: fmt.Errorf("creating build cache: %w", err)}
	}
	fl := flock.New(entry + ".lock")
	locked, err := fl.TryLockContext(ctx, 100*time.Millisecond)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Error{Err: ctxErr}
		}
		return &Error{Err: fmt.Errorf("acquiring build cache lock: %w", err)}
	}
	if !locked {
		return &Error{Err: errors.New("could not acquire build cache lock")}
	}
	defer func() {
		if unlockErr := fl.Unlock(); unlockErr != nil {
			b.log.Debug().Err(unlockErr).Str("entry", entry).Msg("failed to release build cache lock")
		}
	}()
	return fn()
}

// storeArtifact copies src into the cache entry, publishing it with a rename
// so readers never observe a partial file.
func storeArtifact(src, entry, dest string) error {
	if err := os.MkdirAll(entry, 0o755); err != nil {
		return &Error{Err: fmt.Errorf("creating cache entry: %w", err)}
	}
	partial := dest + ".partial"
	if err := copyExecutable(src, partial); err != nil {
		_ = os.Remove(partial)
		return &Error{Err: fmt.Errorf("caching artifact: %w", err)}
	}
	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return &Error{Err: fmt.Errorf("caching artifact: %w", err)}
	}
	return nil
}

func copyExecutable(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// toolchainID identifies the toolchain binary so upgrades invalidate the cache.
func (b *Builder) toolchainID() string {
	b.toolchainOnce.Do(func() {
		b.toolchain = b.goBinary
		path, err := exec.LookPath(b.goBinary)
		if err != nil {
			return
		}
		info, err := os.Stat(path)
		if err != nil {
			b.toolchain = path
			return
		}
		b.toolchain = path + "@" + strconv.FormatInt(info.ModTime().UnixNano(), 10) + "/" + strconv.FormatInt(info.Size(), 10)
	})
	return b.toolchain
}
