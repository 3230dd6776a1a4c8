// Package harness starts real template instances for integration tests and
// guarantees their disposal when the test ends.
package harness

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/instance"
	"github.com/schmitthub/stencil/internal/materialize"
	"github.com/schmitthub/stencil/internal/procout"
	"github.com/schmitthub/stencil/internal/supervisor"
)

// StaleAfter is the age past which a leftover project directory is swept.
const StaleAfter = time.Hour

const lockFileName = "integration-test.lock"

var loadSettings = sync.OnceValues(func() (*config.Settings, error) {
	return config.Load("")
})

// Settings returns the settings integration tests run with.
func Settings(t testing.TB) *config.Settings {
	t.Helper()
	s, err := loadSettings()
	if err != nil {
		t.Fatalf("loading settings: %v", err)
	}
	return s
}

// RunTestMain wraps m.Run for integration packages. It takes an exclusive
// run lock, sweeps project directories abandoned by killed runs and sweeps
// again on exit or interrupt.
//
//	func TestMain(m *testing.M) { os.Exit(harness.RunTestMain(m)) }
func RunTestMain(m *testing.M) int {
	fl, err := acquireTestLock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	defer fl.Unlock()

	cleanup := func() {
		s, err := loadSettings()
		if err != nil {
			return
		}
		_, _ = SweepStale(s.WorkDir, StaleAfter)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		cleanup()
		_ = fl.Unlock()
		os.Exit(1)
	}()

	cleanup()
	code := m.Run()

	signal.Stop(sig)
	cleanup()
	return code
}

func acquireTestLock() (*flock.Flock, error) {
	lockDir, err := config.LocksDir()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve lock directory: %w", err)
	}
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create lock directory: %w", err)
	}
	lockPath := filepath.Join(lockDir, lockFileName)
	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("cannot lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("another integration test run is active (lock: %s)", lockPath)
	}
	return fl, nil
}

// SweepStale removes project directories under workRoot created more than
// maxAge ago. A directory without a readable record falls back to its
// modification time. It returns the removed paths.
func SweepStale(workRoot string, maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(workRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), materialize.DirPrefix) {
			continue
		}
		dir := filepath.Join(workRoot, e.Name())
		if createdAt(dir, e).After(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			continue
		}
		removed = append(removed, dir)
	}
	return removed, nil
}

func createdAt(dir string, e os.DirEntry) time.Time {
	if rec, err := materialize.ReadRecord(dir); err == nil && !rec.CreatedAt.IsZero() {
		return rec.CreatedAt
	}
	if info, err := e.Info(); err == nil {
		return info.ModTime()
	}
	return time.Now()
}

// RequireGoToolchain skips the test when the go command is not on PATH.
// Templates are built and run with it.
func RequireGoToolchain(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go toolchain is not available, skipping test")
	}
}

// Observer forwards instance output to t.Logf until the returned stop
// function is called. Lines arriving after stop are dropped so nothing is
// logged once the test has completed.
func Observer(t testing.TB) (supervisor.Observer, func()) {
	var done atomic.Bool
	obs := supervisor.ObserverFunc(func(source string, line procout.Line) {
		if done.Load() {
			return
		}
		t.Logf("[%s %s] %s", source, line.Stream, line.Text)
	})
	return obs, func() { done.Store(true) }
}

// Start launches req and closes it when the test ends. Extra options are
// applied after the harness defaults.
func Start(t testing.TB, req instance.Request, opts ...instance.Option) *instance.Instance {
	t.Helper()
	RequireGoToolchain(t)
	return start(t, func(ctx context.Context, o []instance.Option) (*instance.Instance, error) {
		return instance.Start(ctx, req, o...)
	}, opts)
}

// StartWebAPI launches a WebApi instance from nil, a build configuration or
// an option set, as instance.StartNew does, and closes it when the test ends.
func StartWebAPI(t testing.TB, arg any, opts ...instance.Option) *instance.Instance {
	t.Helper()
	RequireGoToolchain(t)
	return start(t, func(ctx context.Context, o []instance.Option) (*instance.Instance, error) {
		return instance.StartNew(ctx, arg, o...)
	}, opts)
}

// Options returns the options Start applies: the harness settings and an
// observer logging to t that is silenced when the test ends. Use it to start
// instances from goroutines, where Start's t.Fatalf is not allowed.
func Options(t testing.TB) []instance.Option {
	t.Helper()
	obs, stop := Observer(t)
	t.Cleanup(stop)
	return []instance.Option{
		instance.WithSettings(Settings(t)),
		instance.WithObserver(obs),
	}
}

// Cleanup closes inst when the test ends, reporting a failed disposal.
func Cleanup(t testing.TB, inst *instance.Instance) {
	t.Cleanup(func() {
		if err := inst.Close(); err != nil {
			t.Errorf("closing %s: %v", inst.Request(), err)
		}
	})
}

// StartTimeout bounds a harness start: build plus startup.
func StartTimeout(s *config.Settings) time.Duration {
	return s.Timeouts.Build + s.Timeouts.Startup
}

func start(t testing.TB, fn func(context.Context, []instance.Option) (*instance.Instance, error), extra []instance.Option) *instance.Instance {
	t.Helper()
	opts := append(Options(t), extra...)

	ctx, cancel := context.WithTimeout(context.Background(), StartTimeout(Settings(t)))
	defer cancel()

	inst, err := fn(ctx, opts)
	if err != nil {
		t.Fatalf("starting instance: %v", err)
	}
	Cleanup(t, inst)
	return inst
}
