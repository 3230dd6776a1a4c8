package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schmitthub/stencil/internal/build"
	"github.com/schmitthub/stencil/internal/catalog"
	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/logger/loggertest"
	"github.com/schmitthub/stencil/internal/materialize"
	"github.com/schmitthub/stencil/internal/options"
	"github.com/schmitthub/stencil/internal/ports"
	"github.com/schmitthub/stencil/internal/procout"
)

// helperModeEnv switches the test binary into a fake instance process.
const helperModeEnv = "STENCIL_SUPERVISOR_HELPER"

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperModeEnv); mode != "" {
		os.Exit(runHelper(mode))
	}
	os.Exit(m.Run())
}

// runHelper behaves like a launched template according to mode.
func runHelper(mode string) int {
	port := os.Getenv("PORT")
	switch mode {
	case "exit":
		fmt.Fprintln(os.Stderr, "fatal: configuration missing")
		return 2
	case "bind":
		// Fail the first HELPER_BIND_FAILS launches, counted through a file.
		counter := os.Getenv("HELPER_COUNTER")
		f, err := os.OpenFile(counter, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
		if err != nil {
			return 3
		}
		fmt.Fprintln(f, port)
		f.Close()
		data, _ := os.ReadFile(counter)
		launches := strings.Count(string(data), "\n")
		fails, _ := strconv.Atoi(os.Getenv("HELPER_BIND_FAILS"))
		if launches <= fails {
			fmt.Fprintf(os.Stderr, "listen tcp 127.0.0.1:%s: bind: address already in use\n", port)
			return 1
		}
	}

	healthStatus := http.StatusOK
	if mode == "never-ready" {
		healthStatus = http.StatusServiceUnavailable
	}
	if mode == "stubborn" {
		signal.Ignore(os.Interrupt)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(healthStatus)
	})
	mux.HandleFunc("/env", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, os.Getenv("APP_ENVIRONMENT")+" "+strings.Join(os.Args[1:], ","))
	})
	l, err := net.Listen("tcp", "127.0.0.1:"+port)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("listening on", l.Addr())

	srv := &http.Server{Handler: mux}
	go srv.Serve(l)

	sig := make(chan os.Signal, 1)
	if mode != "stubborn" {
		signal.Notify(sig, os.Interrupt)
	}
	<-sig
	srv.Close()
	return 0
}

type fakeBuilder struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (f *fakeBuilder) Build(ctx context.Context, p *materialize.Project, onLine func(procout.Line)) (*build.Artifact, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if onLine != nil {
		onLine(procout.Line{Stream: procout.Stdout, Text: "compiling " + p.Kind.String()})
	}
	if f.err != nil {
		return nil, f.err
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return &build.Artifact{Path: exe, Key: "test"}, nil
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("helper process relies on interrupt delivery")
	}
}

func testSettings() *config.Settings {
	s := config.DefaultSettings()
	s.Host = "127.0.0.1"
	s.Timeouts.Startup = 10 * time.Second
	s.Timeouts.ShutdownGrace = 2 * time.Second
	s.Ready.PollInterval = 20 * time.Millisecond
	return s
}

func testAllocator(t *testing.T) *ports.Allocator {
	t.Helper()
	a, err := ports.NewAllocator(43000, 43999, ports.WithLogger(loggertest.NewNop()))
	require.NoError(t, err)
	return a
}

func helperProject(t *testing.T, mode string, env map[string]string) *materialize.Project {
	t.Helper()
	runEnv := map[string]string{
		helperModeEnv:     mode,
		"APP_ENVIRONMENT": "{{.Configuration}}",
	}
	for k, v := range env {
		runEnv[k] = v
	}
	m := &catalog.Manifest{
		Kind: "Fake",
		Run: catalog.RunSpec{
			PortEnv: "PORT",
			Env:     runEnv,
			Args:    []string{"--port={{.Port}}", "{{.Kind}}"},
		},
		Ready: catalog.ReadySpec{Path: "/health"},
	}
	return &materialize.Project{
		ID:            "test",
		Dir:           t.TempDir(),
		Kind:          "Fake",
		Configuration: options.Release,
		Options:       options.New(),
		Template:      &catalog.Template{Kind: "Fake", Dir: "Fake", Manifest: m},
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestLaunch_Ready(t *testing.T) {
	requireUnix(t)
	var (
		mu    sync.Mutex
		lines []string
	)
	obs := ObserverFunc(func(source string, l procout.Line) {
		mu.Lock()
		lines = append(lines, source+": "+l.Text)
		mu.Unlock()
	})
	s := New(&fakeBuilder{}, testAllocator(t), testSettings(),
		WithLogger(loggertest.NewNop()), WithObserver(obs))

	proc, err := s.Launch(context.Background(), helperProject(t, "serve", nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Stop(context.Background()) })

	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(proc.Port()), proc.BaseURL())
	assert.Greater(t, proc.PID(), 0)

	status, body := get(t, proc.BaseURL()+"/env")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Release --port="+strconv.Itoa(proc.Port())+",Fake", body)

	require.NoError(t, proc.Stop(context.Background()))
	select {
	case <-proc.Exited():
	default:
		t.Fatal("Stop returned before the process exited")
	}
	assert.Equal(t, 0, proc.ExitCode())
	require.NoError(t, proc.Stop(context.Background()), "second Stop is a no-op")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, lines, "build: compiling Fake")
	found := false
	for _, l := range lines {
		if strings.HasPrefix(l, "process: listening on") {
			found = true
		}
	}
	assert.True(t, found, "process output reaches the observer: %v", lines)
}

func TestLaunch_BuildFailed(t *testing.T) {
	be := &build.Error{ExitCode: 1, Output: "main.go:1: syntax error", Err: errors.New("exit status 1")}
	fb := &fakeBuilder{err: be}
	s := New(fb, testAllocator(t), testSettings(), WithLogger(loggertest.NewNop()))

	_, err := s.Launch(context.Background(), helperProject(t, "serve", nil))
	var le *LaunchError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, BuildFailed, le.Kind)
	assert.Equal(t, "main.go:1: syntax error", le.Output)
	assert.True(t, errors.Is(err, &LaunchError{Kind: BuildFailed}))
	assert.Equal(t, 1, fb.calls)
}

func TestLaunch_BuildCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(&fakeBuilder{err: &build.Error{Err: context.Canceled}}, testAllocator(t), testSettings(), WithLogger(loggertest.NewNop()))

	_, err := s.Launch(ctx, helperProject(t, "serve", nil))
	var le *LaunchError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, Canceled, le.Kind)
}

func TestLaunch_ProcessExited(t *testing.T) {
	requireUnix(t)
	alloc := testAllocator(t)
	s := New(&fakeBuilder{}, alloc, testSettings(), WithLogger(loggertest.NewNop()))

	_, err := s.Launch(context.Background(), helperProject(t, "exit", nil))
	var le *LaunchError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ProcessExited, le.Kind)
	assert.Equal(t, 2, le.ExitCode)
	assert.Contains(t, le.Output, "configuration missing")
	assert.Equal(t, 0, alloc.InUse(), "port released after failure")
}

func TestLaunch_StartupTimeoutKillsProcess(t *testing.T) {
	requireUnix(t)
	settings := testSettings()
	settings.Timeouts.Startup = 300 * time.Millisecond
	alloc := testAllocator(t)
	s := New(&fakeBuilder{}, alloc, settings, WithLogger(loggertest.NewNop()))

	start := time.Now()
	_, err := s.Launch(context.Background(), helperProject(t, "never-ready", nil))
	var le *LaunchError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, StartupTimeout, le.Kind)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)

	// The port comes back only once the killed child has exited.
	assert.Eventually(t, func() bool { return alloc.InUse() == 0 }, 5*time.Second, 20*time.Millisecond)
	_, dialErr := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(le.Port)), time.Second)
	assert.Error(t, dialErr, "timed-out process must not keep listening")
}

func TestLaunch_PortBindFailedRetries(t *testing.T) {
	requireUnix(t)
	counter := filepath.Join(t.TempDir(), "launches")
	s := New(&fakeBuilder{}, testAllocator(t), testSettings(), WithLogger(loggertest.NewNop()))

	proc, err := s.Launch(context.Background(), helperProject(t, "bind", map[string]string{
		"HELPER_COUNTER":    counter,
		"HELPER_BIND_FAILS": "2",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Stop(context.Background()) })

	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	launched := strings.Fields(string(data))
	require.Len(t, launched, 3)
	assert.Equal(t, strconv.Itoa(proc.Port()), launched[2])
}

func TestLaunch_PortBindFailedExhaustsRetries(t *testing.T) {
	requireUnix(t)
	counter := filepath.Join(t.TempDir(), "launches")
	s := New(&fakeBuilder{}, testAllocator(t), testSettings(), WithLogger(loggertest.NewNop()))

	_, err := s.Launch(context.Background(), helperProject(t, "bind", map[string]string{
		"HELPER_COUNTER":    counter,
		"HELPER_BIND_FAILS": "10",
	}))
	var le *LaunchError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, PortBindFailed, le.Kind)
	assert.Equal(t, 3, le.Attempts)
	assert.Contains(t, le.Error(), "after 3 attempts")
}

func TestLaunch_CanceledWhileWaiting(t *testing.T) {
	requireUnix(t)
	s := New(&fakeBuilder{}, testAllocator(t), testSettings(), WithLogger(loggertest.NewNop()))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := s.Launch(ctx, helperProject(t, "never-ready", nil))
	var le *LaunchError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, Canceled, le.Kind)
}

func TestStop_KillsAfterGrace(t *testing.T) {
	requireUnix(t)
	settings := testSettings()
	settings.Timeouts.ShutdownGrace = 200 * time.Millisecond
	s := New(&fakeBuilder{}, testAllocator(t), settings, WithLogger(loggertest.NewNop()))

	proc, err := s.Launch(context.Background(), helperProject(t, "stubborn", nil))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, proc.Stop(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.NotEqual(t, 0, proc.ExitCode())
}

func TestLaunch_ConcurrentInstancesGetDistinctPorts(t *testing.T) {
	requireUnix(t)
	s := New(&fakeBuilder{}, testAllocator(t), testSettings(), WithLogger(loggertest.NewNop()))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		procs []*Process
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			proc, err := s.Launch(context.Background(), helperProject(t, "serve", nil))
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			procs = append(procs, proc)
			mu.Unlock()
		}()
	}
	wg.Wait()
	t.Cleanup(func() {
		for _, p := range procs {
			_ = p.Stop(context.Background())
		}
	})

	seen := make(map[int]bool)
	for _, p := range procs {
		assert.False(t, seen[p.Port()])
		seen[p.Port()] = true
	}
	assert.Len(t, seen, 3)
}

func TestLogObserver(t *testing.T) {
	log := loggertest.New()
	obs := Multi(nil, LogObserver(log))
	obs.OnOutput(SourceProcess, procout.Line{Stream: procout.Stderr, Text: "hello from child"})

	out := log.Output()
	assert.Contains(t, out, "hello from child")
	assert.Contains(t, out, `"source":"process"`)
	assert.Contains(t, out, `"stream":"stderr"`)
}

func TestIsBindFailure(t *testing.T) {
	assert.True(t, isBindFailure("listen tcp 127.0.0.1:8080: bind: address already in use"))
	assert.False(t, isBindFailure("panic: nil map"))
}

func TestFailureKind_String(t *testing.T) {
	assert.Equal(t, "StartupTimeout", StartupTimeout.String())
	assert.Equal(t, "FailureKind(99)", FailureKind(99).String())
}
