package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/schmitthub/stencil/internal/logger"
	"github.com/schmitthub/stencil/internal/ports"
	"github.com/schmitthub/stencil/internal/procout"
)

// Process is a launched instance. Its port stays reserved until the process exits.
type Process struct {
	cmd         *exec.Cmd
	port        int
	baseURL     string
	output      *procout.Buffer
	stdout      *procout.Writer
	stderr      *procout.Writer
	reservation *ports.Reservation
	grace       time.Duration
	log         logger.Logger

	exited  chan struct{}
	waitErr error

	stopOnce sync.Once
	stopErr  error
}

// startProcess starts cmd and begins waiting on it in the background.
func startProcess(cmd *exec.Cmd, res *ports.Reservation, baseURL string, output *procout.Buffer, stdout, stderr *procout.Writer, grace time.Duration, log logger.Logger) (*Process, error) {
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &Process{
		cmd:         cmd,
		port:        res.Port(),
		baseURL:     baseURL,
		output:      output,
		stdout:      stdout,
		stderr:      stderr,
		reservation: res,
		grace:       grace,
		log:         log,
		exited:      make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.stdout.Flush()
	p.stderr.Flush()
	p.waitErr = err
	p.reservation.Release()
	p.log.Debug().Int("pid", p.PID()).Int("port", p.port).Err(err).Msg("process exited")
	close(p.exited)
}

// Port returns the TCP port the process was told to listen on.
func (p *Process) Port() int { return p.port }

// BaseURL returns the root URL of the instance, without a trailing slash.
func (p *Process) BaseURL() string { return p.baseURL }

// PID returns the operating system process id.
func (p *Process) PID() int { return p.cmd.Process.Pid }

// Output returns the most recent lines the process wrote.
func (p *Process) Output() string { return p.output.String() }

// Exited is closed once the process has exited and its output is drained.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// ExitErr returns the result of waiting on the process. Only meaningful after Exited is closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.exited:
		return p.waitErr
	default:
		return nil
	}
}

// ExitCode returns the exit code once the process has exited, or -1.
func (p *Process) ExitCode() int {
	select {
	case <-p.exited:
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// Stop asks the process to exit, waits up to the grace period, then kills it.
// It returns once the process is gone. Safe to call more than once.
func (p *Process) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { p.stopErr = p.stop(ctx, p.grace) })
	return p.stopErr
}

// kill stops the process without a grace period.
func (p *Process) kill() {
	p.stopOnce.Do(func() { p.stopErr = p.stop(context.Background(), 0) })
}

func (p *Process) stop(ctx context.Context, grace time.Duration) error {
	select {
	case <-p.exited:
		return nil
	default:
	}

	pid := p.PID()
	if grace > 0 {
		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			// Interrupt is not deliverable on every platform; fall through to Kill.
			p.log.Debug().Err(err).Int("pid", pid).Msg("interrupt failed")
			grace = 0
		}
	}

	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-p.exited:
			p.log.Debug().Int("pid", pid).Msg("process exited after interrupt")
			return nil
		case <-timer.C:
			p.log.Warn().Int("pid", pid).Dur("grace", grace).Msg("process did not exit gracefully, killing")
		case <-ctx.Done():
			p.log.Warn().Int("pid", pid).Msg("stop canceled, killing")
		}
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("killing process %d: %w", pid, err)
	}
	<-p.exited
	return nil
}
