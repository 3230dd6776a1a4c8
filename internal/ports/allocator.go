// Package ports hands out local TCP ports to launched instances. The port
// namespace is shared with every other process on the host, so a reservation
// combines an in-process table, an optional cross-process advisory lock and
// a bind probe.
package ports

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/gofrs/flock"

	"github.com/schmitthub/stencil/internal/config"
	"github.com/schmitthub/stencil/internal/logger"
)

// ErrExhausted is returned when every port in the range is taken.
var ErrExhausted = errors.New("no available ports")

// Allocator reserves ports from [min, max].
type Allocator struct {
	mu        sync.Mutex
	minPort   int
	maxPort   int
	next      int
	probeHost string
	lockDir   string
	allocated map[int]*flock.Flock
	log       logger.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLockDir enables cross-process exclusion through lock files in dir.
func WithLockDir(dir string) Option {
	return func(a *Allocator) { a.lockDir = dir }
}

// WithProbeHost sets the address the bind probe listens on.
func WithProbeHost(host string) Option {
	return func(a *Allocator) { a.probeHost = host }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *Allocator) { a.log = l }
}

// NewAllocator creates an allocator for the inclusive range [minPort, maxPort].
// The scan starts at a random offset so independent processes rarely contend.
func NewAllocator(minPort, maxPort int, opts ...Option) (*Allocator, error) {
	if minPort <= 0 || maxPort > 65535 || minPort > maxPort {
		return nil, fmt.Errorf("invalid port range: min %d, max %d", minPort, maxPort)
	}
	a := &Allocator{
		minPort:   minPort,
		maxPort:   maxPort,
		next:      minPort + rand.IntN(maxPort-minPort+1),
		probeHost: "127.0.0.1",
		allocated: make(map[int]*flock.Flock),
		log:       logger.Global(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.lockDir != "" {
		if err := os.MkdirAll(a.lockDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating port lock directory: %w", err)
		}
	}
	return a, nil
}

// Reservation is a port held for one launch attempt. Release it when the
// process using the port has exited or the attempt failed.
type Reservation struct {
	a    *Allocator
	port int
	once sync.Once
}

// Port returns the reserved port.
func (r *Reservation) Port() int { return r.port }

// Release returns the port to the allocator. Safe to call more than once.
func (r *Reservation) Release() {
	r.once.Do(func() { r.a.release(r.port) })
}

// Reserve finds a free port, marks it allocated and returns the reservation.
func (a *Allocator) Reserve() (*Reservation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	size := a.maxPort - a.minPort + 1
	for i := 0; i < size; i++ {
		port := a.next
		a.next++
		if a.next > a.maxPort {
			a.next = a.minPort
		}

		if _, taken := a.allocated[port]; taken {
			continue
		}

		lock, ok := a.lockPort(port)
		if !ok {
			continue
		}

		if !a.probe(port) {
			if lock != nil {
				_ = lock.Unlock()
			}
			continue
		}

		a.allocated[port] = lock
		a.log.Debug().Int("port", port).Msg("reserved port")
		return &Reservation{a: a, port: port}, nil
	}
	return nil, fmt.Errorf("%w in range [%d-%d]", ErrExhausted, a.minPort, a.maxPort)
}

// lockPort takes the cross-process lock for port. A nil lock with ok=true
// means cross-process locking is disabled.
func (a *Allocator) lockPort(port int) (*flock.Flock, bool) {
	if a.lockDir == "" {
		return nil, true
	}
	fl := flock.New(filepath.Join(a.lockDir, "port-"+strconv.Itoa(port)+".lock"))
	locked, err := fl.TryLock()
	if err != nil {
		a.log.Debug().Err(err).Int("port", port).Msg("port lock failed")
		return nil, false
	}
	if !locked {
		return nil, false
	}
	return fl, true
}

// probe checks the port can actually be bound right now.
func (a *Allocator) probe(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(a.probeHost, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

func (a *Allocator) release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	lock, ok := a.allocated[port]
	if !ok {
		return
	}
	if lock != nil {
		_ = lock.Unlock()
	}
	delete(a.allocated, port)
	a.log.Debug().Int("port", port).Msg("released port")
}

// InUse returns how many ports are currently reserved.
func (a *Allocator) InUse() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.allocated)
}

var (
	sharedMu sync.Mutex
	shared   *Allocator
)

// Shared returns the process-wide allocator, creating it from settings on first use.
// Every instance in a process must draw from the same table for ports to stay distinct.
func Shared(s *config.Settings) (*Allocator, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared, nil
	}
	lockDir, err := s.ResolvedLockDir()
	if err != nil {
		return nil, err
	}
	a, err := NewAllocator(s.Ports.Min, s.Ports.Max, WithLockDir(lockDir))
	if err != nil {
		return nil, err
	}
	shared = a
	return a, nil
}
