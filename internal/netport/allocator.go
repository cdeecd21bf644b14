// ABOUTME: TCP port acquisition for the gateway's listening socket.
// ABOUTME: Leases track bind/release lifecycle so ports are provably returned to the OS.

package netport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrPortConflict indicates no free port was found within the probe budget.
var ErrPortConflict = errors.New("no free port available")

// ErrLeaseReleased indicates the lease was already released.
var ErrLeaseReleased = errors.New("port lease already released")

// DefaultProbes is the number of bind attempts before giving up.
const DefaultProbes = 10

// Lease represents a bound local TCP port. A lease is Active from Acquire
// until Release; Release is effective exactly once.
type Lease struct {
	ID      string
	Port    int
	BoundAt time.Time

	mu         sync.Mutex
	listener   net.Listener
	releasedAt time.Time
}

// Listener returns the bound listener, or nil after release.
func (l *Lease) Listener() net.Listener {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listener
}

// Released reports whether the lease has been released, and when.
func (l *Lease) Released() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releasedAt, !l.releasedAt.IsZero()
}

// Release closes the bound socket and marks the lease released.
// After Release returns, the port is bindable by any other listener.
// A second Release returns ErrLeaseReleased without side effects.
func (l *Lease) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.releasedAt.IsZero() {
		return ErrLeaseReleased
	}
	l.releasedAt = time.Now().UTC()

	ln := l.listener
	l.listener = nil
	if ln == nil {
		return nil
	}
	// A server that already closed the listener still counts as released.
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing listener on port %d: %w", l.Port, err)
	}
	return nil
}

// Allocator acquires local TCP ports for the gateway.
type Allocator struct {
	host   string
	probes int
	logger *slog.Logger
}

// NewAllocator creates an allocator binding on host (loopback when empty)
// with the given probe budget (DefaultProbes when <= 0).
func NewAllocator(host string, probes int) *Allocator {
	if host == "" {
		host = "127.0.0.1"
	}
	if probes <= 0 {
		probes = DefaultProbes
	}
	return &Allocator{
		host:   host,
		probes: probes,
		logger: slog.Default().With("component", "netport"),
	}
}

// Acquire binds a local TCP port and returns its lease. The preferred port is
// tried first when non-zero; on conflict the range [rangeMin, rangeMax] is
// probed, and when no range is configured the OS picks an arbitrary free port.
// Returns ErrPortConflict once the probe budget is exhausted.
func (a *Allocator) Acquire(preferred, rangeMin, rangeMax int) (*Lease, error) {
	if preferred > 0 {
		if lease, err := a.bind(preferred); err == nil {
			return lease, nil
		} else {
			a.logger.Debug("preferred port unavailable", "port", preferred, "error", err)
		}
	}

	if rangeMin > 0 && rangeMax >= rangeMin {
		port := rangeMin
		for i := 0; i < a.probes && port <= rangeMax; i++ {
			lease, err := a.bind(port)
			if err == nil {
				return lease, nil
			}
			a.logger.Debug("port in range unavailable", "port", port, "error", err)
			port++
		}
		return nil, fmt.Errorf("%w: probed %d-%d", ErrPortConflict, rangeMin, min(rangeMax, rangeMin+a.probes-1))
	}

	// No range configured: let the OS choose.
	var lastErr error
	for i := 0; i < a.probes; i++ {
		lease, err := a.bind(0)
		if err == nil {
			return lease, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrPortConflict, lastErr)
}

// bind attempts to listen on the given port (0 = OS-assigned) and wraps the
// resulting socket in an Active lease.
func (a *Allocator) bind(port int) (*Lease, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", a.host, port))
	if err != nil {
		return nil, err
	}

	bound := ln.Addr().(*net.TCPAddr).Port
	lease := &Lease{
		ID:       uuid.New().String(),
		Port:     bound,
		BoundAt:  time.Now().UTC(),
		listener: ln,
	}
	a.logger.Debug("port bound", "port", bound, "lease_id", lease.ID)
	return lease, nil
}
