// Package gate provides resettable one-shot synchronization gates.
//
// A Gate blocks waiters until it is opened. Once open it stays open until
// Reset is called. Every wait is bounded: either by the caller's context or,
// when the context has no deadline, by the gate's default timeout.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultTimeout bounds waits whose context carries no deadline.
const DefaultTimeout = 10 * time.Second

// TimeoutError is returned when a gate did not open in time.
type TimeoutError struct {
	Gate    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("gate %q did not open within %s", e.Gate, e.Timeout)
}

// Is matches context.DeadlineExceeded.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// Gate is a resettable one-shot gate. The zero value is not usable; use New.
type Gate struct {
	name    string
	timeout time.Duration

	mu   sync.Mutex
	ch   chan struct{}
	open bool
}

// New creates a closed gate.
func New(name string) *Gate {
	return &Gate{
		name:    name,
		timeout: DefaultTimeout,
		ch:      make(chan struct{}),
	}
}

// WithTimeout overrides the default wait bound.
func (g *Gate) WithTimeout(d time.Duration) *Gate {
	g.mu.Lock()
	g.timeout = d
	g.mu.Unlock()
	return g
}

// Name returns the gate name.
func (g *Gate) Name() string {
	return g.name
}

// Open releases all current and future waiters. Opening an open gate is a no-op.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return
	}
	g.open = true
	close(g.ch)
}

// Reset closes the gate again so future waiters block.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.open {
		return
	}
	g.open = false
	g.ch = make(chan struct{})
}

// IsOpen reports whether the gate is currently open.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Wait blocks until the gate opens, the context ends, or the timeout elapses.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	timeout := g.timeout
	g.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return &TimeoutError{Gate: g.name, Timeout: timeout}
		}
		return ctx.Err()
	}
}
