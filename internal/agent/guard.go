package agent

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyActive is returned by Start when another profiler holds the guard.
var ErrAlreadyActive = errors.New("another profiler is already active")

// Guard allows at most one active profiler among those sharing it. Profilers
// that should exclude each other must be given the same Guard.
type Guard struct {
	mu     sync.Mutex
	active *Profiler
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Active returns the profiler currently holding the guard, if any.
func (g *Guard) Active() *Profiler {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// acquire runs start and makes p the active profiler when it succeeds. The
// guard stays locked while start runs.
func (g *Guard) acquire(p *Profiler, start func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != nil && g.active != p {
		return ErrAlreadyActive
	}
	if err := start(); err != nil {
		return err
	}
	g.active = p
	return nil
}

// release runs stop if p is the active profiler and clears the guard.
func (g *Guard) release(p *Profiler, stop func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != p {
		return
	}
	stop()
	g.active = nil
}

// Handle is the ownership token returned by a successful Start.
type Handle struct {
	profiler *Profiler
}

// Profiler returns the profiler the handle owns.
func (h *Handle) Profiler() *Profiler {
	return h.profiler
}

// Stop stops the owned profiler and flushes its profile.
func (h *Handle) Stop(ctx context.Context) bool {
	return h.profiler.Stop(ctx)
}
