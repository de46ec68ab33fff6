package core

import (
	"fmt"
	"sync"
)

// Gate coordinates one dependent job with the jobs it depends on. It opens
// once every dependency has signalled, or aborts as soon as one dependency
// ends without completing. A gate is created per dependent and never shared
// between unrelated jobs.
type Gate struct {
	dependent string

	mu      sync.Mutex
	waiting map[*Job]struct{}
	done    chan struct{}
	closed  bool
	err     error
}

// NewGate creates a gate for the named dependent and registers it with each
// dependency so that their completion is reported to it.
func NewGate(dependent string, deps []*Job) *Gate {
	g := &Gate{
		dependent: dependent,
		waiting:   make(map[*Job]struct{}, len(deps)),
		done:      make(chan struct{}),
	}
	for _, dep := range deps {
		g.waiting[dep] = struct{}{}
	}
	for _, dep := range deps {
		dep.addGate(g)
	}
	if len(g.waiting) == 0 {
		g.closeLocked(nil)
	}
	return g
}

// Dependent returns the name of the job waiting on the gate.
func (g *Gate) Dependent() string { return g.dependent }

// Done is closed when the gate opens or aborts.
func (g *Gate) Done() <-chan struct{} { return g.done }

// Err returns nil if the gate opened, or the reason it aborted.
// It is meaningful only after Done is closed.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Pending returns how many dependencies have not signalled yet.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.waiting)
}

// Signal records that dep has finished. Signalling twice, or after the gate
// closed, has no effect.
func (g *Gate) Signal(dep *Job) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	delete(g.waiting, dep)
	if len(g.waiting) == 0 {
		g.closeLocked(nil)
	}
}

// Abort closes the gate with an error because dep will never complete.
func (g *Gate) Abort(dep *Job, cause error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	if _, ok := g.waiting[dep]; !ok {
		return
	}
	g.closeLocked(fmt.Errorf("%w: %s: %w", ErrDependencyFailed, dep.Name(), cause))
}

func (g *Gate) closeLocked(err error) {
	g.closed = true
	g.err = err
	close(g.done)
}
