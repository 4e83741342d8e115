package lifecycle

import (
	"context"
	"sync"
)

// Gate is a level-triggered shared signal (spec.md §4.9/§5): Set/Clear flip
// the level, and any number of goroutines can Wait on the current level at
// once. Unlike a plain bool, Wait unblocks the instant Set is called even if
// the waiter arrived first — the classic "broadcast close" idiom.
type Gate struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Set raises the gate, waking every current and future Wait call until the
// next Clear.
func (g *Gate) Set() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.set {
		g.set = true
		close(g.ch)
	}
}

// Clear lowers the gate. Callers that already observed the raised level are
// unaffected; new Wait calls block again.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.set {
		g.set = false
		g.ch = make(chan struct{})
	}
}

func (g *Gate) IsSet() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.set
}

// Wait blocks until the gate is raised or ctx is cancelled.
func (g *Gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
