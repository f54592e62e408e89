package presentation

import (
	"context"
	"sync"
)

// Gate is a one-shot readiness latch: it opens once and stays open.
// Used for the "configuration loaded" signal.
type Gate struct {
	mu     sync.Mutex
	opened bool
	ch     chan struct{}
}

func NewGate() *Gate {
	return &Gate{ch: make(chan struct{})}
}

// Open latches the gate. Idempotent.
func (g *Gate) Open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.opened {
		return
	}
	g.opened = true
	close(g.ch)
}

func (g *Gate) Opened() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opened
}

// Wait suspends until the gate opens or the context is done.
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
