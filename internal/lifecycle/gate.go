// Package lifecycle holds the process-wide integration gate the engine
// components consult before any server round-trip or tracking call.
package lifecycle

import (
	"sync"
)

// Gate models the stop state of the SDK session. Stop is terminal for
// the session; only a fresh configure (Reset) restarts it. Guarded
// operations short-circuit to no-ops while stopped.
type Gate struct {
	mu      sync.RWMutex
	stopped bool
}

// NewGate creates a running gate.
func NewGate() *Gate {
	return &Gate{}
}

// Stop marks the session stopped.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
}

// Stopped reports the current state.
func (g *Gate) Stopped() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stopped
}

// Reset clears the stop state, used by a fresh configure.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = false
}
