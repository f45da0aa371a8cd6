package testutil

import (
	"fmt"
	"sync"
)

// SequentialRequestIDs generates request IDs of the form "<prefix>-<n>".
//
// The first call to Generate returns "<prefix>-1". Reset rewinds the counter
// so the same scenario can run again with identical IDs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialRequestIDs struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSequentialRequestIDs creates a generator. An empty prefix becomes "req".
func NewSequentialRequestIDs(prefix string) *SequentialRequestIDs {
	if prefix == "" {
		prefix = "req"
	}
	return &SequentialRequestIDs{prefix: prefix}
}

// Generate returns the next request ID.
func (g *SequentialRequestIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Issued returns how many IDs have been generated since the last Reset.
func (g *SequentialRequestIDs) Issued() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset rewinds the counter to 0.
func (g *SequentialRequestIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
