package txmanager

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Gate serializes every ledger RPC call, reads and writes alike, and caps the call rate.
type Gate struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewGate creates a gate allowing at most callsPerSecond calls; zero means unlimited.
func NewGate(callsPerSecond float64) *Gate {
	limit := rate.Inf
	if callsPerSecond > 0 {
		limit = rate.Limit(callsPerSecond)
	}
	return &Gate{limiter: rate.NewLimiter(limit, 1)}
}

// Do runs fn while holding the gate.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}

// Call runs fn while holding g and returns its value.
func Call[T any](ctx context.Context, g *Gate, fn func() (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
