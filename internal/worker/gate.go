package worker

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate caps the number of outbound fetches in flight across the whole process.
// Waiters are admitted in FIFO order, so one large request cannot starve another.
type Gate struct {
	sem  *semaphore.Weighted
	size int64
}

// NewGate creates a gate admitting at most size concurrent holders
func NewGate(size int) *Gate {
	if size <= 0 {
		size = 1
	}
	return &Gate{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Do runs fn while holding one slot. The slot is released on every return path, including panics.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer g.sem.Release(1)
	return fn(ctx)
}

// Size returns the configured capacity
func (g *Gate) Size() int {
	return int(g.size)
}
