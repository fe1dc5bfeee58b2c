package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGate_CapsConcurrency(t *testing.T) {
	gate := NewGate(3)

	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = gate.Do(context.Background(), func(ctx context.Context) error {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("expected at most 3 concurrent holders, saw %d", peak)
	}
}

func TestGate_ReleasesOnError(t *testing.T) {
	gate := NewGate(1)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := gate.Do(context.Background(), func(ctx context.Context) error { return boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}
}

func TestGate_ReleasesOnPanic(t *testing.T) {
	gate := NewGate(1)

	func() {
		defer func() { _ = recover() }()
		_ = gate.Do(context.Background(), func(ctx context.Context) error { panic("fetch exploded") })
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := gate.Do(ctx, func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("slot leaked after panic: %v", err)
	}
}

func TestGate_AcquireHonorsContext(t *testing.T) {
	gate := NewGate(1)
	hold := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = gate.Do(context.Background(), func(ctx context.Context) error {
			close(held)
			<-hold
			return nil
		})
	}()
	<-held
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := gate.Do(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if called {
		t.Error("fn must not run without a slot")
	}
}

func TestNewGate_DefaultSize(t *testing.T) {
	if got := NewGate(0).Size(); got != 1 {
		t.Errorf("expected size 1, got %d", got)
	}
}
