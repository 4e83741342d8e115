package worker

import (
	"context"
	"testing"
	"time"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/store"
)

type countingDispatcher struct {
	dispatched int
}

func (d *countingDispatcher) DispatchAlert(context.Context, store.StoredMessage, config.DeliveryMode, string) error {
	d.dispatched++
	return nil
}

func TestRateLimitedDispatcherThrottlesPerChat(t *testing.T) {
	inner := &countingDispatcher{}
	d := NewRateLimitedDispatcher(inner, config.AlertRateLimitConfig{EventsPerSecond: 1, Burst: 2})

	msg := store.StoredMessage{ChatID: -100, MsgID: 1}
	for i := 0; i < 2; i++ {
		if err := d.DispatchAlert(context.Background(), msg, config.ModeDM, ""); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if inner.dispatched != 2 {
		t.Fatalf("expected the burst of 2 to pass through, got %d", inner.dispatched)
	}

	if err := d.DispatchAlert(context.Background(), msg, config.ModeDM, ""); err != nil {
		t.Fatalf("throttled dispatch should not error: %v", err)
	}
	if inner.dispatched != 2 {
		t.Fatalf("expected the 3rd dispatch within the same chat to be dropped, got %d dispatched", inner.dispatched)
	}
}

func TestRateLimitedDispatcherIsolatesChats(t *testing.T) {
	inner := &countingDispatcher{}
	d := NewRateLimitedDispatcher(inner, config.AlertRateLimitConfig{EventsPerSecond: 1, Burst: 1})

	if err := d.DispatchAlert(context.Background(), store.StoredMessage{ChatID: 1}, config.ModeDM, ""); err != nil {
		t.Fatalf("chat 1 dispatch: %v", err)
	}
	if err := d.DispatchAlert(context.Background(), store.StoredMessage{ChatID: 1}, config.ModeDM, ""); err != nil {
		t.Fatalf("chat 1 throttled dispatch should not error: %v", err)
	}
	if err := d.DispatchAlert(context.Background(), store.StoredMessage{ChatID: 2}, config.ModeDM, ""); err != nil {
		t.Fatalf("chat 2 dispatch: %v", err)
	}
	if inner.dispatched != 2 {
		t.Fatalf("expected chat 2's independent bucket to allow its first dispatch, got %d", inner.dispatched)
	}
}

func TestRateLimitedDispatcherCleanupStale(t *testing.T) {
	inner := &countingDispatcher{}
	d := NewRateLimitedDispatcher(inner, config.AlertRateLimitConfig{EventsPerSecond: 1, Burst: 1})

	d.limiterFor(42)
	d.mu.Lock()
	n := len(d.limiters)
	d.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected 1 limiter, got %d", n)
	}

	d.cleanupStale(0)

	d.mu.Lock()
	n = len(d.limiters)
	d.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected 0 limiters after cleanup, got %d", n)
	}
}

func TestRateLimitedDispatcherRunCleanupStopsOnContextCancel(t *testing.T) {
	inner := &countingDispatcher{}
	d := NewRateLimitedDispatcher(inner, config.AlertRateLimitConfig{EventsPerSecond: 1, Burst: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.RunCleanup(ctx, time.Millisecond, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected RunCleanup to return nil on cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not stop after context cancellation")
	}
}
