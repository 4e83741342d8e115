package lifecycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestGateWaitUnblocksOnSet(t *testing.T) {
	g := NewGate()
	done := make(chan error, 1)
	go func() {
		done <- g.Wait(context.Background())
	}()

	select {
	case <-done:
		t.Fatal("expected Wait to block before Set")
	case <-time.After(20 * time.Millisecond):
	}

	g.Set()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected Wait to return nil after Set, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected Wait to unblock after Set")
	}
}

func TestGateWaitRespectsContextCancellation(t *testing.T) {
	g := NewGate()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); err == nil {
		t.Errorf("expected Wait to return an error when context is cancelled before Set")
	}
}

func TestGateClearReblocksNewWaiters(t *testing.T) {
	g := NewGate()
	g.Set()
	if !g.IsSet() {
		t.Fatal("expected gate to be set")
	}
	g.Clear()
	if g.IsSet() {
		t.Fatal("expected gate to be cleared")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := g.Wait(ctx); err == nil {
		t.Errorf("expected Wait to block again after Clear")
	}
}

// TestGenerationIsolationDiscardsStaleWrites covers spec.md's "Generation
// isolation" testable property: a token captured before the generation
// advances must have its writes discarded, not silently delivered.
func TestGenerationIsolationDiscardsStaleWrites(t *testing.T) {
	ctl := &Controller{}
	token := ctl.Capture()
	if !token.Valid() {
		t.Fatal("expected freshly captured token to be valid")
	}

	atomic.AddInt64(&ctl.generation, 1) // simulates a re-auth bumping the generation

	if token.Valid() {
		t.Fatal("expected token to be invalid after generation advanced")
	}

	var wrote bool
	err := token.Guard(func() error {
		wrote = true
		return nil
	})
	if err != ErrStaleGeneration {
		t.Errorf("expected ErrStaleGeneration, got %v", err)
	}
	if wrote {
		t.Errorf("expected Guard to discard the write before it ran")
	}

	fresh := ctl.Capture()
	wrote = false
	if err := fresh.Guard(func() error { wrote = true; return nil }); err != nil {
		t.Errorf("expected current-generation token to run its write, got %v", err)
	}
	if !wrote {
		t.Errorf("expected Guard to run the write for a current token")
	}
}
