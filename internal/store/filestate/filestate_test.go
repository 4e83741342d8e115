package filestate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/redoracle/tgsentinel/internal/store"
)

func TestSetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule_state.json")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	want := store.ScheduleState{ProfileID: "eng-urgent", Schedule: "hourly", LastRunAt: time.Now().Truncate(time.Second), Status: "ok"}
	if err := s.Set(ctx, want); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := s.Get(ctx, "eng-urgent", "hourly")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Status != "ok" {
		t.Fatalf("expected persisted state, got %+v", got)
	}
}

func TestReopenSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule_state.json")
	ctx := context.Background()

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s1.Set(ctx, store.ScheduleState{ProfileID: "p1", Schedule: "daily", Status: "ok"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := s2.Get(ctx, "p1", "daily")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatalf("expected state to survive reopen")
	}
}

func TestGetMissingReturnsNilNotError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "schedule_state.json"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := s.Get(context.Background(), "missing", "hourly")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing cursor, got %+v", got)
	}
}
