// Package filestate implements store.ScheduleStateStore as a single JSON
// document persisted atomically (temp-file + rename + fsync), per spec.md's
// "ScheduleState... persisted atomically (temp-file + rename, fsync)" — this
// is process-local cursor state, not an audit trail, so it does not belong
// in Postgres alongside the audited tables.
package filestate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redoracle/tgsentinel/internal/store"
)

type key struct {
	ProfileID string `json:"profile_id"`
	Schedule  string `json:"schedule"`
}

// Store is an in-memory map of schedule cursors, mirrored to disk on every
// write via writeAtomic.
type Store struct {
	path string

	mu     sync.Mutex
	states map[key]store.ScheduleState
}

// Open loads path if it exists, or starts with an empty state document.
func Open(path string) (*Store, error) {
	s := &Store{path: path, states: make(map[key]store.ScheduleState)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read schedule state %s: %w", path, err)
	}

	var entries []store.ScheduleState
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse schedule state %s: %w", path, err)
	}
	for _, e := range entries {
		s.states[key{e.ProfileID, e.Schedule}] = e
	}
	return s, nil
}

func (s *Store) Get(_ context.Context, profileID, schedule string) (*store.ScheduleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[key{profileID, schedule}]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// Set mutates the cursor under lock and atomically persists the whole
// document, matching spec.md's "every mutation triggers atomic persistence."
func (s *Store) Set(_ context.Context, st store.ScheduleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key{st.ProfileID, st.Schedule}] = st
	return s.persistLocked()
}

func (s *Store) All(_ context.Context) ([]store.ScheduleState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.ScheduleState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) persistLocked() error {
	entries := make([]store.ScheduleState, 0, len(s.states))
	for _, st := range s.states {
		entries = append(entries, st)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schedule state: %w", err)
	}
	return writeAtomic(s.path, data)
}

// writeAtomic writes data to a temp file in the same directory, fsyncs it,
// then renames over path — a rename within one filesystem is atomic, so
// readers never observe a partially-written document.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
