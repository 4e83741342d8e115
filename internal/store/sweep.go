package store

import (
	"context"
	"log/slog"
	"time"
)

// Vacuumer reclaims space after a sweep. It must run outside any
// transaction (spec.md §4.3), so it is kept separate from MessageStore's
// transactional methods and supplied by the caller, which owns the raw
// database handle.
type Vacuumer interface {
	Vacuum(ctx context.Context) error
}

// RetentionConfig is the sweep's tunable knobs, mirrored from
// internal/config.RetentionConfig to keep this package independent of the
// config package's YAML tags.
type RetentionConfig struct {
	RetentionDays   int
	AlertMultiplier float64
	MaxMessages     int
	SweepInterval   time.Duration
	VacuumInterval  time.Duration
}

// Sweeper runs the retention sweep (spec.md §4.3) and periodic VACUUM on
// their own tickers until its context is cancelled.
type Sweeper struct {
	Messages MessageStore
	Vacuum   Vacuumer // optional; nil skips the VACUUM tick entirely
	Config   func() RetentionConfig
}

// Run ticks the sweep and vacuum loops until ctx is cancelled. Both
// intervals default to sane values if the config func ever returns zero,
// so a misconfigured deployment still sweeps rather than spinning.
func (s *Sweeper) Run(ctx context.Context) error {
	cfg := s.Config()
	sweepEvery := cfg.SweepInterval
	if sweepEvery <= 0 {
		sweepEvery = time.Hour
	}
	vacuumEvery := cfg.VacuumInterval
	if vacuumEvery <= 0 {
		vacuumEvery = 24 * time.Hour
	}

	sweepTicker := time.NewTicker(sweepEvery)
	defer sweepTicker.Stop()
	vacuumTicker := time.NewTicker(vacuumEvery)
	defer vacuumTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-sweepTicker.C:
			s.sweep(ctx, now)
		case <-vacuumTicker.C:
			s.vacuum(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context, now time.Time) {
	cfg := s.Config()
	days := cfg.RetentionDays
	if days <= 0 {
		days = 30
	}
	multiplier := cfg.AlertMultiplier
	if multiplier <= 0 {
		multiplier = 2
	}

	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	alertedCutoff := now.Add(-time.Duration(float64(days)*multiplier) * 24 * time.Hour)

	removed, err := s.Messages.PurgeRetention(ctx, cutoff, alertedCutoff, cfg.MaxMessages)
	if err != nil {
		slog.Error("store: retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("store: retention sweep", "removed", removed, "cutoff", cutoff, "alerted_cutoff", alertedCutoff)
	}
}

func (s *Sweeper) vacuum(ctx context.Context) {
	if s.Vacuum == nil {
		return
	}
	if err := s.Vacuum.Vacuum(ctx); err != nil {
		slog.Error("store: vacuum failed", "error", err)
	}
}
