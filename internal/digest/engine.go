// Package digest implements C8: a scheduler, discovery walk, collector,
// aggregation, formatter, and delivery for periodic digest bundles.
package digest

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/coord"
	"github.com/redoracle/tgsentinel/internal/digest/format"
	"github.com/redoracle/tgsentinel/internal/metrics"
	"github.com/redoracle/tgsentinel/internal/platform"
	"github.com/redoracle/tgsentinel/internal/store"
)

// boundSchedules excludes config.ScheduleNone — it never fires a run.
var boundSchedules = []config.Schedule{
	config.ScheduleHourly, config.ScheduleEvery4h, config.ScheduleEvery6h,
	config.ScheduleEvery12h, config.ScheduleDaily, config.ScheduleWeekly,
}

// Engine is the single long-running digest coordinator (spec.md §4.8: "a
// single long-running coordinator plus stateless helpers" — Scheduler,
// Discover, Collect, and Aggregate are the stateless helpers this wraps).
type Engine struct {
	Config    *config.Store
	Messages  store.MessageStore
	Schedules store.ScheduleStateStore
	Coord     *coord.Store
	Client    platform.ChatClient
	Metrics   *metrics.Metrics // optional; nil disables counters/tracing

	TickInterval time.Duration // how often Run checks for due cadences

	scheduler *Scheduler
}

// Run ticks until ctx is cancelled. On first entry, if the schedule state
// store is empty, it bootstraps by running every enabled cadence once
// immediately (spec.md §4.8's "Bootstrap").
func (e *Engine) Run(ctx context.Context) error {
	if e.TickInterval <= 0 {
		e.TickInterval = 30 * time.Second
	}
	e.scheduler = NewScheduler()

	if err := e.bootstrapIfEmpty(ctx); err != nil {
		slog.Warn("digest: bootstrap failed, continuing with normal ticking", "error", err)
	}

	ticker := time.NewTicker(e.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

func (e *Engine) bootstrapIfEmpty(ctx context.Context) error {
	states, err := e.Schedules.All(ctx)
	if err != nil {
		return err
	}
	if len(states) > 0 {
		return nil
	}
	slog.Info("digest: empty scheduler state, bootstrapping every enabled cadence once")
	for _, sc := range boundSchedules {
		e.runSchedule(ctx, sc)
	}
	return nil
}

func (e *Engine) tick(ctx context.Context, now time.Time) {
	cfg := e.Config.Current()
	for _, sc := range boundSchedules {
		groups := Discover(cfg, sc)
		if len(groups) == 0 {
			continue
		}
		dailyHour, weeklyDay, weeklyHour := ResolveAnchors(groups)
		lastRun := e.lastRunFor(ctx, sc)

		if !e.scheduler.Due(now, sc, dailyHour, weeklyDay, weeklyHour, lastRun) {
			continue
		}
		e.runSchedule(ctx, sc)
	}
}

func (e *Engine) lastRunFor(ctx context.Context, sc config.Schedule) time.Time {
	if at, ok, err := e.Coord.DigestLastRun(ctx, string(sc)); err == nil && ok {
		return at
	}
	st, err := e.Schedules.Get(ctx, "*", string(sc))
	if err != nil || st == nil {
		return time.Time{}
	}
	return st.LastRunAt
}

// runSchedule executes one cadence's full discover -> collect -> aggregate
// -> render -> deliver -> audit sequence, marking last_run exactly once
// regardless of outcome (spec.md: "a second due-check within the same
// window must return false").
func (e *Engine) runSchedule(ctx context.Context, sc config.Schedule) {
	now := time.Now().UTC()
	cfg := e.Config.Current()

	var span trace.Span
	var runErr error
	if e.Metrics != nil {
		ctx, span = metrics.StartDigestSpan(ctx, string(sc), auditProfileID(nil))
		defer func() {
			metrics.FinishSpan(span, runErr)
			e.Metrics.DigestRun(ctx, string(sc))
		}()
	}

	defer e.markRun(ctx, sc, now)

	groups := Discover(cfg, sc)
	if len(groups) == 0 {
		return
	}

	agg := Aggregate(groups, cfg.AlertChannel)
	vip := vipChecker(cfg, agg.ProfileIDs)

	entries, err := Collect(ctx, e.Messages, sc, agg.MinScore, agg.TopN, vip)
	if err != nil {
		slog.Error("digest: collect failed", "schedule", sc, "error", err)
		e.audit(ctx, sc, agg, now, 0, coord.ExecutionFailed, err)
		runErr = err
		return
	}
	if len(entries) == 0 {
		e.audit(ctx, sc, agg, now, 0, coord.ExecutionSuccess, nil)
		return
	}

	header := format.Header{
		Schedule:    string(sc),
		ProfileName: groupLabel(groups),
		EntryCount:  len(entries),
		WindowStart: now.Add(-windowFor(sc)),
		WindowEnd:   now,
	}
	body := format.Render(header, entries)

	if err := Deliver(ctx, e.Client, agg.Mode, agg.Target, body); err != nil {
		slog.Error("digest: delivery failed", "schedule", sc, "target", agg.Target, "error", err)
		e.audit(ctx, sc, agg, now, len(entries), coord.ExecutionFailed, err)
		runErr = err
		return
	}

	if err := e.markProcessed(ctx, entries); err != nil {
		slog.Error("digest: mark processed failed", "schedule", sc, "error", err)
		e.audit(ctx, sc, agg, now, len(entries), coord.ExecutionPartial, err)
		runErr = err
		return
	}

	e.audit(ctx, sc, agg, now, len(entries), coord.ExecutionSuccess, nil)
}

func (e *Engine) markProcessed(ctx context.Context, entries []format.Entry) error {
	chatIDs := make([]int64, len(entries))
	msgIDs := make([]int64, len(entries))
	for i, en := range entries {
		chatIDs[i] = en.ChatID
		msgIDs[i] = en.MsgID
	}
	return e.Messages.MarkDigestProcessed(ctx, chatIDs, msgIDs)
}

func (e *Engine) markRun(ctx context.Context, sc config.Schedule, at time.Time) {
	if err := e.Schedules.Set(ctx, store.ScheduleState{ProfileID: "*", Schedule: string(sc), LastRunAt: at, Status: "ok"}); err != nil {
		slog.Error("digest: persist schedule state failed", "schedule", sc, "error", err)
	}
	if err := e.Coord.SetDigestLastRun(ctx, string(sc), at); err != nil {
		slog.Error("digest: publish last_run to coordination store failed", "schedule", sc, "error", err)
	}
}

func (e *Engine) audit(ctx context.Context, sc config.Schedule, agg Aggregated, startedAt time.Time, messageCount int, status coord.DigestExecutionStatus, runErr error) {
	exec := coord.DigestExecution{
		ProfileID:  auditProfileID(agg.ProfileIDs),
		Schedule:   string(sc),
		Mode:       string(agg.Mode),
		Target:     agg.Target,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
		Status:     status,
		MessageIDs: messageCount,
		RanAt:      startedAt,
		Delivered:  status == coord.ExecutionSuccess,
	}
	if runErr != nil {
		exec.Error = runErr.Error()
	}
	if err := e.Coord.RecordDigestExecution(ctx, exec); err != nil {
		slog.Error("digest: record execution audit failed", "schedule", sc, "error", err)
	}
}

func auditProfileID(ids []string) string {
	if len(ids) == 0 {
		return "*"
	}
	if len(ids) == 1 {
		return ids[0]
	}
	return ids[0] + "+" // multi-profile group; first ID stands in for the audit key
}

func groupLabel(groups []Group) string {
	if len(groups) == 1 {
		return groups[0].EntityName
	}
	names := make(map[string]struct{}, len(groups))
	label := ""
	for _, g := range groups {
		if _, ok := names[g.EntityName]; ok {
			continue
		}
		names[g.EntityName] = struct{}{}
		if label != "" {
			label += ", "
		}
		label += g.EntityName
	}
	return label
}

// vipChecker returns a predicate over the VIP sender lists of every
// contributing profile, used to flag VIP senders in the rendered digest.
func vipChecker(cfg *config.Config, profileIDs []string) func(int64) bool {
	vip := make(map[int64]struct{})
	for _, id := range profileIDs {
		p, ok := cfg.Profiles[id]
		if !ok {
			continue
		}
		for _, u := range p.VIPSenders {
			vip[u] = struct{}{}
		}
	}
	return func(senderID int64) bool {
		_, ok := vip[senderID]
		return ok
	}
}
