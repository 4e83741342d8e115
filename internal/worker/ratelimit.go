package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/redoracle/tgsentinel/internal/config"
	"github.com/redoracle/tgsentinel/internal/store"
)

// chatLimiter tracks one chat's token bucket plus when it was last used,
// so RunCleanup can evict entries for chats that have gone quiet.
type chatLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitedDispatcher wraps an AlertDispatcher with a per-chat token
// bucket (spec.md §4.7 step 8), so a single noisy chat can't flood its
// alert DM/channel target. Modeled on a per-key limiter map keyed by chat
// ID instead of client IP.
type RateLimitedDispatcher struct {
	next  AlertDispatcher
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[int64]*chatLimiter
}

// NewRateLimitedDispatcher wraps next with a token bucket per chat_id.
func NewRateLimitedDispatcher(next AlertDispatcher, cfg config.AlertRateLimitConfig) *RateLimitedDispatcher {
	return &RateLimitedDispatcher{
		next:     next,
		rate:     rate.Limit(cfg.EventsPerSecond),
		burst:    cfg.Burst,
		limiters: make(map[int64]*chatLimiter),
	}
}

func (d *RateLimitedDispatcher) limiterFor(chatID int64) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.limiters[chatID]
	if !ok {
		entry = &chatLimiter{limiter: rate.NewLimiter(d.rate, d.burst)}
		d.limiters[chatID] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter
}

// DispatchAlert drops an alert once its chat's bucket is empty rather than
// blocking or queuing it; the message is still persisted by the caller's
// Upsert, so it still surfaces in the next digest even when the immediate
// alert is dropped.
func (d *RateLimitedDispatcher) DispatchAlert(ctx context.Context, m store.StoredMessage, mode config.DeliveryMode, targetChannel string) error {
	if !d.limiterFor(m.ChatID).Allow() {
		slog.Warn("worker: alert dropped, rate limit exceeded", "chat_id", m.ChatID, "msg_id", m.MsgID)
		return nil
	}
	return d.next.DispatchAlert(ctx, m, mode, targetChannel)
}

// cleanupStale evicts limiters for chats unseen for longer than staleAfter,
// keeping the map bounded across a long-running process.
func (d *RateLimitedDispatcher) cleanupStale(staleAfter time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	for id, entry := range d.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(d.limiters, id)
		}
	}
}

// RunCleanup periodically evicts stale per-chat limiters until ctx is done.
func (d *RateLimitedDispatcher) RunCleanup(ctx context.Context, interval, staleAfter time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.cleanupStale(staleAfter)
		}
	}
}
