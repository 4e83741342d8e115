// Package coord implements the Redis-backed coordination store described
// in spec.md §6.1: generation-scoped caches, digest bookkeeping, the
// re-login handshake, and the session-lifecycle pub/sub channels. Every
// key name lives here so the rest of the codebase never hand-assembles
// `tgsentinel:` strings.
package coord

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cachedChannelsTTL = 15 * time.Minute
	cachedUsersTTL    = 15 * time.Minute
	digestLastRunTTL  = 7 * 24 * time.Hour
	digestLatestTTL   = 7 * 24 * time.Hour
	relayHandshakeTTL = 120 * time.Second
	progressTTL       = 300 * time.Second

	digestExecutionsPerProfileCap = 50
	digestExecutionsHistoryCap    = 500
)

// Pub/sub channel names (spec.md §6.1).
const (
	ChannelSessionUpdated = "tgsentinel:session_updated"
	ChannelConfigUpdated  = "tgsentinel:config_updated"
	ChannelCacheReady     = "tgsentinel:cache_ready_event"
)

// Session lifecycle event kinds published on ChannelSessionUpdated.
const (
	EventSessionAuthorized = "session_authorized"
	EventSessionImported   = "session_imported"
	EventSessionLogout     = "session_logout"
)

// Store wraps a *redis.Client with the coordination key namespace.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func genKey(gen int64, suffix string) string {
	return fmt.Sprintf("tgsentinel:%d:%s", gen, suffix)
}

// --- worker status / identity -------------------------------------------

// WorkerStatus is the JSON heartbeat document written to
// tgsentinel:worker_status.
type WorkerStatus struct {
	Generation int64     `json:"generation"`
	State      string    `json:"state"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (s *Store) SetWorkerStatus(ctx context.Context, ws WorkerStatus, ttl time.Duration) error {
	return s.setJSON(ctx, "tgsentinel:worker_status", ws, ttl)
}

func (s *Store) WorkerStatus(ctx context.Context) (WorkerStatus, bool, error) {
	var ws WorkerStatus
	ok, err := s.getJSON(ctx, "tgsentinel:worker_status", &ws)
	return ws, ok, err
}

// UserInfo is the cached identity of the logged-in operator.
type UserInfo struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

func (s *Store) SetUserInfo(ctx context.Context, u UserInfo) error {
	return s.setJSON(ctx, "tgsentinel:user_info", u, 0)
}

func (s *Store) UserInfo(ctx context.Context) (UserInfo, bool, error) {
	var u UserInfo
	ok, err := s.getJSON(ctx, "tgsentinel:user_info", &u)
	return u, ok, err
}

// --- generation-scoped caches --------------------------------------------

// SetCachedChannels stores the UI channel list for a session generation
// with a 15-minute TTL (spec.md §6.1).
func (s *Store) SetCachedChannels(ctx context.Context, gen int64, payload any) error {
	return s.setJSON(ctx, genKey(gen, "cached_channels"), payload, cachedChannelsTTL)
}

func (s *Store) CachedChannels(ctx context.Context, gen int64, out any) (bool, error) {
	return s.getJSON(ctx, genKey(gen, "cached_channels"), out)
}

func (s *Store) SetCachedUsers(ctx context.Context, gen int64, payload any) error {
	return s.setJSON(ctx, genKey(gen, "cached_users"), payload, cachedUsersTTL)
}

func (s *Store) CachedUsers(ctx context.Context, gen int64, out any) (bool, error) {
	return s.getJSON(ctx, genKey(gen, "cached_users"), out)
}

// SetAvatar caches a base64-encoded avatar with no TTL; prefix is "channel"
// or "user" per spec.md's `{prefix}_avatar:{id}` naming.
func (s *Store) SetAvatar(ctx context.Context, prefix string, id int64, b64 string) error {
	key := fmt.Sprintf("tgsentinel:%s_avatar:%d", prefix, id)
	if err := s.rdb.Set(ctx, key, b64, 0).Err(); err != nil {
		return fmt.Errorf("coord: set avatar %s: %w", key, err)
	}
	return nil
}

func (s *Store) Avatar(ctx context.Context, prefix string, id int64) (string, bool, error) {
	key := fmt.Sprintf("tgsentinel:%s_avatar:%d", prefix, id)
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("coord: get avatar %s: %w", key, err)
	}
	return v, true, nil
}

// --- digest bookkeeping ---------------------------------------------------

// SetDigestLastRun records the ISO-8601 timestamp of the last run of a
// cadence, TTLed at 7 days.
func (s *Store) SetDigestLastRun(ctx context.Context, schedule string, at time.Time) error {
	key := "tgsentinel:digest:last_run:" + schedule
	if err := s.rdb.Set(ctx, key, at.UTC().Format(time.RFC3339), digestLastRunTTL).Err(); err != nil {
		return fmt.Errorf("coord: set digest last_run %s: %w", schedule, err)
	}
	return nil
}

func (s *Store) DigestLastRun(ctx context.Context, schedule string) (time.Time, bool, error) {
	key := "tgsentinel:digest:last_run:" + schedule
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("coord: get digest last_run %s: %w", schedule, err)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("coord: parse digest last_run %s: %w", schedule, err)
	}
	return t, true, nil
}

// DigestExecutionStatus is the terminal (or in-flight) state of one digest
// run.
type DigestExecutionStatus string

const (
	ExecutionPending   DigestExecutionStatus = "pending"
	ExecutionRunning   DigestExecutionStatus = "running"
	ExecutionSuccess   DigestExecutionStatus = "success"
	ExecutionPartial   DigestExecutionStatus = "partial"
	ExecutionFailed    DigestExecutionStatus = "failed"
	ExecutionCancelled DigestExecutionStatus = "cancelled"
)

// DigestExecution is one audited digest run, recorded both per-profile and
// in the global history.
type DigestExecution struct {
	ProfileID  string                `json:"profile_id"`
	Schedule   string                `json:"schedule"`
	Mode       string                `json:"mode"`
	Target     string                `json:"target"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Status     DigestExecutionStatus `json:"status"`
	MessageIDs int                   `json:"message_ids"`
	Error      string                `json:"error,omitempty"`

	// RanAt/Delivered are kept for the quick-lookup consumers that only
	// care about "did the last run happen and succeed".
	RanAt     time.Time `json:"ran_at"`
	Delivered bool      `json:"delivered"`
}

// RecordDigestExecution pushes onto the per-profile history (trimmed to
// 50), the global history (trimmed to 500), and refreshes the
// latest-execution quick-lookup key (TTL 7d).
func (s *Store) RecordDigestExecution(ctx context.Context, exec DigestExecution) error {
	b, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("coord: marshal digest execution: %w", err)
	}

	perProfileKey := "tgsentinel:digest:executions:" + exec.ProfileID
	latestKey := "tgsentinel:digest:executions:latest:" + exec.ProfileID

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, perProfileKey, b)
	pipe.LTrim(ctx, perProfileKey, 0, digestExecutionsPerProfileCap-1)
	pipe.Set(ctx, latestKey, b, digestLatestTTL)
	pipe.LPush(ctx, "tgsentinel:digest:executions:history", b)
	pipe.LTrim(ctx, "tgsentinel:digest:executions:history", 0, digestExecutionsHistoryCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("coord: record digest execution for %s: %w", exec.ProfileID, err)
	}
	return nil
}

func (s *Store) DigestExecutionsForProfile(ctx context.Context, profileID string) ([]DigestExecution, error) {
	return s.readExecutionList(ctx, "tgsentinel:digest:executions:"+profileID)
}

func (s *Store) DigestExecutionHistory(ctx context.Context) ([]DigestExecution, error) {
	return s.readExecutionList(ctx, "tgsentinel:digest:executions:history")
}

func (s *Store) readExecutionList(ctx context.Context, key string) ([]DigestExecution, error) {
	raws, err := s.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("coord: read execution list %s: %w", key, err)
	}
	out := make([]DigestExecution, 0, len(raws))
	for _, raw := range raws {
		var e DigestExecution
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// --- batch processor restart safety ---------------------------------------

// SetBatchQueue persists the full set of profile IDs pending centroid
// recomputation, so the feedback batch processor's queue survives a
// restart (spec.md §4.7/§6.1).
func (s *Store) SetBatchQueue(ctx context.Context, profileIDs []string) error {
	return s.setJSON(ctx, "tgsentinel:batch_processor:queue", profileIDs, 0)
}

// BatchQueue returns the persisted queue, or an empty slice if none has
// been written yet.
func (s *Store) BatchQueue(ctx context.Context) ([]string, error) {
	var ids []string
	if _, err := s.getJSON(ctx, "tgsentinel:batch_processor:queue", &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) SetLastBatchTime(ctx context.Context, at time.Time) error {
	if err := s.rdb.Set(ctx, "tgsentinel:batch_processor:last_batch_time", at.UTC().Format(time.RFC3339), 0).Err(); err != nil {
		return fmt.Errorf("coord: set last batch time: %w", err)
	}
	return nil
}

func (s *Store) LastBatchTime(ctx context.Context) (time.Time, bool, error) {
	v, err := s.rdb.Get(ctx, "tgsentinel:batch_processor:last_batch_time").Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("coord: get last batch time: %w", err)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("coord: parse last batch time: %w", err)
	}
	return t, true, nil
}

// --- re-login handshake & auth queue ---------------------------------------

// ReloginHandshake coordinates a worker restart through the UI during
// session re-authentication, TTLed at 120s so a crashed handshake doesn't
// wedge the system forever.
type ReloginHandshake struct {
	Generation int64     `json:"generation"`
	Stage      string    `json:"stage"`
	StartedAt  time.Time `json:"started_at"`
}

func (s *Store) SetReloginHandshake(ctx context.Context, h ReloginHandshake) error {
	return s.setJSON(ctx, "tgsentinel:relogin:handshake", h, relayHandshakeTTL)
}

func (s *Store) ReloginHandshake(ctx context.Context) (ReloginHandshake, bool, error) {
	var h ReloginHandshake
	ok, err := s.getJSON(ctx, "tgsentinel:relogin:handshake", &h)
	return h, ok, err
}

func (s *Store) ClearReloginHandshake(ctx context.Context) error {
	if err := s.rdb.Del(ctx, "tgsentinel:relogin:handshake").Err(); err != nil {
		return fmt.Errorf("coord: clear relogin handshake: %w", err)
	}
	return nil
}

// PushAuthRequest enqueues a UI → worker auth request.
func (s *Store) PushAuthRequest(ctx context.Context, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("coord: marshal auth request: %w", err)
	}
	if err := s.rdb.RPush(ctx, "tgsentinel:auth_queue", b).Err(); err != nil {
		return fmt.Errorf("coord: push auth request: %w", err)
	}
	return nil
}

// PopAuthRequest blocks up to block for the next queued auth request.
func (s *Store) PopAuthRequest(ctx context.Context, block time.Duration) (string, bool, error) {
	res, err := s.rdb.BLPop(ctx, block, "tgsentinel:auth_queue").Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("coord: pop auth request: %w", err)
	}
	if len(res) < 2 {
		return "", false, nil
	}
	return res[1], true, nil
}

// SetAuthResponse writes a worker → UI auth response into the
// tgsentinel:auth_responses hash, keyed by request ID.
func (s *Store) SetAuthResponse(ctx context.Context, requestID, payload string) error {
	if err := s.rdb.HSet(ctx, "tgsentinel:auth_responses", requestID, payload).Err(); err != nil {
		return fmt.Errorf("coord: set auth response %s: %w", requestID, err)
	}
	return nil
}

func (s *Store) AuthResponse(ctx context.Context, requestID string) (string, bool, error) {
	v, err := s.rdb.HGet(ctx, "tgsentinel:auth_responses", requestID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("coord: get auth response %s: %w", requestID, err)
	}
	return v, true, nil
}

// --- login/logout progress --------------------------------------------------

func (s *Store) SetLoginProgress(ctx context.Context, payload any) error {
	return s.setJSON(ctx, "tgsentinel:login_progress", payload, progressTTL)
}

func (s *Store) LoginProgress(ctx context.Context, out any) (bool, error) {
	return s.getJSON(ctx, "tgsentinel:login_progress", out)
}

func (s *Store) SetLogoutProgress(ctx context.Context, payload any) error {
	return s.setJSON(ctx, "tgsentinel:logout_progress", payload, progressTTL)
}

func (s *Store) LogoutProgress(ctx context.Context, out any) (bool, error) {
	return s.getJSON(ctx, "tgsentinel:logout_progress", out)
}

// --- pub/sub ------------------------------------------------------------

// SessionUpdatedEvent is published on ChannelSessionUpdated whenever the
// session generation changes identity (spec.md §6.1, §9).
type SessionUpdatedEvent struct {
	Event      string `json:"event"`
	Generation int64  `json:"generation"`
}

func (s *Store) PublishSessionUpdated(ctx context.Context, ev SessionUpdatedEvent) error {
	return s.publishJSON(ctx, ChannelSessionUpdated, ev)
}

// ConfigUpdatedEvent names which config keys changed, letting subscribers
// reload only what's needed.
type ConfigUpdatedEvent struct {
	ConfigKeys []string `json:"config_keys"`
}

func (s *Store) PublishConfigUpdated(ctx context.Context, ev ConfigUpdatedEvent) error {
	return s.publishJSON(ctx, ChannelConfigUpdated, ev)
}

func (s *Store) PublishCacheReady(ctx context.Context, gen int64) error {
	return s.publishJSON(ctx, ChannelCacheReady, map[string]int64{"generation": gen})
}

func (s *Store) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return s.rdb.Subscribe(ctx, channels...)
}

// --- small helpers ---------------------------------------------------------

func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("coord: marshal %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("coord: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) getJSON(ctx context.Context, key string, out any) (bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("coord: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		return false, fmt.Errorf("coord: unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) publishJSON(ctx context.Context, channel string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("coord: marshal publish %s: %w", channel, err)
	}
	if err := s.rdb.Publish(ctx, channel, b).Err(); err != nil {
		return fmt.Errorf("coord: publish %s: %w", channel, err)
	}
	return nil
}
