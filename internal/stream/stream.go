// Package stream wraps Redis Streams consumer-group semantics for the
// ingestion log (C4): durable append, bounded approximate trim, blocking
// group reads, and explicit per-message ack.
package stream

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one raw ingested chat event as it sits on the wire, keyed by its
// server-assigned stream ID until a consumer parses and acks it.
type Event struct {
	ID      string
	Payload map[string]interface{}
}

// Stream is a thin, typed wrapper over one Redis stream + consumer group.
type Stream struct {
	rdb      *redis.Client
	key      string
	group    string
	consumer string
	maxLen   int64
}

// Config names the stream, group, and consumer identity plus the
// approximate bounded length producers trim to.
type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
	MaxLen   int64 // 0 disables trimming
}

// New connects to Redis and ensures the consumer group exists, creating the
// stream with the group positioned at "$" (new messages only) if it doesn't
// exist yet.
func New(ctx context.Context, cfg Config) (*Stream, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("stream: connect to redis: %w", err)
	}

	s := &Stream{rdb: rdb, key: cfg.Stream, group: cfg.Group, consumer: cfg.Consumer, maxLen: cfg.MaxLen}

	err := rdb.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("stream: create consumer group: %w", err)
	}
	return s, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 8 && err.Error()[:8] == "BUSYGROU"
}

// Append adds payload to the stream with a server-assigned ID, trimming the
// stream to an approximate MaxLen bound if configured (spec.md §4.4:
// "Bounded length with approximate truncation").
func (s *Stream) Append(ctx context.Context, payload map[string]interface{}) (string, error) {
	args := &redis.XAddArgs{Stream: s.key, Values: payload}
	if s.maxLen > 0 {
		args.Approx = true
		args.MaxLen = s.maxLen
	}
	id, err := s.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("stream: append: %w", err)
	}
	return id, nil
}

// ReadBlocking pulls up to count new messages for this consumer group
// member, blocking up to block for new arrivals (spec.md §4.4: "Consumers
// block up to N ms for new messages"). An empty, nil-error result means the
// block elapsed with nothing delivered — not an error condition.
func (s *Stream) ReadBlocking(ctx context.Context, count int64, block time.Duration) ([]Event, error) {
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.key, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stream: read group: %w", err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	out := make([]Event, 0, len(res[0].Messages))
	for _, msg := range res[0].Messages {
		out = append(out, Event{ID: msg.ID, Payload: msg.Values})
	}
	return out, nil
}

// Ack acknowledges a delivered message ID. Unacked messages become
// redeliverable after the consumer's visibility timeout via ClaimStale.
func (s *Stream) Ack(ctx context.Context, id string) error {
	if err := s.rdb.XAck(ctx, s.key, s.group, id).Err(); err != nil {
		return fmt.Errorf("stream: ack %s: %w", id, err)
	}
	return nil
}

// ClaimStale reassigns pending messages idle longer than minIdle to this
// consumer, implementing redelivery after consumer timeout (spec.md §4.4).
func (s *Stream) ClaimStale(ctx context.Context, minIdle time.Duration, count int64) ([]Event, error) {
	pending, err := s.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: s.key, Group: s.group, Start: "-", End: "+", Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("stream: list pending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.Idle >= minIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	msgs, err := s.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream: s.key, Group: s.group, Consumer: s.consumer,
		MinIdle: minIdle, Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("stream: claim stale: %w", err)
	}

	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, Event{ID: msg.ID, Payload: msg.Values})
	}
	return out, nil
}

// Close releases the underlying Redis connection pool.
func (s *Stream) Close() error {
	return s.rdb.Close()
}

// Client exposes the underlying *redis.Client for components (coord,
// lifecycle) that need the same connection for non-stream primitives.
func (s *Stream) Client() *redis.Client {
	return s.rdb
}
