package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redoracle/tgsentinel/internal/ingest"
	"github.com/redoracle/tgsentinel/internal/stream"
)

var errMissingEventField = errors.New("stream payload missing \"event\" field")

// Consumer drives a Pipeline off one ingestion stream, implementing the
// ack/redelivery contract from spec.md §4.4 and §4.7's step 12: ack after
// a successful commit (or a deliberate skip), never ack on a transient
// failure so the stream's own redelivery retries it.
type Consumer struct {
	Stream   *stream.Stream
	Pipeline *Pipeline

	BlockFor     time.Duration // how long ReadBlocking waits per poll
	BatchSize    int64
	ClaimMinIdle time.Duration // visibility timeout before reclaiming stale entries
}

// Run processes events until ctx is cancelled. It never returns an error
// for a single bad message — those are logged and acked — only for
// stream-level failures (e.g. Redis unreachable).
func (c *Consumer) Run(ctx context.Context) error {
	if c.BlockFor <= 0 {
		c.BlockFor = 5 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.ClaimMinIdle <= 0 {
		c.ClaimMinIdle = 30 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		events, err := c.Stream.ReadBlocking(ctx, c.BatchSize, c.BlockFor)
		if err != nil {
			return err
		}
		for _, ev := range events {
			c.handle(ctx, ev)
		}

		stale, err := c.Stream.ClaimStale(ctx, c.ClaimMinIdle, c.BatchSize)
		if err != nil {
			slog.Warn("worker: claim stale entries failed", "error", err)
			continue
		}
		for _, ev := range stale {
			c.handle(ctx, ev)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, se stream.Event) {
	payload, err := marshalPayload(se.Payload)
	if err != nil {
		slog.Warn("worker: malformed stream payload, dropping", "id", se.ID, "error", err)
		c.ack(ctx, se.ID)
		return
	}

	ev, err := ingest.Decode(payload)
	if err != nil {
		// spec.md §7: malformed event -> ack + log warning; never poison the
		// consumer by leaving it pending forever.
		slog.Warn("worker: malformed chat event, acking without processing", "id", se.ID, "error", err)
		c.ack(ctx, se.ID)
		return
	}

	_, _, err = c.Pipeline.ProcessEvent(ctx, ev)
	if err != nil {
		slog.Error("worker: pipeline error, leaving unacked for redelivery", "id", se.ID, "chat_id", ev.ChatID, "msg_id", ev.MsgID, "error", err)
		return
	}
	c.ack(ctx, se.ID)
}

func (c *Consumer) ack(ctx context.Context, id string) {
	if err := c.Stream.Ack(ctx, id); err != nil {
		slog.Error("worker: ack failed", "id", id, "error", err)
		return
	}
	if c.Pipeline != nil && c.Pipeline.Metrics != nil {
		c.Pipeline.Metrics.MessageAcked(ctx)
	}
}

// marshalPayload re-serializes the stream's string-map payload back into
// the JSON bytes ingest.Decode expects. Redis Streams only carries
// string/[]byte field values; the platform adapter appends one field
// (e.g. "event") holding the full JSON document.
func marshalPayload(fields map[string]interface{}) ([]byte, error) {
	raw, ok := fields["event"]
	if !ok {
		return nil, errMissingEventField
	}
	switch v := raw.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, errMissingEventField
	}
}
