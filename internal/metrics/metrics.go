package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts the events spec.md §7 requires every exception and
// outcome be tallied into: processed/acked/errored messages and digest
// runs. Backed by the otel metric API against whatever MeterProvider is
// registered (a no-op meter if none is, so this is always safe to use
// even before SetupTracing/a metrics exporter is wired up).
type Metrics struct {
	messagesProcessed metric.Int64Counter
	messagesAcked     metric.Int64Counter
	messagesErrored    metric.Int64Counter
	digestRuns         metric.Int64Counter
}

// New builds the counter set under the "tgsentinel" meter.
func New() (*Metrics, error) {
	meter := otel.Meter("tgsentinel")

	processed, err := meter.Int64Counter("tgsentinel.messages.processed",
		metric.WithDescription("Messages that completed the scoring pipeline"))
	if err != nil {
		return nil, err
	}
	acked, err := meter.Int64Counter("tgsentinel.messages.acked",
		metric.WithDescription("Messages acked back to the ingestion stream"))
	if err != nil {
		return nil, err
	}
	errored, err := meter.Int64Counter("tgsentinel.messages.errored",
		metric.WithDescription("Messages whose processing raised a recoverable error"))
	if err != nil {
		return nil, err
	}
	digests, err := meter.Int64Counter("tgsentinel.digest.runs",
		metric.WithDescription("Digest engine runs completed, by cadence"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		messagesProcessed: processed,
		messagesAcked:     acked,
		messagesErrored:   errored,
		digestRuns:        digests,
	}, nil
}

func (m *Metrics) MessageProcessed(ctx context.Context) {
	m.messagesProcessed.Add(ctx, 1)
}

func (m *Metrics) MessageAcked(ctx context.Context) {
	m.messagesAcked.Add(ctx, 1)
}

// MessageErrored counts a recoverable per-message processing error,
// tagged by the §7 error-taxonomy category ("platform_error",
// "store_error", "embedding_error", etc.) for breakdown at the backend.
func (m *Metrics) MessageErrored(ctx context.Context, category string) {
	m.messagesErrored.Add(ctx, 1, metric.WithAttributes(attrString("category", category)))
}

// DigestRun counts a completed digest run for a cadence ("hourly",
// "daily", ...).
func (m *Metrics) DigestRun(ctx context.Context, schedule string) {
	m.digestRuns.Add(ctx, 1, metric.WithAttributes(attrString("schedule", schedule)))
}
