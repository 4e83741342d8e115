package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope for every span this package
// starts. It is fixed; the service name SetupTracing puts on the resource
// is whatever its caller passes.
const tracerName = "tgsentinel"

func attrString(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// StartMessageSpan opens a span around one message's run through the
// scoring pipeline (C7), tagged with the identifiers that let an operator
// correlate a trace back to a messages row.
func StartMessageSpan(ctx context.Context, chatID, msgID int64) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "worker.process_message", trace.WithAttributes(
		attribute.Int64("chat_id", chatID),
		attribute.Int64("msg_id", msgID),
	))
}

// FinishSpan records the outcome of a unit of work and ends the span,
// mirroring the attribute/status/End idiom used for LLM call spans
// elsewhere in the corpus: success sets codes.Ok, failure sets
// codes.Error and records the error on the span.
func FinishSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// StartDigestSpan opens a span around one digest engine run (C8), tagged
// with the cadence and identifier (profile/channel/user) it ran for.
func StartDigestSpan(ctx context.Context, schedule, identifier string) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "digest.run", trace.WithAttributes(
		attribute.String("schedule", schedule),
		attribute.String("identifier", identifier),
	))
}
