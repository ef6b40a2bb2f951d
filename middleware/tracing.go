package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/strandq/strand/job"
)

// tracerName is the instrumentation scope name for strand tracing.
const tracerName = "github.com/strandq/strand"

// Tracing returns middleware that wraps job execution in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
//
// Span attributes: strand.job.id, strand.queue, strand.attempts,
// strand.priority. On error, the span status is set to codes.Error
// with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer, for injecting a specific TracerProvider in tests or when
// multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Next) ([]byte, error) {
		ctx, span := tracer.Start(ctx, "strand.job.execute",
			trace.WithAttributes(
				attribute.String("strand.job.id", j.ID.String()),
				attribute.String("strand.queue", j.Queue),
				attribute.Int("strand.attempts", j.AttemptCount()),
				attribute.Int("strand.priority", j.Priority),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		result, err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return result, err
	}
}
