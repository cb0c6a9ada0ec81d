package statesync

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/goliatone/go-statesync"

func defaultTracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

func (e *Engine) startSpan(ctx context.Context, op string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "statesync."+op, trace.WithAttributes(
		attribute.String("statesync.namespace", e.binding.Namespace()),
		attribute.String("statesync.driver", e.driver),
		attribute.String("statesync.attachment_id", e.id),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
