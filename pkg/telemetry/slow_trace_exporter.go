package telemetry

import (
	"context"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type slowTraceExporter struct {
	wrapped sdktrace.SpanExporter
	latency time.Duration
}

var _ sdktrace.SpanExporter = (*slowTraceExporter)(nil)

// NewSlowTraceExporter returns an exporter forwarding to exp only the spans of the traces
// whose root span lasted at least latency. A long cascading rewrite is then exported with
// all its datastore spans while quick lookups are dropped.
//
// Spans of a trace whose root span is not in the same batch are dropped.
func NewSlowTraceExporter(exp sdktrace.SpanExporter, latency time.Duration) sdktrace.SpanExporter {
	return &slowTraceExporter{wrapped: exp, latency: latency}
}

func (s *slowTraceExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	slow := make(map[trace.TraceID]struct{})
	for _, span := range spans {
		if span.Parent().IsValid() {
			continue
		}
		if span.EndTime().Sub(span.StartTime()) >= s.latency {
			slow[span.SpanContext().TraceID()] = struct{}{}
		}
	}

	if len(slow) == 0 {
		return nil
	}

	kept := make([]sdktrace.ReadOnlySpan, 0, len(spans))
	for _, span := range spans {
		if _, ok := slow[span.SpanContext().TraceID()]; ok {
			kept = append(kept, span)
		}
	}

	return s.wrapped.ExportSpans(ctx, kept)
}

func (s *slowTraceExporter) Shutdown(ctx context.Context) error {
	return s.wrapped.Shutdown(ctx)
}
