package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span is one traced unit of work. End must be called exactly once; calls
// after End are not recorded.
type Span interface {
	SetAttribute(key string, value any)
	AddEvent(name string, attrs map[string]any)
	RecordError(err error)
	End()
}

// SpanRecorder starts spans. The returned context carries the new span so
// that downstream work (driver calls, outgoing requests) nests under it.
type SpanRecorder interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

// OTelRecorder implements SpanRecorder on an OpenTelemetry tracer.
type OTelRecorder struct {
	tracer trace.Tracer
}

var _ SpanRecorder = (*OTelRecorder)(nil)

// NewOTelRecorder wraps tracer. Obtain it from an explicit TracerProvider,
// e.g. providers.TracerProvider.Tracer("user-service").
func NewOTelRecorder(tracer trace.Tracer) *OTelRecorder {
	return &OTelRecorder{tracer: tracer}
}

// Start opens a client-kind span named name.
func (r *OTelRecorder) Start(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := r.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	return ctx, &otelSpan{span: span}
}

// otelSpan implements Span by wrapping an OpenTelemetry span.
type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) SetAttribute(key string, value any) {
	s.span.SetAttributes(Attribute(key, value))
}

func (s *otelSpan) AddEvent(name string, attrs map[string]any) {
	if len(attrs) == 0 {
		s.span.AddEvent(name)
		return
	}
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, Attribute(k, v))
	}
	s.span.AddEvent(name, trace.WithAttributes(kvs...))
}

// RecordError adds an "exception" event and marks the span as failed.
func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() {
	s.span.End()
}

// Attribute converts a scalar into an OTel attribute. Unsupported types are
// rendered with fmt so nothing is silently dropped.
func Attribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int32:
		return attribute.Int64(key, int64(v))
	case int64:
		return attribute.Int64(key, v)
	case float32:
		return attribute.Float64(key, float64(v))
	case float64:
		return attribute.Float64(key, v)
	case []string:
		return attribute.StringSlice(key, v)
	case time.Time:
		return attribute.String(key, v.UTC().Format(time.RFC3339Nano))
	case fmt.Stringer:
		return attribute.String(key, v.String())
	default:
		return attribute.String(key, fmt.Sprint(v))
	}
}
