// Package otelbridge converts a finished telemetry.Span into an
// OpenTelemetry span for interoperability with upstream OTel collectors.
// It does not replace the Telemetry Core's own span bookkeeping (spec.md
// specifies a bespoke span model with its own consumer fan-out); it is an
// additional exporter exercised as a telemetry.Consumer.
package otelbridge

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/streamspace-dev/pluginrt/internal/telemetry"
)

// Consumer re-emits ended spans through an otel/trace.Tracer.
type Consumer struct {
	tracer trace.Tracer
}

// New builds a Consumer that emits through tracer (typically
// otel.Tracer("pluginrt")).
func New(tracer trace.Tracer) *Consumer {
	return &Consumer{tracer: tracer}
}

// Handle implements telemetry.Consumer; non-span signals are ignored,
// since logs and metrics have their own dedicated sinks.
func (c *Consumer) Handle(ctx context.Context, sig telemetry.Signal) {
	if sig.Kind != telemetry.SignalSpan || sig.Span == nil {
		return
	}
	s := sig.Span

	attrs := make([]attribute.KeyValue, 0, len(s.Attributes))
	for k, v := range s.Attributes {
		attrs = append(attrs, attribute.String(k, toString(v)))
	}

	start := time.Unix(0, s.StartNs)
	end := time.Unix(0, s.EndNs)

	_, span := c.tracer.Start(ctx, s.Name,
		trace.WithTimestamp(start),
		trace.WithAttributes(attrs...),
	)
	span.End(trace.WithTimestamp(end))
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return "" // best-effort: non-string attribute values are exported as empty strings
	}
}
