package telemetry

// Level is a structured log severity.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

// MetricKind enumerates the three metric shapes the core supports.
type MetricKind string

const (
	MetricCounter   MetricKind = "counter"
	MetricUpDown    MetricKind = "updown"
	MetricHistogram MetricKind = "histogram"
)

// Resource describes the process emitting a signal. This port only ever
// runs server-side, so Platform is always "server"; the field is kept on
// the wire shape for compatibility with the two-variant resource union
// the original design documents (server, browser).
type Resource struct {
	Platform string `json:"platform"`
	OS       string `json:"os,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// SpanState is the end-state machine of a Span: Active -> Ended.
type SpanState string

const (
	SpanActive SpanState = "active"
	SpanEnded  SpanState = "ended"
)

// Span is a timed, named, nestable region of execution.
type Span struct {
	ID            string         `json:"id"`
	TraceID       string         `json:"traceId"`
	ParentSpanID  string         `json:"parentSpanId,omitempty"`
	Scope         string         `json:"scope"`
	Resource      Resource       `json:"resource"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	Name          string         `json:"name"`
	StartNs       int64          `json:"startNs"`
	EndNs         int64          `json:"endNs"` // -1 sentinel until ended
	Logs          []Log          `json:"logs,omitempty"`
	state         SpanState
}

// DurationNs returns endNs - startNs, or 0 if the span has not ended.
func (s *Span) DurationNs() int64 {
	if s.EndNs < 0 {
		return 0
	}
	return s.EndNs - s.StartNs
}

// Log is a structured log entry, optionally attached to a span.
type Log struct {
	ID              string         `json:"id"`
	Level           Level          `json:"level"`
	Message         string         `json:"message"`
	MessageUnstyled string         `json:"messageUnstyled"`
	Attributes      map[string]any `json:"attributes,omitempty"`
	Timestamp       int64          `json:"timestamp"`
	Stack           string         `json:"stack,omitempty"`
	TraceID         string         `json:"traceId,omitempty"`
	SpanID          string         `json:"spanId,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// LogInput is the caller-supplied shape for log.<level>(input): at least
// one of Message or Error must be non-empty or the log is rejected.
type LogInput struct {
	Message    string
	Error      error
	Attributes map[string]any
}

// Metric is a point-in-time counter/updown/histogram record.
type Metric struct {
	ID         string         `json:"id"`
	Kind       MetricKind     `json:"kind"`
	Name       string         `json:"name"`
	Value      float64        `json:"value"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SignalKind discriminates the Signal union's three variants on the wire.
type SignalKind string

const (
	SignalLog    SignalKind = "log"
	SignalSpan   SignalKind = "span"
	SignalMetric SignalKind = "metric"
)

// Signal is the schemaVersion="1" discriminated wire envelope shared by
// logs, spans, and metrics.
type Signal struct {
	SchemaVersion string         `json:"schemaVersion"`
	Kind          SignalKind     `json:"kind"`
	ID            string         `json:"id"`
	Scope         string         `json:"scope"`
	Resource      Resource       `json:"resource"`
	Attributes    map[string]any `json:"attributes,omitempty"`

	Log    *Log    `json:"log,omitempty"`
	Span   *Span   `json:"span,omitempty"`
	Metric *Metric `json:"metric,omitempty"`
}

// maxSignalBytes is the 1 MiB size check applied after serialization;
// signals at or above this size are dropped at the sender.
const maxSignalBytes = 1 << 20
