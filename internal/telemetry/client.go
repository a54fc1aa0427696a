// Package telemetry implements the Telemetry Core: spans with ambient
// parent tracking via context.Context, structured logs, the three metric
// kinds, and back-pressured consumer fan-out with flush.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/queue"
)

// Clock supplies monotonic-enough nanosecond timestamps; tests substitute
// a fake clock so span ordering assertions don't depend on wall time.
type Clock interface {
	NowNs() int64
}

type systemClock struct{}

func (systemClock) NowNs() int64 { return time.Now().UnixNano() }

type spanContextKey struct{}

// FromContext returns the ambient span carried by ctx, if any. This is
// the Go realization of the ambient-span mechanism spec.md §9 asks for:
// context.Context is the systems-language equivalent of async-local
// storage.
func FromContext(ctx context.Context) (*Span, bool) {
	s, ok := ctx.Value(spanContextKey{}).(*Span)
	return s, ok
}

func withSpan(ctx context.Context, s *Span) context.Context {
	return context.WithValue(ctx, spanContextKey{}, s)
}

// Client is a scoped telemetry client: logs/spans/metrics sent through it
// carry its scope and base attributes and are fanned out to every
// registered consumer.
type Client struct {
	scope    string
	resource Resource
	clock    Clock

	mu         sync.Mutex
	attributes map[string]any
	consumers  map[string]*registeredConsumer

	scopeMu        sync.Mutex
	scopeRequired  map[string][]string

	errLoop bool // suppresses recursive self-error signalling
}

// NewClient creates a root telemetry client scoped to scope.
func NewClient(scope string, resource Resource) *Client {
	return &Client{
		scope:         scope,
		resource:      resource,
		clock:         systemClock{},
		attributes:    map[string]any{},
		consumers:     map[string]*registeredConsumer{},
		scopeRequired: map[string][]string{},
	}
}

// WithClock overrides the client's clock; used by tests.
func (c *Client) WithClock(clk Clock) *Client {
	c.clock = clk
	return c
}

// Child returns a new Client under scope "<parent>.<name>", inheriting
// the resource and registered consumers (fanning out through the same
// registrations), mirroring the teacher's per-component scoped-logger
// factories.
func (c *Client) Child(name string) *Client {
	return c.scoped(c.scope + "." + name)
}

// Scoped returns a new client named exactly scope (not nested under the
// parent's scope), inheriting the parent's resource, attributes, clock,
// and consumer registrations. Used for the fixed dotted scope names
// spec.md assigns components, e.g. "plugin.server".
func (c *Client) Scoped(scope string) *Client {
	return c.scoped(scope)
}

func (c *Client) scoped(scope string) *Client {
	child := NewClient(scope, c.resource)
	child.clock = c.clock
	c.mu.Lock()
	for k, v := range c.attributes {
		child.attributes[k] = v
	}
	for id, rc := range c.consumers {
		child.consumers[id] = rc
	}
	c.mu.Unlock()
	return child
}

// RequireScopeAttributes declares attribute keys that must be present
// (merged in if missing from the client's base attributes) for every
// signal sent under the given scope.
func (c *Client) RequireScopeAttributes(scope string, keys ...string) {
	c.scopeMu.Lock()
	defer c.scopeMu.Unlock()
	c.scopeRequired[scope] = keys
}

// SetAttribute merges one client-level attribute into every outgoing
// signal.
func (c *Client) SetAttribute(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attributes[key] = value
}

// SetAttributes merges a map of client-level attributes.
func (c *Client) SetAttributes(attrs map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range attrs {
		c.attributes[k] = v
	}
}

func (c *Client) mergedAttributes(extra map[string]any) map[string]any {
	c.mu.Lock()
	out := make(map[string]any, len(c.attributes)+len(extra))
	for k, v := range c.attributes {
		out[k] = v
	}
	c.mu.Unlock()
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// --- Spans ---------------------------------------------------------------

// TraceOptions customizes Trace.
type TraceOptions struct {
	Attributes map[string]any
	Parent     *Span // explicit parent wins over ambient parent
}

// Trace creates a span named name, makes it the ambient span for the
// duration of fn via the returned context, and ends it exactly once when
// fn returns (whether by value or panic). The span's traceId equals the
// parent's traceId (explicit Parent wins, else the ambient parent from
// ctx, else a new trace id); parentSpanId is set accordingly.
//
// Go has no implicit suspension the way an async function does, so the
// "ends when the pending value settles" case from the distilled design
// collapses to "ends when fn returns" here — fn is expected to do its own
// blocking/awaiting before returning, same as the synchronous case.
func Trace[T any](ctx context.Context, c *Client, name string, fn func(ctx context.Context, span *Span) (T, error), opts ...TraceOptions) (result T, err error) {
	var opt TraceOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	parent := opt.Parent
	if parent == nil {
		if ambient, ok := FromContext(ctx); ok {
			parent = ambient
		}
	}

	traceID := uuid.NewString()
	parentSpanID := ""
	if parent != nil {
		traceID = parent.TraceID
		parentSpanID = parent.ID
	}

	span := &Span{
		ID:           uuid.NewString(),
		TraceID:      traceID,
		ParentSpanID: parentSpanID,
		Scope:        c.scope,
		Resource:     c.resource,
		Attributes:   opt.Attributes,
		Name:         name,
		StartNs:      c.clock.NowNs(),
		EndNs:        -1,
		state:        SpanActive,
	}

	spanCtx := withSpan(ctx, span)

	defer func() {
		r := recover()
		c.endSpan(span)
		if r != nil {
			panic(r)
		}
	}()

	result, err = fn(spanCtx, span)
	return result, err
}

func (c *Client) endSpan(s *Span) {
	if s.state == SpanEnded {
		return
	}
	s.state = SpanEnded
	s.EndNs = c.clock.NowNs()
	c.sendSignal(Signal{
		Kind:     SignalSpan,
		ID:       s.ID,
		Scope:    s.Scope,
		Resource: s.Resource,
		Span:     s,
	})
}

// SetSpanAttribute sets an attribute on an active span; rejected with a
// self-error once the span has ended.
func (c *Client) SetSpanAttribute(s *Span, key string, value any) {
	if s.state == SpanEnded {
		c.selfError(fmt.Sprintf("setAttribute on ended span %s", s.ID))
		return
	}
	if s.Attributes == nil {
		s.Attributes = map[string]any{}
	}
	s.Attributes[key] = value
}

// --- Logs ------------------------------------------------------------------

// log emits a structured log at level. If ctx carries an ambient span the
// log is also appended to that span's Logs, and is rejected (with a
// self-error) once that span has ended.
func (c *Client) log(ctx context.Context, level Level, input LogInput) {
	msg := input.Message
	if msg == "" && input.Error != nil {
		msg = input.Error.Error()
	}
	if msg == "" {
		c.selfError("log rejected: message and error.message both empty")
		return
	}

	span, hasSpan := FromContext(ctx)
	if hasSpan && span.state == SpanEnded {
		c.selfError(fmt.Sprintf("log on ended span %s", span.ID))
		return
	}

	stack := ""
	if input.Error != nil {
		stack = string(debug.Stack())
	}

	entry := Log{
		ID:              uuid.NewString(),
		Level:           level,
		Message:         msg,
		MessageUnstyled: msg,
		Attributes:      input.Attributes,
		Timestamp:       c.clock.NowNs() / int64(time.Millisecond),
		Stack:           stack,
	}
	if input.Error != nil {
		entry.Error = input.Error.Error()
	}
	if hasSpan {
		entry.TraceID = span.TraceID
		entry.SpanID = span.ID
		span.Logs = append(span.Logs, entry)
	}

	c.sendSignal(Signal{
		Kind:     SignalLog,
		ID:       entry.ID,
		Scope:    c.scope,
		Resource: c.resource,
		Log:      &entry,
	})
}

func (c *Client) Debug(ctx context.Context, input LogInput) { c.log(ctx, LevelDebug, input) }
func (c *Client) Info(ctx context.Context, input LogInput)  { c.log(ctx, LevelInfo, input) }
func (c *Client) Warn(ctx context.Context, input LogInput)  { c.log(ctx, LevelWarn, input) }
func (c *Client) Error(ctx context.Context, input LogInput) { c.log(ctx, LevelError, input) }
func (c *Client) Fatal(ctx context.Context, input LogInput) { c.log(ctx, LevelFatal, input) }

// selfError emits a telemetry error about the telemetry core itself.
// Recursive self-error loops are suppressed: once already inside a
// self-error, further failures route to the process's standard error
// stream via the ambient logger instead of re-entering the signal
// pipeline.
func (c *Client) selfError(message string) {
	if c.errLoop {
		logger.Telemetry().Error().Str("scope", c.scope).Msg("telemetry self-error (suppressed): " + message)
		return
	}
	c.errLoop = true
	defer func() { c.errLoop = false }()

	entry := Log{
		ID:              uuid.NewString(),
		Level:           LevelError,
		Message:         message,
		MessageUnstyled: message,
		Timestamp:       c.clock.NowNs() / int64(time.Millisecond),
	}
	c.sendSignal(Signal{
		Kind:     SignalLog,
		ID:       entry.ID,
		Scope:    c.scope,
		Resource: c.resource,
		Log:      &entry,
	})
}

// --- Metrics -----------------------------------------------------------

// Counter is a monotonic metric handle; negative Add values are accepted
// but logged, matching spec.md's "no enforcement" note.
type Counter struct {
	client *Client
	name   string
}

func (c *Client) Counter(name string) Counter { return Counter{client: c, name: name} }

func (m Counter) Add(n float64, attrs ...map[string]any) {
	if n < 0 {
		m.client.selfError(fmt.Sprintf("counter %s received negative value %v", m.name, n))
	}
	m.client.emitMetric(MetricCounter, m.name, n, firstOrNil(attrs))
}

func (m Counter) Increment(attrs ...map[string]any) { m.Add(1, attrs...) }

// UpDown is a signed metric handle.
type UpDown struct {
	client *Client
	name   string
}

func (c *Client) UpDown(name string) UpDown { return UpDown{client: c, name: name} }

func (m UpDown) Add(n float64, attrs ...map[string]any) {
	m.client.emitMetric(MetricUpDown, m.name, n, firstOrNil(attrs))
}
func (m UpDown) Remove(n float64, attrs ...map[string]any)     { m.Add(-n, attrs...) }
func (m UpDown) Increment(attrs ...map[string]any)             { m.Add(1, attrs...) }
func (m UpDown) Decrement(attrs ...map[string]any)             { m.Add(-1, attrs...) }

// Histogram is a distribution-recording metric handle.
type Histogram struct {
	client *Client
	name   string
}

func (c *Client) Histogram(name string) Histogram { return Histogram{client: c, name: name} }

func (m Histogram) Record(value float64, attrs ...map[string]any) {
	m.client.emitMetric(MetricHistogram, m.name, value, firstOrNil(attrs))
}

func firstOrNil(attrs []map[string]any) map[string]any {
	if len(attrs) == 0 {
		return nil
	}
	return attrs[0]
}

func (c *Client) emitMetric(kind MetricKind, name string, value float64, attrs map[string]any) {
	m := Metric{ID: uuid.NewString(), Kind: kind, Name: name, Value: value, Attributes: attrs}
	c.sendSignal(Signal{
		Kind:     SignalMetric,
		ID:       m.ID,
		Scope:    c.scope,
		Resource: c.resource,
		Metric:   &m,
	})
}

// --- Signal validation & dispatch ---------------------------------------

// sendSignal runs the signal validation pipeline: structural validation
// (the Signal was already well-typed by the Go compiler, so this step is
// the discriminant-consistency check) -> scope lookup -> scope-required-
// attribute merge -> serialization round trip -> size check -> enqueue.
// Failures are self-logged, never returned to the caller.
func (c *Client) sendSignal(sig Signal) {
	sig.SchemaVersion = "1"

	if !structurallyValid(sig) {
		c.selfError(fmt.Sprintf("signal %s failed structural validation", sig.ID))
		return
	}

	c.scopeMu.Lock()
	required := c.scopeRequired[sig.Scope]
	c.scopeMu.Unlock()

	sig.Attributes = c.mergedAttributes(sig.Attributes)
	for _, key := range required {
		if _, ok := sig.Attributes[key]; !ok {
			c.selfError(fmt.Sprintf("signal %s missing required scope attribute %q", sig.ID, key))
			return
		}
	}

	encoded, err := json.Marshal(sig)
	if err != nil {
		c.selfError(fmt.Sprintf("signal %s failed serialization round trip: %v", sig.ID, err))
		return
	}
	var roundTrip Signal
	if err := json.Unmarshal(encoded, &roundTrip); err != nil {
		c.selfError(fmt.Sprintf("signal %s failed serialization round trip: %v", sig.ID, err))
		return
	}

	if len(encoded) >= maxSignalBytes {
		c.selfError(fmt.Sprintf("signal %s dropped: %d bytes exceeds 1 MiB limit", sig.ID, len(encoded)))
		return
	}

	c.enqueue(sig)
}

func structurallyValid(sig Signal) bool {
	switch sig.Kind {
	case SignalLog:
		return sig.Log != nil
	case SignalSpan:
		return sig.Span != nil
	case SignalMetric:
		return sig.Metric != nil
	default:
		return false
	}
}

// unsafeSendSignal enqueues sig, bypassing every validation step. It is
// unexported and unreachable from the public Client surface. Nothing in
// the tree calls it; no transport forwards signals from another process.
func (c *Client) unsafeSendSignal(sig Signal) {
	c.enqueue(sig)
}

func (c *Client) enqueue(sig Signal) {
	c.mu.Lock()
	consumers := make([]*registeredConsumer, 0, len(c.consumers))
	for _, rc := range c.consumers {
		consumers = append(consumers, rc)
	}
	c.mu.Unlock()

	for _, rc := range consumers {
		rc.queue.Push(sig)
	}
}
