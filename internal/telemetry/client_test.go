package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	n int64
}

func (c *fakeClock) NowNs() int64 {
	return atomic.AddInt64(&c.n, 1)
}

type captureConsumer struct {
	mu      sync.Mutex
	signals []Signal
}

func (c *captureConsumer) Handle(_ context.Context, sig Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals = append(c.signals, sig)
}

func (c *captureConsumer) spans() []*Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Span
	for _, s := range c.signals {
		if s.Kind == SignalSpan {
			out = append(out, s.Span)
		}
	}
	return out
}

func newTestClient() (*Client, *captureConsumer, func()) {
	c := NewClient("test", Resource{Platform: "server"}).WithClock(&fakeClock{})
	cap := &captureConsumer{}
	unregister := c.RegisterConsumer(cap)
	return c, cap, unregister
}

// Scenario 6 — span ordering under async.
func TestTraceNestedSpanOrdering(t *testing.T) {
	c, cap, unregister := newTestClient()
	defer unregister()

	ctx := context.Background()
	_, err := Trace(ctx, c, "outer", func(ctx context.Context, outer *Span) (any, error) {
		time.Sleep(time.Millisecond)
		_, err := Trace(ctx, c, "inner-sync", func(ctx context.Context, inner *Span) (any, error) {
			return nil, nil
		})
		require.NoError(t, err)
		return nil, nil
	})
	require.NoError(t, err)

	c.FlushConsumers(500)
	spans := cap.spans()
	require.Len(t, spans, 2)

	var outer, inner *Span
	for _, s := range spans {
		if s.Name == "outer" {
			outer = s
		} else {
			inner = s
		}
	}
	require.NotNil(t, outer)
	require.NotNil(t, inner)
	require.Equal(t, outer.ID, inner.ParentSpanID)
	require.Equal(t, outer.TraceID, inner.TraceID)
	require.GreaterOrEqual(t, outer.EndNs, inner.EndNs)
}

// Testable property 7: endNs >= startNs, durationNs == endNs-startNs,
// span appears exactly once.
func TestSpanDurationAndSingleAppearance(t *testing.T) {
	c, cap, unregister := newTestClient()
	defer unregister()

	_, err := Trace(context.Background(), c, "op", func(ctx context.Context, span *Span) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)

	c.FlushConsumers(500)
	spans := cap.spans()
	require.Len(t, spans, 1)
	require.GreaterOrEqual(t, spans[0].EndNs, spans[0].StartNs)
	require.Equal(t, spans[0].EndNs-spans[0].StartNs, spans[0].DurationNs())
}

// Testable property 8: mutation on an ended span is rejected and
// produces a self-error signal.
func TestEndedSpanRejectsMutation(t *testing.T) {
	c, cap, unregister := newTestClient()
	defer unregister()

	var captured *Span
	_, err := Trace(context.Background(), c, "op", func(ctx context.Context, span *Span) (any, error) {
		captured = span
		return nil, nil
	})
	require.NoError(t, err)

	c.SetSpanAttribute(captured, "after", "end")
	require.NotContains(t, captured.Attributes, "after")

	c.FlushConsumers(500)
	var sawSelfError bool
	cap.mu.Lock()
	for _, s := range cap.signals {
		if s.Kind == SignalLog && s.Log.Level == LevelError {
			sawSelfError = true
		}
	}
	cap.mu.Unlock()
	require.True(t, sawSelfError)
}

func TestPanicInsideTraceEndsSpanAndPropagates(t *testing.T) {
	c, cap, unregister := newTestClient()
	defer unregister()

	require.Panics(t, func() {
		_, _ = Trace(context.Background(), c, "boom", func(ctx context.Context, span *Span) (any, error) {
			panic("kaboom")
		})
	})

	c.FlushConsumers(500)
	spans := cap.spans()
	require.Len(t, spans, 1)
	require.GreaterOrEqual(t, spans[0].EndNs, int64(0))
}

func TestLogRejectedWhenMessageAndErrorEmpty(t *testing.T) {
	c, cap, unregister := newTestClient()
	defer unregister()

	c.Info(context.Background(), LogInput{})
	c.FlushConsumers(500)

	cap.mu.Lock()
	defer cap.mu.Unlock()
	require.Len(t, cap.signals, 1)
	require.Equal(t, LevelError, cap.signals[0].Log.Level)
}

func TestFlushConsumersTimesOutWithoutBlockingForever(t *testing.T) {
	c := NewClient("test", Resource{Platform: "server"})
	start := time.Now()
	c.FlushConsumers(100)
	require.Less(t, time.Since(start), time.Second)
}
