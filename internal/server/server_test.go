package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginrt/internal/interceptor"
	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/rterrors"
)

func mustServer(t *testing.T, desc *plugin.Descriptor) *Server {
	t.Helper()
	s, err := New(desc, nil, map[string]any{}, Options{AgentID: "test-agent"})
	require.Nil(t, err)
	return s
}

// Scenario 1 — Interception drop.
func TestScenarioInterceptionDrop(t *testing.T) {
	descA, err := plugin.NewBuilder("a").
		WithEvent(plugin.EventDef{Type: "msg"}).
		Build()
	require.NoError(t, err)

	a := mustServer(t, descA)

	var effectRan, listenerRan int32
	a.desc.Effects = append(a.desc.Effects, func(ctx context.Context, h plugin.ContextHandle, e plugin.EventInstance) error {
		effectRan++
		return nil
	})

	a.On(plugin.SingleType("msg"), func(ctx context.Context, e plugin.EventInstance) {
		listenerRan++
	})

	// Plugin B depends on A and registers an interceptor that drops.
	a.ProducerInterceptors().Register(interceptor.Entry{
		ConsumerName: "b",
		Fn: func(ctx context.Context, event plugin.EventInstance, next func(plugin.EventInstance), drop func(string), dependency, current plugin.DependencyView) {
			if event.Type == "msg" {
				drop("filtered")
			}
		},
		CurrentView:       func() plugin.DependencyView { return plugin.DependencyView{Name: "b"} },
		WithConsumerScope: func(ctx context.Context, fn func(ctx context.Context)) { fn(ctx) },
	})

	ctx := context.Background()
	a.Start(ctx)
	defer a.Stop(ctx)

	_, emitErr := a.Emit(ctx, "msg", nil, false)
	require.Nil(t, emitErr)

	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 0, effectRan)
	require.EqualValues(t, 0, listenerRan)
}

// Scenario 2 — Urgent ordering: an urgent event enqueued before an
// earlier non-urgent event is dequeued is never observed after it.
func TestScenarioUrgentOrdering(t *testing.T) {
	desc, err := plugin.NewBuilder("p").
		WithEvent(plugin.EventDef{Type: "e", DataValidator: func(d map[string]any) (map[string]any, error) { return d, nil }}).
		Build()
	require.NoError(t, err)
	s := mustServer(t, desc)

	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 10)
	s.On(plugin.SingleType("e"), func(ctx context.Context, e plugin.EventInstance) {
		mu.Lock()
		order = append(order, e.Data["label"].(string))
		mu.Unlock()
		done <- struct{}{}
	})

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	label := func(l string) map[string]any { return map[string]any{"label": l} }
	_, _ = s.Emit(ctx, "e", label("e1"), false)
	_, _ = s.Emit(ctx, "e", label("e2"), false)
	_, _ = s.Emit(ctx, "e", label("e3"), true)
	_, _ = s.Emit(ctx, "e", label("e4"), false)

	for i := 0; i < 4; i++ {
		<-done
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 4)

	idx := func(l string) int {
		for i, v := range order {
			if v == l {
				return i
			}
		}
		return -1
	}
	// e3 was pushed to the front while e2 was still waiting, so e3 is
	// observed before e2.
	require.Less(t, idx("e3"), idx("e2"))
	require.Less(t, idx("e2"), idx("e4"))
}

// Scenario 3 — Context listener no-op: unrelated field changes do not
// fire a listener whose selector projects only ctx.count; the
// context.changed push still occurs (exercised via a no-op pusher that
// doesn't error).
func TestScenarioContextListenerNoOp(t *testing.T) {
	desc, err := plugin.NewBuilder("p").Build()
	require.NoError(t, err)
	s, serr := New(desc, nil, map[string]any{"count": 0.0}, Options{AgentID: "a"})
	require.Nil(t, serr)

	var fired int32
	s.OnChange(
		func(ctx map[string]any) any { return ctx["count"] },
		func(newVal, oldVal any) { fired++ },
	)

	s.Set(context.Background(), func(current map[string]any) map[string]any {
		current["other"] = 1.0
		return current
	})

	require.EqualValues(t, 0, fired)
}

func TestContextListenerFiresOnProjectedChange(t *testing.T) {
	desc, err := plugin.NewBuilder("p").Build()
	require.NoError(t, err)
	s, serr := New(desc, nil, map[string]any{"count": 0.0}, Options{AgentID: "a"})
	require.Nil(t, serr)

	var fired int32
	s.OnChange(
		func(ctx map[string]any) any { return ctx["count"] },
		func(newVal, oldVal any) { fired++ },
	)

	s.Set(context.Background(), func(current map[string]any) map[string]any {
		current["count"] = 1.0
		return current
	})

	require.EqualValues(t, 1, fired)
}

func TestGetReturnsDeepCloneUnaffectedByMutation(t *testing.T) {
	desc, err := plugin.NewBuilder("p").Build()
	require.NoError(t, err)
	s, serr := New(desc, nil, map[string]any{"count": 0.0}, Options{AgentID: "a"})
	require.Nil(t, serr)

	snapshot := s.Get()
	s.Set(context.Background(), func(current map[string]any) map[string]any {
		current["count"] = 42.0
		return current
	})

	require.Equal(t, 0.0, snapshot["count"])
}

func TestCallMethodRunsAndReturnsOutput(t *testing.T) {
	desc, err := plugin.NewBuilder("calc").
		WithMethod(plugin.MethodDef{
			Name: "double",
			Run: func(ctx context.Context, rt plugin.MethodRuntime, input map[string]any) (map[string]any, error) {
				n := input["n"].(float64)
				return map[string]any{"result": n * 2}, nil
			},
		}).
		Build()
	require.NoError(t, err)
	s := mustServer(t, desc)

	out, callErr := s.CallMethod(context.Background(), "double", map[string]any{"n": 21.0})
	require.Nil(t, callErr)
	require.Equal(t, 42.0, out["result"])
}

func TestCallMethodWrapsPanicAsUnknown(t *testing.T) {
	desc, err := plugin.NewBuilder("calc").
		WithMethod(plugin.MethodDef{
			Name: "boom",
			Run: func(ctx context.Context, rt plugin.MethodRuntime, input map[string]any) (map[string]any, error) {
				panic("nope")
			},
		}).
		Build()
	require.NoError(t, err)
	s := mustServer(t, desc)

	_, callErr := s.CallMethod(context.Background(), "boom", nil)
	require.NotNil(t, callErr)
	require.Equal(t, rterrors.Unknown, callErr.Code)
}

func TestEmitUnknownEventTypeIsNotFound(t *testing.T) {
	desc, err := plugin.NewBuilder("p").Build()
	require.NoError(t, err)
	s := mustServer(t, desc)

	_, emitErr := s.Emit(context.Background(), "nope", nil, false)
	require.NotNil(t, emitErr)
	require.Equal(t, rterrors.NotFound, emitErr.Code)
}

func TestUnsubscribeUnknownListenerIsNotFound(t *testing.T) {
	desc, err := plugin.NewBuilder("p").Build()
	require.NoError(t, err)
	s := mustServer(t, desc)

	err2 := s.Unsubscribe("missing")
	require.NotNil(t, err2)
	require.Equal(t, rterrors.NotFound, err2.Code)
}
