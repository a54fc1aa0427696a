package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginrt/internal/plugin"
)

func TestAddPluginRegistersBinderAndLookup(t *testing.T) {
	h := New("test-agent", nil, nil)
	desc, err := plugin.NewBuilder("alpha").
		WithEvent(plugin.EventDef{Type: "ping"}).
		Build()
	require.NoError(t, err)

	s, aerr := h.AddPlugin(context.Background(), desc, nil, map[string]any{})
	require.Nil(t, aerr)
	require.NotNil(t, s)

	b, ok := h.Binder("alpha")
	require.True(t, ok)
	require.Equal(t, "alpha", b.Plugin)

	inst, ok := h.Lookup("alpha")
	require.True(t, ok)
	require.Contains(t, inst.EventTypes(), "ping")

	_, ok = h.Binder("missing")
	require.False(t, ok)
}

func TestWireInterceptorsAttachesToAlreadyRegisteredDependency(t *testing.T) {
	h := New("test-agent", nil, nil)

	producerDesc, err := plugin.NewBuilder("storage").
		WithEvent(plugin.EventDef{Type: "write"}).
		Build()
	require.NoError(t, err)
	_, aerr := h.AddPlugin(context.Background(), producerDesc, nil, map[string]any{})
	require.Nil(t, aerr)

	var sawConsumer string
	consumerDesc, err := plugin.NewBuilder("auditor").
		WithDependency("storage", producerDesc).
		WithInterceptor(func(ctx context.Context, event plugin.EventInstance, next func(plugin.EventInstance), drop func(string), dependency, current plugin.DependencyView) {
			sawConsumer = current.Name
			next(event)
		}).
		Build()
	require.NoError(t, err)

	_, aerr = h.AddPlugin(context.Background(), consumerDesc, nil, map[string]any{})
	require.Nil(t, aerr)

	producer, ok := h.Get("storage")
	require.True(t, ok)
	require.Equal(t, 1, producer.ProducerInterceptors().Len())

	_, emitErr := producer.Emit(context.Background(), "write", nil, false)
	require.Nil(t, emitErr)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, "auditor", sawConsumer)
}

func TestWireInterceptorsSkipsUnregisteredDependency(t *testing.T) {
	h := New("test-agent", nil, nil)

	missingDesc, err := plugin.NewBuilder("ghost").Build()
	require.NoError(t, err)

	consumerDesc, err := plugin.NewBuilder("watcher").
		WithDependency("ghost", missingDesc).
		WithInterceptor(func(ctx context.Context, event plugin.EventInstance, next func(plugin.EventInstance), drop func(string), dependency, current plugin.DependencyView) {
			next(event)
		}).
		Build()
	require.NoError(t, err)

	_, aerr := h.AddPlugin(context.Background(), consumerDesc, nil, map[string]any{})
	require.Nil(t, aerr)

	_, ok := h.Get("ghost")
	require.False(t, ok)
}

func TestRemovePluginDropsBinderAndLookup(t *testing.T) {
	h := New("test-agent", nil, nil)
	desc, err := plugin.NewBuilder("temp").Build()
	require.NoError(t, err)
	_, aerr := h.AddPlugin(context.Background(), desc, nil, map[string]any{})
	require.Nil(t, aerr)

	h.RemovePlugin(context.Background(), "temp")

	_, ok := h.Binder("temp")
	require.False(t, ok)
	_, ok = h.Lookup("temp")
	require.False(t, ok)
}
