package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/rterrors"
	"github.com/streamspace-dev/pluginrt/internal/server"
)

func TestOpNameDerivation(t *testing.T) {
	require.Equal(t, "plugin.chat.methods.send", MethodOp("chat", "send"))
	require.Equal(t, "plugin.chat.events.emit", EventsEmitOp("chat"))
	require.Equal(t, "plugin.chat.events.subscribe", EventsSubscribeOp("chat"))
	require.Equal(t, "plugin.chat.events.unsubscribe", EventsUnsubscribeOp("chat"))
	require.Equal(t, "plugin.chat.events.callback", EventsCallbackOp("chat"))
	require.Equal(t, "plugin.chat.context.get", ContextGetOp("chat"))
	require.Equal(t, "plugin.chat.context.changed", ContextChangedOp("chat"))

	pluginName, method, ok := ParseMethodOp("plugin.chat.methods.send")
	require.True(t, ok)
	require.Equal(t, "chat", pluginName)
	require.Equal(t, "send", method)

	_, _, ok = ParseMethodOp("plugin.chat.events.emit")
	require.False(t, ok)
}

func TestSelectorWireRoundTrip(t *testing.T) {
	cases := []string{
		`"*"`,
		`"message.sent"`,
		`["a","b"]`,
		`{"include":"*","exclude":["a"]}`,
		`{"include":["a","b"]}`,
	}
	for _, c := range cases {
		var w SelectorWire
		require.NoError(t, json.Unmarshal([]byte(c), &w))
	}
}

func TestResultMarshalsAsTwoElementArray(t *testing.T) {
	ok := Ok(EmitResponse{ID: "e1"})
	data, err := json.Marshal(ok)
	require.NoError(t, err)
	require.JSONEq(t, `[null,{"id":"e1"}]`, string(data))

	var decoded Result[EmitResponse]
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Nil(t, decoded.Err)
	require.Equal(t, "e1", decoded.Value.ID)

	failed := Fail[EmitResponse](rterrors.New(rterrors.NotFound, "no such event"))
	data, err = json.Marshal(failed)
	require.NoError(t, err)

	var decodedFail Result[EmitResponse]
	require.NoError(t, json.Unmarshal(data, &decodedFail))
	require.NotNil(t, decodedFail.Err)
	require.Equal(t, rterrors.NotFound, decodedFail.Err.Code)
}

func TestBinderDispatchesMethodEmitAndContextGet(t *testing.T) {
	desc, err := plugin.NewBuilder("chat").
		WithEvent(plugin.EventDef{Type: "message.sent"}).
		WithMethod(plugin.MethodDef{
			Name: "echo",
			Run: func(ctx context.Context, rt plugin.MethodRuntime, input map[string]any) (map[string]any, error) {
				return input, nil
			},
		}).
		Build()
	require.NoError(t, err)

	s, serr := server.New(desc, nil, map[string]any{"count": 0.0}, server.Options{AgentID: "a"})
	require.Nil(t, serr)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	b := New("chat", s)

	methodResult := b.HandleMethod(context.Background(), "echo", map[string]any{"x": 1.0})
	require.Nil(t, methodResult.Err)
	require.Equal(t, 1.0, methodResult.Value["x"])

	emitResult := b.HandleEmit(context.Background(), EmitRequest{Type: "message.sent"})
	require.Nil(t, emitResult.Err)
	require.NotEmpty(t, emitResult.Value.ID)

	missingMethod := b.HandleMethod(context.Background(), "nope", nil)
	require.NotNil(t, missingMethod.Err)
	require.Equal(t, rterrors.NotFound, missingMethod.Err.Code)

	ctxResult := b.HandleContextGet(context.Background())
	require.Nil(t, ctxResult.Err)
	require.Equal(t, 0.0, ctxResult.Value.Value["count"])
}

func TestBinderSubscribeAndUnsubscribe(t *testing.T) {
	desc, err := plugin.NewBuilder("chat").
		WithEvent(plugin.EventDef{Type: "message.sent"}).
		Build()
	require.NoError(t, err)

	s, serr := server.New(desc, nil, nil, server.Options{AgentID: "a"})
	require.Nil(t, serr)
	b := New("chat", s)

	subResult := b.HandleSubscribe(context.Background(), SubscribeRequest{
		ListenerID: "l1",
		Selector:   SelectorWire{Selector: plugin.Wildcard()},
	})
	require.Nil(t, subResult.Err)

	unsubResult := b.HandleUnsubscribe(context.Background(), UnsubscribeRequest{ListenerID: "l1"})
	require.Nil(t, unsubResult.Err)

	missing := b.HandleUnsubscribe(context.Background(), UnsubscribeRequest{ListenerID: "l1"})
	require.NotNil(t, missing.Err)
	require.Equal(t, rterrors.NotFound, missing.Err.Code)
}
