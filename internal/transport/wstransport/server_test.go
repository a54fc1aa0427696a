package wstransport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/rpc"
	"github.com/streamspace-dev/pluginrt/internal/server"
)

type fakeRegistry struct {
	binders map[string]*rpc.Binder
}

func (f *fakeRegistry) Binder(name string) (*rpc.Binder, bool) {
	b, ok := f.binders[name]
	return b, ok
}

func newTestServerAndURL(t *testing.T) (*Server, string) {
	t.Helper()
	desc, err := plugin.NewBuilder("chat").
		WithEvent(plugin.EventDef{Type: "message.sent"}).
		Build()
	require.NoError(t, err)

	s, serr := server.New(desc, nil, map[string]any{"count": 0.0}, server.Options{AgentID: "a"})
	require.Nil(t, serr)
	s.Start(context.Background())

	wsServer := NewServer(&fakeRegistry{binders: map[string]*rpc.Binder{"chat": rpc.New("chat", s)}})

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", wsServer.Handler())
	httpSrv := httptest.NewServer(router)
	t.Cleanup(httpSrv.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	return wsServer, url
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSContextGetRoundTrip(t *testing.T) {
	_, url := newTestServerAndURL(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(Frame{ID: "1", Op: "plugin.chat.context.get"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))
	require.Equal(t, "1", resp.ID)

	var result rpc.Result[rpc.ContextGetResponse]
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.Nil(t, result.Err)
	require.Equal(t, 0.0, result.Value.Value["count"])
}

func TestWSEmitUnknownEventIsNotFound(t *testing.T) {
	_, url := newTestServerAndURL(t)
	conn := dial(t, url)

	payload, _ := json.Marshal(rpc.EmitRequest{Type: "nope"})
	require.NoError(t, conn.WriteJSON(Frame{ID: "2", Op: "plugin.chat.events.emit", Payload: payload}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))

	var result rpc.Result[rpc.EmitResponse]
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.NotNil(t, result.Err)
}

func TestWSUnknownPluginIsNotFound(t *testing.T) {
	_, url := newTestServerAndURL(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(Frame{ID: "3", Op: "plugin.missing.context.get"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp Frame
	require.NoError(t, conn.ReadJSON(&resp))

	var result rpc.Result[rpc.ContextGetResponse]
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	require.NotNil(t, result.Err)
}
