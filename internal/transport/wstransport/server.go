package wstransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/rpc"
	"github.com/streamspace-dev/pluginrt/internal/rterrors"
)

// Registry resolves a plugin name to its RPC binder.
type Registry interface {
	Binder(pluginName string) (*rpc.Binder, bool)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades HTTP connections and dispatches RPC frames against a
// Registry. One Server's Hub backs every plugin's server-push Pusher.
type Server struct {
	hub      *Hub
	registry Registry
}

// NewServer builds a Server and starts its Hub's Run loop.
func NewServer(registry Registry) *Server {
	s := &Server{hub: NewHub(), registry: registry}
	go s.hub.Run()
	return s
}

// Handler upgrades the request to a websocket connection and serves
// RPC frames until the peer disconnects.
func (s *Server) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Transport().Warn().Err(err).Msg("websocket upgrade failed")
			return
		}
		conn := newConn(s.hub, wsConn)
		s.hub.register <- conn
		go conn.writePump()
		conn.readPump(func(frame Frame) (Frame, bool) {
			return s.dispatch(frame, conn)
		})
	}
}

// Pusher returns a server.Pusher-compatible adapter for one plugin,
// backed by this Server's Hub.
func (s *Server) Pusher(pluginName string) *PushAdapter {
	return &PushAdapter{hub: s.hub, plugin: pluginName}
}

func (s *Server) dispatch(frame Frame, conn *Conn) (Frame, bool) {
	pluginName, rest, ok := rpc.ParseOp(frame.Op)
	if !ok {
		return errorFrame(frame.ID, rterrors.New(rterrors.Validation, "malformed op "+frame.Op)), true
	}

	binder, ok := s.registry.Binder(pluginName)
	if !ok {
		return errorFrame(frame.ID, rterrors.New(rterrors.NotFound, "unknown plugin "+pluginName)), true
	}
	s.hub.attach(pluginName, conn)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case strings.HasPrefix(rest, "methods."):
		methodName := strings.TrimPrefix(rest, "methods.")
		var input map[string]any
		_ = json.Unmarshal(frame.Payload, &input)
		return resultFrame(frame.ID, binder.HandleMethod(ctx, methodName, input)), true

	case rest == "events.emit":
		var req rpc.EmitRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			return errorFrame(frame.ID, rterrors.Wrap(rterrors.Validation, "malformed emit payload", err)), true
		}
		return resultFrame(frame.ID, binder.HandleEmit(ctx, req)), true

	case rest == "events.subscribe":
		var req rpc.SubscribeRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			return errorFrame(frame.ID, rterrors.Wrap(rterrors.Validation, "malformed subscribe payload", err)), true
		}
		s.hub.bindListener(req.ListenerID, conn)
		return resultFrame(frame.ID, binder.HandleSubscribe(ctx, req)), true

	case rest == "events.unsubscribe":
		var req rpc.UnsubscribeRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			return errorFrame(frame.ID, rterrors.Wrap(rterrors.Validation, "malformed unsubscribe payload", err)), true
		}
		return resultFrame(frame.ID, binder.HandleUnsubscribe(ctx, req)), true

	case rest == "context.get":
		return resultFrame(frame.ID, binder.HandleContextGet(ctx)), true

	default:
		return errorFrame(frame.ID, rterrors.New(rterrors.NotFound, "unknown rpc operation "+frame.Op)), true
	}
}

func resultFrame[T any](id string, result rpc.Result[T]) Frame {
	payload, _ := json.Marshal(result)
	return Frame{ID: id, Result: payload}
}

func errorFrame(id string, err *rterrors.Error) Frame {
	return resultFrame(id, rpc.Fail[any](err))
}

// PushAdapter implements server.Pusher over one Server's Hub for one
// plugin instance.
type PushAdapter struct {
	hub    *Hub
	plugin string
}

func (p *PushAdapter) PushEventCallback(ctx context.Context, listenerID string, event plugin.EventInstance) error {
	conn, ok := p.hub.connForListener(listenerID)
	if !ok {
		return nil
	}
	payload, err := json.Marshal(rpc.EventCallbackPush{ListenerID: listenerID, Event: event})
	if err != nil {
		return err
	}
	conn.push(Frame{Op: rpc.EventsCallbackOp(p.plugin), Payload: payload})
	return nil
}

func (p *PushAdapter) PushContextChanged(ctx context.Context, value map[string]any, timestampMs int64) error {
	payload, err := json.Marshal(rpc.ContextChangedPush{Value: value, Timestamp: timestampMs})
	if err != nil {
		return err
	}
	frame := Frame{Op: rpc.ContextChangedOp(p.plugin), Payload: payload}
	for _, conn := range p.hub.connsForPlugin(p.plugin) {
		conn.push(frame)
	}
	return nil
}
