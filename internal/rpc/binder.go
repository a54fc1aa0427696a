package rpc

import (
	"context"
	"time"

	"github.com/streamspace-dev/pluginrt/internal/rterrors"
	"github.com/streamspace-dev/pluginrt/internal/server"
)

// Binder adapts one plugin's *server.Server to the dotted-name RPC
// surface described in spec.md §4.F. Transport adapters register each
// Handle* method under the corresponding *Op wire name.
type Binder struct {
	Plugin string
	Server *server.Server
}

// New builds a Binder for one plugin server instance.
func New(pluginName string, s *server.Server) *Binder {
	return &Binder{Plugin: pluginName, Server: s}
}

// EmitRequest is the request body for events.emit.
type EmitRequest struct {
	Type   string         `json:"type"`
	Data   map[string]any `json:"data,omitempty"`
	Urgent bool           `json:"urgent,omitempty"`
}

// EmitResponse is the response body for events.emit.
type EmitResponse struct {
	ID string `json:"id"`
}

// SubscribeRequest is the request body for events.subscribe.
type SubscribeRequest struct {
	ListenerID string       `json:"listenerId"`
	Selector   SelectorWire `json:"selector"`
}

// UnsubscribeRequest is the request body for events.unsubscribe.
type UnsubscribeRequest struct {
	ListenerID string `json:"listenerId"`
}

// EventCallbackPush is the server-push payload for events.callback.
type EventCallbackPush struct {
	ListenerID string `json:"listenerId"`
	Event      any    `json:"event"`
}

// ContextGetResponse is the response body for context.get.
type ContextGetResponse struct {
	Value     map[string]any `json:"value"`
	Timestamp int64          `json:"timestamp"`
}

// ContextChangedPush is the server-push payload for context.changed.
type ContextChangedPush struct {
	Value     map[string]any `json:"value"`
	Timestamp int64          `json:"timestamp"`
}

// HandleMethod dispatches plugin.<name>.methods.<m>.
func (b *Binder) HandleMethod(ctx context.Context, methodName string, input map[string]any) Result[map[string]any] {
	out, err := b.Server.CallMethod(ctx, methodName, input)
	if err != nil {
		return Fail[map[string]any](err)
	}
	return Ok(out)
}

// HandleEmit dispatches plugin.<name>.events.emit.
func (b *Binder) HandleEmit(ctx context.Context, req EmitRequest) Result[EmitResponse] {
	id, err := b.Server.Emit(ctx, req.Type, req.Data, req.Urgent)
	if err != nil {
		return Fail[EmitResponse](err)
	}
	return Ok(EmitResponse{ID: id})
}

// HandleSubscribe dispatches plugin.<name>.events.subscribe. Subscribe
// never fails on the runtime side; it always installs a remote listener.
func (b *Binder) HandleSubscribe(ctx context.Context, req SubscribeRequest) Result[struct{}] {
	b.Server.Subscribe(req.ListenerID, req.Selector.Selector)
	return Ok(struct{}{})
}

// HandleUnsubscribe dispatches plugin.<name>.events.unsubscribe.
func (b *Binder) HandleUnsubscribe(ctx context.Context, req UnsubscribeRequest) Result[struct{}] {
	if err := b.Server.Unsubscribe(req.ListenerID); err != nil {
		return Fail[struct{}](err)
	}
	return Ok(struct{}{})
}

// HandleContextGet dispatches plugin.<name>.context.get.
func (b *Binder) HandleContextGet(ctx context.Context) Result[ContextGetResponse] {
	return Ok(ContextGetResponse{
		Value:     b.Server.Get(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// NotFoundResult builds a NotFound failure for an unrecognized op name,
// used by transport adapters when no Handle* matches the dispatched op.
func NotFoundResult[T any](op string) Result[T] {
	return Fail[T](rterrors.New(rterrors.NotFound, "unknown rpc operation "+op))
}
