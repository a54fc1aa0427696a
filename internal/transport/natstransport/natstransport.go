// Package natstransport adapts the RPC Binding Layer onto NATS
// request-reply, for hosting the plugin runtime across process
// boundaries. Grounded on the deleted internal/events/subscriber.go's
// connection-lifecycle shape (reconnect options, Start(ctx)/Close()
// surface), re-expressed against the RPC Binding Layer instead of the
// teacher's session/app domain subjects.
package natstransport

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/rpc"
	"github.com/streamspace-dev/pluginrt/internal/rterrors"
)

// subject is the single queue-grouped subject every RPC frame arrives
// on; the plugin name is carried in the frame's Op rather than split
// across multiple subjects, keeping one subscription per daemon.
const subject = "pluginrt.rpc"

const queueGroup = "pluginrtd"

// Registry resolves a plugin name to its RPC binder.
type Registry interface {
	Binder(pluginName string) (*rpc.Binder, bool)
}

// Frame is the wire envelope exchanged over NATS request-reply: Op
// names the dotted operation (e.g. "plugin.chat.methods.greet"),
// Payload carries its JSON request body.
type Frame struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Adapter owns one NATS connection and its RPC subscription.
type Adapter struct {
	url      string
	registry Registry
	conn     *nats.Conn
	sub      *nats.Subscription
}

// New builds an Adapter; call Start to connect and begin serving.
func New(url string, registry Registry) *Adapter {
	return &Adapter{url: url, registry: registry}
}

// Start connects to NATS with unlimited reconnect attempts
// (nats.MaxReconnects(-1), at the library's default reconnect wait) and
// subscribes subject in a
// queue group so multiple daemon instances load-balance requests for the
// same plugin set.
func (a *Adapter) Start(ctx context.Context) error {
	conn, err := nats.Connect(a.url,
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Transport().Warn().Err(err).Msg("nats transport disconnected")
			}
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			logger.Transport().Info().Msg("nats transport reconnected")
		}),
	)
	if err != nil {
		return err
	}

	sub, err := conn.QueueSubscribe(subject, queueGroup, a.handle)
	if err != nil {
		conn.Close()
		return err
	}

	a.conn = conn
	a.sub = sub
	return nil
}

// Close unsubscribes and drains the underlying connection.
func (a *Adapter) Close() error {
	if a.sub != nil {
		_ = a.sub.Unsubscribe()
	}
	if a.conn != nil {
		return a.conn.Drain()
	}
	return nil
}

func (a *Adapter) handle(msg *nats.Msg) {
	if msg.Reply == "" {
		return
	}

	var frame Frame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		a.reply(msg, rpc.Fail[any](rterrors.Wrap(rterrors.Validation, "malformed nats rpc frame", err)))
		return
	}

	pluginName, rest, ok := rpc.ParseOp(frame.Op)
	if !ok {
		a.reply(msg, rpc.Fail[any](rterrors.New(rterrors.Validation, "malformed op "+frame.Op)))
		return
	}

	binder, ok := a.registry.Binder(pluginName)
	if !ok {
		a.reply(msg, rpc.Fail[any](rterrors.New(rterrors.NotFound, "unknown plugin "+pluginName)))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch {
	case strings.HasPrefix(rest, "methods."):
		var input map[string]any
		_ = json.Unmarshal(frame.Payload, &input)
		a.reply(msg, binder.HandleMethod(ctx, strings.TrimPrefix(rest, "methods."), input))

	case rest == "events.emit":
		var req rpc.EmitRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			a.reply(msg, rpc.Fail[rpc.EmitResponse](rterrors.Wrap(rterrors.Validation, "malformed emit payload", err)))
			return
		}
		a.reply(msg, binder.HandleEmit(ctx, req))

	case rest == "events.subscribe":
		var req rpc.SubscribeRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			a.reply(msg, rpc.Fail[struct{}](rterrors.Wrap(rterrors.Validation, "malformed subscribe payload", err)))
			return
		}
		a.reply(msg, binder.HandleSubscribe(ctx, req))

	case rest == "events.unsubscribe":
		var req rpc.UnsubscribeRequest
		if err := json.Unmarshal(frame.Payload, &req); err != nil {
			a.reply(msg, rpc.Fail[struct{}](rterrors.Wrap(rterrors.Validation, "malformed unsubscribe payload", err)))
			return
		}
		a.reply(msg, binder.HandleUnsubscribe(ctx, req))

	case rest == "context.get":
		a.reply(msg, binder.HandleContextGet(ctx))

	default:
		a.reply(msg, rpc.NotFoundResult[any](frame.Op))
	}
}

func (a *Adapter) reply(msg *nats.Msg, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		logger.Transport().Error().Err(err).Msg("nats rpc result marshal failed")
		return
	}
	if err := msg.Respond(payload); err != nil {
		logger.Transport().Warn().Err(err).Msg("nats rpc reply failed")
	}
}
