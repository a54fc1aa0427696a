// Package server implements the Plugin Server Instance: the runtime
// realization of one plugin descriptor. It owns the plugin's context,
// event queue, and listeners; wires RPC pushes; and runs the event
// pipeline (external interceptors -> effects -> service fan-out ->
// listener dispatch).
package server

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamspace-dev/pluginrt/internal/clone"
	"github.com/streamspace-dev/pluginrt/internal/depview"
	"github.com/streamspace-dev/pluginrt/internal/interceptor"
	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/queue"
	"github.com/streamspace-dev/pluginrt/internal/rterrors"
	"github.com/streamspace-dev/pluginrt/internal/telemetry"
)

// Pusher delivers the two transport-side server-push RPCs: remote
// listener callbacks and context-changed notifications. Implemented by
// an internal/transport adapter and supplied per plugin by the host.
type Pusher interface {
	PushEventCallback(ctx context.Context, listenerID string, event plugin.EventInstance) error
	PushContextChanged(ctx context.Context, value map[string]any, timestampMs int64) error
}

type noopPusher struct{}

func (noopPusher) PushEventCallback(context.Context, string, plugin.EventInstance) error { return nil }
func (noopPusher) PushContextChanged(context.Context, map[string]any, int64) error        { return nil }

type eventListener struct {
	id       string
	selector plugin.Selector
	callback func(ctx context.Context, event plugin.EventInstance) // nil for remote listeners
	remote   bool
}

type contextListener struct {
	id         string
	projection func(ctx map[string]any) any
	callback   func(newVal, oldVal any)
	last       any
}

// Server is the runtime realization of a plugin descriptor.
type Server struct {
	desc      *plugin.Descriptor
	agentID   string
	telemetry *telemetry.Client
	pusher    Pusher
	depLookup depview.Lookup

	config map[string]any

	stateMu sync.Mutex // guards ctxValue, listeners, contextListeners
	ctxValue map[string]any

	listeners        map[string]*eventListener
	contextListeners map[string]*contextListener

	producerInterceptors *interceptor.Registry // interceptors OTHER plugins attached to us

	mainQueue    *queue.Queue[plugin.EventInstance]
	serviceQueues []*queue.Queue[plugin.EventInstance]

	onErrorMu sync.Mutex
}

// Options configures New.
type Options struct {
	AgentID   string
	Pusher    Pusher
	DepLookup depview.Lookup
	Telemetry *telemetry.Client // parent client; New derives a plugin.server-scoped child
}

// New constructs a Server instance: it parses config and initial context
// (failing fatally with a Validation error on either), initializes a
// telemetry child client scoped "plugin.server" with plugin name and
// agent identity as required attributes, and prepares RPC-reachable
// state. It does not start the pump goroutine — call Start for that.
func New(desc *plugin.Descriptor, config, initialContext map[string]any, opts Options) (*Server, *rterrors.Error) {
	if opts.Pusher == nil {
		opts.Pusher = noopPusher{}
	}
	if opts.DepLookup == nil {
		opts.DepLookup = func(string) (depview.Instance, bool) { return nil, false }
	}

	parsedConfig := config
	if desc.ConfigValidator != nil {
		var err error
		parsedConfig, err = desc.ConfigValidator(config)
		if err != nil {
			return nil, rterrors.Wrap(rterrors.Validation, "plugin "+desc.Name+": invalid config", err)
		}
	}

	parsedContext := initialContext
	if desc.ContextValidator != nil {
		var err error
		parsedContext, err = desc.ContextValidator(initialContext)
		if err != nil {
			return nil, rterrors.Wrap(rterrors.Validation, "plugin "+desc.Name+": invalid initial context", err)
		}
	}

	client := opts.Telemetry
	if client == nil {
		client = telemetry.NewClient("plugin.server", telemetry.Resource{Platform: "server"})
	} else {
		client = client.Scoped("plugin.server")
	}
	client.SetAttributes(map[string]any{"plugin": desc.Name, "agentId": opts.AgentID})
	client.RequireScopeAttributes("plugin.server", "plugin", "agentId")

	s := &Server{
		desc:                 desc,
		agentID:              opts.AgentID,
		telemetry:            client,
		pusher:               opts.Pusher,
		depLookup:            opts.DepLookup,
		config:               parsedConfig,
		ctxValue:             clone.Clone(parsedContext).(map[string]any),
		listeners:            map[string]*eventListener{},
		contextListeners:     map[string]*contextListener{},
		producerInterceptors: interceptor.New(),
		mainQueue:            queue.New[plugin.EventInstance](),
	}

	for range desc.Services {
		s.serviceQueues = append(s.serviceQueues, queue.New[plugin.EventInstance]())
	}

	return s, nil
}

// Name returns the plugin's name.
func (s *Server) Name() string { return s.desc.Name }

// Descriptor returns the plugin's descriptor.
func (s *Server) Descriptor() *plugin.Descriptor { return s.desc }

// ProducerInterceptors returns the append-only registry of interceptors
// other plugins have attached to this one, for internal/host to populate
// during dependency wiring.
func (s *Server) ProducerInterceptors() *interceptor.Registry { return s.producerInterceptors }

// Telemetry exposes this plugin's scoped telemetry client, so
// internal/host can run a consumer's interceptors within the consumer's
// own telemetry scope (spec.md §4.E).
func (s *Server) Telemetry() *telemetry.Client { return s.telemetry }

// SelfView builds this plugin's own DependencyView, for internal/host to
// pass as an interceptor's CurrentView.
func (s *Server) SelfView() plugin.DependencyView { return s.selfDependencyView() }

// Config returns this plugin's parsed config (depview.Instance).
func (s *Server) Config() map[string]any { return s.config }

// QueueDepth reports the current depth of the main event queue, for
// internal/metrics to expose as a gauge.
func (s *Server) QueueDepth() int { return s.mainQueue.Len() }

// ContextSnapshot returns a deep clone of the current context
// (depview.Instance / the public Get()).
func (s *Server) ContextSnapshot() map[string]any {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return clone.Clone(s.ctxValue).(map[string]any)
}

// EventTypes lists this plugin's declared event type names
// (depview.Instance).
func (s *Server) EventTypes() []string {
	out := make([]string, 0, len(s.desc.Events))
	for t := range s.desc.Events {
		out = append(out, t)
	}
	return out
}

// MethodNames lists this plugin's declared method names
// (depview.Instance).
func (s *Server) MethodNames() []string {
	out := make([]string, 0, len(s.desc.Methods))
	for m := range s.desc.Methods {
		out = append(out, m)
	}
	return out
}

// Get returns a deep clone of the current context. External reads never
// see the live context by reference.
func (s *Server) Get() map[string]any {
	return s.ContextSnapshot()
}

// Set computes the new whole-context value via updater (which receives a
// deep clone of the current context), stores a fresh deep clone, then
// schedules listener notification. Concurrent Set calls are serialized by
// stateMu: last-writer-wins via deep-clone semantics, matching spec.md §9
// Open Question 4 exactly (no optimistic concurrency token).
func (s *Server) Set(ctx context.Context, updater func(current map[string]any) map[string]any) {
	s.stateMu.Lock()
	oldCtx := clone.Clone(s.ctxValue).(map[string]any)
	newCtx := updater(clone.Clone(s.ctxValue).(map[string]any))
	s.ctxValue = clone.Clone(newCtx).(map[string]any)
	listeners := make([]*contextListener, 0, len(s.contextListeners))
	for _, cl := range s.contextListeners {
		listeners = append(listeners, cl)
	}
	s.stateMu.Unlock()

	s.notifyContextChange(ctx, listeners, oldCtx, s.ctxValue)
}

func (s *Server) notifyContextChange(ctx context.Context, listeners []*contextListener, oldCtx, newCtx map[string]any) {
	var wg sync.WaitGroup
	for _, cl := range listeners {
		cl := cl
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.recoverInto(ctx, "context listener")
			newProjection := cl.projection(newCtx)
			oldProjection := cl.projection(oldCtx)
			if !clone.Equal(newProjection, oldProjection) {
				cl.callback(newProjection, oldProjection)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		nowMs := time.Now().UnixMilli()
		if err := s.pusher.PushContextChanged(ctx, clone.Clone(newCtx).(map[string]any), nowMs); err != nil {
			logger.Plugin().Warn().Err(err).Str("plugin", s.desc.Name).Msg("context.changed push failed")
		}
	}()

	wg.Wait()
}

// OnChange registers a context listener. callback fires only when
// projection(newCtx) is not structurally equal to projection(oldCtx).
func (s *Server) OnChange(projection func(ctx map[string]any) any, callback func(newVal, oldVal any)) (unsubscribe func()) {
	id := uuid.NewString()
	s.stateMu.Lock()
	s.contextListeners[id] = &contextListener{id: id, projection: projection, callback: callback}
	s.stateMu.Unlock()

	return func() {
		s.stateMu.Lock()
		delete(s.contextListeners, id)
		s.stateMu.Unlock()
	}
}

func (s *Server) recoverInto(ctx context.Context, where string) {
	if r := recover(); r != nil {
		logger.Plugin().Error().Interface("panic", r).Str("plugin", s.desc.Name).Str("where", where).Msg("recovered panic")
		s.telemetry.Error(ctx, telemetry.LogInput{Message: where + " panicked", Attributes: map[string]any{"panic": r}})
		s.runOnError(ctx, rterrors.AsUnknown(asError(r)))
	}
}

func asError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return rterrors.New(rterrors.Unknown, toMessage(r))
}

func toMessage(r any) string {
	if s, ok := r.(string); ok {
		return s
	}
	return "panic"
}

func (s *Server) runOnError(ctx context.Context, cause error) {
	if s.desc.Lifecycle.OnError == nil {
		return
	}
	s.onErrorMu.Lock()
	defer s.onErrorMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			// Exceptions inside onError are swallowed and logged.
			logger.Plugin().Error().Interface("panic", r).Str("plugin", s.desc.Name).Msg("onError hook panicked")
		}
	}()
	s.desc.Lifecycle.OnError(ctx, cause)
}
