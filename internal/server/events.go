package server

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamspace-dev/pluginrt/internal/clone"
	"github.com/streamspace-dev/pluginrt/internal/depview"
	"github.com/streamspace-dev/pluginrt/internal/interceptor"
	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/metrics"
	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/rterrors"
	"github.com/streamspace-dev/pluginrt/internal/telemetry"
)

// Emit validates and enqueues an event. Unknown types and data-without-
// schema are rejected with a tagged error; internal callers that require
// a thrown error should check the returned *rterrors.Error themselves —
// this port never panics across the public Server surface.
func (s *Server) Emit(ctx context.Context, eventType string, data map[string]any, urgent bool) (string, *rterrors.Error) {
	def, ok := s.desc.Events[eventType]
	if !ok {
		return "", rterrors.New(rterrors.NotFound, "unknown event type "+eventType)
	}

	if data != nil && def.DataValidator == nil {
		return "", rterrors.New(rterrors.Validation, "event "+eventType+" does not accept data")
	}
	if def.DataValidator != nil {
		validated, err := def.DataValidator(data)
		if err != nil {
			return "", rterrors.Wrap(rterrors.Validation, "event "+eventType+" data failed validation", err)
		}
		data = validated
	}

	id := uuid.NewString()
	inst := plugin.EventInstance{ID: id, Type: eventType, Data: data, Urgent: urgent}
	if urgent {
		s.mainQueue.PushFirst(inst)
	} else {
		s.mainQueue.Push(inst)
	}
	return id, nil
}

// On registers a local event listener. callback runs concurrently with
// other matching listeners during dispatch.
func (s *Server) On(selector plugin.Selector, callback func(ctx context.Context, event plugin.EventInstance)) (unsubscribe func()) {
	id := uuid.NewString()
	s.stateMu.Lock()
	s.listeners[id] = &eventListener{id: id, selector: selector, callback: callback}
	s.stateMu.Unlock()
	return func() { s.removeListener(id) }
}

// Once wraps On: it unsubscribes before invoking callback. If selector
// never matches before shutdown, the listener leaks — spec.md §9 Open
// Question 3 documents this as undefined behavior and this port does not
// add a shutdown-time sweep.
func (s *Server) Once(selector plugin.Selector, callback func(ctx context.Context, event plugin.EventInstance)) (unsubscribe func()) {
	var unsub func()
	unsub = s.On(selector, func(ctx context.Context, event plugin.EventInstance) {
		unsub()
		callback(ctx, event)
	})
	return unsub
}

// Subscribe installs a remote listener whose callback marker is "remote":
// matching events are delivered via the Pusher's events.callback push
// instead of a local Go callback.
func (s *Server) Subscribe(listenerID string, selector plugin.Selector) {
	s.stateMu.Lock()
	s.listeners[listenerID] = &eventListener{id: listenerID, selector: selector, remote: true}
	s.stateMu.Unlock()
}

// Unsubscribe removes a listener (local or remote) by id. Unknown ids
// produce a NotFound error.
func (s *Server) Unsubscribe(listenerID string) *rterrors.Error {
	s.stateMu.Lock()
	_, ok := s.listeners[listenerID]
	delete(s.listeners, listenerID)
	s.stateMu.Unlock()
	if !ok {
		return rterrors.New(rterrors.NotFound, "listener "+listenerID+" not registered")
	}
	return nil
}

func (s *Server) removeListener(id string) {
	s.stateMu.Lock()
	delete(s.listeners, id)
	s.stateMu.Unlock()
}

// Start runs the pump goroutine consuming the main event queue, and one
// goroutine per declared service consuming its own sub-queue, then runs
// onStart (if any) before returning; call Stop to tear down.
func (s *Server) Start(ctx context.Context) {
	go s.pump(ctx)
	for i, svc := range s.desc.Services {
		go s.runService(ctx, i, svc)
	}
	if s.desc.Lifecycle.OnStart != nil {
		s.runHook(ctx, "onStart", s.desc.Lifecycle.OnStart)
	}
}

// Stop invokes onStop, then stops the main queue and the service queues.
// Stopping discards nothing: Queue.Next keeps returning events that were
// already queued and reports end-of-stream only once the queue is empty,
// so the pump processes them before it exits.
func (s *Server) Stop(ctx context.Context) {
	if s.desc.Lifecycle.OnStop != nil {
		s.runHook(ctx, "onStop", s.desc.Lifecycle.OnStop)
	}
	s.mainQueue.Stop()
	for _, sq := range s.serviceQueues {
		sq.Stop()
	}
}

// Restart runs onRestart within its own span; callers invoke this only
// when the hosting process signals a restart, per spec.md §4.D.
func (s *Server) Restart(ctx context.Context) {
	if s.desc.Lifecycle.OnRestart != nil {
		s.runHook(ctx, "onRestart", s.desc.Lifecycle.OnRestart)
	}
}

func (s *Server) runHook(ctx context.Context, name string, hook func(ctx context.Context) error) {
	_, _ = telemetry.Trace(ctx, s.telemetry, "plugin."+s.desc.Name+"."+name, func(ctx context.Context, span *telemetry.Span) (any, error) {
		defer s.recoverInto(ctx, name)
		if err := hook(ctx); err != nil {
			s.telemetry.Error(ctx, telemetry.LogInput{Message: name + " failed", Error: err})
			s.runOnError(ctx, err)
		}
		return nil, nil
	})
}

func (s *Server) pump(ctx context.Context) {
	for {
		evt, ok := s.mainQueue.Next(ctx)
		if !ok {
			return
		}
		s.processEvent(ctx, evt)
	}
}

// processEvent runs the five-stage event pipeline described in spec.md
// §4.D: external interceptors, effects, service fan-out, listener
// dispatch, with exceptions at any stage caught at this loop boundary.
func (s *Server) processEvent(ctx context.Context, evt plugin.EventInstance) {
	defer s.recoverInto(ctx, "event pipeline")
	timer := prometheus.NewTimer(metrics.DispatchDuration.WithLabelValues(s.desc.Name))
	defer timer.ObserveDuration()

	selfView := s.selfDependencyView()

	// Stage 1: external interceptors, sequential, in registration order.
	evt, dropped := interceptor.Run(ctx, s.producerInterceptors, evt, selfView)
	if dropped {
		return
	}

	// Stage 2: effects, sequential, in declaration order.
	for _, effect := range s.desc.Effects {
		effectEvt := plugin.EventInstance{
			ID:     evt.ID,
			Type:   evt.Type,
			Data:   clone.Clone(evt.Data).(map[string]any),
			Urgent: evt.Urgent,
		}
		if err := s.runEffect(ctx, effect, effectEvt); err != nil {
			s.telemetry.Error(ctx, telemetry.LogInput{Message: "effect failed", Error: err, Attributes: map[string]any{"event": evt.Type}})
			s.runOnError(ctx, err)
		}
	}

	// Stage 3: service sub-queue fan-out, a deep clone per service.
	for _, sq := range s.serviceQueues {
		sq.Push(plugin.EventInstance{
			ID:     evt.ID,
			Type:   evt.Type,
			Data:   clone.Clone(evt.Data).(map[string]any),
			Urgent: evt.Urgent,
		})
	}

	// Stage 4: listener dispatch, concurrent, no ordering among callbacks.
	s.dispatchListeners(ctx, evt)
}

func (s *Server) runEffect(ctx context.Context, effect plugin.Effect, evt plugin.EventInstance) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rterrors.AsUnknown(asError(r))
		}
	}()
	return effect(ctx, writableContext{s}, evt)
}

func (s *Server) dispatchListeners(ctx context.Context, evt plugin.EventInstance) {
	s.stateMu.Lock()
	matching := make([]*eventListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		if l.selector.Matches(evt.Type) {
			matching = append(matching, l)
		}
	}
	s.stateMu.Unlock()

	var wg sync.WaitGroup
	for _, l := range matching {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.recoverInto(ctx, "listener")
			if l.remote {
				if err := s.pusher.PushEventCallback(ctx, l.id, evt); err != nil {
					logger.Plugin().Warn().Err(err).Str("plugin", s.desc.Name).Str("listener", l.id).Msg("events.callback push failed")
				}
				return
			}
			l.callback(ctx, evt)
		}()
	}
	wg.Wait()
}

func (s *Server) runService(ctx context.Context, index int, svc plugin.ServiceDef) {
	sq := s.serviceQueues[index]
	ch := make(chan plugin.EventInstance)
	go func() {
		defer close(ch)
		for {
			evt, ok := sq.Next(ctx)
			if !ok {
				return
			}
			select {
			case ch <- evt:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer s.recoverInto(ctx, "service "+svc.Name)
	svc.Run(ctx, ch, func(ctx context.Context, eventType string, data map[string]any, urgent bool) (string, error) {
		id, err := s.Emit(ctx, eventType, data, urgent)
		if err != nil {
			return "", err
		}
		return id, nil
	})
}

func (s *Server) selfDependencyView() plugin.DependencyView {
	return plugin.DependencyView{
		Name:       s.desc.Name,
		Descriptor: s.desc,
		Config:     s.config,
		Context:    s.ContextSnapshot,
		Events:     s.EventTypes(),
		Methods:    s.MethodNames(),
	}
}

// DependencyViews rebuilds this plugin's dependency views, one per
// declared dependency, looked up fresh on every call (Component G:
// Dependency Wiring).
func (s *Server) DependencyViews() map[string]plugin.DependencyView {
	return depview.Build(s.desc.Dependencies, s.depLookup)
}

// writableContext adapts *Server to plugin.ContextHandle for effects and
// methods.
type writableContext struct{ s *Server }

func (w writableContext) Get() map[string]any { return w.s.Get() }
func (w writableContext) Set(ctx context.Context, updater func(current map[string]any) map[string]any) {
	w.s.Set(ctx, updater)
}
