// Package host implements the plugin registry and dependency/
// interceptor wiring: the process-wide authority that owns every
// plugin's *server.Server instance, resolves dependency views, and
// attaches a consumer's interceptors to each of its declared
// dependencies at registration time. Grounded on the teacher's
// internal/plugins global registry (auto-registration, no unregister)
// and runtime (lifecycle orchestration across plugin instances).
package host

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamspace-dev/pluginrt/internal/depview"
	"github.com/streamspace-dev/pluginrt/internal/interceptor"
	"github.com/streamspace-dev/pluginrt/internal/logger"
	"github.com/streamspace-dev/pluginrt/internal/metrics"
	"github.com/streamspace-dev/pluginrt/internal/plugin"
	"github.com/streamspace-dev/pluginrt/internal/rpc"
	"github.com/streamspace-dev/pluginrt/internal/rterrors"
	"github.com/streamspace-dev/pluginrt/internal/scheduler"
	"github.com/streamspace-dev/pluginrt/internal/server"
	"github.com/streamspace-dev/pluginrt/internal/telemetry"
)

// PusherFactory builds the transport-side Pusher for one plugin
// instance. internal/transport/wstransport.Server.Pusher satisfies this.
type PusherFactory func(pluginName string) server.Pusher

// Host owns every running plugin server instance. There is no
// unregister for interceptors once wired — matching spec.md §9 Open
// Question 2 — but RemovePlugin drops the whole producer, which is the
// one supported teardown path.
type Host struct {
	mu         sync.RWMutex
	servers    map[string]*server.Server
	binders    map[string]*rpc.Binder
	metricsReg map[string]prometheus.Collector

	telemetryRoot *telemetry.Client
	pusherFor     PusherFactory
	agentID       string
	scheduler     *scheduler.Scheduler
}

// New builds an empty Host. pusherFor may be nil, in which case plugins
// get a no-op pusher (no remote listeners, no context.changed push).
func New(agentID string, telemetryRoot *telemetry.Client, pusherFor PusherFactory) *Host {
	return &Host{
		servers:       map[string]*server.Server{},
		binders:       map[string]*rpc.Binder{},
		metricsReg:    map[string]prometheus.Collector{},
		telemetryRoot: telemetryRoot,
		pusherFor:     pusherFor,
		agentID:       agentID,
		scheduler:     scheduler.New(),
	}
}

// StopScheduler releases the Host's shared cron instance. Call during
// process shutdown, after every plugin has been stopped.
func (h *Host) StopScheduler() { h.scheduler.Stop() }

// AddPlugin constructs and starts a Server for desc, wires its
// interceptors onto every already-registered dependency, and registers
// it for RPC dispatch and dependency lookup.
func (h *Host) AddPlugin(ctx context.Context, desc *plugin.Descriptor, config, initialContext map[string]any) (*server.Server, *rterrors.Error) {
	var pusher server.Pusher
	if h.pusherFor != nil {
		pusher = h.pusherFor(desc.Name)
	}

	s, err := server.New(desc, config, initialContext, server.Options{
		AgentID:   h.agentID,
		Pusher:    pusher,
		DepLookup: h.Lookup,
		Telemetry: h.telemetryRoot,
	})
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.servers[desc.Name] = s
	h.binders[desc.Name] = rpc.New(desc.Name, s)
	h.metricsReg[desc.Name] = metrics.RegisterQueueDepthGauge(desc.Name, "main", s.QueueDepth)
	h.mu.Unlock()

	h.wireInterceptors(s)
	s.Start(ctx)

	for _, job := range desc.CronJobs {
		if err := h.scheduler.Schedule(desc.Name, job, s); err != nil {
			logger.Plugin().Warn().Err(err).Str("plugin", desc.Name).Str("job", job.Name).Msg("cron job not scheduled")
		}
	}

	return s, nil
}

// RemovePlugin stops and drops a plugin's Server instance. Interceptors
// consumers had attached to it become unreachable along with it; there
// is no partial teardown.
func (h *Host) RemovePlugin(ctx context.Context, name string) {
	h.mu.Lock()
	s, ok := h.servers[name]
	delete(h.servers, name)
	delete(h.binders, name)
	collector := h.metricsReg[name]
	delete(h.metricsReg, name)
	h.mu.Unlock()

	metrics.Unregister(collector)
	h.scheduler.RemovePlugin(name)
	if ok {
		s.Stop(ctx)
	}
}

// Lookup implements depview.Lookup: resolving another plugin's Server
// as a depview.Instance.
func (h *Host) Lookup(name string) (depview.Instance, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.servers[name]
	if !ok {
		return nil, false
	}
	return s, true
}

// Binder implements httptransport.Registry / wstransport.Registry.
func (h *Host) Binder(name string) (*rpc.Binder, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	b, ok := h.binders[name]
	return b, ok
}

// Get returns a plugin's Server instance directly, for callers that
// hold a reference to the Host rather than going through RPC.
func (h *Host) Get(name string) (*server.Server, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.servers[name]
	return s, ok
}

// wireInterceptors attaches every interceptor consumer declares to
// every dependency it declares, per spec.md §4.E: "for each of this
// plugin's interceptors and each of its declared dependencies D, call
// D.registerExternalInterceptor(...)". A dependency not yet registered
// is silently skipped — it never receives this consumer's interceptors,
// even if added to the Host later (spec.md §9 Open Question 1 applies
// the same way to interceptor wiring as to dependency views).
func (h *Host) wireInterceptors(consumer *server.Server) {
	desc := consumer.Descriptor()
	if len(desc.Interceptors) == 0 || len(desc.Dependencies) == 0 {
		return
	}

	h.mu.RLock()
	producers := make([]*server.Server, 0, len(desc.Dependencies))
	for depName := range desc.Dependencies {
		if p, ok := h.servers[depName]; ok {
			producers = append(producers, p)
		}
	}
	h.mu.RUnlock()

	for _, producer := range producers {
		for _, fn := range desc.Interceptors {
			producer.ProducerInterceptors().Register(interceptor.Entry{
				ConsumerName: consumer.Name(),
				Fn:           fn,
				CurrentView:  consumer.SelfView,
				WithConsumerScope: func(ctx context.Context, run func(context.Context)) {
					_, _ = telemetry.Trace(ctx, consumer.Telemetry(), "plugin."+consumer.Name()+".interceptor", func(ctx context.Context, _ *telemetry.Span) (any, error) {
						run(ctx)
						return nil, nil
					})
				},
			})
		}
	}
}
