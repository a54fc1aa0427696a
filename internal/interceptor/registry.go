// Package interceptor implements the Interceptor Registry: an append-only
// per-producer-plugin list of cross-plugin interceptors, populated when a
// consumer plugin declares the producer as a dependency and attaches
// interceptors to it during wiring.
package interceptor

import (
	"context"

	"github.com/streamspace-dev/pluginrt/internal/plugin"
)

// Entry is one registered interceptor, fully bound at registration time
// by internal/host (the only party that holds references to both the
// producer and consumer Server instances):
//   - ConsumerName identifies the consumer for diagnostics.
//   - Fn is the interceptor body.
//   - CurrentView supplies the consumer's own DependencyView on demand.
//   - WithConsumerScope runs fn inside the consumer's telemetry span,
//     since an interceptor "runs in the consumer's telemetry scope but
//     mutates the producer's in-flight event" (spec.md §4.E).
type Entry struct {
	ConsumerName     string
	Fn               plugin.Interceptor
	CurrentView      func() plugin.DependencyView
	WithConsumerScope func(ctx context.Context, fn func(ctx context.Context))
}

// Registry is the append-only interceptor list attached to one producer
// plugin. There is no removal API — per spec.md §9 Open Question 2, this
// is accepted as specified; a production deployment that cycles a
// plugin's init() repeatedly would leak entries, and this port does not
// add teardown beyond what spec.md documents.
type Registry struct {
	entries []Entry
}

// New creates an empty registry.
func New() *Registry { return &Registry{} }

// Register appends one interceptor. Order of invocation equals order of
// registration: dependency declaration order times interceptor
// declaration order within each consumer, since internal/host registers
// in that order while wiring.
func (r *Registry) Register(e Entry) {
	r.entries = append(r.entries, e)
}

// Len reports how many interceptors are registered.
func (r *Registry) Len() int { return len(r.entries) }

// Run invokes every registered interceptor sequentially in registration
// order against event, in the context of dependency (the producer's own
// view). It returns the (possibly replaced) event and whether any
// interceptor called drop; once dropped, later stages are skipped but the
// interceptor that called drop still runs to completion first (drop is
// soft, per spec.md §5).
func Run(ctx context.Context, r *Registry, event plugin.EventInstance, dependency plugin.DependencyView) (plugin.EventInstance, bool) {
	current := event
	dropped := false

	for _, entry := range r.entries {
		if dropped {
			break
		}
		entryEvent := current
		entry.WithConsumerScope(ctx, func(ctx context.Context) {
			entry.Fn(
				ctx,
				entryEvent,
				func(replacement plugin.EventInstance) { current = replacement },
				func(reason string) { dropped = true },
				dependency,
				entry.CurrentView(),
			)
		})
	}

	return current, dropped
}
