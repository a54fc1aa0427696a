// Package depview implements Dependency Wiring: a read-only projection of
// each dependency's config/context/events/methods, rebuilt on every event
// dispatch so effects and services never capture a stale view.
package depview

import (
	"github.com/streamspace-dev/pluginrt/internal/plugin"
)

// Instance is the subset of a running Plugin Server Instance that
// dependency views need. internal/server's *Server implements this; the
// interface lives here (rather than importing internal/server) to avoid
// an import cycle, since internal/server imports internal/depview.
type Instance interface {
	Config() map[string]any
	ContextSnapshot() map[string]any
	EventTypes() []string
	MethodNames() []string
}

// Lookup resolves a dependency name to its currently registered running
// instance. Implemented by internal/host's plugin registry.
type Lookup func(name string) (Instance, bool)

// Build rebuilds the dependency view map for deps, using lookup to find
// each dependency's currently registered instance. Missing dependencies
// are silently skipped — the plugin is expected to tolerate partial
// deployment, per spec.md §4.G and the resolved Open Question 1 in
// SPEC_FULL.md §9.
func Build(deps map[string]*plugin.Descriptor, lookup Lookup) map[string]plugin.DependencyView {
	out := make(map[string]plugin.DependencyView, len(deps))
	for name, desc := range deps {
		inst, ok := lookup(name)
		if !ok {
			continue
		}
		out[name] = plugin.DependencyView{
			Name:       name,
			Descriptor: desc,
			Config:     inst.Config(),
			Context:    inst.ContextSnapshot,
			Events:     inst.EventTypes(),
			Methods:    inst.MethodNames(),
		}
	}
	return out
}
