package plugin

import "sync"

// Factory builds one plugin's Descriptor. Registered factories are
// invoked once at host bootstrap time.
type Factory func() (*Descriptor, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register attaches a named factory to the global registry, grounded on
// the teacher's internal/plugins auto-registration pattern: a plugin
// package calls Register from its own init(), so importing it for side
// effect (a blank import in cmd/pluginrtd) is enough to make it
// available to serve. There is no Unregister — matching the teacher,
// registration is append-only for the life of the process.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Registered returns every name currently in the global registry.
func Registered() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Build invokes the named factory, producing a fresh Descriptor.
func Build(name string) (*Descriptor, bool, error) {
	registryMu.Lock()
	factory, ok := registry[name]
	registryMu.Unlock()
	if !ok {
		return nil, false, nil
	}
	desc, err := factory()
	return desc, true, err
}
