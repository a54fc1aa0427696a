package plugin

import "fmt"

// Builder accumulates one facet of a Descriptor at a time. Each With...
// method returns a new Builder value rather than mutating in place, so a
// builder reference can be safely reused to branch into two different
// descriptors — only the value returned by Build matters at runtime.
//
// The distilled design relies on the host language's structural type
// narrowing to forbid configuring the same facet twice; Go has no such
// narrowing, so repeated facet calls here simply overwrite (events,
// methods) or append (effects, services, interceptors, dependencies),
// documented per method below.
type Builder struct {
	name             string
	configValidator  func(map[string]any) (map[string]any, error)
	contextValidator func(map[string]any) (map[string]any, error)
	events           map[string]EventDef
	methods          map[string]MethodDef
	lifecycle        LifecycleHooks
	effects          []Effect
	services         []ServiceDef
	interceptors     []Interceptor
	dependencies     map[string]*Descriptor
	cronJobs         []CronJobDef
}

// NewBuilder starts a descriptor for a plugin named name.
func NewBuilder(name string) Builder {
	return Builder{
		name:         name,
		events:       map[string]EventDef{},
		methods:      map[string]MethodDef{},
		dependencies: map[string]*Descriptor{},
	}
}

// WithConfigSchema sets the config validator. Config is parsed and
// validated once, at server-instance construction.
func (b Builder) WithConfigSchema(validate func(map[string]any) (map[string]any, error)) Builder {
	b.configValidator = validate
	return b
}

// WithContextSchema sets the context validator, applied to the initial
// context at server-instance construction.
func (b Builder) WithContextSchema(validate func(map[string]any) (map[string]any, error)) Builder {
	b.contextValidator = validate
	return b
}

// WithEvent declares one event type. Calling this again for the same
// type overwrites the prior definition.
func (b Builder) WithEvent(def EventDef) Builder {
	events := cloneEvents(b.events)
	events[def.Type] = def
	b.events = events
	return b
}

// WithMethod declares one method. Calling this again for the same name
// overwrites the prior definition.
func (b Builder) WithMethod(def MethodDef) Builder {
	methods := cloneMethods(b.methods)
	methods[def.Name] = def
	b.methods = methods
	return b
}

// WithLifecycle sets the optional lifecycle hooks.
func (b Builder) WithLifecycle(hooks LifecycleHooks) Builder {
	b.lifecycle = hooks
	return b
}

// WithEffect appends an effect, run in declaration order on every
// non-dropped event.
func (b Builder) WithEffect(e Effect) Builder {
	b.effects = append(append([]Effect{}, b.effects...), e)
	return b
}

// WithService appends a long-running service.
func (b Builder) WithService(s ServiceDef) Builder {
	b.services = append(append([]ServiceDef{}, b.services...), s)
	return b
}

// WithInterceptor appends an interceptor that the host attaches to every
// dependency this plugin declares via WithDependency and that is already
// registered when this plugin is added.
func (b Builder) WithInterceptor(i Interceptor) Builder {
	b.interceptors = append(append([]Interceptor{}, b.interceptors...), i)
	return b
}

// WithCronService appends a cron-scheduled job, run by internal/scheduler
// on job.Expr's schedule instead of a bare goroutine loop.
func (b Builder) WithCronService(job CronJobDef) Builder {
	b.cronJobs = append(append([]CronJobDef{}, b.cronJobs...), job)
	return b
}

// WithDependency declares a dependency on another plugin's descriptor,
// stored by name.
func (b Builder) WithDependency(name string, dep *Descriptor) Builder {
	deps := make(map[string]*Descriptor, len(b.dependencies)+1)
	for k, v := range b.dependencies {
		deps[k] = v
	}
	deps[name] = Pick(dep)
	b.dependencies = deps
	return b
}

// Build finalizes the descriptor. It never fails on its own — config and
// context are validated later, at server-instance construction, per
// spec.md §4.D — but it rejects a blank plugin name, which no downstream
// RPC name derivation could recover from.
func (b Builder) Build() (*Descriptor, error) {
	if b.name == "" {
		return nil, fmt.Errorf("plugin: descriptor requires a non-empty name")
	}
	return &Descriptor{
		Name:             b.name,
		ConfigValidator:  b.configValidator,
		ContextValidator: b.contextValidator,
		Events:           cloneEvents(b.events),
		Methods:          cloneMethods(b.methods),
		Lifecycle:        b.lifecycle,
		Effects:          append([]Effect{}, b.effects...),
		Services:         append([]ServiceDef{}, b.services...),
		Interceptors:     append([]Interceptor{}, b.interceptors...),
		Dependencies:     b.dependencies,
		CronJobs:         append([]CronJobDef{}, b.cronJobs...),
	}, nil
}

func cloneEvents(m map[string]EventDef) map[string]EventDef {
	out := make(map[string]EventDef, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMethods(m map[string]MethodDef) map[string]MethodDef {
	out := make(map[string]MethodDef, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
