// Package plugin implements the Plugin Definition Model: an immutable
// declarative descriptor assembled one facet at a time by a Builder.
package plugin

import "context"

// EventDef is one entry of a plugin's event definition map: a type name
// to an optional data schema validator. DataValidator is nil when the
// event carries no data.
type EventDef struct {
	Type          string
	DataValidator func(data map[string]any) (map[string]any, error)
}

// MethodDef is {inputSchema, outputSchema, run}. Run sees config, a
// writable context handle and an event emitter through its MethodRuntime,
// and its telemetry span as the ambient span of ctx (all supplied by
// internal/server at invocation time, not stored on the descriptor).
type MethodDef struct {
	Name           string
	ValidateInput  func(input map[string]any) (map[string]any, error)
	ValidateOutput func(output map[string]any) (map[string]any, error)
	Run            MethodFunc
}

// MethodFunc is the user-supplied method body. It returns either the
// output map or an error; an *rterrors.Error keeps its code as the
// method's failure.
type MethodFunc func(ctx context.Context, rt MethodRuntime, input map[string]any) (map[string]any, error)

// MethodRuntime is the surface a method body receives: config, a
// writable context handle, and an event emitter. The method's span is not
// part of it; it travels in ctx as the ambient span.
// Concrete implementations live in internal/server to avoid an import
// cycle between plugin and server.
type MethodRuntime interface {
	Config() map[string]any
	Context() ContextHandle
	Emit(ctx context.Context, eventType string, data map[string]any, urgent bool) (string, error)
}

// ContextHandle is the writable context surface given to effects and
// methods.
type ContextHandle interface {
	Get() map[string]any
	Set(ctx context.Context, updater func(current map[string]any) map[string]any)
}

// Effect reacts to each event and may mutate the owning plugin's context.
type Effect func(ctx context.Context, handle ContextHandle, event EventInstance) error

// EventInstance is an emitted event as it flows through the pipeline.
type EventInstance struct {
	ID     string
	Type   string
	Data   map[string]any
	Urgent bool
}

// ServiceDef is a long-running coroutine consuming a private copy of the
// event stream.
type ServiceDef struct {
	Name string
	Run  func(ctx context.Context, events <-chan EventInstance, emit EmitFunc)
}

// EmitFunc lets a service (or interceptor) emit events back through the
// owning plugin's pipeline.
type EmitFunc func(ctx context.Context, eventType string, data map[string]any, urgent bool) (string, error)

// Interceptor is attached to plugin D (the dependency) by plugin P (the
// consumer) when D is declared in P's dependencies. It runs in P's
// telemetry scope but mutates D's in-flight event.
type Interceptor func(ctx context.Context, event EventInstance, next func(EventInstance), drop func(reason string), dependency DependencyView, current DependencyView)

// DependencyView is the read-only projection of another plugin's runtime
// surface exposed to effects, services, and interceptors.
type DependencyView struct {
	Name       string
	Descriptor *Descriptor
	Config     map[string]any
	Context    func() map[string]any // deep-clone read
	Events     []string
	Methods    []string
}

// LifecycleHooks are optional hooks invoked within their own telemetry
// spans. OnRestart is run only by Server.Restart; Server.Start does not
// run it.
type LifecycleHooks struct {
	OnStart   func(ctx context.Context) error
	OnRestart func(ctx context.Context) error
	OnStop    func(ctx context.Context) error
	OnError   func(ctx context.Context, cause error)
}

// CronJobDef is an opt-in periodic service driven by a cron expression
// rather than a bare event-stream consumer: internal/scheduler runs Run
// on Expr's schedule instead of the plugin maintaining its own ticker.
// This is a domain enrichment beyond the core Service definition, not a
// replacement for it — a plugin may declare both.
type CronJobDef struct {
	Name string
	Expr string
	Run  func(ctx context.Context, rt MethodRuntime) error
}

// Descriptor is the immutable, fully assembled plugin definition.
type Descriptor struct {
	Name             string
	ConfigValidator  func(config map[string]any) (map[string]any, error)
	ContextValidator func(context map[string]any) (map[string]any, error)
	Events           map[string]EventDef
	Methods          map[string]MethodDef
	Lifecycle        LifecycleHooks
	Effects          []Effect
	Services         []ServiceDef
	Interceptors     []Interceptor
	Dependencies     map[string]*Descriptor
	CronJobs         []CronJobDef
}

// Pick returns d itself, for use in another plugin's WithDependency call.
// No narrowed type is produced: any narrowing is a consumer-side contract
// only, and the entire descriptor is carried at runtime.
func Pick(d *Descriptor) *Descriptor { return d }
