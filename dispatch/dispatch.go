// Package dispatch implements the process-wide method invocation registry
// (spec §4.8): actorType -> Dispatcher -> methodName -> typed invocation,
// with per-parameter deserialization and return-value serialization.
package dispatch

import (
	"context"
	"sync"

	"github.com/fluxgrid/silo/envelope"
	sderrors "github.com/fluxgrid/silo/errors"
)

// Method is a single invokable method on an actor type: it decodes e's
// payload, invokes the underlying handler against target, and encodes the
// result back into a response payload.
type Method func(ctx context.Context, target interface{}, e *envelope.Envelope) ([]byte, error)

// Dispatcher holds every registered Method for one actor type.
type Dispatcher struct {
	mu      sync.Mutex
	frozen  bool
	methods map[string]Method
	lookup  map[string]Method
}

// NewDispatcher returns an empty, unfrozen Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{methods: map[string]Method{}}
}

// Register binds methodName to m. Fails once the Dispatcher is frozen.
func (d *Dispatcher) Register(methodName string, m Method) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return sderrors.Newf(sderrors.UnknownMethod, "dispatch: dispatcher frozen, cannot register %q", methodName)
	}
	d.methods[methodName] = m
	return nil
}

// Freeze publishes a lock-free lookup snapshot (spec §4.8: "lookup is
// lock-free after registration").
func (d *Dispatcher) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frozen {
		return
	}
	snap := make(map[string]Method, len(d.methods))
	for k, v := range d.methods {
		snap[k] = v
	}
	d.lookup = snap
	d.frozen = true
}

// Invoke dispatches e against target, responding with UnknownMethod if
// e.MethodName has no registered Method.
func (d *Dispatcher) Invoke(ctx context.Context, target interface{}, e *envelope.Envelope) ([]byte, error) {
	var m Method
	var ok bool
	if d.frozen {
		m, ok = d.lookup[e.MethodName]
	} else {
		d.mu.Lock()
		m, ok = d.methods[e.MethodName]
		d.mu.Unlock()
	}
	if !ok {
		return nil, sderrors.Newf(sderrors.UnknownMethod, "dispatch: unknown method %q", e.MethodName)
	}
	return m(ctx, target, e)
}

// Registry is the process-wide actorType -> Dispatcher map (spec §4.8).
type Registry struct {
	mu          sync.Mutex
	frozen      bool
	dispatchers map[string]*Dispatcher
	lookup      map[string]*Dispatcher
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{dispatchers: map[string]*Dispatcher{}}
}

// Register binds actorType to d.
func (r *Registry) Register(actorType string, d *Dispatcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return sderrors.Newf(sderrors.UnknownActorType, "dispatch: registry frozen, cannot register %q", actorType)
	}
	if _, exists := r.dispatchers[actorType]; exists {
		return sderrors.Newf(sderrors.UnknownActorType, "dispatch: duplicate dispatcher for %q", actorType)
	}
	r.dispatchers[actorType] = d
	return nil
}

// Freeze publishes a lock-free lookup snapshot.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	snap := make(map[string]*Dispatcher, len(r.dispatchers))
	for k, v := range r.dispatchers {
		snap[k] = v
		v.Freeze()
	}
	r.lookup = snap
	r.frozen = true
}

// Dispatcher returns the Dispatcher registered for actorType.
func (r *Registry) Dispatcher(actorType string) (*Dispatcher, bool) {
	if r.frozen {
		d, ok := r.lookup[actorType]
		return d, ok
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dispatchers[actorType]
	return d, ok
}

// Invoke resolves e.ActorType's Dispatcher and invokes e.MethodName
// against target, responding UnknownActorType / UnknownMethod as
// appropriate (spec §4.8).
func (r *Registry) Invoke(ctx context.Context, target interface{}, e *envelope.Envelope) ([]byte, error) {
	d, ok := r.Dispatcher(e.ActorType)
	if !ok {
		return nil, sderrors.Newf(sderrors.UnknownActorType, "dispatch: no dispatcher registered for type %q", e.ActorType)
	}
	return d.Invoke(ctx, target, e)
}
