package actor

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	sderrors "github.com/fluxgrid/silo/errors"
)

// FactoryRegistry is the process-wide typeName -> Factory bijection (spec
// §4.7/§4.8). Registration happens once at startup; Freeze makes it
// immutable so Lookup afterward never takes a lock.
type FactoryRegistry struct {
	mu       sync.Mutex
	frozen   bool
	byType   map[string]Factory
	snapshot map[string]Factory
}

// NewFactoryRegistry returns an empty, unfrozen FactoryRegistry.
func NewFactoryRegistry() *FactoryRegistry {
	return &FactoryRegistry{byType: map[string]Factory{}}
}

// Register binds typeName to factory. Fails if typeName is already bound
// or the registry has been frozen.
func (r *FactoryRegistry) Register(typeName string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return sderrors.Newf(sderrors.UnknownActorType, "actor: registry frozen, cannot register %q", typeName)
	}
	if _, exists := r.byType[typeName]; exists {
		return sderrors.Newf(sderrors.UnknownActorType, "actor: duplicate factory registration for %q", typeName)
	}
	r.byType[typeName] = factory
	return nil
}

// Freeze prevents further registration and publishes a lock-free lookup
// snapshot.
func (r *FactoryRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	snap := make(map[string]Factory, len(r.byType))
	for k, v := range r.byType {
		snap[k] = v
	}
	r.snapshot = snap
	r.frozen = true
}

// Lookup returns the Factory for typeName. After Freeze this never takes
// a lock.
func (r *FactoryRegistry) Lookup(typeName string) (Factory, bool) {
	if r.frozen {
		f, ok := r.snapshot[typeName]
		return f, ok
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.byType[typeName]
	return f, ok
}

// ActivationTable is the per-silo live activation set, enforcing at most
// one Activation per (actorType, actorID) (spec §4.7).
type ActivationTable struct {
	factories *FactoryRegistry

	mu          sync.Mutex
	activations map[string]*Activation

	// activating collapses concurrent first-touch GetOrActivate calls for
	// the same key into a single factory/OnActivate run, so two racing
	// Sends to a not-yet-activated actor never construct two handlers.
	activating singleflight.Group
}

// NewActivationTable builds an ActivationTable backed by factories.
func NewActivationTable(factories *FactoryRegistry) *ActivationTable {
	return &ActivationTable{factories: factories, activations: map[string]*Activation{}}
}

func activationKey(actorType, actorID string) string {
	return actorType + ":" + actorID
}

// GetOrActivate returns the existing Activation for (actorType, actorID),
// or constructs and activates a new one via the registered factory.
func (t *ActivationTable) GetOrActivate(ctx context.Context, actorType, actorID string) (*Activation, error) {
	key := activationKey(actorType, actorID)

	t.mu.Lock()
	if existing, ok := t.activations[key]; ok {
		t.mu.Unlock()
		return existing, nil
	}
	t.mu.Unlock()

	v, err, _ := t.activating.Do(key, func() (interface{}, error) {
		t.mu.Lock()
		if existing, ok := t.activations[key]; ok {
			t.mu.Unlock()
			return existing, nil
		}
		t.mu.Unlock()

		factory, ok := t.factories.Lookup(actorType)
		if !ok {
			return nil, sderrors.Newf(sderrors.UnknownActorType, "actor: no factory registered for type %q", actorType)
		}

		handler, err := factory(actorID, func(childID string) (*Activation, error) {
			return t.GetOrActivate(ctx, actorType, childID)
		})
		if err != nil {
			return nil, err
		}

		act := NewActivation(actorType, actorID, handler)

		if err := act.Activate(ctx); err != nil {
			return nil, err
		}

		t.mu.Lock()
		t.activations[key] = act
		t.mu.Unlock()
		return act, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Activation), nil
}

// Deactivate removes and deactivates the activation for (actorType,
// actorID), if present.
func (t *ActivationTable) Deactivate(ctx context.Context, actorType, actorID string) error {
	key := activationKey(actorType, actorID)
	t.mu.Lock()
	act, ok := t.activations[key]
	delete(t.activations, key)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return act.Deactivate(ctx)
}

// Count returns the number of live activations.
func (t *ActivationTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.activations)
}

// Snapshot returns every live activation, for idle-timeout scanning and
// diagnostics.
func (t *ActivationTable) Snapshot() []*Activation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Activation, 0, len(t.activations))
	for _, act := range t.activations {
		out = append(out, act)
	}
	return out
}
