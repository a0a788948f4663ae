// Package placement implements the selectSilo policies of spec §4.4: given
// an actor identity and the currently available silos, decide which silo
// should own the activation.
package placement

import (
	"sync"
	"sync/atomic"

	"github.com/fluxgrid/silo/hashring"
	"github.com/fluxgrid/silo/utils/sampler"
)

// Policy selects the owning silo for (actorType, actorId) among
// availableSilos, or reports false if none is eligible.
type Policy interface {
	SelectSilo(actorType, actorID string, availableSilos []string) (string, bool)
}

// LocalPreferred returns the local silo whenever it is available, falling
// back to delegate (typically ConsistentHash) otherwise.
type LocalPreferred struct {
	LocalSiloID string
	Delegate    Policy
}

func (p *LocalPreferred) SelectSilo(actorType, actorID string, availableSilos []string) (string, bool) {
	for _, s := range availableSilos {
		if s == p.LocalSiloID {
			return p.LocalSiloID, true
		}
	}
	if p.Delegate == nil {
		return "", false
	}
	return p.Delegate.SelectSilo(actorType, actorID, availableSilos)
}

// ConsistentHash composes actorType+":"+actorId as the ring key (spec
// §4.4). Its Ring is expected to already be populated with availableSilos
// by the membership registry; availableSilos is consulted only to filter
// out silos the ring doesn't know about yet (race between membership
// update and ring rebuild).
type ConsistentHash struct {
	Ring *hashring.Ring
}

func (p *ConsistentHash) SelectSilo(actorType, actorID string, availableSilos []string) (string, bool) {
	key := actorType + ":" + actorID
	owner, ok := p.Ring.Lookup(key)
	if !ok {
		return "", false
	}
	if len(availableSilos) == 0 {
		return owner, true
	}
	for _, s := range availableSilos {
		if s == owner {
			return owner, true
		}
	}
	return "", false
}

// Random selects uniformly among availableSilos.
type Random struct {
	Source sampler.Source
	mu     sync.Mutex
}

func (p *Random) SelectSilo(actorType, actorID string, availableSilos []string) (string, bool) {
	if len(availableSilos) == 0 {
		return "", false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	src := p.Source
	if src == nil {
		src = sampler.NewSource(0)
		p.Source = src
	}
	idx := int(src.Uint64() % uint64(len(availableSilos)))
	return availableSilos[idx], true
}

// RoundRobin cycles through availableSilos in the order given, independent
// of its contents from call to call (a membership change simply changes
// the cycle length).
type RoundRobin struct {
	next atomic.Uint64
}

func (p *RoundRobin) SelectSilo(actorType, actorID string, availableSilos []string) (string, bool) {
	if len(availableSilos) == 0 {
		return "", false
	}
	idx := p.next.Add(1) - 1
	return availableSilos[idx%uint64(len(availableSilos))], true
}

// GeoAware delegates to a HierarchicalRing with a fixed routing
// Preference (region/zone/shard-group affinity), ignoring availableSilos
// since the hierarchical ring already tracks its own membership.
type GeoAware struct {
	Ring       *hashring.HierarchicalRing
	Preference hashring.Preference
}

func (p *GeoAware) SelectSilo(actorType, actorID string, _ []string) (string, bool) {
	key := actorType + ":" + actorID
	return p.Ring.Lookup(key, p.Preference)
}
