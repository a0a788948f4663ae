// Package membership tracks the set of silos participating in the
// cluster: who's in it, what version they run, and how long they've been
// reachable. It generalizes the teacher's validators.Manager/Set pair
// (github.com/luxfi/node's subnet validator registry) from "which nodes
// may vote" to "which silos may own activations."
package membership

import (
	"sort"
	"sync"
	"time"

	"github.com/fluxgrid/silo/utils/version"
)

// SiloInfo describes one member of the cluster.
type SiloInfo struct {
	ID      string
	Address string
	Region  string
	Zone    string
	Version version.Semantic
	JoinedAt time.Time
}

// Listener is notified of membership changes, mirroring the teacher's
// validators.SetCallbackListener shape.
type Listener interface {
	OnSiloAdded(info SiloInfo)
	OnSiloRemoved(info SiloInfo)
	OnSiloVersionChanged(siloID string, oldVersion, newVersion version.Semantic)
}

// Registry is the authoritative, mutable directory of cluster members.
// All reads take a snapshot copy so callers never observe a torn map.
type Registry struct {
	mu        sync.RWMutex
	silos     map[string]SiloInfo
	listeners []Listener
	liveness  *LivenessTracker
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		silos:    map[string]SiloInfo{},
		liveness: NewLivenessTracker(),
	}
}

// AddListener registers l for future membership events. Not retroactive.
func (r *Registry) AddListener(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Add registers or updates info.ID, notifying listeners via OnSiloAdded for
// a new silo or OnSiloVersionChanged when an existing silo's version changed.
func (r *Registry) Add(info SiloInfo) {
	r.mu.Lock()
	existing, had := r.silos[info.ID]
	if info.JoinedAt.IsZero() {
		if had {
			info.JoinedAt = existing.JoinedAt
		}
	}
	r.silos[info.ID] = info
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	r.liveness.MarkConnected(info.ID)

	if !had {
		for _, l := range listeners {
			l.OnSiloAdded(info)
		}
		return
	}
	if existing.Version.Compare(info.Version) != 0 {
		for _, l := range listeners {
			l.OnSiloVersionChanged(info.ID, existing.Version, info.Version)
		}
	}
}

// Remove deregisters siloID, notifying listeners if it was present.
func (r *Registry) Remove(siloID string) {
	r.mu.Lock()
	info, had := r.silos[siloID]
	delete(r.silos, siloID)
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	r.liveness.MarkDisconnected(siloID)

	if had {
		for _, l := range listeners {
			l.OnSiloRemoved(info)
		}
	}
}

// Get returns the SiloInfo for siloID.
func (r *Registry) Get(siloID string) (SiloInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.silos[siloID]
	return info, ok
}

// Len returns the number of registered silos.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.silos)
}

// List returns all registered silo IDs in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.silos))
	for id := range r.silos {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListEligible returns, in sorted order, every registered silo ID whose
// advertised Version is at least min (spec §9 version-aware routing: route
// around silos still on an older build during a rolling upgrade). The zero
// Semantic is satisfied by every version, so a caller that never configures
// a floor sees exactly List()'s result.
func (r *Registry) ListEligible(min version.Semantic) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.silos))
	for id, info := range r.silos {
		if info.Version.Compare(min) >= 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Snapshot returns a copy of every registered SiloInfo.
func (r *Registry) Snapshot() []SiloInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SiloInfo, 0, len(r.silos))
	for _, info := range r.silos {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Liveness exposes the uptime tracker for diagnostics and health checks.
func (r *Registry) Liveness() *LivenessTracker {
	return r.liveness
}
