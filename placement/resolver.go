package placement

import (
	"go.uber.org/zap"

	"github.com/fluxgrid/silo/log"
)

// Resolver is the entry point actor activation uses to find an owning
// silo: consult the cache first, fall back to the configured Policy, and
// populate the cache on a fresh decision (spec §4.4).
type Resolver struct {
	policy Policy
	cache  *Cache
	logger log.Logger
}

// NewResolver builds a Resolver. cache may be nil to disable memoization.
func NewResolver(policy Policy, cache *Cache, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewNoOp()
	}
	return &Resolver{policy: policy, cache: cache, logger: logger}
}

// Resolve returns the silo that should own actorType/actorID among
// availableSilos.
func (r *Resolver) Resolve(actorType, actorID string, availableSilos []string) (string, bool) {
	if r.cache != nil {
		if silo, ok := r.cache.Get(actorType, actorID); ok {
			for _, s := range availableSilos {
				if s == silo {
					return silo, true
				}
			}
			r.cache.Invalidate(actorType, actorID)
		}
	}

	silo, ok := r.policy.SelectSilo(actorType, actorID, availableSilos)
	if !ok {
		r.logger.Warn("placement: no eligible silo",
			zap.String("actorType", actorType), zap.String("actorId", actorID))
		return "", false
	}

	if r.cache != nil {
		r.cache.Put(actorType, actorID, silo)
	}
	return silo, true
}

// InvalidateAll drops every cached decision. Call on membership change.
func (r *Resolver) InvalidateAll() {
	if r.cache != nil {
		r.cache.Clear()
	}
}
