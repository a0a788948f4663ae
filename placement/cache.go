package placement

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache memoizes placement decisions keyed by actorType+actorId so that
// repeated sends to the same actor don't re-run a policy lookup every
// time. Entries must be invalidated whenever membership changes, since a
// stale decision could resolve to a silo that has since left the ring.
type Cache struct {
	store *ristretto.Cache[string, string]
}

// NewCache builds a placement decision cache sized for maxEntries items.
func NewCache(maxEntries int64) (*Cache, error) {
	store, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("placement: new decision cache: %w", err)
	}
	return &Cache{store: store}, nil
}

func cacheKey(actorType, actorID string) string {
	return actorType + ":" + actorID
}

// Get returns the previously cached silo for (actorType, actorID), if any.
func (c *Cache) Get(actorType, actorID string) (string, bool) {
	return c.store.Get(cacheKey(actorType, actorID))
}

// Put records siloID as the placement decision for (actorType, actorID).
func (c *Cache) Put(actorType, actorID, siloID string) {
	c.store.SetWithTTL(cacheKey(actorType, actorID), siloID, 1, 0)
}

// Invalidate drops any cached decision for (actorType, actorID), forcing
// the next lookup to re-run the policy.
func (c *Cache) Invalidate(actorType, actorID string) {
	c.store.Del(cacheKey(actorType, actorID))
}

// Clear drops every cached decision. Called whenever the silo membership
// set changes (spec §4.4: "decisions are invalidated on membership
// change").
func (c *Cache) Clear() {
	c.store.Clear()
}

// Close releases cache resources.
func (c *Cache) Close() {
	c.store.Close()
}
