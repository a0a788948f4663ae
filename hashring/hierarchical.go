package hashring

import "math/rand"

// FallbackStrategy governs lookup behavior when a preferred bucket is
// empty (spec §4.3).
type FallbackStrategy int

const (
	FallbackAny FallbackStrategy = iota
	FallbackNearestRegion
	FallbackFail
)

// Preference narrows a geo-aware lookup to a region, zone, and/or shard
// group. Any subset of fields may be left zero.
type Preference struct {
	Region           string
	Zone             string
	ShardGroup       string
	ShardGroupsOnly  bool
	FallbackStrategy FallbackStrategy
}

// ShardGroup is a flat, non-hierarchical bucket of members addressed
// directly by name (spec §4.3 rule 1).
type ShardGroup struct {
	members []string
}

func NewShardGroup(members ...string) *ShardGroup {
	return &ShardGroup{members: append([]string(nil), members...)}
}

// Pick selects a member deterministically by hash(key) % len(members).
func (g *ShardGroup) Pick(key string) (string, bool) {
	if len(g.members) == 0 {
		return "", false
	}
	idx := int(HashString(key) % uint32(len(g.members)))
	return g.members[idx], true
}

// HierarchicalRing composes a region ring, one zone ring per region, and
// one silo ring per zone, each independently copy-on-write (spec §4.3).
type HierarchicalRing struct {
	regionRing  *Ring
	zoneRings   map[string]*Ring // regionID -> zone ring
	siloRings   map[string]*Ring // zoneID -> silo ring
	shardGroups map[string]*ShardGroup
}

// NewHierarchical returns an empty hierarchical ring.
func NewHierarchical() *HierarchicalRing {
	return &HierarchicalRing{
		regionRing:  New(),
		zoneRings:   map[string]*Ring{},
		siloRings:   map[string]*Ring{},
		shardGroups: map[string]*ShardGroup{},
	}
}

// AddSilo registers siloID at the given region/zone coordinates, creating
// the intermediate rings on first use. Typical virtual-node counts scale
// regional/3, zone/2, silo=V per spec §4.3.
func (h *HierarchicalRing) AddSilo(region, zone, siloID string, virtualNodes int) {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	h.regionRing.AddSilo(region, max(1, virtualNodes/3))

	zr, ok := h.zoneRings[region]
	if !ok {
		zr = New()
		h.zoneRings[region] = zr
	}
	zr.AddSilo(zone, max(1, virtualNodes/2))

	sr, ok := h.siloRings[zone]
	if !ok {
		sr = New()
		h.siloRings[zone] = sr
	}
	sr.AddSilo(siloID, virtualNodes)
}

// RegisterShardGroup names a flat group of silos addressable by
// pref.ShardGroup (spec §4.3 rule 1).
func (h *HierarchicalRing) RegisterShardGroup(name string, members ...string) {
	h.shardGroups[name] = NewShardGroup(members...)
}

// Lookup resolves key to a silo honoring pref's region/zone/shard
// preferences in priority order (spec §4.3):
//  1. preferred shard group, if enabled
//  2. preferred region+zone, looked up directly
//  3. preferred region, then a zone within it
//  4. global fallback: region -> zone -> silo
func (h *HierarchicalRing) Lookup(key string, pref Preference) (string, bool) {
	if pref.ShardGroupsOnly && pref.ShardGroup != "" {
		if g, ok := h.shardGroups[pref.ShardGroup]; ok {
			if silo, ok := g.Pick(key); ok {
				return silo, true
			}
		}
		return h.fallback(key, pref)
	}

	if pref.Region != "" && pref.Zone != "" {
		if sr, ok := h.siloRings[pref.Zone]; ok {
			if silo, ok := sr.Lookup(key); ok {
				return silo, true
			}
		}
		return h.fallback(key, pref)
	}

	if pref.Region != "" {
		if zr, ok := h.zoneRings[pref.Region]; ok {
			if zone, ok := zr.Lookup(key); ok {
				if sr, ok := h.siloRings[zone]; ok {
					if silo, ok := sr.Lookup(key); ok {
						return silo, true
					}
				}
			}
		}
		return h.fallback(key, pref)
	}

	return h.globalLookup(key)
}

func (h *HierarchicalRing) globalLookup(key string) (string, bool) {
	region, ok := h.regionRing.Lookup(key)
	if !ok {
		return "", false
	}
	zr, ok := h.zoneRings[region]
	if !ok {
		return "", false
	}
	zone, ok := zr.Lookup(key)
	if !ok {
		return "", false
	}
	sr, ok := h.siloRings[zone]
	if !ok {
		return "", false
	}
	return sr.Lookup(key)
}

func (h *HierarchicalRing) fallback(key string, pref Preference) (string, bool) {
	switch pref.FallbackStrategy {
	case FallbackFail:
		return "", false
	case FallbackNearestRegion:
		if pref.Region != "" {
			if zr, ok := h.zoneRings[pref.Region]; ok {
				if zone, ok := zr.Lookup(key); ok {
					if sr, ok := h.siloRings[zone]; ok {
						return sr.Lookup(key)
					}
				}
			}
		}
		return h.globalLookup(key)
	default: // FallbackAny
		return h.anySilo()
	}
}

func (h *HierarchicalRing) anySilo() (string, bool) {
	var all []string
	for _, sr := range h.siloRings {
		all = append(all, sr.Silos()...)
	}
	if len(all) == 0 {
		return "", false
	}
	return all[rand.Intn(len(all))], true
}
