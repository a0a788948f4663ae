package hashring

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultVirtualNodes is the typical virtual-node count per silo (spec
// §4.2, V=150).
const DefaultVirtualNodes = 150

type vnode struct {
	key    uint32
	siloID string
}

// Ring is a consistent hash ring of silo virtual nodes. All reads are
// lock-free over an immutable snapshot; all writes take a single lock,
// build a new snapshot, and atomically publish it (spec §4.2, §5).
type Ring struct {
	mu       sync.Mutex // serializes writers only; readers never take it
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	nodes     []vnode // sorted by key
	siloVNode map[string]int
}

// New returns an empty ring.
func New() *Ring {
	r := &Ring{}
	r.snapshot.Store(&snapshot{siloVNode: map[string]int{}})
	return r
}

// current returns the active snapshot without synchronization.
func (r *Ring) current() *snapshot {
	return r.snapshot.Load()
}

// AddSilo contributes virtualNodes virtual nodes for siloID. Adding a node
// that already exists replaces its virtual node count.
func (r *Ring) AddSilo(siloID string, virtualNodes int) {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current()
	next := &snapshot{
		siloVNode: make(map[string]int, len(old.siloVNode)+1),
	}
	for id, n := range old.siloVNode {
		if id == siloID {
			continue
		}
		next.siloVNode[id] = n
		for _, v := range old.nodes {
			if v.siloID == id {
				next.nodes = append(next.nodes, v)
			}
		}
	}
	next.siloVNode[siloID] = virtualNodes
	for i := 0; i < virtualNodes; i++ {
		next.nodes = append(next.nodes, vnode{
			key:    HashString(siloID + ":" + strconv.Itoa(i)),
			siloID: siloID,
		})
	}
	sort.Slice(next.nodes, func(i, j int) bool { return next.nodes[i].key < next.nodes[j].key })
	r.snapshot.Store(next)
}

// RemoveSilo drops every virtual node owned by siloID.
func (r *Ring) RemoveSilo(siloID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.current()
	if _, ok := old.siloVNode[siloID]; !ok {
		return
	}
	next := &snapshot{siloVNode: make(map[string]int, len(old.siloVNode))}
	for id, n := range old.siloVNode {
		if id == siloID {
			continue
		}
		next.siloVNode[id] = n
	}
	for _, v := range old.nodes {
		if v.siloID != siloID {
			next.nodes = append(next.nodes, v)
		}
	}
	r.snapshot.Store(next)
}

// Lookup returns the siloId owning key: the first virtual node clockwise
// from key's hash, wrapping at the end of the ring (spec §4.2).
func (r *Ring) Lookup(key string) (string, bool) {
	snap := r.current()
	if len(snap.nodes) == 0 {
		return "", false
	}
	target := HashString(key)
	idx := sort.Search(len(snap.nodes), func(i int) bool { return snap.nodes[i].key >= target })
	if idx == len(snap.nodes) {
		idx = 0
	}
	return snap.nodes[idx].siloID, true
}

// Silos returns the distinct silo IDs currently on the ring.
func (r *Ring) Silos() []string {
	snap := r.current()
	out := make([]string, 0, len(snap.siloVNode))
	for id := range snap.siloVNode {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of virtual nodes currently on the ring.
func (r *Ring) Len() int {
	return len(r.current().nodes)
}

// String renders a short diagnostic summary.
func (r *Ring) String() string {
	snap := r.current()
	return fmt.Sprintf("Ring{silos=%d, vnodes=%d}", len(snap.siloVNode), len(snap.nodes))
}
