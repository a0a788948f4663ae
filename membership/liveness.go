package membership

import (
	"sync"
	"time"
)

// LivenessTracker records connect/disconnect events per silo and derives
// uptime, generalizing the teacher's uptime.Manager (connected-node
// tracking for validator rewards) to cluster liveness for placement and
// diagnostics decisions.
type LivenessTracker struct {
	mu        sync.RWMutex
	connected map[string]time.Time // siloID -> time of most recent connect
	totalUp   map[string]time.Duration
}

// NewLivenessTracker returns an empty tracker.
func NewLivenessTracker() *LivenessTracker {
	return &LivenessTracker{
		connected: map[string]time.Time{},
		totalUp:   map[string]time.Duration{},
	}
}

// MarkConnected records siloID as reachable as of now.
func (t *LivenessTracker) MarkConnected(siloID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, already := t.connected[siloID]; !already {
		t.connected[siloID] = timeNow()
	}
}

// MarkDisconnected records siloID as unreachable, folding the elapsed
// connected duration into its cumulative total.
func (t *LivenessTracker) MarkDisconnected(siloID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	since, ok := t.connected[siloID]
	if !ok {
		return
	}
	t.totalUp[siloID] += timeNow().Sub(since)
	delete(t.connected, siloID)
}

// IsConnected reports whether siloID is currently marked reachable.
func (t *LivenessTracker) IsConnected(siloID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.connected[siloID]
	return ok
}

// Uptime returns the cumulative connected duration for siloID, including
// time since its most recent connect if it's currently up.
func (t *LivenessTracker) Uptime(siloID string) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	total := t.totalUp[siloID]
	if since, ok := t.connected[siloID]; ok {
		total += timeNow().Sub(since)
	}
	return total
}

// timeNow is a var so tests can monkeypatch it deterministically without
// needing to thread a clock through every call site.
var timeNow = time.Now
