package transport

import (
	"sync"

	"github.com/fluxgrid/silo/envelope"
)

// pendingTable correlates outstanding requests by messageId, generalizing
// the teacher's timeout.Manager request/response bookkeeping (there keyed
// by nodeID+requestID+op) to a single string key.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[string]chan *envelope.Envelope
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: map[string]chan *envelope.Envelope{}}
}

// register allocates the channel a caller blocks on for messageID's
// response. The channel has capacity 1 so resolve never blocks even if
// the caller has already given up.
func (p *pendingTable) register(messageID string) <-chan *envelope.Envelope {
	ch := make(chan *envelope.Envelope, 1)
	p.mu.Lock()
	p.waiters[messageID] = ch
	p.mu.Unlock()
	return ch
}

// forget removes messageID's waiter, called once the caller stops waiting
// (response received, timeout, or context cancellation).
func (p *pendingTable) forget(messageID string) {
	p.mu.Lock()
	delete(p.waiters, messageID)
	p.mu.Unlock()
}

// resolve delivers e to the registered waiter for e.MessageID, if any. A
// response with no matching waiter (already timed out, or a duplicate) is
// silently dropped.
func (p *pendingTable) resolve(e *envelope.Envelope) {
	p.mu.Lock()
	ch, ok := p.waiters[e.MessageID]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- e:
	default:
	}
}
