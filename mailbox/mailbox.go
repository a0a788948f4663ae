// Package mailbox implements the per-activation message queue (spec
// §4.6): a bounded FIFO with a configurable full-mode policy, adaptive
// capacity, a circuit breaker over turn failures, and a sliding-window
// rate limiter.
package mailbox

import (
	"context"
	"sync"

	"github.com/fluxgrid/silo/envelope"
	sderrors "github.com/fluxgrid/silo/errors"
	"github.com/fluxgrid/silo/metrics"
)

// FullMode governs what Enqueue does when the mailbox is at capacity.
type FullMode int

const (
	// FullModeWait blocks Enqueue until space frees up or ctx is done.
	FullModeWait FullMode = iota
	// FullModeDropOldest evicts the head of the queue to make room.
	FullModeDropOldest
	// FullModeDropNewest rejects the incoming message, keeping the queue
	// as-is.
	FullModeDropNewest
)

// AdaptiveConfig controls the mailbox's capacity growth/shrink behavior
// (spec §4.6): after each successful enqueue, the utilization
// messageCount/currentCapacity is sampled; once MinSamples samples have
// accumulated, the average is compared against GrowThreshold/
// ShrinkThreshold and capacity is multiplied by GrowthFactor or
// ShrinkFactor, clamped to [MinCapacity, MaxCapacity].
type AdaptiveConfig struct {
	InitialCapacity int
	MinCapacity     int
	MaxCapacity     int
	// GrowThreshold is the average utilization fraction (0..1) above which
	// capacity grows by GrowthFactor, up to MaxCapacity.
	GrowThreshold float64
	// ShrinkThreshold is the average utilization fraction below which
	// capacity shrinks by ShrinkFactor, down to MinCapacity.
	ShrinkThreshold float64
	GrowthFactor    float64
	ShrinkFactor    float64
	// MinSamples is the spec's minSamplesBeforeAdapt: the sample window is
	// only evaluated once this many enqueue-time samples have accumulated.
	MinSamples int
	// Enabled gates the whole mechanism; when false, capacity stays fixed
	// at InitialCapacity (or MinCapacity) for the mailbox's lifetime.
	Enabled bool
}

// DefaultAdaptiveConfig mirrors spec §6's suggested defaults.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		InitialCapacity: 64,
		MinCapacity:     64,
		MaxCapacity:     8192,
		GrowThreshold:   0.8,
		ShrinkThreshold: 0.2,
		GrowthFactor:    2.0,
		ShrinkFactor:    0.5,
		MinSamples:      10,
		Enabled:         true,
	}
}

// Config aggregates every tunable of a Mailbox.
type Config struct {
	ActorType string
	FullMode  FullMode
	Adaptive  AdaptiveConfig
	Breaker   BreakerConfig
	RateLimit RateLimiterConfig
}

// Mailbox is a bounded, adaptively-sized FIFO of envelopes destined for a
// single actor activation.
type Mailbox struct {
	cfg     Config
	metrics *metrics.Metrics

	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	queue    []*envelope.Envelope
	capacity int

	// sampleSum/sampleCount accumulate the spec's per-enqueue utilization
	// samples until Adaptive.MinSamples is reached, at which point their
	// average drives one grow/shrink decision and the accumulator resets.
	sampleSum   float64
	sampleCount int

	breaker     *CircuitBreaker
	rateLimiter *RateLimiter
}

// New builds a Mailbox. m may be nil to disable metrics emission.
func New(cfg Config, m *metrics.Metrics) *Mailbox {
	if cfg.Adaptive.MinCapacity <= 0 {
		cfg.Adaptive = DefaultAdaptiveConfig()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	initial := cfg.Adaptive.InitialCapacity
	if initial <= 0 {
		initial = cfg.Adaptive.MinCapacity
	}
	box := &Mailbox{
		cfg:         cfg,
		metrics:     m,
		capacity:    initial,
		breaker:     NewCircuitBreaker(cfg.Breaker),
		rateLimiter: NewRateLimiter(cfg.RateLimit),
	}
	box.notFull = sync.NewCond(&box.mu)
	box.notEmpty = sync.NewCond(&box.mu)
	return box
}

// Enqueue admits e according to the circuit breaker, rate limiter, and
// full-mode policy, in that order (spec §4.6).
func (b *Mailbox) Enqueue(ctx context.Context, e *envelope.Envelope) error {
	if !b.breaker.Allow() {
		b.metrics.MessagesDropped.WithLabelValues(b.cfg.ActorType, "circuit_open").Inc()
		return sderrors.New(sderrors.CircuitOpen, "mailbox: circuit breaker open")
	}

	if !b.rateLimiter.Allow() {
		switch b.rateLimiter.Policy() {
		case RateLimitReject:
			b.metrics.RateLimited.WithLabelValues(b.cfg.ActorType).Inc()
			return sderrors.New(sderrors.RateLimited, "mailbox: rate limit exceeded")
		case RateLimitDrop:
			b.metrics.RateLimited.WithLabelValues(b.cfg.ActorType).Inc()
			b.metrics.MessagesDropped.WithLabelValues(b.cfg.ActorType, "rate_limited").Inc()
			return nil
		default: // RateLimitQueue: fall through to the full-mode policy
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.queue) >= b.capacity {
		switch b.cfg.FullMode {
		case FullModeDropOldest:
			b.queue = b.queue[1:]
			b.metrics.MessagesDropped.WithLabelValues(b.cfg.ActorType, "drop_oldest").Inc()
		case FullModeDropNewest:
			b.metrics.MessagesDropped.WithLabelValues(b.cfg.ActorType, "drop_newest").Inc()
			return sderrors.New(sderrors.RateLimited, "mailbox: full, dropping newest")
		default: // FullModeWait
			waitDone := make(chan struct{})
			go func() {
				select {
				case <-ctx.Done():
					b.mu.Lock()
					b.notFull.Broadcast()
					b.mu.Unlock()
				case <-waitDone:
				}
			}()
			b.notFull.Wait()
			close(waitDone)
			if err := ctx.Err(); err != nil {
				return sderrors.Wrap(sderrors.Canceled, err)
			}
		}
	}

	b.queue = append(b.queue, e)
	b.notEmpty.Signal()
	b.sampleAndAdaptLocked()
	b.reportDepthLocked()
	return nil
}

// Dequeue blocks until a message is available or ctx is done.
func (b *Mailbox) Dequeue(ctx context.Context) (*envelope.Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.queue) == 0 {
		waitDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				b.mu.Lock()
				b.notEmpty.Broadcast()
				b.mu.Unlock()
			case <-waitDone:
			}
		}()
		b.notEmpty.Wait()
		close(waitDone)
		if err := ctx.Err(); err != nil {
			return nil, sderrors.Wrap(sderrors.Canceled, err)
		}
	}

	e := b.queue[0]
	b.queue = b.queue[1:]
	b.notFull.Signal()
	b.reportDepthLocked()
	return e, nil
}

// Len returns the current queue depth.
func (b *Mailbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Capacity returns the current adaptive capacity.
func (b *Mailbox) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Breaker exposes the mailbox's circuit breaker so the actor turn loop can
// report success/failure after executing a message.
func (b *Mailbox) Breaker() *CircuitBreaker {
	return b.breaker
}

// sampleAndAdaptLocked records one utilization sample after a successful
// enqueue and, once Adaptive.MinSamples samples have accumulated, resizes
// capacity from their average (spec §4.6). A no-op when adaptive sizing is
// disabled.
func (b *Mailbox) sampleAndAdaptLocked() {
	if !b.cfg.Adaptive.Enabled {
		return
	}

	b.sampleSum += float64(len(b.queue)) / float64(b.capacity)
	b.sampleCount++
	if b.sampleCount < b.cfg.Adaptive.MinSamples {
		return
	}

	avg := b.sampleSum / float64(b.sampleCount)
	b.sampleSum, b.sampleCount = 0, 0

	switch {
	case avg >= b.cfg.Adaptive.GrowThreshold && b.capacity < b.cfg.Adaptive.MaxCapacity:
		grown := int(float64(b.capacity) * b.cfg.Adaptive.GrowthFactor)
		b.capacity = min(max(grown, b.capacity+1), b.cfg.Adaptive.MaxCapacity)
	case avg <= b.cfg.Adaptive.ShrinkThreshold && b.capacity > b.cfg.Adaptive.MinCapacity:
		shrunk := int(float64(b.capacity) * b.cfg.Adaptive.ShrinkFactor)
		b.capacity = max(min(shrunk, b.capacity-1), b.cfg.Adaptive.MinCapacity)
	}
}

func (b *Mailbox) reportDepthLocked() {
	b.metrics.MailboxDepth.WithLabelValues(b.cfg.ActorType).Set(float64(len(b.queue)))
	b.metrics.MailboxCapacity.WithLabelValues(b.cfg.ActorType).Set(float64(b.capacity))
}
