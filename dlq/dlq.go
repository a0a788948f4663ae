// Package dlq implements the retry handler and dead-letter queue (spec
// §4.11): exponential-backoff-with-jitter retry scheduling, and a bounded
// FIFO store for messages that exhaust their retry budget.
package dlq

import (
	"math"
	"math/rand"
	"sync"
	"time"

	sderrors "github.com/fluxgrid/silo/errors"
	"github.com/fluxgrid/silo/metrics"
)

// RetryPolicy configures per-attempt delay computation.
type RetryPolicy struct {
	Enabled        bool
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	Jitter         bool
}

// DefaultRetryPolicy mirrors spec §6's suggested retry defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:      true,
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// TotalAttempts returns 1 (the initial attempt) plus MaxRetries.
func (p RetryPolicy) TotalAttempts() int {
	return 1 + p.MaxRetries
}

// DelayForAttempt returns the delay before the n'th (1-based) retry
// attempt: min(initialDelay * multiplier^(n-1), maxDelay), optionally
// scaled by a uniform factor in [0.5, 1.0] (spec §4.11).
func (p RetryPolicy) DelayForAttempt(n int, rng *rand.Rand) time.Duration {
	raw := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(n-1))
	if raw > float64(p.MaxDelay) {
		raw = float64(p.MaxDelay)
	}
	if p.Jitter {
		factor := 0.5 + rng.Float64()*0.5
		raw *= factor
	}
	return time.Duration(raw)
}

// Entry is one dead-lettered message (spec §4.11: "(message, actorId,
// exception, enqueuedAt, retryCount)").
type Entry struct {
	Message    []byte
	ActorType  string
	ActorID    string
	Err        error
	EnqueuedAt time.Time
	RetryCount int
}

// Config tunes a per-actor-type DeadLetterQueue. Per-actor-type overrides
// replace these defaults wholesale (spec §4.11).
type Config struct {
	Enabled            bool
	MaxMessages        int
	CaptureStackTraces bool
	RetryPolicy        RetryPolicy
}

// DefaultConfig mirrors spec §6's suggested DLQ defaults.
func DefaultConfig() Config {
	return Config{Enabled: true, MaxMessages: 10000, CaptureStackTraces: true, RetryPolicy: DefaultRetryPolicy()}
}

// Queue is a bounded FIFO of dead-lettered Entries, evicting the oldest on
// overflow.
type Queue struct {
	cfg     Config
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries []Entry
}

// New builds a Queue. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Queue {
	if cfg.MaxMessages <= 0 {
		cfg = DefaultConfig()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &Queue{cfg: cfg, metrics: m}
}

// Push appends e, evicting the oldest entry if the queue is at capacity.
// A no-op if the queue is disabled.
func (q *Queue) Push(e Entry) {
	if !q.cfg.Enabled {
		return
	}
	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = time.Now()
	}
	if !q.cfg.CaptureStackTraces {
		e.Err = plainError(e.Err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
	if len(q.entries) > q.cfg.MaxMessages {
		q.entries = q.entries[len(q.entries)-q.cfg.MaxMessages:]
	}
	q.metrics.DeadLetters.WithLabelValues(e.ActorType).Set(float64(len(q.entries)))
}

// Len returns the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot returns a copy of every entry, oldest first.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

func plainError(err error) error {
	if err == nil {
		return nil
	}
	return sderrors.New(sderrors.ActorFailure, err.Error())
}
