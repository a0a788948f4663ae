package actor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	sderrors "github.com/fluxgrid/silo/errors"
	"github.com/fluxgrid/silo/log"
	"github.com/fluxgrid/silo/metrics"
)

// Strategy selects the scope of a restart in response to a child failure
// (spec §4.7).
type Strategy int

const (
	// OneForOne restarts only the failing child.
	OneForOne Strategy = iota
	// AllForOne stops and restarts every child.
	AllForOne
	// RestForOne restarts the failing child plus every sibling created
	// after it, in creation order.
	RestForOne
)

// Directive is the supervisor's response to a child failure.
type Directive int

const (
	Resume Directive = iota
	Restart
	Stop
	Escalate
)

// String renders d for logging.
func (d Directive) String() string {
	switch d {
	case Resume:
		return "Resume"
	case Restart:
		return "Restart"
	case Stop:
		return "Stop"
	case Escalate:
		return "Escalate"
	default:
		return "Unknown"
	}
}

// Decider maps a child failure to a Directive. A nil Decider defaults to
// always Restart.
type Decider func(childID string, err error) Directive

// Options configures a Supervisor's restart discipline (spec §4.7).
type Options struct {
	Strategy           Strategy
	MaxRestarts        int
	TimeWindow         time.Duration
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	Multiplier         float64
	EscalateOnExceeded bool
	Decide             Decider
}

// DefaultOptions mirrors spec §6's suggested supervision defaults.
func DefaultOptions() Options {
	return Options{
		Strategy:           OneForOne,
		MaxRestarts:        3,
		TimeWindow:         60 * time.Second,
		InitialBackoff:     time.Second,
		MaxBackoff:         30 * time.Second,
		Multiplier:         2.0,
		EscalateOnExceeded: true,
	}
}

// child tracks one supervised Activation plus its creation order (needed
// for RestForOne).
type child struct {
	id    string
	act   *Activation
	order int
}

// Supervisor owns a set of child activations keyed by id, applying
// Options' restart discipline on failure (spec §4.7). A child's
// RestartHistory is keyed separately from the child itself and survives
// actual restarts, since a restart discards and recreates the Activation
// but the sliding window must keep counting across that churn.
type Supervisor struct {
	opts    Options
	table   *ActivationTable
	logger  log.Logger
	metrics *metrics.Metrics

	mu        sync.Mutex
	children  map[string]*child
	histories map[string]*restartHistory
	seq       int
}

// NewSupervisor builds a Supervisor over table, applying opts. logger and
// m may be nil.
func NewSupervisor(opts Options, table *ActivationTable, logger log.Logger, m *metrics.Metrics) *Supervisor {
	if logger == nil {
		logger = log.NewNoOp()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	if opts.Decide == nil {
		opts.Decide = func(string, error) Directive { return Restart }
	}
	return &Supervisor{
		opts: opts, table: table, logger: logger, metrics: m,
		children:  map[string]*child{},
		histories: map[string]*restartHistory{},
	}
}

// Spawn registers a new child activation under id. Fails if id is already
// in use (spec §4.7: "spawning a duplicate id is an error").
func (s *Supervisor) Spawn(ctx context.Context, actorType, id string) (*Activation, error) {
	s.mu.Lock()
	if _, exists := s.children[id]; exists {
		s.mu.Unlock()
		return nil, sderrors.Newf(sderrors.ActorFailure, "actor: duplicate child id %q", id)
	}
	s.seq++
	order := s.seq
	s.mu.Unlock()

	act, err := s.table.GetOrActivate(ctx, actorType, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.children[id] = &child{id: id, act: act, order: order}
	if _, ok := s.histories[id]; !ok {
		s.histories[id] = newRestartHistory(s.opts.TimeWindow)
	}
	s.mu.Unlock()
	return act, nil
}

func (s *Supervisor) historyFor(id string) *restartHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.histories[id]
	if !ok {
		h = newRestartHistory(s.opts.TimeWindow)
		s.histories[id] = h
	}
	return h
}

// HandleFailure applies the supervisor's strategy and restart discipline
// in response to childID failing with err. It returns the Directive that
// was ultimately applied (escalation overrides whatever Decide returned).
func (s *Supervisor) HandleFailure(ctx context.Context, actorType, childID string, err error) Directive {
	directive := s.opts.Decide(childID, err)
	if directive != Restart {
		if directive == Stop {
			_ = s.table.Deactivate(ctx, actorType, childID)
			s.mu.Lock()
			delete(s.children, childID)
			s.mu.Unlock()
		}
		return directive
	}

	s.mu.Lock()
	_, ok := s.children[childID]
	s.mu.Unlock()
	if !ok {
		return Stop
	}

	history := s.historyFor(childID)
	history.record()
	if history.countInWindow() > s.opts.MaxRestarts && s.opts.EscalateOnExceeded {
		s.metrics.Escalations.WithLabelValues(actorType).Inc()
		s.logger.Warn("actor: restart budget exceeded, escalating")
		return Escalate
	}

	targets := s.restartTargets(childID)
	backoffDelay := history.nextBackoff(s.opts)

	go func() {
		timer := time.NewTimer(backoffDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return
		}
		for _, id := range targets {
			s.restartOne(ctx, actorType, id)
		}
	}()

	s.metrics.SupervisorRestarts.WithLabelValues(actorType, strategyLabel(s.opts.Strategy)).Inc()
	return Restart
}

// restartTargets returns the child ids to restart given the configured
// Strategy and the failing child.
func (s *Supervisor) restartTargets(failingID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.opts.Strategy {
	case AllForOne:
		ids := make([]string, 0, len(s.children))
		for id := range s.children {
			ids = append(ids, id)
		}
		return ids
	case RestForOne:
		failing, ok := s.children[failingID]
		if !ok {
			return []string{failingID}
		}
		type ordered struct {
			id    string
			order int
		}
		var all []ordered
		for id, c := range s.children {
			all = append(all, ordered{id, c.order})
		}
		sort.Slice(all, func(i, j int) bool { return all[i].order < all[j].order })
		var ids []string
		for _, o := range all {
			if o.order >= failing.order {
				ids = append(ids, o.id)
			}
		}
		return ids
	default: // OneForOne
		return []string{failingID}
	}
}

func (s *Supervisor) restartOne(ctx context.Context, actorType, id string) {
	_ = s.table.Deactivate(ctx, actorType, id)
	s.mu.Lock()
	delete(s.children, id)
	s.mu.Unlock()
	if _, err := s.Spawn(ctx, actorType, id); err != nil {
		s.logger.Error("actor: restart failed")
	}
}

func strategyLabel(st Strategy) string {
	switch st {
	case AllForOne:
		return "all_for_one"
	case RestForOne:
		return "rest_for_one"
	default:
		return "one_for_one"
	}
}

// restartHistory is the sliding-window restart counter backing the
// backoff/escalation decision (spec §4.7).
type restartHistory struct {
	window time.Duration

	mu         sync.Mutex
	timestamps []time.Time
	consecutive int
	now         func() time.Time
}

func newRestartHistory(window time.Duration) *restartHistory {
	return &restartHistory{window: window, now: time.Now}
}

func (h *restartHistory) record() {
	h.resetIfIdle()

	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	cutoff := now.Add(-h.window)
	kept := h.timestamps[:0]
	for _, ts := range h.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	h.timestamps = append(kept, now)
	h.consecutive++
}

func (h *restartHistory) countInWindow() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.timestamps)
}

// nextBackoff computes initialBackoff * multiplier^(consecutive-1),
// clamped to maxBackoff, using cenkalti/backoff's exponential curve so the
// jitter/clamping semantics match the rest of the runtime's retry paths.
func (h *restartHistory) nextBackoff(opts Options) time.Duration {
	h.mu.Lock()
	consecutive := h.consecutive
	h.mu.Unlock()

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.InitialBackoff
	eb.MaxInterval = opts.MaxBackoff
	eb.Multiplier = opts.Multiplier
	eb.RandomizationFactor = 0
	eb.Reset()

	var delay time.Duration
	for i := 0; i < consecutive; i++ {
		delay = eb.NextBackOff()
	}
	if delay <= 0 {
		delay = opts.MaxBackoff
	}
	return delay
}

// resetIfIdle clears consecutive count once the window has fully elapsed
// with no restarts, per spec §4.7 boundary scenario 4 ("after a 20s idle
// window, RestartHistory resets").
func (h *restartHistory) resetIfIdle() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.timestamps) == 0 {
		h.consecutive = 0
		return
	}
	last := h.timestamps[len(h.timestamps)-1]
	if h.now().Sub(last) >= h.window {
		h.consecutive = 0
		h.timestamps = nil
	}
}
