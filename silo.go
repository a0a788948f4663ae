// Package silo wires placement, membership, transport, mailboxes,
// activation/supervision, dispatch, storage, outbox/inbox, the dead-letter
// queue, and the reminder scanner into one running process, the way the
// teacher repo's top-level node/chain wiring assembles its own subsystems
// from individually-testable packages.
package silo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/fluxgrid/silo/actor"
	"github.com/fluxgrid/silo/config"
	"github.com/fluxgrid/silo/dispatch"
	"github.com/fluxgrid/silo/dlq"
	"github.com/fluxgrid/silo/envelope"
	sderrors "github.com/fluxgrid/silo/errors"
	"github.com/fluxgrid/silo/hashring"
	"github.com/fluxgrid/silo/inbox"
	"github.com/fluxgrid/silo/log"
	"github.com/fluxgrid/silo/mailbox"
	"github.com/fluxgrid/silo/membership"
	"github.com/fluxgrid/silo/metrics"
	"github.com/fluxgrid/silo/outbox"
	"github.com/fluxgrid/silo/placement"
	"github.com/fluxgrid/silo/reminder"
	"github.com/fluxgrid/silo/storage"
	"github.com/fluxgrid/silo/transport"
	"github.com/fluxgrid/silo/utils/version"
)

// Current is this binary's advertised version, used for version-aware
// routing (SPEC_FULL.md §C).
var Current = version.Semantic{Major: 1, Minor: 0, Patch: 0}

// Silo is one running member of the cluster: it owns a durable KV store,
// a membership view, a placement resolver, a transport, and the live set
// of actor activations this process currently hosts.
type Silo struct {
	cfg     config.Config
	logger  log.Logger
	metrics *metrics.Metrics

	ring        *hashring.Ring
	members     *membership.Registry
	placement   *placement.Resolver
	transport   transport.Transport
	factories   *actor.FactoryRegistry
	activations *actor.ActivationTable
	supervisor  *actor.Supervisor
	dispatch    *dispatch.Registry
	store       *storage.Store
	outboxQ     *outbox.Outbox
	inboxQ      *inbox.Inbox
	dlqQ        *dlq.Queue
	reminders   *reminder.Table

	mu         sync.Mutex
	mailboxes  map[string]*mailbox.Mailbox
	replySinks map[string]func(*envelope.Envelope)

	msgSeq atomic.Uint64

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New assembles a Silo from cfg without starting any background loops or
// opening storage; call Start to bring it up.
func New(cfg config.Config, logger log.Logger, m *metrics.Metrics) *Silo {
	if logger == nil {
		logger = log.NewNoOp()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}

	ring := hashring.New()
	members := membership.NewRegistry()
	cache, err := placement.NewCache(4096)
	if err != nil {
		cache = nil
	}
	policy := &placement.LocalPreferred{
		LocalSiloID: cfg.SiloID,
		Delegate:    &placement.ConsistentHash{Ring: ring},
	}
	resolver := placement.NewResolver(policy, cache, logger)

	factories := actor.NewFactoryRegistry()
	activations := actor.NewActivationTable(factories)
	supervisor := actor.NewSupervisor(actor.DefaultOptions(), activations, logger, m)
	dispatchRegistry := dispatch.NewRegistry()

	s := &Silo{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		ring:        ring,
		members:     members,
		placement:   resolver,
		factories:   factories,
		activations: activations,
		supervisor:  supervisor,
		dispatch:    dispatchRegistry,
		dlqQ:        dlq.New(dlq.DefaultConfig(), m),
		mailboxes:   make(map[string]*mailbox.Mailbox),
		replySinks:  make(map[string]func(*envelope.Envelope)),
	}

	members.AddListener(membershipListener{s: s})
	return s
}

// membershipListener invalidates cached placement decisions and keeps the
// hash ring in sync with the membership registry.
type membershipListener struct{ s *Silo }

func (l membershipListener) OnSiloAdded(info membership.SiloInfo) {
	l.s.ring.AddSilo(info.ID, hashring.DefaultVirtualNodes)
	l.s.placement.InvalidateAll()
}

func (l membershipListener) OnSiloRemoved(info membership.SiloInfo) {
	l.s.ring.RemoveSilo(info.ID)
	l.s.placement.InvalidateAll()
}

func (l membershipListener) OnSiloVersionChanged(string, version.Semantic, version.Semantic) {
	l.s.placement.InvalidateAll()
}

// RegisterActorType binds factory and its dispatcher under actorType.
// Must be called before Freeze (and therefore before Start, which freezes
// the registries).
func (s *Silo) RegisterActorType(actorType string, factory actor.Factory, d *dispatch.Dispatcher) error {
	if err := s.factories.Register(actorType, factory); err != nil {
		return err
	}
	return s.dispatch.Register(actorType, d)
}

// Start opens durable storage, freezes the factory/dispatch registries,
// begins listening for peer connections, registers this silo as a
// cluster member, and launches the background outbox/reminder loops.
func (s *Silo) Start(ctx context.Context) error {
	s.factories.Freeze()
	s.dispatch.Freeze()

	store, err := storage.Open(s.cfg.DataDir, s.metrics)
	if err != nil {
		return fmt.Errorf("silo: open storage: %w", err)
	}
	s.store = store

	db, err := openInternalDB(s.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("silo: open internal db: %w", err)
	}
	s.outboxQ = outbox.New(db, outbox.DefaultConfig(), s.logger, s.metrics)
	s.inboxQ = inbox.New(db)
	s.reminders = reminder.New(db, s.logger, s.metrics)

	s.transport = transport.New(transport.Config{
		LocalSiloID:    s.cfg.SiloID,
		RequestTimeout: s.cfg.Transport.RequestTimeout,
	}, s.logger, s.metrics)
	s.transport.OnEnvelopeReceived(s.handleInbound)
	if err := s.transport.Start(ctx, s.cfg.ListenAddr); err != nil {
		return fmt.Errorf("silo: start transport: %w", err)
	}

	s.members.Add(membership.SiloInfo{
		ID:      s.cfg.SiloID,
		Address: s.cfg.ListenAddr,
		Region:  s.cfg.Region,
		Zone:    s.cfg.Zone,
		Version: Current,
	})

	s.runCtx, s.runCancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.outboxQ.Run(s.runCtx, s.remoteSend)
	}()
	go func() {
		defer s.wg.Done()
		s.reminders.Run(s.runCtx, time.Minute, s.owns, s.fireReminder)
	}()

	return nil
}

// Stop halts background loops, closes the transport, and releases
// storage handles.
func (s *Silo) Stop() error {
	if s.runCancel != nil {
		s.runCancel()
	}
	s.wg.Wait()
	if s.transport != nil {
		_ = s.transport.Stop()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
	return nil
}

// Join admits a remote silo into this process's membership view, adding
// it to the consistent-hash ring and (when addr is non-empty) connecting
// the transport to it.
func (s *Silo) Join(ctx context.Context, info membership.SiloInfo) error {
	s.members.Add(info)
	if info.Address != "" && info.ID != s.cfg.SiloID {
		if err := s.transport.Connect(ctx, info.ID, info.Address); err != nil {
			return err
		}
	}
	return nil
}

// Leave removes a remote silo from membership and disconnects its
// transport peer, if connected.
func (s *Silo) Leave(siloID string) {
	s.members.Remove(siloID)
	_ = s.transport.Disconnect(siloID)
}

// Members returns the current membership directory.
func (s *Silo) Members() *membership.Registry { return s.members }

// Activations returns the live activation table, consumed by diagnostics.
func (s *Silo) Activations() *actor.ActivationTable { return s.activations }

// DeadLetters returns the dead-letter queue.
func (s *Silo) DeadLetters() *dlq.Queue { return s.dlqQ }

// Store returns the durable state store, for handlers to load/save state.
func (s *Silo) Store() *storage.Store { return s.store }

// Send dispatches a message to (actorType, actorID)'s owning silo,
// resolving locally-vs-remotely and blocking for the response (spec §4.1).
func (s *Silo) Send(ctx context.Context, actorType, actorID, method string, payload []byte) ([]byte, error) {
	owner, ok := s.resolveOwner(actorType, actorID)
	if !ok {
		return nil, sderrors.Newf(sderrors.UnknownActorType, "silo: no silo available to own %s/%s", actorType, actorID)
	}

	e := &envelope.Envelope{
		MessageID:  s.nextMessageID(),
		ActorType:  actorType,
		ActorID:    actorID,
		MethodName: method,
		Payload:    payload,
		Timestamp:  time.Now(),
	}

	if owner == s.cfg.SiloID {
		return s.invokeLocal(ctx, e)
	}

	resp, err := s.transport.Request(ctx, owner, e)
	if err != nil {
		return nil, err
	}
	return responsePayload(resp)
}

func (s *Silo) resolveOwner(actorType, actorID string) (string, bool) {
	return s.placement.Resolve(actorType, actorID, s.members.ListEligible(s.cfg.MinSiloVersion))
}

// owns reports whether (actorType, actorID) currently maps to this silo,
// consumed by the reminder scanner (spec §4.12).
func (s *Silo) owns(actorType, actorID string) bool {
	owner, ok := s.resolveOwner(actorType, actorID)
	return ok && owner == s.cfg.SiloID
}

func (s *Silo) fireReminder(ctx context.Context, e *envelope.Envelope) error {
	_, err := s.invokeLocal(ctx, e)
	return err
}

func (s *Silo) nextMessageID() string {
	return fmt.Sprintf("%s-%d", s.cfg.SiloID, s.msgSeq.Add(1))
}

func responsePayload(resp *envelope.Envelope) ([]byte, error) {
	if resp.IsError {
		return nil, sderrors.New(sderrors.ActorFailure, resp.ErrorMessage)
	}
	return resp.ResponsePayload, nil
}

// invokeLocal enqueues e on its activation's mailbox and blocks for the
// matching response, whether the caller is this process's own Send or a
// reminder firing synthetically.
func (s *Silo) invokeLocal(ctx context.Context, e *envelope.Envelope) ([]byte, error) {
	mb := s.mailboxFor(e.ActorType, e.ActorID)

	replyCh := make(chan *envelope.Envelope, 1)
	s.registerReplySink(e.MessageID, func(resp *envelope.Envelope) {
		select {
		case replyCh <- resp:
		default:
		}
	})

	if err := mb.Enqueue(ctx, e); err != nil {
		s.unregisterReplySink(e.MessageID)
		return nil, err
	}

	select {
	case resp := <-replyCh:
		return responsePayload(resp)
	case <-ctx.Done():
		s.unregisterReplySink(e.MessageID)
		return nil, ctx.Err()
	}
}

// handleInbound is the transport.Handler for envelopes arriving from
// remote peers; it delivers the eventual response back over the same
// transport connection rather than through a local channel.
func (s *Silo) handleInbound(ctx context.Context, from string, e *envelope.Envelope) {
	mb := s.mailboxFor(e.ActorType, e.ActorID)

	s.registerReplySink(e.MessageID, func(resp *envelope.Envelope) {
		sendCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Transport.RequestTimeout)
		defer cancel()
		if err := s.transport.Send(sendCtx, from, resp); err != nil {
			s.logger.Warn("silo: failed to deliver response to peer")
		}
	})

	if err := mb.Enqueue(ctx, e); err != nil {
		s.completeReply(e.MessageID, &envelope.Envelope{
			MessageID:     e.MessageID,
			CorrelationID: e.CorrelationID,
			IsResponse:    true,
			IsError:       true,
			ErrorMessage:  err.Error(),
			Timestamp:     time.Now(),
		})
	}
}

// remoteSend is the outbox.Sender used to deliver queued cross-silo
// messages.
func (s *Silo) remoteSend(ctx context.Context, msg outbox.Message) error {
	return s.transport.Send(ctx, msg.Destination, &envelope.Envelope{
		MessageID: msg.ID,
		Payload:   msg.Payload,
		Timestamp: time.Now(),
	})
}

func (s *Silo) registerReplySink(messageID string, fn func(*envelope.Envelope)) {
	s.mu.Lock()
	s.replySinks[messageID] = fn
	s.mu.Unlock()
}

func (s *Silo) unregisterReplySink(messageID string) {
	s.mu.Lock()
	delete(s.replySinks, messageID)
	s.mu.Unlock()
}

func (s *Silo) completeReply(messageID string, resp *envelope.Envelope) {
	s.mu.Lock()
	fn, ok := s.replySinks[messageID]
	delete(s.replySinks, messageID)
	s.mu.Unlock()
	if ok {
		fn(resp)
	}
}

func (s *Silo) mailboxFor(actorType, actorID string) *mailbox.Mailbox {
	key := actorType + ":" + actorID
	s.mu.Lock()
	mb, ok := s.mailboxes[key]
	if !ok {
		mb = mailbox.New(mailbox.Config{
			ActorType: actorType,
			FullMode:  s.cfg.Mailbox.FullMode,
			Adaptive: mailbox.AdaptiveConfig{
				InitialCapacity: s.cfg.Mailbox.Adaptive.InitialCapacity,
				MinCapacity:     s.cfg.Mailbox.Adaptive.MinCapacity,
				MaxCapacity:     s.cfg.Mailbox.Adaptive.MaxCapacity,
				GrowThreshold:   s.cfg.Mailbox.Adaptive.GrowThreshold,
				ShrinkThreshold: s.cfg.Mailbox.Adaptive.ShrinkThreshold,
				GrowthFactor:    s.cfg.Mailbox.Adaptive.GrowthFactor,
				ShrinkFactor:    s.cfg.Mailbox.Adaptive.ShrinkFactor,
				MinSamples:      s.cfg.Mailbox.Adaptive.MinSamples,
				Enabled:         s.cfg.Mailbox.Adaptive.Enabled,
			},
			Breaker: mailbox.BreakerConfig{
				FailureThreshold:  s.cfg.CircuitBreaker.FailureThreshold,
				OpenDuration:      s.cfg.CircuitBreaker.Timeout,
				HalfOpenSuccesses: s.cfg.CircuitBreaker.SuccessThreshold,
				Enabled:           s.cfg.CircuitBreaker.Enabled,
			},
			RateLimit: mailbox.RateLimiterConfig{
				Limit:   s.cfg.RateLimit.MaxMessagesPerWindow,
				Window:  s.cfg.RateLimit.TimeWindow,
				Policy:  s.cfg.RateLimit.ExcessAction,
				Enabled: s.cfg.RateLimit.Enabled,
			},
		}, s.metrics)
		s.mailboxes[key] = mb
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.turnLoop(s.runCtx, actorType, actorID, mb)
		}()
	}
	s.mu.Unlock()
	return mb
}

// turnLoop is an activation's dedicated single-consumer loop (spec §4.6:
// "at most one message of an activation is in flight at any instant").
func (s *Silo) turnLoop(ctx context.Context, actorType, actorID string, mb *mailbox.Mailbox) {
	for {
		e, err := mb.Dequeue(ctx)
		if err != nil {
			return
		}
		s.processTurn(ctx, actorType, actorID, e)
	}
}

func (s *Silo) processTurn(ctx context.Context, actorType, actorID string, e *envelope.Envelope) {
	start := time.Now()
	act, err := s.activations.GetOrActivate(ctx, actorType, actorID)
	resp := &envelope.Envelope{
		MessageID:     e.MessageID,
		CorrelationID: e.CorrelationID,
		ActorType:     actorType,
		ActorID:       actorID,
		IsResponse:    true,
		Timestamp:     time.Now(),
	}
	if err != nil {
		resp.IsError = true
		resp.ErrorMessage = err.Error()
		s.completeReply(e.MessageID, resp)
		return
	}
	act.Touch()

	payload, invokeErr := s.dispatch.Invoke(ctx, act.Handler, e)
	s.metrics.TurnDuration.WithLabelValues(actorType).Observe(time.Since(start).Seconds())

	if invokeErr != nil {
		resp.IsError = true
		resp.ErrorMessage = invokeErr.Error()
		s.dlqQ.Push(dlq.Entry{
			ActorType:  actorType,
			ActorID:    actorID,
			Err:        invokeErr,
			EnqueuedAt: time.Now(),
		})
		directive := s.supervisor.HandleFailure(ctx, actorType, actorID, invokeErr)
		s.logger.Warn("silo: turn failed",
			zap.String("actorType", actorType), zap.String("actorId", actorID),
			zap.String("directive", directive.String()))
	} else {
		resp.ResponsePayload = payload
	}
	s.completeReply(e.MessageID, resp)
}

func openInternalDB(dataDir string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(dataDir + "/internal").WithLogger(nil))
}
