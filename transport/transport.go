// Package transport implements the inter-silo envelope exchange (spec
// §4.5): a bidirectional, length-prefixed stream per peer, a local
// short-circuit for same-process delivery, and a pending-request
// correlation table for request/response matching. It generalizes the
// teacher's networking/timeout.Manager (per-request timeout bookkeeping
// keyed by request ID) from consensus query/response pairs to actor call
// envelopes keyed by messageId.
package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	sderrors "github.com/fluxgrid/silo/errors"
	"github.com/fluxgrid/silo/envelope"
	"github.com/fluxgrid/silo/log"
	"github.com/fluxgrid/silo/metrics"
)

// DefaultTimeout is the pending-request timeout absent an explicit
// Config.RequestTimeout (spec §4.5).
const DefaultTimeout = 30 * time.Second

// Handler processes an inbound Envelope. Implementations are expected to
// dispatch into the local actor runtime and, for requests, eventually call
// Transport.Send with the corresponding response envelope.
type Handler func(ctx context.Context, from string, e *envelope.Envelope)

// Transport is the unit of wire communication between silos.
type Transport interface {
	// Start begins accepting inbound connections on addr.
	Start(ctx context.Context, addr string) error
	// Stop closes all connections and the listener.
	Stop() error
	// Connect establishes (or reuses) an outbound connection to peerID at
	// addr.
	Connect(ctx context.Context, peerID, addr string) error
	// Disconnect tears down the connection to peerID, if any.
	Disconnect(peerID string) error
	// Send delivers e to peerID. If peerID is the local silo ID, delivery
	// short-circuits straight to OnEnvelopeReceived without touching the
	// network.
	Send(ctx context.Context, peerID string, e *envelope.Envelope) error
	// Request sends e and blocks until a correlated response envelope
	// arrives, ctx is canceled, or the request times out.
	Request(ctx context.Context, peerID string, e *envelope.Envelope) (*envelope.Envelope, error)
	// OnEnvelopeReceived registers the handler invoked for every inbound
	// envelope, including locally short-circuited ones.
	OnEnvelopeReceived(h Handler)
}

// Config controls a Transport's construction.
type Config struct {
	LocalSiloID    string
	RequestTimeout time.Duration
	DialTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	return c
}

// netTransport is the production Transport, carrying envelopes over raw
// TCP connections framed by envelope.MarshalBinary/UnmarshalBinary.
type netTransport struct {
	cfg     Config
	logger  log.Logger
	metrics *metrics.Metrics

	mu       sync.RWMutex
	peers    map[string]*peerConn
	handler  Handler
	pending  *pendingTable
	listener net.Listener

	// readers fans in every accept-loop and per-peer read-loop goroutine so
	// Stop can wait for them to drain instead of leaking them, and so the
	// first read-loop failure surfaces through Wait rather than a bare log
	// line.
	readers *errgroup.Group
}

// New builds a Transport. logger and m may be nil to use no-op defaults.
func New(cfg Config, logger log.Logger, m *metrics.Metrics) Transport {
	if logger == nil {
		logger = log.NewNoOp()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &netTransport{
		cfg:     cfg.withDefaults(),
		logger:  logger,
		metrics: m,
		peers:   map[string]*peerConn{},
		pending: newPendingTable(),
		readers: &errgroup.Group{},
	}
}

func (t *netTransport) OnEnvelopeReceived(h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *netTransport) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	t.readers.Go(func() error { return t.acceptLoop(ctx, ln) })
	return nil
}

func (t *netTransport) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				t.logger.Warn("transport: accept failed", zap.Error(err))
				return err
			}
		}
		pc := newPeerConn("", conn, t.dispatchInbound, t.logger)
		t.readers.Go(func() error { return pc.readLoop(ctx) })
	}
}

func (t *netTransport) Stop() error {
	t.mu.Lock()
	if t.listener != nil {
		_ = t.listener.Close()
	}
	for id, pc := range t.peers {
		_ = pc.close()
		delete(t.peers, id)
	}
	t.mu.Unlock()

	// Closing the listener and every peer conn above unblocks Accept and
	// Read in the goroutines tracked by readers; wait for them to actually
	// exit before reporting Stop complete.
	if err := t.readers.Wait(); err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	return nil
}

func (t *netTransport) Connect(ctx context.Context, peerID, addr string) error {
	t.mu.Lock()
	if _, ok := t.peers[peerID]; ok {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	dialer := net.Dialer{Timeout: t.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return sderrors.Wrap(sderrors.Timeout, err)
	}

	pc := newPeerConn(peerID, conn, t.dispatchInbound, t.logger)
	t.mu.Lock()
	t.peers[peerID] = pc
	t.mu.Unlock()

	t.readers.Go(func() error { return pc.readLoop(ctx) })
	return nil
}

func (t *netTransport) Disconnect(peerID string) error {
	t.mu.Lock()
	pc, ok := t.peers[peerID]
	delete(t.peers, peerID)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return pc.close()
}

func (t *netTransport) dispatchInbound(from string, e *envelope.Envelope) {
	if e.IsResponse {
		t.pending.resolve(e)
		return
	}
	t.mu.RLock()
	h := t.handler
	t.mu.RUnlock()
	if h != nil {
		h(context.Background(), from, e)
	}
}

func (t *netTransport) Send(ctx context.Context, peerID string, e *envelope.Envelope) error {
	if peerID == t.cfg.LocalSiloID {
		t.dispatchInbound(peerID, e)
		return nil
	}
	t.mu.RLock()
	pc, ok := t.peers[peerID]
	t.mu.RUnlock()
	if !ok {
		return sderrors.Newf(sderrors.ActorFailure, "transport: no connection to silo %s", peerID)
	}
	return pc.write(e)
}

func (t *netTransport) Request(ctx context.Context, peerID string, e *envelope.Envelope) (*envelope.Envelope, error) {
	wait := t.pending.register(e.MessageID)
	defer t.pending.forget(e.MessageID)

	if err := t.Send(ctx, peerID, e); err != nil {
		return nil, err
	}

	timer := time.NewTimer(t.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case resp := <-wait:
		return resp, nil
	case <-timer.C:
		t.metrics.TransportErrors.WithLabelValues("timeout").Inc()
		return nil, sderrors.Newf(sderrors.Timeout, "transport: request %s to silo %s timed out", e.MessageID, peerID)
	case <-ctx.Done():
		return nil, sderrors.Wrap(sderrors.Canceled, ctx.Err())
	}
}
