// Package outbox implements the reliable-send pattern (spec §4.10): a
// durable table of pending deliveries drained by a background worker with
// exponential backoff on failure.
package outbox

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	sderrors "github.com/fluxgrid/silo/errors"
	"github.com/fluxgrid/silo/log"
	"github.com/fluxgrid/silo/metrics"
)

// Message is one durable outbound delivery.
type Message struct {
	ID           string
	Destination  string
	Payload      []byte
	EnqueuedAt   time.Time
	SentAt       *time.Time
	RetryCount   int
	NextRetryAt  *time.Time
	LastError    string
}

// Sender delivers a Message, typically via transport.Transport.Send.
type Sender func(ctx context.Context, msg Message) error

// Config tunes the drainer.
type Config struct {
	MaxRetries int
	BatchSize  int
	PollEvery  time.Duration
}

// DefaultConfig mirrors spec §6's suggested outbox defaults.
func DefaultConfig() Config {
	return Config{MaxRetries: 5, BatchSize: 100, PollEvery: time.Second}
}

// Outbox durably queues Messages in badger and drains them on a
// background loop.
type Outbox struct {
	db      *badger.DB
	cfg     Config
	logger  log.Logger
	metrics *metrics.Metrics

	now func() time.Time
}

// New builds an Outbox backed by db. logger/m may be nil.
func New(db *badger.DB, cfg Config, logger log.Logger, m *metrics.Metrics) *Outbox {
	if cfg.MaxRetries <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.NewNoOp()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &Outbox{db: db, cfg: cfg, logger: logger, metrics: m, now: time.Now}
}

func messageKey(id string) []byte { return []byte("outbox/" + id) }

// Enqueue durably records msg. Callers are responsible for binding this
// write into the same transaction as the triggering state mutation where
// the backend supports it (spec §4.10).
func (o *Outbox) Enqueue(msg Message) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = o.now()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	err = o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.ID), raw)
	})
	if err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	o.metrics.OutboxPending.WithLabelValues(msg.Destination).Inc()
	return nil
}

// pending returns up to batch Messages eligible for delivery: not yet
// sent, under the retry budget, and due (spec §4.10).
func (o *Outbox) pending(batch int) ([]Message, error) {
	var out []Message
	now := o.now()
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("outbox/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg Message
			if valErr := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); valErr != nil {
				return valErr
			}
			if msg.SentAt != nil || msg.RetryCount >= o.cfg.MaxRetries {
				continue
			}
			if msg.NextRetryAt != nil && msg.NextRetryAt.After(now) {
				continue
			}
			out = append(out, msg)
			if len(out) >= batch {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, sderrors.Wrap(sderrors.ActorFailure, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}

func (o *Outbox) save(msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return o.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.ID), raw)
	})
}

// markSent records successful delivery.
func (o *Outbox) markSent(msg Message) error {
	now := o.now()
	msg.SentAt = &now
	if err := o.save(msg); err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	o.metrics.OutboxPending.WithLabelValues(msg.Destination).Dec()
	return nil
}

// markFailed records a delivery failure, scheduling the next retry with
// exponential backoff (2^retryCount seconds, per spec §4.10).
func (o *Outbox) markFailed(msg Message, deliveryErr error) error {
	msg.RetryCount++
	msg.LastError = deliveryErr.Error()
	next := o.now().Add(time.Duration(math.Pow(2, float64(msg.RetryCount))) * time.Second)
	msg.NextRetryAt = &next
	return o.save(msg)
}

// DrainOnce attempts delivery of one batch of pending messages via send.
func (o *Outbox) DrainOnce(ctx context.Context, send Sender) error {
	msgs, err := o.pending(o.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := send(ctx, msg); err != nil {
			if markErr := o.markFailed(msg, err); markErr != nil {
				o.logger.Error("outbox: failed to record delivery failure")
			}
			continue
		}
		if err := o.markSent(msg); err != nil {
			o.logger.Error("outbox: failed to record delivery success")
		}
	}
	return nil
}

// Run drains on cfg.PollEvery until ctx is done.
func (o *Outbox) Run(ctx context.Context, send Sender) {
	ticker := time.NewTicker(o.cfg.PollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.DrainOnce(ctx, send); err != nil {
				o.logger.Warn("outbox: drain failed")
			}
		}
	}
}

// Purge removes sent messages older than retention.
func (o *Outbox) Purge(retention time.Duration) error {
	cutoff := o.now().Add(-retention)
	var toDelete [][]byte
	err := o.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("outbox/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg Message
			if valErr := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); valErr != nil {
				return valErr
			}
			if msg.SentAt != nil && msg.SentAt.Before(cutoff) {
				toDelete = append(toDelete, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	return o.db.Update(func(txn *badger.Txn) error {
		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
