// Package reminder implements the persistent timer table (spec §4.12): a
// durable (actorId, name) -> Reminder registry, scanned periodically and
// fired only by the silo that currently owns the target actor under the
// placement ring.
package reminder

import (
	"context"
	"encoding/json"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/fluxgrid/silo/envelope"
	sderrors "github.com/fluxgrid/silo/errors"
	"github.com/fluxgrid/silo/log"
	"github.com/fluxgrid/silo/metrics"
)

// Reminder is a persistent, possibly-repeating timer targeting one actor.
type Reminder struct {
	ActorType    string
	ActorID      string
	Name         string
	DueTime      time.Time
	Period       time.Duration // zero means non-repeating
	LastFiredAt  time.Time
	NextFireTime time.Time
}

// OwnerResolver reports whether (actorType, actorId) is currently owned
// by this silo, per the placement ring (spec §4.12).
type OwnerResolver func(actorType, actorID string) bool

// Fire posts a synthetic envelope to the owning activation.
type Fire func(ctx context.Context, e *envelope.Envelope) error

// Table is the durable reminder registry backed by badger.
type Table struct {
	db      *badger.DB
	logger  log.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New builds a Table backed by db. logger/m may be nil.
func New(db *badger.DB, logger log.Logger, m *metrics.Metrics) *Table {
	if logger == nil {
		logger = log.NewNoOp()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &Table{db: db, logger: logger, metrics: m, now: time.Now}
}

func reminderKey(actorType, actorID, name string) []byte {
	return []byte("reminder/" + actorType + "/" + actorID + "/" + name)
}

// Register durably records r, computing NextFireTime from DueTime if
// unset.
func (t *Table) Register(r Reminder) error {
	if r.NextFireTime.IsZero() {
		r.NextFireTime = r.DueTime
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	err = t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(reminderKey(r.ActorType, r.ActorID, r.Name), raw)
	})
	if err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	return nil
}

// Unregister removes a reminder.
func (t *Table) Unregister(actorType, actorID, name string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(reminderKey(actorType, actorID, name))
	})
	if err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	return nil
}

// due returns every reminder with NextFireTime <= now.
func (t *Table) due() ([]Reminder, error) {
	now := t.now()
	var out []Reminder
	err := t.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("reminder/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r Reminder
			if valErr := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); valErr != nil {
				return valErr
			}
			if !r.NextFireTime.After(now) {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, sderrors.Wrap(sderrors.ActorFailure, err)
	}
	return out, nil
}

// ScanOnce fires every due reminder this silo owns (per owns), advancing
// periodic reminders and removing non-repeating ones (spec §4.12).
func (t *Table) ScanOnce(ctx context.Context, owns OwnerResolver, fire Fire) error {
	candidates, err := t.due()
	if err != nil {
		return err
	}

	for _, r := range candidates {
		if !owns(r.ActorType, r.ActorID) {
			continue
		}

		e := &envelope.Envelope{
			MessageID:  r.ActorType + ":" + r.ActorID + ":" + r.Name + ":" + t.now().Format(time.RFC3339Nano),
			ActorType:  r.ActorType,
			ActorID:    r.ActorID,
			MethodName: "OnReminder:" + r.Name,
			Timestamp:  t.now(),
		}
		if err := fire(ctx, e); err != nil {
			t.logger.Warn("reminder: fire failed")
			continue
		}
		t.metrics.RemindersFired.WithLabelValues(r.ActorType).Inc()

		now := t.now()
		r.LastFiredAt = now
		if r.Period <= 0 {
			if delErr := t.Unregister(r.ActorType, r.ActorID, r.Name); delErr != nil {
				t.logger.Error("reminder: failed to remove non-repeating reminder")
			}
			continue
		}
		r.NextFireTime = now.Add(r.Period)
		if regErr := t.Register(r); regErr != nil {
			t.logger.Error("reminder: failed to reschedule repeating reminder")
		}
	}
	return nil
}

// Run scans on a fixed interval until ctx is done.
func (t *Table) Run(ctx context.Context, interval time.Duration, owns OwnerResolver, fire Fire) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.ScanOnce(ctx, owns, fire); err != nil {
				t.logger.Warn("reminder: scan failed")
			}
		}
	}
}
