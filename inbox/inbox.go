// Package inbox implements idempotent receive tracking (spec §4.10): a
// durable record of processed messageIds per actor, consulted before a
// handler runs so a redelivered message is a no-op.
package inbox

import (
	"time"

	badger "github.com/dgraph-io/badger/v4"

	sderrors "github.com/fluxgrid/silo/errors"
)

// Inbox records which (actorId, messageId) pairs have already been
// processed.
type Inbox struct {
	db  *badger.DB
	now func() time.Time
}

// New builds an Inbox backed by db.
func New(db *badger.DB) *Inbox {
	return &Inbox{db: db, now: time.Now}
}

func processedKey(actorID, messageID string) []byte {
	return []byte("inbox/" + actorID + "/" + messageID)
}

// IsProcessed reports whether messageID has already been handled for
// actorID.
func (i *Inbox) IsProcessed(actorID, messageID string) (bool, error) {
	found := false
	err := i.db.View(func(txn *badger.Txn) error {
		_, getErr := txn.Get(processedKey(actorID, messageID))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		found = true
		return nil
	})
	if err != nil {
		return false, sderrors.Wrap(sderrors.ActorFailure, err)
	}
	return found, nil
}

// MarkAsProcessed durably records that messageID has been handled for
// actorID. It commits in its own badger transaction; it is not bound to
// the transaction of the triggering state mutation.
func (i *Inbox) MarkAsProcessed(actorID, messageID string) error {
	err := i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(processedKey(actorID, messageID), encodeTime(i.now()))
	})
	if err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	return nil
}

// Cleanup bulk-removes processed entries older than retention.
func (i *Inbox) Cleanup(retention time.Duration) error {
	cutoff := i.now().Add(-retention)
	var toDelete [][]byte
	err := i.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("inbox/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var processedAt time.Time
			if valErr := it.Item().Value(func(val []byte) error {
				t, decErr := decodeTime(val)
				processedAt = t
				return decErr
			}); valErr != nil {
				return valErr
			}
			if processedAt.Before(cutoff) {
				toDelete = append(toDelete, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	return i.db.Update(func(txn *badger.Txn) error {
		for _, k := range toDelete {
			if delErr := txn.Delete(k); delErr != nil {
				return delErr
			}
		}
		return nil
	})
}

func encodeTime(t time.Time) []byte {
	b, _ := t.UTC().MarshalBinary()
	return b
}

func decodeTime(b []byte) (time.Time, error) {
	var t time.Time
	err := t.UnmarshalBinary(b)
	return t, err
}
