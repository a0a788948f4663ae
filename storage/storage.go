// Package storage implements optimistic-concurrency state persistence
// (spec §4.9) over an embedded badger/v4 key-value store, grounded on the
// teacher's own badger.Txn usage (cmd/fix-head-to-actual-tip) for reading
// and writing keys transactionally.
package storage

import (
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"

	sderrors "github.com/fluxgrid/silo/errors"
	"github.com/fluxgrid/silo/metrics"
)

// Store persists actor state keyed by (actorId, stateName) with
// compare-and-set versioning.
type Store struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

// Open returns a Store backed by a badger database at dir. m may be nil.
func Open(dir string, m *metrics.Metrics) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, sderrors.Wrap(sderrors.ActorFailure, err)
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &Store{db: db, metrics: m}, nil
}

// Close releases the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// record is the on-disk envelope around a state's raw bytes and version.
type record struct {
	Version uint64 `json:"version"`
	State   []byte `json:"state"`
}

func stateKey(actorID, stateName string) []byte {
	return []byte("state/" + actorID + "/" + stateName)
}

// Load reads the committed (state, version) for (actorID, stateName).
// Returns (nil, 0, false, nil) if no row exists.
func (s *Store) Load(actorID, stateName string) (state []byte, version uint64, found bool, err error) {
	txErr := s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(stateKey(actorID, stateName))
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error {
			var r record
			if jsonErr := json.Unmarshal(val, &r); jsonErr != nil {
				return jsonErr
			}
			state = r.State
			version = r.Version
			found = true
			return nil
		})
	})
	if txErr != nil {
		return nil, 0, false, sderrors.Wrap(sderrors.ActorFailure, txErr)
	}
	return state, version, found, nil
}

// SaveWithVersion atomically compares the current version against
// expectedVersion and, on match, writes state and returns the new version
// (spec §4.9):
//   - expectedVersion == 0 (no prior row) -> insert, newVersion = 1.
//   - expectedVersion == current -> update, newVersion = current + 1.
//   - anything else -> ConcurrencyConflict(expected, actual).
func (s *Store) SaveWithVersion(actorID, stateName string, state []byte, expectedVersion uint64) (uint64, error) {
	key := stateKey(actorID, stateName)
	var newVersion uint64

	txErr := s.db.Update(func(txn *badger.Txn) error {
		item, getErr := txn.Get(key)
		var current uint64
		exists := true
		switch {
		case getErr == badger.ErrKeyNotFound:
			exists = false
		case getErr != nil:
			return getErr
		default:
			if valErr := item.Value(func(val []byte) error {
				var r record
				if err := json.Unmarshal(val, &r); err != nil {
					return err
				}
				current = r.Version
				return nil
			}); valErr != nil {
				return valErr
			}
		}

		switch {
		case !exists && expectedVersion == 0:
			newVersion = 1
		case exists && expectedVersion == current && expectedVersion > 0:
			newVersion = current + 1
		default:
			s.metrics.StorageConflicts.WithLabelValues(stateName).Inc()
			return sderrors.NewConcurrencyConflict(int64(expectedVersion), int64(current))
		}

		raw, err := json.Marshal(record{Version: newVersion, State: state})
		if err != nil {
			return err
		}
		return txn.Set(key, raw)
	})
	if txErr != nil {
		if sderrors.Is(txErr, sderrors.ConcurrencyConflict) {
			return 0, txErr
		}
		return 0, sderrors.Wrap(sderrors.ActorFailure, txErr)
	}
	return newVersion, nil
}

// Delete unconditionally removes (actorID, stateName).
func (s *Store) Delete(actorID, stateName string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(stateKey(actorID, stateName))
	})
	if err != nil {
		return sderrors.Wrap(sderrors.ActorFailure, err)
	}
	return nil
}
