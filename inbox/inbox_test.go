package inbox

import (
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestIsProcessedFalseBeforeMark(t *testing.T) {
	i := New(openTestDB(t))
	processed, err := i.IsProcessed("order-1", "m-1")
	require.NoError(t, err)
	require.False(t, processed)
}

func TestMarkAsProcessedThenIsProcessedTrue(t *testing.T) {
	i := New(openTestDB(t))
	require.NoError(t, i.MarkAsProcessed("order-1", "m-1"))

	processed, err := i.IsProcessed("order-1", "m-1")
	require.NoError(t, err)
	require.True(t, processed)
}

func TestIsProcessedScopedPerActor(t *testing.T) {
	i := New(openTestDB(t))
	require.NoError(t, i.MarkAsProcessed("order-1", "m-1"))

	processed, err := i.IsProcessed("order-2", "m-1")
	require.NoError(t, err)
	require.False(t, processed)
}

func TestCleanupRemovesOldEntries(t *testing.T) {
	i := New(openTestDB(t))
	old := time.Now().Add(-48 * time.Hour)
	i.now = func() time.Time { return old }
	require.NoError(t, i.MarkAsProcessed("order-1", "m-1"))

	i.now = time.Now
	require.NoError(t, i.Cleanup(time.Hour))

	processed, err := i.IsProcessed("order-1", "m-1")
	require.NoError(t, err)
	require.False(t, processed)
}
