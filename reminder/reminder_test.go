package reminder

import (
	"context"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/fluxgrid/silo/envelope"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func ownsAll(string, string) bool { return true }

func TestRegisterThenScanFiresDueReminder(t *testing.T) {
	tbl := New(openTestDB(t), nil, nil)
	past := time.Now().Add(-time.Minute)
	tbl.now = func() time.Time { return past.Add(time.Minute) }

	require.NoError(t, tbl.Register(Reminder{
		ActorType: "order", ActorID: "1", Name: "timeout", DueTime: past,
	}))

	var fired []*envelope.Envelope
	fire := func(_ context.Context, e *envelope.Envelope) error {
		fired = append(fired, e)
		return nil
	}
	require.NoError(t, tbl.ScanOnce(context.Background(), ownsAll, fire))
	require.Len(t, fired, 1)
	require.Equal(t, "OnReminder:timeout", fired[0].MethodName)
}

func TestScanSkipsNotYetDue(t *testing.T) {
	tbl := New(openTestDB(t), nil, nil)
	now := time.Now()
	tbl.now = func() time.Time { return now }

	require.NoError(t, tbl.Register(Reminder{
		ActorType: "order", ActorID: "1", Name: "timeout", DueTime: now.Add(time.Hour),
	}))

	var calls int
	fire := func(context.Context, *envelope.Envelope) error { calls++; return nil }
	require.NoError(t, tbl.ScanOnce(context.Background(), ownsAll, fire))
	require.Zero(t, calls)
}

func TestScanSkipsReminderNotOwnedByThisSilo(t *testing.T) {
	tbl := New(openTestDB(t), nil, nil)
	past := time.Now().Add(-time.Minute)
	tbl.now = func() time.Time { return past.Add(time.Minute) }

	require.NoError(t, tbl.Register(Reminder{
		ActorType: "order", ActorID: "1", Name: "timeout", DueTime: past,
	}))

	ownsNone := func(string, string) bool { return false }
	var calls int
	fire := func(context.Context, *envelope.Envelope) error { calls++; return nil }
	require.NoError(t, tbl.ScanOnce(context.Background(), ownsNone, fire))
	require.Zero(t, calls)
}

func TestNonRepeatingReminderRemovedAfterFiring(t *testing.T) {
	tbl := New(openTestDB(t), nil, nil)
	past := time.Now().Add(-time.Minute)
	tbl.now = func() time.Time { return past.Add(time.Minute) }

	require.NoError(t, tbl.Register(Reminder{
		ActorType: "order", ActorID: "1", Name: "timeout", DueTime: past,
	}))

	fire := func(context.Context, *envelope.Envelope) error { return nil }
	require.NoError(t, tbl.ScanOnce(context.Background(), ownsAll, fire))

	due, err := tbl.due()
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestRepeatingReminderRescheduledAfterFiring(t *testing.T) {
	tbl := New(openTestDB(t), nil, nil)
	past := time.Now().Add(-time.Minute)
	fireTime := past.Add(time.Minute)
	tbl.now = func() time.Time { return fireTime }

	require.NoError(t, tbl.Register(Reminder{
		ActorType: "order", ActorID: "1", Name: "poll", DueTime: past, Period: 30 * time.Second,
	}))

	fire := func(context.Context, *envelope.Envelope) error { return nil }
	require.NoError(t, tbl.ScanOnce(context.Background(), ownsAll, fire))

	tbl.now = func() time.Time { return fireTime.Add(29 * time.Second) }
	due, err := tbl.due()
	require.NoError(t, err)
	require.Empty(t, due, "reschedule should push nextFireTime 30s out")

	tbl.now = func() time.Time { return fireTime.Add(31 * time.Second) }
	due, err = tbl.due()
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestUnregisterRemovesReminder(t *testing.T) {
	tbl := New(openTestDB(t), nil, nil)
	require.NoError(t, tbl.Register(Reminder{ActorType: "order", ActorID: "1", Name: "timeout", DueTime: time.Now()}))
	require.NoError(t, tbl.Unregister("order", "1", "timeout"))

	due, err := tbl.due()
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestFireErrorLeavesReminderDueForRetry(t *testing.T) {
	tbl := New(openTestDB(t), nil, nil)
	past := time.Now().Add(-time.Minute)
	tbl.now = func() time.Time { return past.Add(time.Minute) }

	require.NoError(t, tbl.Register(Reminder{
		ActorType: "order", ActorID: "1", Name: "timeout", DueTime: past,
	}))

	fire := func(context.Context, *envelope.Envelope) error { return require.AnError }
	require.NoError(t, tbl.ScanOnce(context.Background(), ownsAll, fire))

	due, err := tbl.due()
	require.NoError(t, err)
	require.Len(t, due, 1)
}
