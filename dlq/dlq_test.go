package dlq

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDelayForAttemptGrowsExponentially(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}
	rng := rand.New(rand.NewSource(1))

	require.Equal(t, 100*time.Millisecond, p.DelayForAttempt(1, rng))
	require.Equal(t, 200*time.Millisecond, p.DelayForAttempt(2, rng))
	require.Equal(t, 400*time.Millisecond, p.DelayForAttempt(3, rng))
}

func TestDelayForAttemptClampsToMaxDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond, Multiplier: 2.0}
	rng := rand.New(rand.NewSource(1))
	require.Equal(t, 250*time.Millisecond, p.DelayForAttempt(5, rng))
}

func TestDelayForAttemptJitterStaysInRange(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 1.0, Jitter: true}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		d := p.DelayForAttempt(1, rng)
		require.GreaterOrEqual(t, d, 50*time.Millisecond)
		require.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestTotalAttemptsIncludesInitial(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3}
	require.Equal(t, 4, p.TotalAttempts())
}

func TestQueueEvictsOldestOnOverflow(t *testing.T) {
	q := New(Config{Enabled: true, MaxMessages: 2, RetryPolicy: DefaultRetryPolicy()}, nil)
	q.Push(Entry{ActorID: "1"})
	q.Push(Entry{ActorID: "2"})
	q.Push(Entry{ActorID: "3"})

	require.Equal(t, 2, q.Len())
	entries := q.Snapshot()
	require.Equal(t, "2", entries[0].ActorID)
	require.Equal(t, "3", entries[1].ActorID)
}

func TestQueueDisabledDropsPushes(t *testing.T) {
	q := New(Config{Enabled: false, MaxMessages: 10}, nil)
	q.Push(Entry{ActorID: "1"})
	require.Equal(t, 0, q.Len())
}
