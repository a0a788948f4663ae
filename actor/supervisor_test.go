package actor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSupervisor(t *testing.T, opts Options) (*Supervisor, *FactoryRegistry) {
	factories := NewFactoryRegistry()
	require.NoError(t, factories.Register("Worker", noopFactory))
	factories.Freeze()
	table := NewActivationTable(factories)
	return NewSupervisor(opts, table, nil, nil), factories
}

func TestSupervisorSpawnRejectsDuplicateID(t *testing.T) {
	sup, _ := newTestSupervisor(t, DefaultOptions())
	_, err := sup.Spawn(context.Background(), "Worker", "w1")
	require.NoError(t, err)
	_, err = sup.Spawn(context.Background(), "Worker", "w1")
	require.Error(t, err)
}

func TestSupervisorEscalatesAfterMaxRestarts(t *testing.T) {
	opts := Options{
		Strategy:           OneForOne,
		MaxRestarts:        3,
		TimeWindow:         10 * time.Second,
		InitialBackoff:     time.Millisecond,
		MaxBackoff:         5 * time.Millisecond,
		Multiplier:         2.0,
		EscalateOnExceeded: true,
	}
	sup, _ := newTestSupervisor(t, opts)
	_, err := sup.Spawn(context.Background(), "Worker", "w1")
	require.NoError(t, err)

	var last Directive
	for i := 0; i < 4; i++ {
		last = sup.HandleFailure(context.Background(), "Worker", "w1", require.AnError)
		time.Sleep(2 * time.Millisecond)
	}
	require.Equal(t, Escalate, last)
}

func TestSupervisorResumeDirectiveDoesNotRestart(t *testing.T) {
	opts := DefaultOptions()
	opts.Decide = func(string, error) Directive { return Resume }
	sup, _ := newTestSupervisor(t, opts)
	_, err := sup.Spawn(context.Background(), "Worker", "w1")
	require.NoError(t, err)

	d := sup.HandleFailure(context.Background(), "Worker", "w1", require.AnError)
	require.Equal(t, Resume, d)
}

func TestSupervisorStopDirectiveRemovesChild(t *testing.T) {
	opts := DefaultOptions()
	opts.Decide = func(string, error) Directive { return Stop }
	sup, _ := newTestSupervisor(t, opts)
	_, err := sup.Spawn(context.Background(), "Worker", "w1")
	require.NoError(t, err)

	d := sup.HandleFailure(context.Background(), "Worker", "w1", require.AnError)
	require.Equal(t, Stop, d)
	require.NotContains(t, sup.children, "w1")
}

func TestRestartHistoryBackoffSequenceDoubles(t *testing.T) {
	h := newRestartHistory(10 * time.Second)
	opts := Options{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2.0}

	h.record()
	d1 := h.nextBackoff(opts)
	h.record()
	d2 := h.nextBackoff(opts)
	h.record()
	d3 := h.nextBackoff(opts)

	require.Equal(t, 100*time.Millisecond, d1)
	require.Equal(t, 200*time.Millisecond, d2)
	require.Equal(t, 400*time.Millisecond, d3)
}

func TestRestartHistoryResetsAfterIdleWindow(t *testing.T) {
	h := newRestartHistory(20 * time.Millisecond)
	now := time.Now()
	h.now = func() time.Time { return now }

	h.record()
	require.Equal(t, 1, h.countInWindow())

	now = now.Add(25 * time.Millisecond)
	h.record()
	require.Equal(t, 1, h.consecutive, "consecutive count should reset after an idle window")
}

func TestRestForOneRestartsFailingAndLaterSiblings(t *testing.T) {
	sup, _ := newTestSupervisor(t, Options{
		Strategy: RestForOne, MaxRestarts: 100, TimeWindow: time.Minute,
		InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1,
	})
	_, err := sup.Spawn(context.Background(), "Worker", "w1")
	require.NoError(t, err)
	_, err = sup.Spawn(context.Background(), "Worker", "w2")
	require.NoError(t, err)
	_, err = sup.Spawn(context.Background(), "Worker", "w3")
	require.NoError(t, err)

	targets := sup.restartTargets("w2")
	require.ElementsMatch(t, []string{"w2", "w3"}, targets)
}

func TestAllForOneRestartsEverySibling(t *testing.T) {
	sup, _ := newTestSupervisor(t, Options{Strategy: AllForOne})
	_, err := sup.Spawn(context.Background(), "Worker", "w1")
	require.NoError(t, err)
	_, err = sup.Spawn(context.Background(), "Worker", "w2")
	require.NoError(t, err)

	targets := sup.restartTargets("w1")
	require.ElementsMatch(t, []string{"w1", "w2"}, targets)
}
