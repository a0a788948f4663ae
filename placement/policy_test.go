package placement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxgrid/silo/hashring"
	"github.com/fluxgrid/silo/utils/sampler"
)

func TestLocalPreferredPicksLocalWhenAvailable(t *testing.T) {
	p := &LocalPreferred{LocalSiloID: "silo-2"}
	silo, ok := p.SelectSilo("Order", "1", []string{"silo-1", "silo-2", "silo-3"})
	require.True(t, ok)
	require.Equal(t, "silo-2", silo)
}

func TestLocalPreferredFallsBackToDelegate(t *testing.T) {
	ring := hashring.New()
	ring.AddSilo("silo-1", 50)
	ring.AddSilo("silo-3", 50)
	p := &LocalPreferred{LocalSiloID: "silo-2", Delegate: &ConsistentHash{Ring: ring}}

	silo, ok := p.SelectSilo("Order", "1", []string{"silo-1", "silo-3"})
	require.True(t, ok)
	require.Contains(t, []string{"silo-1", "silo-3"}, silo)
}

func TestLocalPreferredNoDelegateFails(t *testing.T) {
	p := &LocalPreferred{LocalSiloID: "silo-2"}
	_, ok := p.SelectSilo("Order", "1", []string{"silo-1"})
	require.False(t, ok)
}

func TestConsistentHashDeterministic(t *testing.T) {
	ring := hashring.New()
	ring.AddSilo("silo-1", 100)
	ring.AddSilo("silo-2", 100)

	p := &ConsistentHash{Ring: ring}
	first, ok := p.SelectSilo("Order", "42", []string{"silo-1", "silo-2"})
	require.True(t, ok)

	second, ok := p.SelectSilo("Order", "42", []string{"silo-1", "silo-2"})
	require.True(t, ok)
	require.Equal(t, first, second)
}

func TestConsistentHashRejectsOwnerNotInAvailableSet(t *testing.T) {
	ring := hashring.New()
	ring.AddSilo("silo-1", 100)

	p := &ConsistentHash{Ring: ring}
	_, ok := p.SelectSilo("Order", "42", []string{"silo-2"})
	require.False(t, ok)
}

func TestRandomSelectsFromAvailable(t *testing.T) {
	p := &Random{Source: sampler.NewSource(7)}
	silo, ok := p.SelectSilo("Order", "1", []string{"silo-1", "silo-2"})
	require.True(t, ok)
	require.Contains(t, []string{"silo-1", "silo-2"}, silo)
}

func TestRandomEmptyFails(t *testing.T) {
	p := &Random{}
	_, ok := p.SelectSilo("Order", "1", nil)
	require.False(t, ok)
}

func TestRoundRobinCyclesDeterministically(t *testing.T) {
	p := &RoundRobin{}
	available := []string{"silo-1", "silo-2", "silo-3"}

	seen := make([]string, 6)
	for i := range seen {
		silo, ok := p.SelectSilo("Order", "x", available)
		require.True(t, ok)
		seen[i] = silo
	}
	require.Equal(t, []string{"silo-1", "silo-2", "silo-3", "silo-1", "silo-2", "silo-3"}, seen)
}

func TestGeoAwareHonorsPreference(t *testing.T) {
	h := hashring.NewHierarchical()
	h.AddSilo("us", "us-east", "silo-1", 150)
	h.AddSilo("eu", "eu-central", "silo-2", 150)

	p := &GeoAware{Ring: h, Preference: hashring.Preference{Region: "eu"}}
	silo, ok := p.SelectSilo("Order", "1", nil)
	require.True(t, ok)
	require.Equal(t, "silo-2", silo)
}
