package hashring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupDeterministic(t *testing.T) {
	r := New()
	r.AddSilo("s1", 150)
	r.AddSilo("s2", 150)
	r.AddSilo("s3", 150)

	got, ok := r.Lookup("Order:order-42")
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		again, ok := r.Lookup("Order:order-42")
		require.True(t, ok)
		require.Equal(t, got, again)
	}
}

func TestRemovingSiloOnlyRemapsItsOwnKeys(t *testing.T) {
	r := New()
	r.AddSilo("s1", 150)
	r.AddSilo("s2", 150)
	r.AddSilo("s3", 150)

	const n = 2000
	before := make(map[string]string, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("Order:order-%d", i)
		owner, ok := r.Lookup(key)
		require.True(t, ok)
		before[key] = owner
	}

	r.RemoveSilo("s2")

	for key, owner := range before {
		after, ok := r.Lookup(key)
		require.True(t, ok)
		if owner != "s2" {
			require.Equal(t, owner, after, "key %s on a surviving silo must not move", key)
		} else {
			require.NotEqual(t, "s2", after)
		}
	}
}

func TestAddingOneVirtualNodeRemapsAtMostASmallFraction(t *testing.T) {
	r := New()
	r.AddSilo("s1", 500)
	r.AddSilo("s2", 500)

	const n = 5000
	before := make(map[string]string, n)
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("Key:%d", i)
		owner, _ := r.Lookup(key)
		before[key] = owner
	}

	r.AddSilo("s3", 1)

	moved := 0
	for key, owner := range before {
		after, _ := r.Lookup(key)
		if after != owner {
			moved++
		}
	}

	// Expected remap fraction is roughly 1/N virtual nodes; allow generous
	// slack since this is a statistical, not exact, property.
	require.Less(t, moved, n/10)
}

func TestLookupEmptyRing(t *testing.T) {
	r := New()
	_, ok := r.Lookup("anything")
	require.False(t, ok)
}

func TestSilosListsDistinctOwners(t *testing.T) {
	r := New()
	r.AddSilo("s1", 10)
	r.AddSilo("s2", 10)
	require.ElementsMatch(t, []string{"s1", "s2"}, r.Silos())
}
