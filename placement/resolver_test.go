package placement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fixedPolicy struct {
	silo  string
	ok    bool
	calls int
}

func (p *fixedPolicy) SelectSilo(actorType, actorID string, availableSilos []string) (string, bool) {
	p.calls++
	return p.silo, p.ok
}

func TestResolverCachesDecision(t *testing.T) {
	cache, err := NewCache(128)
	require.NoError(t, err)
	defer cache.Close()

	policy := &fixedPolicy{silo: "silo-1", ok: true}
	r := NewResolver(policy, cache, nil)

	silo, ok := r.Resolve("Order", "1", []string{"silo-1", "silo-2"})
	require.True(t, ok)
	require.Equal(t, "silo-1", silo)

	cache.store.Wait()

	silo, ok = r.Resolve("Order", "1", []string{"silo-1", "silo-2"})
	require.True(t, ok)
	require.Equal(t, "silo-1", silo)
	require.Equal(t, 1, policy.calls, "second resolve should hit the cache, not the policy")
}

func TestResolverInvalidatesWhenCachedSiloNoLongerAvailable(t *testing.T) {
	cache, err := NewCache(128)
	require.NoError(t, err)
	defer cache.Close()

	policy := &fixedPolicy{silo: "silo-1", ok: true}
	r := NewResolver(policy, cache, nil)

	_, ok := r.Resolve("Order", "1", []string{"silo-1"})
	require.True(t, ok)
	cache.store.Wait()

	policy.silo = "silo-2"
	silo, ok := r.Resolve("Order", "1", []string{"silo-2"})
	require.True(t, ok)
	require.Equal(t, "silo-2", silo)
	require.Equal(t, 2, policy.calls)
}

func TestResolverNoEligibleSilo(t *testing.T) {
	policy := &fixedPolicy{ok: false}
	r := NewResolver(policy, nil, nil)

	_, ok := r.Resolve("Order", "1", nil)
	require.False(t, ok)
}

func TestResolverInvalidateAllClearsCache(t *testing.T) {
	cache, err := NewCache(128)
	require.NoError(t, err)
	defer cache.Close()

	policy := &fixedPolicy{silo: "silo-1", ok: true}
	r := NewResolver(policy, cache, nil)

	_, ok := r.Resolve("Order", "1", []string{"silo-1"})
	require.True(t, ok)
	cache.store.Wait()

	r.InvalidateAll()
	cache.store.Wait()

	_, ok = cache.Get("Order", "1")
	require.False(t, ok)
}
