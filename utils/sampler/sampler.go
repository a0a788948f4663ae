// Package sampler provides the seeded randomness source behind the Random
// placement policy (spec §4.4): a single Uint64 draw per SelectSilo call,
// swappable with a deterministic Source for reproducible tests.
package sampler

import "math/rand"

// Source is a source of randomness pluggable into a placement policy, so
// tests can substitute a seeded, deterministic generator in place of the
// process-wide default.
type Source interface {
	Seed(int64)
	Uint64() uint64
}

// source is the default Source, backed by math/rand.
type source struct {
	*rand.Rand
}

// NewSource returns a Source seeded with seed.
func NewSource(seed int64) Source {
	return &source{Rand: rand.New(rand.NewSource(seed))}
}
