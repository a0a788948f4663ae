package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	r := NewRateLimiter(RateLimiterConfig{Limit: 2, Window: time.Minute, Enabled: true})
	require.True(t, r.Allow())
	require.True(t, r.Allow())
	require.False(t, r.Allow())
}

func TestRateLimiterSlidesWindow(t *testing.T) {
	r := NewRateLimiter(RateLimiterConfig{Limit: 1, Window: time.Millisecond, Enabled: true})
	now := time.Now()
	r.now = func() time.Time { return now }

	require.True(t, r.Allow())
	require.False(t, r.Allow())

	now = now.Add(2 * time.Millisecond)
	require.True(t, r.Allow())
}

func TestRateLimiterZeroLimitAlwaysAllows(t *testing.T) {
	r := NewRateLimiter(RateLimiterConfig{Limit: 0, Enabled: true})
	for i := 0; i < 100; i++ {
		require.True(t, r.Allow())
	}
}
