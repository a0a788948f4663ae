package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	c := Default()
	require.Equal(t, 5, c.CircuitBreaker.FailureThreshold)
	require.Equal(t, 3, c.CircuitBreaker.SuccessThreshold)
	require.False(t, c.CircuitBreaker.Enabled)
	require.Equal(t, 1000, c.RateLimit.MaxMessagesPerWindow)
	require.Equal(t, "OneForOne", c.Supervision.Strategy)
	require.Equal(t, 3, c.Supervision.MaxRestarts)
	require.Equal(t, 2.0, c.Supervision.Multiplier)
	require.True(t, c.DLQ.Enabled)
	require.Equal(t, 10000, c.DLQ.MaxMessages)
	require.Equal(t, 3, c.DLQ.Retry.MaxRetries)
	require.True(t, c.DLQ.Retry.Jitter)
	require.False(t, c.Serverless.Enabled)
	require.True(t, c.Mailbox.Adaptive.Enabled)
}

func TestOptionsOverrideDefaults(t *testing.T) {
	c := Default(WithSiloID("silo-1"), WithListenAddr(":9090"), WithDataDir("/tmp/silo"))
	require.Equal(t, "silo-1", c.SiloID)
	require.Equal(t, ":9090", c.ListenAddr)
	require.Equal(t, "/tmp/silo", c.DataDir)
}

func TestLoadLayersYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "silo.yaml")
	contents := "siloId: silo-7\nsupervision:\n  maxRestarts: 9\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "silo-7", c.SiloID)
	require.Equal(t, 9, c.Supervision.MaxRestarts)
	// Untouched fields keep their defaults.
	require.Equal(t, 5, c.CircuitBreaker.FailureThreshold)
}

func TestLoadOptionsWinOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "silo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("siloId: from-yaml\n"), 0o600))

	c, err := Load(path, WithSiloID("from-option"))
	require.NoError(t, err)
	require.Equal(t, "from-option", c.SiloID)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
