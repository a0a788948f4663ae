package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	sderrors "github.com/fluxgrid/silo/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveWithVersionInsertsFirstRow(t *testing.T) {
	s := openTestStore(t)
	v, err := s.SaveWithVersion("order-1", "balance", []byte("100"), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), v)

	state, version, found, err := s.Load("order-1", "balance")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("100"), state)
	require.Equal(t, uint64(1), version)
}

func TestSaveWithVersionUpdatesOnMatch(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveWithVersion("order-1", "balance", []byte("100"), 0)
	require.NoError(t, err)

	v, err := s.SaveWithVersion("order-1", "balance", []byte("150"), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), v)
}

func TestSaveWithVersionConflictOnMismatch(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveWithVersion("order-1", "balance", []byte("100"), 0)
	require.NoError(t, err)

	_, err = s.SaveWithVersion("order-1", "balance", []byte("999"), 5)
	require.Error(t, err)
	require.True(t, sderrors.Is(err, sderrors.ConcurrencyConflict))
}

func TestSaveWithVersionConflictWhenInsertingOverExisting(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveWithVersion("order-1", "balance", []byte("100"), 0)
	require.NoError(t, err)

	_, err = s.SaveWithVersion("order-1", "balance", []byte("200"), 0)
	require.Error(t, err)
	require.True(t, sderrors.Is(err, sderrors.ConcurrencyConflict))
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := openTestStore(t)
	_, _, found, err := s.Load("ghost", "balance")
	require.NoError(t, err)
	require.False(t, found)
}

func TestDeleteRemovesRow(t *testing.T) {
	s := openTestStore(t)
	_, err := s.SaveWithVersion("order-1", "balance", []byte("100"), 0)
	require.NoError(t, err)

	require.NoError(t, s.Delete("order-1", "balance"))
	_, _, found, err := s.Load("order-1", "balance")
	require.NoError(t, err)
	require.False(t, found)
}
