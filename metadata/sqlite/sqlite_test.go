package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := New(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Get(ctx, "count")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, map[string]int64{"count": 2, "crc0": 1, "crc1": 0xffffffff}))
	require.NoError(t, s.Put(ctx, map[string]int64{"count": 1}))

	v, ok, err := s.Get(ctx, "count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)

	v, ok, err = s.Get(ctx, "crc1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0xffffffff), v)
}

func TestStoreSharedFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.db")

	a, err := New(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(path)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Put(ctx, map[string]int64{"count": 3}))
	v, ok, err := b.Get(ctx, "count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)
}

func TestStoreClosed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.Get(ctx, "count")
	require.ErrorIs(t, err, ErrStoreClosed)
	require.ErrorIs(t, s.Put(ctx, map[string]int64{"count": 1}), ErrStoreClosed)
}
