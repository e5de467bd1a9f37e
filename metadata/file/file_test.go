package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs", "multidex.version")
	s, err := New(path)
	require.NoError(t, err)

	_, ok, err := s.Get(ctx, "count")
	require.NoError(t, err)
	assert.False(t, ok, "missing file reads as empty")

	require.NoError(t, s.Put(ctx, map[string]int64{"crc0": 42, "count": 1}))
	v, ok, err := s.Get(ctx, "crc0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(42), v)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"count":1,"crc0":42}`, string(raw), "canonical encoding")
}

func TestStorePutMerges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, err := New(filepath.Join(t.TempDir(), "prefs.json"), WithDurability(DurabilityCommit))
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, map[string]int64{"other": 9, "count": 2}))
	require.NoError(t, s.Put(ctx, map[string]int64{"count": 1}))

	v, ok, err := s.Get(ctx, "other")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(9), v)

	v, _, err = s.Get(ctx, "count")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestStoreCorruptRecord(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s, err := New(path)
	require.NoError(t, err)

	_, _, err = s.Get(ctx, "count")
	require.Error(t, err)

	require.NoError(t, s.Put(ctx, map[string]int64{"count": 0}), "corrupt record is replaced")
	v, ok, err := s.Get(ctx, "count")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), v)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New("")
	require.Error(t, err)

	_, err = New(filepath.Join(t.TempDir(), "p.json"), WithDurability(Durability(7)))
	require.Error(t, err)
}

func TestDurabilityString(t *testing.T) {
	assert.Equal(t, "apply", DurabilityApply.String())
	assert.Equal(t, "commit", DurabilityCommit.String())
	assert.Equal(t, "Durability(7)", Durability(7).String())
}
