package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache(t *testing.T) {
	t.Parallel()

	cache := NewCache[string]("state", 10, time.Hour)
	assert.Equal(t, "state", cache.Name())
	assert.Equal(t, 0, cache.Size())
}

func TestCache_LoadLatest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0600))

	cache := NewCache[string]("state", 10, time.Hour)
	loads := 0
	loader := func() (string, error) {
		loads++
		data, err := os.ReadFile(path)
		return string(data), err
	}

	data, err := cache.LoadLatest(path, loader)
	require.NoError(t, err)
	assert.Equal(t, "one", data)

	data, err = cache.LoadLatest(path, loader)
	require.NoError(t, err)
	assert.Equal(t, "one", data)
	assert.Equal(t, 1, loads, "unchanged file is served from cache")

	require.NoError(t, os.WriteFile(path, []byte("three"), 0600))
	data, err = cache.LoadLatest(path, loader)
	require.NoError(t, err)
	assert.Equal(t, "three", data)
	assert.Equal(t, 2, loads)
}

func TestCache_Invalidate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))

	cache := NewCache[string]("state", 10, time.Hour)
	loads := 0
	loader := func() (string, error) { loads++; return "x", nil }

	_, err := cache.LoadLatest(path, loader)
	require.NoError(t, err)
	cache.Invalidate(path)
	assert.Equal(t, 0, cache.Size())

	_, err = cache.LoadLatest(path, loader)
	require.NoError(t, err)
	assert.Equal(t, 2, loads)
}

func TestCache_LoadLatest_Errors(t *testing.T) {
	t.Parallel()

	cache := NewCache[string]("state", 10, time.Hour)

	_, err := cache.LoadLatest(filepath.Join(t.TempDir(), "missing.json"), func() (string, error) {
		return "", nil
	})
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	boom := errors.New("decode failed")
	_, err = cache.LoadLatest(path, func() (string, error) { return "", boom })
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Size())
}
