package filestate_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dagu-org/jobloop/internal/persis/filestate"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "state.json")

	store := filestate.New(path)
	require.NoError(t, store.Set(ctx, "ReadLines", true))
	require.NoError(t, store.Set(ctx, "CreateDirs", false))

	fresh := filestate.New(path)
	value, ok := fresh.Get(ctx, "ReadLines")
	assert.True(t, ok)
	assert.True(t, value)

	value, ok = fresh.Get(ctx, "CreateDirs")
	assert.True(t, ok)
	assert.False(t, value)

	_, ok = fresh.Get(ctx, "Unknown")
	assert.False(t, ok)

	require.NoError(t, fresh.Clear(ctx))
	_, ok = filestate.New(path).Get(ctx, "ReadLines")
	assert.False(t, ok)
	assert.NoFileExists(t, path)
}

func TestStore_SetMergesWholeMap(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	store := filestate.New(path)
	require.NoError(t, store.Set(ctx, "a", true))
	require.NoError(t, store.Set(ctx, "b", true))
	require.NoError(t, store.Set(ctx, "a", false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":false,"b":true}`, string(data))
}

func TestStore_MissingAndCorruptFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	missing := filestate.New(filepath.Join(dir, "missing.json"))
	_, ok := missing.Get(ctx, "a")
	assert.False(t, ok)
	require.NoError(t, missing.Clear(ctx), "clearing a missing file is not an error")

	corruptPath := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corruptPath, []byte("{not json"), 0o600))
	corrupt := filestate.New(corruptPath)
	_, ok = corrupt.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, corrupt.Set(ctx, "a", true))
	value, ok := corrupt.Get(ctx, "a")
	assert.True(t, ok)
	assert.True(t, value)
}

func TestStore_Snapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	store := filestate.New(path)

	st, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, st)

	require.NoError(t, store.Set(ctx, "a", true))
	st, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, filestate.State{"a": true}, st)

	st["b"] = true
	again, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.NotContains(t, again, "b", "snapshot is a copy")

	require.NoError(t, store.Set(ctx, "long-job-name", false))
	st, err = store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, filestate.State{"a": true, "long-job-name": false}, st)
}

func TestStore_ConcurrentSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := filestate.New(filepath.Join(t.TempDir(), "state.json"))

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	for _, k := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Set(ctx, k, true))
		}()
	}
	wg.Wait()

	for _, k := range keys {
		value, ok := store.Get(ctx, k)
		assert.True(t, ok, k)
		assert.True(t, value, k)
	}
}

func TestStore_WaitsForLockHolder(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	store := filestate.New(path)

	other := flock.New(path + ".lock")
	require.NoError(t, other.Lock())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := store.Set(ctx, "blocked", true)
	require.Error(t, err)
	assert.NoFileExists(t, path)

	require.NoError(t, other.Unlock())
	require.NoError(t, store.Set(context.Background(), "blocked", true))
	value, ok := store.Get(context.Background(), "blocked")
	assert.True(t, ok)
	assert.True(t, value)
}

func TestStore_Watch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	store := filestate.New(path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan filestate.State, 16)
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, func(st filestate.State) { updates <- st })
	}()

	select {
	case st := <-updates:
		assert.Empty(t, st)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, store.Set(context.Background(), "a", true))

	require.Eventually(t, func() bool {
		for {
			select {
			case st := <-updates:
				if st["a"] {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
