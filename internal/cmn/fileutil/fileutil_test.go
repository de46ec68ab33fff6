package fileutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state.json")
	require.NoError(t, WriteJSONAtomic(path, map[string]bool{"a": true}, 0o600))
	require.NoError(t, WriteJSONAtomic(path, map[string]bool{"b": false}, 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]bool
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, map[string]bool{"b": false}, got)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestRemoveIfExists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gone.json")
	require.NoError(t, RemoveIfExists(path))

	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	require.NoError(t, RemoveIfExists(path))
	assert.False(t, FileExists(path))
}

func TestResolvePath(t *testing.T) {
	t.Setenv("JOBLOOP_TEST_DIR", "/tmp/jobloop")

	got, err := ResolvePath("$JOBLOOP_TEST_DIR/state.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/tmp/jobloop/state.json"), got)

	got, err = ResolvePath("  ")
	require.NoError(t, err)
	assert.Empty(t, got)
}
