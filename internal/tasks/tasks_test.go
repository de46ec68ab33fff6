package tasks_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dagu-org/jobloop/internal/core"
	"github.com/dagu-org/jobloop/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain resumes step until it completes and returns the number of resumptions.
func drain(t *testing.T, step core.Step) int {
	t.Helper()
	ctx := context.Background()
	for n := 1; n < 10_000; n++ {
		state, err := step.Resume(ctx, true)
		require.NoError(t, err)
		if state == core.StepCompleted {
			return n
		}
	}
	t.Fatal("step never completed")
	return 0
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	names := make([]string, 0)
	for _, def := range tasks.List() {
		names = append(names, def.Name)
		assert.NotEmpty(t, def.Description)
	}
	assert.Subset(t, names, []string{"count", "create_dirs", "http_fetch", "read_lines", "remove_dirs"})

	task, err := tasks.Lookup("count")
	require.NoError(t, err)
	assert.NotNil(t, task)

	_, err = tasks.Lookup("nope")
	require.ErrorIs(t, err, tasks.ErrUnknownTask)
}

func TestReadLines(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "b.txt"), []byte("three\n"), 0o600))

	step, err := tasks.ReadLines(context.Background(), map[string]any{"path": filepath.Join(dir, "**", "*.txt")})
	require.NoError(t, err)
	// Three lines, then one resumption that finds no more input.
	assert.Equal(t, 4, drain(t, step))
}

func TestReadLines_Errors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	_, err := tasks.ReadLines(ctx)
	require.Error(t, err)

	_, err = tasks.ReadLines(ctx, map[string]any{"path": "x", "bogus": 1})
	require.Error(t, err)

	step, err := tasks.ReadLines(ctx, tasks.ReadLinesArgs{Path: filepath.Join(t.TempDir(), "missing.txt")})
	require.NoError(t, err)
	_, err = step.Resume(ctx, true)
	require.Error(t, err)
}

func TestReadLines_CancelClosesFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\n"), 0o600))

	step, err := tasks.ReadLines(ctx, map[string]any{"path": path})
	require.NoError(t, err)
	state, err := step.Resume(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, core.StepYielded, state)

	state, err = step.Resume(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, core.StepCompleted, state)
}

func TestDirs(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	args := map[string]any{"root": root, "count": "3", "prefix": "d"}

	step, err := tasks.CreateDirs(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, 3, drain(t, step))
	for _, name := range []string{"d0", "d1", "d2"} {
		assert.DirExists(t, filepath.Join(root, name))
	}

	require.NoError(t, os.Remove(filepath.Join(root, "d1")))

	step, err = tasks.RemoveDirs(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, 3, drain(t, step))
	for _, name := range []string{"d0", "d1", "d2"} {
		assert.NoDirExists(t, filepath.Join(root, name))
	}

	_, err = tasks.CreateDirs(context.Background(), map[string]any{"count": -1})
	require.Error(t, err)
}

func TestCount(t *testing.T) {
	t.Parallel()

	step, err := tasks.Count(context.Background(), map[string]any{"n": 5, "sleep": "1ms"})
	require.NoError(t, err)
	assert.Equal(t, 5, drain(t, step))

	step, err = tasks.Count(context.Background(), tasks.CountArgs{N: 2, Sleep: time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 2, drain(t, step))
}

func TestHTTPFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"temp":21}`))
		case "/text":
			_, _ = w.Write([]byte("sunny"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	output := filepath.Join(t.TempDir(), "out", "fetch.jsonl")
	step, err := tasks.HTTPFetch(context.Background(), map[string]any{
		"urls":    []any{srv.URL + "/json", srv.URL + "/text"},
		"output":  output,
		"timeout": "5s",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, drain(t, step))

	f, err := os.Open(output)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var records []tasks.FetchRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec tasks.FetchRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		records = append(records, rec)
	}
	require.Len(t, records, 2)
	assert.Equal(t, http.StatusOK, records[0].Status)
	assert.JSONEq(t, `{"temp":21}`, string(records[0].Body))
	assert.Equal(t, "sunny", records[1].Text)
}

func TestHTTPFetch_Query(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hourly":[{"temp":18},{"temp":21}]}`))
	}))
	t.Cleanup(srv.Close)

	output := filepath.Join(t.TempDir(), "fetch.jsonl")
	step, err := tasks.HTTPFetch(context.Background(), map[string]any{
		"urls":   []any{srv.URL},
		"output": output,
		"query":  ".hourly[].temp",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, drain(t, step))

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	var rec tasks.FetchRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.JSONEq(t, `[18,21]`, string(rec.Body))

	_, err = tasks.HTTPFetch(context.Background(), map[string]any{
		"urls":   []any{srv.URL},
		"output": output,
		"query":  ".hourly[",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid query")
}

func TestHTTPFetch_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	step, err := tasks.HTTPFetch(context.Background(), map[string]any{
		"urls":   []any{srv.URL},
		"output": filepath.Join(t.TempDir(), "fetch.jsonl"),
	})
	require.NoError(t, err)
	_, err = step.Resume(context.Background(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")

	_, err = tasks.HTTPFetch(context.Background(), map[string]any{"output": "x"})
	require.Error(t, err)
}
