package scheduler

import (
	"context"
	"testing"

	"github.com/dagu-org/jobloop/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(t *testing.T, name string) *core.Job {
	t.Helper()
	job, err := core.NewJob(func(context.Context, ...any) (core.Step, error) {
		return core.Iterate(1, func(context.Context, int) error { return nil }, nil), nil
	}, core.WithName(name))
	require.NoError(t, err)
	return job
}

func TestReadyQueue(t *testing.T) {
	t.Parallel()

	q := newReadyQueue()
	a, b, c := newTestJob(t, "a"), newTestJob(t, "b"), newTestJob(t, "c")

	_, ok := q.Pop()
	assert.False(t, ok)

	require.True(t, q.Push(a))
	require.True(t, q.Push(b))
	select {
	case <-q.Notify():
	default:
		t.Fatal("push did not notify")
	}

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Same(t, a, got)

	require.True(t, q.Push(c))
	assert.Equal(t, 2, q.Len())

	remaining := q.Close()
	assert.Equal(t, []*core.Job{b, c}, remaining)
	assert.False(t, q.Push(a))
	assert.Equal(t, 0, q.Len())

	<-q.Notify()
	q.Wake()
	select {
	case <-q.Notify():
	default:
		t.Fatal("wake did not notify")
	}
}
