package scheduler

import (
	"sync"

	"github.com/dagu-org/jobloop/internal/core"
)

// readyQueue is the FIFO of jobs eligible to run. The loop goroutine pops
// from it while timer callbacks and dependency waiters push to it.
type readyQueue struct {
	mu     sync.Mutex
	items  []*core.Job
	closed bool
	notify chan struct{}
}

func newReadyQueue() *readyQueue {
	return &readyQueue{notify: make(chan struct{}, 1)}
}

// Push appends job at the tail. It returns false once the queue is closed.
func (q *readyQueue) Push(job *core.Job) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, job)
	q.mu.Unlock()

	q.Wake()
	return true
}

// Wake notifies the loop without queueing a job.
func (q *readyQueue) Wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the head of the queue.
func (q *readyQueue) Pop() (*core.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

// Len returns the number of queued jobs.
func (q *readyQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further pushes and returns the jobs still queued.
func (q *readyQueue) Close() []*core.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	items := q.items
	q.items = nil
	return items
}

// Notify receives a value after a push or a wake.
func (q *readyQueue) Notify() <-chan struct{} {
	return q.notify
}
