// Package ingress serializes supervisor-mutating calls onto a single
// logical writer, per §5's "serialize on a single ingress queue and a
// single worker": callers enqueue a job through a lock-free queue and
// block for its result; exactly one ants worker drains the queue.
package ingress

import (
	"fmt"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/panjf2000/ants/v2"
)

// job is one pending mutation: run it and report the result on done.
type job struct {
	fn   func() error
	done chan error
}

// Queue is a single-writer ingress point. Submit blocks the caller until
// the job has actually run.
type Queue struct {
	q    *queue.Queue
	pool *ants.PoolWithFunc
}

// New starts the single background worker draining q. The returned
// Queue must be closed with Close when the supervisor shuts down.
func New() (*Queue, error) {
	q := &Queue{q: queue.New(1024)}

	pool, err := ants.NewPoolWithFunc(1, func(v interface{}) {
		j := v.(*job)
		j.done <- j.fn()
	})
	if err != nil {
		return nil, fmt.Errorf("ingress: creating worker pool: %w", err)
	}
	q.pool = pool

	go q.drain()
	return q, nil
}

func (q *Queue) drain() {
	for {
		items, err := q.q.Get(1)
		if err != nil {
			// Disposed.
			return
		}
		j := items[0].(*job)
		if err := q.pool.Invoke(j); err != nil {
			j.done <- fmt.Errorf("ingress: submitting job: %w", err)
		}
	}
}

// Submit enqueues fn and blocks until it has run, returning its error.
func (q *Queue) Submit(fn func() error) error {
	j := &job{fn: fn, done: make(chan error, 1)}
	if err := q.q.Put(j); err != nil {
		return fmt.Errorf("ingress: enqueue: %w", err)
	}
	return <-j.done
}

// Close stops the worker and disposes the queue.
func (q *Queue) Close() {
	q.q.Dispose()
	q.pool.Release()
}
