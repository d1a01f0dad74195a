package promise

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned for tasks submitted to or pending in a closed queue.
var ErrQueueClosed = errors.New("queue closed")

type job struct {
	ctx  context.Context
	run  func()
	err  error
	done chan struct{}
}

// Queue runs submitted tasks one at a time, strictly in submission order.
// The worker goroutine exists only while tasks are pending.
type Queue struct {
	mu      sync.Mutex
	pending []*job
	running bool
	closed  bool
	worker  sync.WaitGroup
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Do submits task and waits until it ran or was skipped. A task whose ctx is
// already done when its turn comes is skipped and ctx.Err() returned.
func (q *Queue) Do(ctx context.Context, task func()) error {
	j := &job{ctx: ctx, run: task, done: make(chan struct{})}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, j)
	if !q.running {
		q.running = true
		q.worker.Add(1)
		go q.loop()
	}
	q.mu.Unlock()

	<-j.done
	return j.err
}

// Len reports how many tasks wait to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close waits for the running task; pending tasks fail with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, j := range q.pending {
			j.err = ErrQueueClosed
			close(j.done)
		}
		q.pending = nil
	}
	q.mu.Unlock()

	q.worker.Wait()
}

func (q *Queue) next() (*job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(q.pending) == 0 {
		q.running = false
		return nil, false
	}
	j := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return j, true
}

func (q *Queue) loop() {
	defer q.worker.Done()
	for {
		j, ok := q.next()
		if !ok {
			return
		}
		if err := j.ctx.Err(); err != nil {
			j.err = err
		} else {
			j.run()
		}
		close(j.done)
	}
}

// Sequential wraps fn so every call goes through q.
func Sequential[A, R any](q *Queue, fn Func[A, R]) Func[A, R] {
	return func(ctx context.Context, arg A) (R, error) {
		var (
			r   R
			err error
		)
		if qerr := q.Do(ctx, func() { r, err = fn(ctx, arg) }); qerr != nil {
			var zero R
			return zero, qerr
		}
		return r, err
	}
}
