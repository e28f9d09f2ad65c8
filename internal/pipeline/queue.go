package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/job"
)

// Queue is a FIFO of jobs with join semantics: Join waits until every job
// that was Put has also been marked done, so in-flight work is counted too.
type Queue struct {
	mu         sync.Mutex
	items      []*job.Job
	capacity   int // 0 = unbounded
	unfinished int
	closed     bool
	changed    chan struct{} // closed and replaced on every state change
}

// NewQueue creates a queue; capacity 0 means unbounded
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{capacity: capacity, changed: make(chan struct{})}
}

func (q *Queue) notifyLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// waitLocked releases the lock until the next state change or ctx is done
func (q *Queue) waitLocked(ctx context.Context) error {
	ch := q.changed
	q.mu.Unlock()
	defer q.mu.Lock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Put appends j, blocking while a bounded queue is full
func (q *Queue) Put(ctx context.Context, j *job.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.closed {
			return domain.ErrQueueClosed
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			break
		}
		if err := q.waitLocked(ctx); err != nil {
			return err
		}
	}

	q.items = append(q.items, j)
	q.unfinished++
	q.notifyLocked()
	return nil
}

// Get removes the oldest job, blocking while the queue is empty
// onTake, if set, runs while the queue is still locked so observers never
// see the job in neither place
func (q *Queue) Get(ctx context.Context, onTake func(*job.Job)) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		if q.closed {
			return nil, domain.ErrQueueClosed
		}
		if err := q.waitLocked(ctx); err != nil {
			return nil, err
		}
	}

	j := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if onTake != nil {
		onTake(j)
	}
	q.notifyLocked()
	return j, nil
}

// TaskDone marks one job obtained from Get as finished
func (q *Queue) TaskDone() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.unfinished <= 0 {
		return fmt.Errorf("pipeline: TaskDone called more times than jobs were queued")
	}
	q.unfinished--
	q.notifyLocked()
	return nil
}

// Join blocks until every queued job has been taken and marked done
func (q *Queue) Join(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.unfinished > 0 {
		if err := q.waitLocked(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the queue from accepting jobs and returns those never taken
// Discarded jobs count as done for Join.
func (q *Queue) Close() []*job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := q.items
	q.items = nil
	q.unfinished -= len(dropped)
	q.closed = true
	q.notifyLocked()
	return dropped
}

// Len returns the number of jobs waiting to be taken
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Unfinished returns queued plus in-flight jobs
func (q *Queue) Unfinished() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.unfinished
}

// View calls fn with the waiting jobs while the queue is locked
// fn must not retain the slice or call back into the queue
func (q *Queue) View(fn func(waiting []*job.Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	fn(q.items)
}
