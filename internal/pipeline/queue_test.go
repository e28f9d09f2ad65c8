package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/job"
	"github.com/Ning0612/Cloudconvert/internal/remote"
)

func testJobs(n int) []*job.Job {
	env := &job.Env{TempDir: "/tmp"}
	jobs := make([]*job.Job, n)
	for i := range jobs {
		src := remote.NewFile(nil, "Drive", domain.Entry{Path: "v/" + string(rune('a'+i)) + ".avi", Name: string(rune('a'+i)) + ".avi"})
		jobs[i] = job.New(src, env)
	}
	return jobs
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue(0)
	ctx := context.Background()
	jobs := testJobs(3)

	for _, j := range jobs {
		if err := q.Put(ctx, j); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}
	for i := range jobs {
		got, err := q.Get(ctx, nil)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != jobs[i] {
			t.Errorf("Get() #%d returned job out of order", i)
		}
	}
}

func TestQueue_BoundedPutBlocks(t *testing.T) {
	q := NewQueue(1)
	ctx := context.Background()
	jobs := testJobs(2)

	q.Put(ctx, jobs[0])

	putDone := make(chan error, 1)
	go func() { putDone <- q.Put(ctx, jobs[1]) }()

	select {
	case <-putDone:
		t.Fatal("Put() on a full queue should block")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := q.Get(ctx, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-putDone:
		if err != nil {
			t.Fatalf("blocked Put() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Put() did not resume after Get()")
	}
}

func TestQueue_PutHonoursContext(t *testing.T) {
	q := NewQueue(1)
	jobs := testJobs(2)
	q.Put(context.Background(), jobs[0])

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := q.Put(ctx, jobs[1]); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Put() = %v, want deadline exceeded", err)
	}
	if q.Unfinished() != 1 {
		t.Errorf("Unfinished() = %d, a failed Put must not count", q.Unfinished())
	}
}

func TestQueue_JoinCountsInFlight(t *testing.T) {
	q := NewQueue(0)
	ctx := context.Background()
	for _, j := range testJobs(2) {
		q.Put(ctx, j)
	}

	q.Get(ctx, nil)
	q.Get(ctx, nil)
	if q.Len() != 0 {
		t.Fatalf("Len() = %d", q.Len())
	}

	joined := make(chan struct{})
	go func() {
		q.Join(ctx)
		close(joined)
	}()

	// queue is empty but two jobs are still in flight
	select {
	case <-joined:
		t.Fatal("Join() returned while jobs were in flight")
	case <-time.After(50 * time.Millisecond):
	}

	q.TaskDone()
	select {
	case <-joined:
		t.Fatal("Join() returned with one job still in flight")
	case <-time.After(20 * time.Millisecond):
	}

	q.TaskDone()
	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("Join() did not return after all jobs were done")
	}

	if err := q.TaskDone(); err == nil {
		t.Error("extra TaskDone() should fail")
	}
}

func TestQueue_CloseDropsWaiting(t *testing.T) {
	q := NewQueue(0)
	ctx := context.Background()
	jobs := testJobs(3)
	for _, j := range jobs {
		q.Put(ctx, j)
	}
	q.Get(ctx, nil)

	dropped := q.Close()
	if len(dropped) != 2 {
		t.Fatalf("Close() dropped %d jobs, want 2", len(dropped))
	}
	if q.Unfinished() != 1 {
		t.Errorf("Unfinished() = %d, want the in-flight job only", q.Unfinished())
	}

	if err := q.Put(ctx, jobs[0]); !errors.Is(err, domain.ErrQueueClosed) {
		t.Errorf("Put() after Close = %v", err)
	}
	if _, err := q.Get(ctx, nil); !errors.Is(err, domain.ErrQueueClosed) {
		t.Errorf("Get() after Close = %v", err)
	}
}

func TestQueue_GetOnTakeAndView(t *testing.T) {
	q := NewQueue(0)
	ctx := context.Background()
	jobs := testJobs(2)
	for _, j := range jobs {
		q.Put(ctx, j)
	}

	var taken *job.Job
	q.Get(ctx, func(j *job.Job) { taken = j })
	if taken != jobs[0] {
		t.Error("onTake should receive the dequeued job")
	}

	q.View(func(waiting []*job.Job) {
		if len(waiting) != 1 || waiting[0] != jobs[1] {
			t.Errorf("View() = %v", waiting)
		}
	})
}
