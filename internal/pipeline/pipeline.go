// Package pipeline runs conversion jobs: one discovery routine feeds a FIFO
// queue that a fixed number of workers drain.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/job"
	"github.com/Ning0612/Cloudconvert/internal/logger"
	"github.com/Ning0612/Cloudconvert/internal/metrics"
	"github.com/Ning0612/Cloudconvert/internal/progress"
	"github.com/Ning0612/Cloudconvert/internal/remote"
)

// Options configures a pipeline
type Options struct {
	// Workers is the number of concurrent jobs (minimum 1)
	Workers int

	// QueueSize bounds the queue so discovery blocks when it is full (0 = unbounded)
	QueueSize int

	// KeepFailed leaves a failed job's local files in place for inspection
	KeepFailed bool
}

// DiscoverFunc finds work and hands it to p.Enqueue
type DiscoverFunc func(ctx context.Context, p *Pipeline) error

// Failure describes a job that did not complete
type Failure struct {
	JobID  string `json:"job_id"`
	Source string `json:"source"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}

// Stats summarizes a run
type Stats struct {
	Enqueued   int64
	Duplicates int64
	Completed  int64
	Failed     int64
	Dropped    int64
	Duration   time.Duration
	Failures   []Failure
}

// Pipeline owns the job queue and the per-worker "running" slots
// A Pipeline runs once.
type Pipeline struct {
	opts     Options
	env      *job.Env
	reporter progress.Reporter
	queue    *Queue

	mu       sync.Mutex
	running  []*job.Job // one slot per worker
	seen     map[string]bool
	failures []Failure

	enqueued   atomic.Int64
	duplicates atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64

	started  atomic.Bool
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a pipeline; reporter may be nil
func New(env *job.Env, opts Options, reporter progress.Reporter) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if reporter == nil {
		reporter = progress.NullReporter{}
	}

	// stage transitions also go to the reporter
	wrapped := *env
	wrapped.OnStage = func(j *job.Job, s job.Stage) {
		reporter.Stage(j.ID(), j.Source().FullPath(), s.String())
		if env.OnStage != nil {
			env.OnStage(j, s)
		}
	}

	return &Pipeline{
		opts:     opts,
		env:      &wrapped,
		reporter: reporter,
		queue:    NewQueue(opts.QueueSize),
		running:  make([]*job.Job, opts.Workers),
		seen:     make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// Done is closed once discovery has finished and every enqueued job has been processed
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

// Enqueue creates a job for source and queues it, blocking while a bounded queue is full
// Returns domain.ErrDuplicateJob if source was already enqueued on this pipeline
func (p *Pipeline) Enqueue(ctx context.Context, source *remote.File) (*job.Job, error) {
	key := source.FullPath()

	p.mu.Lock()
	if p.seen[key] {
		p.mu.Unlock()
		p.duplicates.Add(1)
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateJob, key)
	}
	p.seen[key] = true
	p.mu.Unlock()

	j := job.New(source, p.env)
	if err := p.queue.Put(ctx, j); err != nil {
		p.mu.Lock()
		delete(p.seen, key)
		p.mu.Unlock()
		return nil, err
	}

	p.enqueued.Add(1)
	metrics.RecordEnqueued()
	metrics.SetQueueDepth(p.queue.Len())
	p.reporter.Enqueued(j.ID(), key, source.Size())
	logger.Get().Debug("job enqueued", "job", j.ID(), "source", key)
	return j, nil
}

// Run starts the workers, runs discover, waits for the queue to drain and
// then stops the workers. Jobs are never interrupted by the shutdown; they
// only observe cancellation of ctx itself.
// A discovery error is fatal: jobs not yet started are dropped, running jobs
// finish, and the error is returned.
func (p *Pipeline) Run(ctx context.Context, discover DiscoverFunc) (Stats, error) {
	if !p.started.CompareAndSwap(false, true) {
		return Stats{}, errors.New("pipeline: Run called twice")
	}
	start := time.Now()

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	var wg conc.WaitGroup
	for slot := 0; slot < p.opts.Workers; slot++ {
		wg.Go(func() { p.worker(ctx, workerCtx, slot) })
	}

	runErr := discover(workerCtx, p)
	if runErr != nil {
		dropped := p.queue.Close()
		p.dropped.Add(int64(len(dropped)))
		logger.Get().Error("discovery failed, stopping pipeline",
			"error", runErr,
			"dropped", len(dropped),
		)
	}

	if err := p.queue.Join(ctx); err != nil && runErr == nil {
		runErr = err
	}
	if runErr == nil {
		p.doneOnce.Do(func() { close(p.done) })
	}

	stopWorkers()
	wg.Wait()

	stats := p.Stats()
	stats.Duration = time.Since(start)
	metrics.SetQueueDepth(0)
	metrics.SetRunningJobs(0)
	return stats, runErr
}

func (p *Pipeline) worker(jobCtx, workerCtx context.Context, slot int) {
	for {
		j, err := p.queue.Get(workerCtx, func(j *job.Job) { p.setRunning(slot, j) })
		if err != nil {
			return
		}

		p.process(jobCtx, j)

		p.setRunning(slot, nil)
		if err := p.queue.TaskDone(); err != nil {
			logger.Get().Error("queue accounting error", "error", err)
		}
	}
}

func (p *Pipeline) setRunning(slot int, j *job.Job) {
	p.mu.Lock()
	p.running[slot] = j
	n := 0
	for _, r := range p.running {
		if r != nil {
			n++
		}
	}
	p.mu.Unlock()

	metrics.SetRunningJobs(n)
}

// process runs one job to completion; a panic inside the job fails only that job
func (p *Pipeline) process(ctx context.Context, j *job.Job) {
	source := j.Source().FullPath()
	log := logger.With("job", j.ID(), "source", source)

	metrics.SetQueueDepth(p.queue.Len())
	p.reporter.Start(j.ID(), source)
	log.Info("job started")

	var err error
	var pc panics.Catcher
	pc.Try(func() { err = j.Run(ctx) })
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	metrics.RecordJobFinished(err == nil)

	if err == nil {
		p.completed.Add(1)
		p.reporter.Complete(j.ID(), source)
		log.Info("job completed", "output", j.RemoteDestinationDir())
		return
	}

	stage := j.Stage().String()
	p.failed.Add(1)
	p.reporter.Error(j.ID(), source, err)
	log.Error("job failed", "stage", stage, "error", err)

	p.mu.Lock()
	p.failures = append(p.failures, Failure{JobID: j.ID(), Source: source, Stage: stage, Error: err.Error()})
	p.mu.Unlock()

	if p.opts.KeepFailed {
		log.Warn("keeping local files of failed job", "dir", j.WorkDir())
		return
	}
	if cerr := j.Cleanup(); cerr != nil {
		log.Warn("cleanup of failed job failed", "error", cerr)
	}
}

// Snapshot returns the running jobs (in worker order) followed by the queued
// jobs (in FIFO order). The summaries are copies.
func (p *Pipeline) Snapshot() []job.Summary {
	var running, waiting []*job.Job

	p.queue.View(func(items []*job.Job) {
		waiting = append(waiting, items...)

		p.mu.Lock()
		for _, j := range p.running {
			if j != nil {
				running = append(running, j)
			}
		}
		p.mu.Unlock()
	})

	out := make([]job.Summary, 0, len(running)+len(waiting))
	for _, j := range running {
		s := j.Summary()
		s.Running = true
		out = append(out, s)
	}
	for _, j := range waiting {
		out = append(out, j.Summary())
	}
	return out
}

// Stats returns the counters so far
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	failures := append([]Failure(nil), p.failures...)
	p.mu.Unlock()

	return Stats{
		Enqueued:   p.enqueued.Load(),
		Duplicates: p.duplicates.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Dropped:    p.dropped.Load(),
		Failures:   failures,
	}
}
