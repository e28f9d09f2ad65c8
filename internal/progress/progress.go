package progress

import (
	"fmt"
	"sync"
	"time"
)

// Reporter receives job lifecycle events from the pipeline
// Implementations must be safe for concurrent use by several workers
type Reporter interface {
	// Enqueued reports a job accepted by discovery
	Enqueued(jobID, source string, size int64)
	// Start reports a worker picking up a job
	Start(jobID, source string)
	// Stage reports a job reaching a new stage ("downloaded", "converted", ...)
	Stage(jobID, source, stage string)
	// Complete marks a job as finished successfully
	Complete(jobID, source string)
	// Error marks a job as failed
	Error(jobID, source string, err error)
}

// Callback is a function that receives progress updates
type Callback func(update Update)

// Update represents a progress update
type Update struct {
	Type   UpdateType
	JobID  string
	Source string
	Stage  string
	Size   int64

	JobsQueued     int
	JobsCompleted  int
	JobsFailed     int
	BytesQueued    int64
	BytesCompleted int64

	// Elapsed is the time since Start for this job (Complete / Error / Stage)
	Elapsed time.Duration
	Error   error
}

// UpdateType indicates the type of progress update
type UpdateType int

const (
	UpdateEnqueued UpdateType = iota
	UpdateStart
	UpdateStage
	UpdateComplete
	UpdateError
)

func (t UpdateType) String() string {
	switch t {
	case UpdateEnqueued:
		return "enqueued"
	case UpdateStart:
		return "start"
	case UpdateStage:
		return "stage"
	case UpdateComplete:
		return "complete"
	case UpdateError:
		return "error"
	default:
		return "unknown"
	}
}

type jobInfo struct {
	size    int64
	started time.Time
}

// CallbackReporter implements Reporter with a callback function
type CallbackReporter struct {
	callback Callback

	mu             sync.Mutex
	jobs           map[string]*jobInfo
	queued         int
	completed      int
	failed         int
	bytesQueued    int64
	bytesCompleted int64
}

// NewCallbackReporter creates a new CallbackReporter
func NewCallbackReporter(callback Callback) *CallbackReporter {
	return &CallbackReporter{
		callback: callback,
		jobs:     make(map[string]*jobInfo),
	}
}

// Enqueued implements Reporter
func (r *CallbackReporter) Enqueued(jobID, source string, size int64) {
	r.mu.Lock()
	r.jobs[jobID] = &jobInfo{size: size}
	r.queued++
	r.bytesQueued += size
	u := r.updateLocked(UpdateEnqueued, jobID, source)
	r.mu.Unlock()

	r.emit(u)
}

// Start implements Reporter
func (r *CallbackReporter) Start(jobID, source string) {
	r.mu.Lock()
	info := r.job(jobID)
	info.started = time.Now()
	u := r.updateLocked(UpdateStart, jobID, source)
	r.mu.Unlock()

	r.emit(u)
}

// Stage implements Reporter
func (r *CallbackReporter) Stage(jobID, source, stage string) {
	r.mu.Lock()
	u := r.updateLocked(UpdateStage, jobID, source)
	u.Stage = stage
	r.mu.Unlock()

	r.emit(u)
}

// Complete implements Reporter
func (r *CallbackReporter) Complete(jobID, source string) {
	r.mu.Lock()
	r.completed++
	r.bytesCompleted += r.job(jobID).size
	u := r.updateLocked(UpdateComplete, jobID, source)
	delete(r.jobs, jobID)
	r.mu.Unlock()

	r.emit(u)
}

// Error implements Reporter
func (r *CallbackReporter) Error(jobID, source string, err error) {
	r.mu.Lock()
	r.failed++
	u := r.updateLocked(UpdateError, jobID, source)
	u.Error = err
	delete(r.jobs, jobID)
	r.mu.Unlock()

	r.emit(u)
}

// job returns the tracked info, creating it for jobs that were never enqueued here
func (r *CallbackReporter) job(jobID string) *jobInfo {
	info, ok := r.jobs[jobID]
	if !ok {
		info = &jobInfo{}
		r.jobs[jobID] = info
	}
	return info
}

func (r *CallbackReporter) updateLocked(typ UpdateType, jobID, source string) Update {
	info := r.job(jobID)

	u := Update{
		Type:           typ,
		JobID:          jobID,
		Source:         source,
		Size:           info.size,
		JobsQueued:     r.queued,
		JobsCompleted:  r.completed,
		JobsFailed:     r.failed,
		BytesQueued:    r.bytesQueued,
		BytesCompleted: r.bytesCompleted,
	}
	if !info.started.IsZero() {
		u.Elapsed = time.Since(info.started)
	}
	return u
}

// emit calls the callback outside the lock to prevent deadlock
func (r *CallbackReporter) emit(u Update) {
	if r.callback != nil {
		r.callback(u)
	}
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Enqueued(jobID, source string, size int64) {}
func (NullReporter) Start(jobID, source string)                {}
func (NullReporter) Stage(jobID, source, stage string)         {}
func (NullReporter) Complete(jobID, source string)             {}
func (NullReporter) Error(jobID, source string, err error)     {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	bar := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < filled {
			bar[i] = '='
		} else if i == filled {
			bar[i] = '>'
		} else {
			bar[i] = ' '
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
