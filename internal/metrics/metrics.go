// Package metrics provides Prometheus metrics for conversion runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	jobsEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cloudconvert_jobs_enqueued_total",
			Help: "Total number of conversion jobs enqueued by discovery",
		},
	)

	jobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudconvert_jobs_finished_total",
			Help: "Total number of conversion jobs finished, by result",
		},
		[]string{"result"},
	)

	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudconvert_stage_duration_seconds",
			Help:    "Duration of each job stage in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		},
		[]string{"stage"},
	)

	// Queue metrics
	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudconvert_queue_depth",
			Help: "Number of jobs waiting in the queue",
		},
	)

	runningJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cloudconvert_running_jobs",
			Help: "Number of jobs currently held by workers",
		},
	)

	// Remote backend metrics
	remoteCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cloudconvert_remote_commands_total",
			Help: "Total remote backend commands, by backend, operation and status",
		},
		[]string{"backend", "operation", "status"},
	)

	remoteCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cloudconvert_remote_command_duration_seconds",
			Help:    "Remote backend command duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordEnqueued records a job handed to the queue.
func RecordEnqueued() {
	jobsEnqueuedTotal.Inc()
}

// RecordJobFinished records a job that left a worker.
func RecordJobFinished(success bool) {
	jobsFinishedTotal.WithLabelValues(status(success)).Inc()
}

// RecordStage records how long a job stage took.
func RecordStage(stage string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// SetQueueDepth sets the number of queued jobs.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetRunningJobs sets the number of in-flight jobs.
func SetRunningJobs(n int) {
	runningJobs.Set(float64(n))
}

// RecordRemoteCommand records one backend operation.
func RecordRemoteCommand(backend, operation string, duration time.Duration, success bool) {
	remoteCommandDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	remoteCommandsTotal.WithLabelValues(backend, operation, status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
