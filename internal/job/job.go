// Package job implements the per-file conversion lifecycle:
// download, convert, upload, cleanup.
package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/Ning0612/Cloudconvert/internal/adapter"
	"github.com/Ning0612/Cloudconvert/internal/core/checksum"
	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/metrics"
	"github.com/Ning0612/Cloudconvert/internal/remote"
	"github.com/Ning0612/Cloudconvert/internal/transcode"
)

// Stage is a job's position in the linear lifecycle
type Stage int

const (
	StageCreated Stage = iota
	StageDownloaded
	StageConverted
	StageUploaded
	StageCleanedUp
)

func (s Stage) String() string {
	switch s {
	case StageCreated:
		return "created"
	case StageDownloaded:
		return "downloaded"
	case StageConverted:
		return "converted"
	case StageUploaded:
		return "uploaded"
	case StageCleanedUp:
		return "cleaned_up"
	default:
		return "unknown"
	}
}

// Env holds the collaborators shared by every job of a run
type Env struct {
	Backend    adapter.Backend
	Transcoder transcode.Transcoder

	// Fs holds the temp directory; afero.NewOsFs() outside tests
	Fs afero.Fs

	// TempDir is the shared local scratch directory; each job works in its own subdirectory
	TempDir string

	// TargetExt is the extension of converted files (".mp4")
	TargetExt string

	// VerifyChecksum compares the downloaded copy against the remote MD5
	VerifyChecksum bool

	// OnStage is called after each successful stage transition
	OnStage func(j *Job, s Stage)
}

// Job is one source file's trip through the pipeline
// A job is owned by a single worker; the flag fields are guarded so status
// snapshots can read them concurrently.
type Job struct {
	id     string
	source *remote.File
	env    *Env

	workDir              string
	localPath            string
	convertedLocalPath   string
	remoteDestinationDir string
	enqueuedAt           time.Time

	mu         sync.Mutex
	downloaded bool
	converted  bool
	uploaded   bool
	cleanedUp  bool
	startedAt  time.Time
	err        error
}

// New creates a job for source
// Local files live in TempDir/<job id>/ so equal names from different remote
// directories never collide.
func New(source *remote.File, env *Env) *Job {
	id := uuid.NewString()
	workDir := filepath.Join(env.TempDir, id)

	targetExt := env.TargetExt
	if targetExt == "" {
		targetExt = ".mp4"
	}

	localPath := filepath.Join(workDir, source.Name())
	converted := filepath.Join(workDir, source.Basename()+targetExt)
	if strings.EqualFold(localPath, converted) {
		converted = filepath.Join(workDir, "out", source.Basename()+targetExt)
	}

	parent, _ := source.Parent()

	return &Job{
		id:                   id,
		source:               source,
		env:                  env,
		workDir:              workDir,
		localPath:            localPath,
		convertedLocalPath:   converted,
		remoteDestinationDir: domain.JoinRemote(source.Drive(), parent),
		enqueuedAt:           time.Now(),
	}
}

// ID returns the job's unique identifier
func (j *Job) ID() string { return j.id }

// Source returns the remote file being converted
func (j *Job) Source() *remote.File { return j.source }

// LocalPath is where the source is downloaded to
func (j *Job) LocalPath() string { return j.localPath }

// ConvertedLocalPath is where the transcoder writes its output
func (j *Job) ConvertedLocalPath() string { return j.convertedLocalPath }

// RemoteDestinationDir is the remote directory the output is uploaded to
func (j *Job) RemoteDestinationDir() string { return j.remoteDestinationDir }

// WorkDir is the job's private temp directory
func (j *Job) WorkDir() string { return j.workDir }

// Stage returns the last stage the job reached
// CleanedUp is only reported for jobs that finished uploading
func (j *Job) Stage() Stage {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stageLocked()
}

func (j *Job) stageLocked() Stage {
	switch {
	case j.uploaded && j.cleanedUp:
		return StageCleanedUp
	case j.uploaded:
		return StageUploaded
	case j.converted:
		return StageConverted
	case j.downloaded:
		return StageDownloaded
	default:
		return StageCreated
	}
}

// Err returns the failure recorded by Run, if any
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

func (j *Job) require(op string, want Stage) error {
	if got := j.Stage(); got != want {
		return &domain.PreconditionError{Op: op, Required: want.String(), Actual: got.String()}
	}
	return nil
}

func (j *Job) advance(s Stage, started time.Time) {
	j.mu.Lock()
	switch s {
	case StageDownloaded:
		j.downloaded = true
	case StageConverted:
		j.converted = true
	case StageUploaded:
		j.uploaded = true
	case StageCleanedUp:
		j.cleanedUp = true
	}
	j.mu.Unlock()

	metrics.RecordStage(s.String(), time.Since(started))
	if j.env.OnStage != nil {
		j.env.OnStage(j, s)
	}
}

// Download copies the source into the job's work directory
func (j *Job) Download(ctx context.Context) error {
	if err := j.require("download", StageCreated); err != nil {
		return err
	}
	start := time.Now()

	if err := j.env.Backend.Copy(ctx, j.source.FullPath(), j.workDir); err != nil {
		return err
	}

	if j.env.VerifyChecksum {
		if err := j.verify(ctx); err != nil {
			return err
		}
	}

	j.advance(StageDownloaded, start)
	return nil
}

func (j *Job) verify(ctx context.Context) error {
	want, err := j.source.FetchHash(ctx)
	if err != nil {
		return err
	}

	got, err := checksum.NewDefaultCalculator().File(ctx, j.env.Fs, j.localPath, checksum.MD5)
	if err != nil {
		return fmt.Errorf("hash %s: %w", j.localPath, err)
	}

	if !strings.EqualFold(got, want) {
		return &domain.TransferError{
			Op:  "verify",
			Src: j.source.FullPath(),
			Dst: j.localPath,
			Err: fmt.Errorf("%w: remote %s, local %s", domain.ErrChecksumMismatch, want, got),
		}
	}
	return nil
}

// Convert runs the transcoder on the downloaded file
func (j *Job) Convert(ctx context.Context) error {
	if err := j.require("convert", StageDownloaded); err != nil {
		return err
	}
	start := time.Now()

	if err := j.env.Fs.MkdirAll(filepath.Dir(j.convertedLocalPath), 0755); err != nil {
		return fmt.Errorf("prepare %s: %w", j.convertedLocalPath, err)
	}
	if err := j.env.Transcoder.Transcode(ctx, j.localPath, j.convertedLocalPath); err != nil {
		return err
	}

	j.advance(StageConverted, start)
	return nil
}

// Upload copies the converted file next to the source on the remote
func (j *Job) Upload(ctx context.Context) error {
	if err := j.require("upload", StageConverted); err != nil {
		return err
	}
	start := time.Now()

	if err := j.env.Backend.Copy(ctx, j.convertedLocalPath, j.remoteDestinationDir); err != nil {
		return err
	}

	j.advance(StageUploaded, start)
	return nil
}

// Cleanup removes the job's local files; safe to call any number of times
// Missing files are not an error
func (j *Job) Cleanup() error {
	start := time.Now()

	// 每個路徑都要嘗試刪除，錯誤最後一起回報
	var errs []error
	for _, p := range []string{j.localPath, j.convertedLocalPath} {
		if err := j.env.Fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("cleanup %s: %w", p, err))
		}
	}
	if err := j.env.Fs.RemoveAll(j.workDir); err != nil {
		errs = append(errs, fmt.Errorf("cleanup %s: %w", j.workDir, err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	j.advance(StageCleanedUp, start)
	return nil
}

// Run performs every stage in order and stops at the first failure
// A failed job keeps its last reached stage and its local files; the caller
// decides whether to Cleanup.
func (j *Job) Run(ctx context.Context) error {
	j.mu.Lock()
	j.startedAt = time.Now()
	j.mu.Unlock()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"download", j.Download},
		{"convert", j.Convert},
		{"upload", j.Upload},
		{"cleanup", func(context.Context) error { return j.Cleanup() }},
	}

	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			err = fmt.Errorf("%s %s: %w", step.name, j.source.FullPath(), err)
			j.mu.Lock()
			j.err = err
			j.mu.Unlock()
			return err
		}
	}
	return nil
}

// Summary is the serializable view of a job used by status snapshots
type Summary struct {
	ID                   string    `json:"id"`
	Source               string    `json:"source"`
	Size                 int64     `json:"size"`
	LocalPath            string    `json:"local_path"`
	ConvertedLocalPath   string    `json:"converted_local_path"`
	RemoteDestinationDir string    `json:"remote_destination_dir"`
	Stage                string    `json:"stage"`
	Downloaded           bool      `json:"downloaded"`
	Converted            bool      `json:"converted"`
	Uploaded             bool      `json:"uploaded"`
	Running              bool      `json:"running"`
	EnqueuedAt           time.Time `json:"enqueued_at"`
	StartedAt            time.Time `json:"started_at"`
	Error                string    `json:"error,omitempty"`
}

// Summary returns a point-in-time copy of the job's state
func (j *Job) Summary() Summary {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := Summary{
		ID:                   j.id,
		Source:               j.source.FullPath(),
		Size:                 j.source.Size(),
		LocalPath:            j.localPath,
		ConvertedLocalPath:   j.convertedLocalPath,
		RemoteDestinationDir: j.remoteDestinationDir,
		Stage:                j.stageLocked().String(),
		Downloaded:           j.downloaded,
		Converted:            j.converted,
		Uploaded:             j.uploaded,
		EnqueuedAt:           j.enqueuedAt,
		StartedAt:            j.startedAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}
