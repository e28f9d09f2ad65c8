package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Adapter errors - 遠端後端錯誤
var (
	// ErrNotFound indicates the requested remote or local object does not exist
	ErrNotFound = errors.New("resource not found")

	// ErrNotDirectory indicates expected a directory but got a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotFile indicates expected a file but got a directory
	ErrNotFile = errors.New("not a file")

	// ErrPermissionDenied indicates a path escapes the backend root or access was refused
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBinaryNotFound indicates an external tool is not installed or not on PATH
	ErrBinaryNotFound = errors.New("executable not found")

	// ErrChecksumMismatch indicates a downloaded copy differs from the remote original
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Tree errors - 遠端樹狀結構錯誤
var (
	// ErrHashNotFetched indicates an equality check on a file whose hash was never fetched
	ErrHashNotFetched = errors.New("hash not fetched")

	// ErrOrphanEntry indicates a recursive listing entry whose parent directory was not listed
	ErrOrphanEntry = errors.New("entry has no parent in listing")
)

// Pipeline errors - 轉檔管線錯誤
var (
	// ErrQueueClosed indicates the job queue no longer accepts work
	ErrQueueClosed = errors.New("queue closed")

	// ErrDuplicateJob indicates a source file was offered to the pipeline twice
	ErrDuplicateJob = errors.New("job already enqueued")

	// ErrRunInProgress indicates another conversion run holds the temp directory
	ErrRunInProgress = errors.New("conversion run already in progress")
)

// Config errors - 設定檔錯誤
var (
	// ErrConfigNotFound indicates config file not found
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigInvalid indicates config file is malformed
	ErrConfigInvalid = errors.New("invalid config")
)

// ExecutionError reports an external process that could not be started or exited non-zero
type ExecutionError struct {
	Command  string
	Args     []string
	ExitCode int // -1 when the process never ran
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	var b strings.Builder
	b.WriteString(e.Command)
	if len(e.Args) > 0 {
		b.WriteString(" ")
		b.WriteString(e.Args[0])
	}
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	} else if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		b.WriteString(": ")
		b.WriteString(firstLine(msg))
	}
	return b.String()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// ListingError wraps a failed or unparsable remote listing
type ListingError struct {
	Target string
	Err    error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing %s: %v", e.Target, e.Err)
}

func (e *ListingError) Unwrap() error {
	return e.Err
}

// TransferError wraps a failed copy, move, delete, or sync
type TransferError struct {
	Op  string
	Src string
	Dst string
	Err error
}

func (e *TransferError) Error() string {
	if e.Dst == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Src, e.Err)
	}
	return fmt.Sprintf("%s %s -> %s: %v", e.Op, e.Src, e.Dst, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ParseError reports tool output that does not have the expected shape
type ParseError struct {
	What string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// PreconditionError reports a pipeline step invoked out of order
type PreconditionError struct {
	Op       string
	Required string
	Actual   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires stage %s, job is %s", e.Op, e.Required, e.Actual)
}

// IsExecutionError reports whether err (or anything it wraps) is an ExecutionError
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
