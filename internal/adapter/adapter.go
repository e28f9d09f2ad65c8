package adapter

import (
	"context"

	"github.com/Ning0612/Cloudconvert/internal/domain"
)

// Backend is the contract every remote storage backend fulfils.
// Remote locations are written as "drive:path"; a location without a drive
// prefix refers to the local filesystem (the job temp directory).
// Implementations return domain errors so callers can use errors.Is / errors.As.
type Backend interface {
	// List returns the entries directly under drive:dir, or every entry below
	// it when recursive is true. Entry paths are relative to the drive root.
	// Returns *domain.ListingError when the listing fails or cannot be parsed
	List(ctx context.Context, drive, dir string, recursive bool) ([]domain.Entry, error)

	// Size returns the object count and total bytes below location
	// Negative or missing byte counts are reported as 0
	Size(ctx context.Context, location string) (count, bytes int64, err error)

	// Hash returns the MD5 hex digest of the object at location
	Hash(ctx context.Context, location string) (string, error)

	// Copy copies src into the directory dst, verifying by checksum
	// Returns *domain.TransferError on failure
	Copy(ctx context.Context, src, dst string) error

	// Move is Copy followed by removal of src
	Move(ctx context.Context, src, dst string) error

	// Delete removes a single file
	Delete(ctx context.Context, location string) error

	// Sync makes dst identical to src; extra is passed through to the backend
	Sync(ctx context.Context, src, dst string, extra ...string) error

	// Name identifies the backend in logs and metrics
	Name() string
}
