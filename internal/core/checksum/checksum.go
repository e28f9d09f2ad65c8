package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/spf13/afero"
)

// Algorithm represents the hashing algorithm to use
type Algorithm string

const (
	// MD5 matches what remote backends report (rclone md5sum)
	MD5 Algorithm = "md5"
	// SHA256 for local-only comparisons
	SHA256 Algorithm = "sha256"
)

// Options configures the checksum calculator
type Options struct {
	// MaxSize: inputs larger than this are rejected (0 = unlimited)
	MaxSize int64

	// BufferSize: size of buffer for streaming reads
	// Default: 1MB, video files are large
	BufferSize int
}

// DefaultOptions returns options suited to media files: no size cap, 1MB reads
func DefaultOptions() Options {
	return Options{
		MaxSize:    0,
		BufferSize: 1024 * 1024,
	}
}

// Calculator computes checksums
type Calculator interface {
	// Calculate computes a hex digest from an io.Reader
	// Fails if the input exceeds MaxSize or ctx is cancelled
	Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error)
}

// DefaultCalculator implements Calculator with streaming reads
type DefaultCalculator struct {
	opts Options
}

// NewCalculator creates a new calculator with the given options
func NewCalculator(opts Options) *DefaultCalculator {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultOptions().BufferSize
	}
	return &DefaultCalculator{opts: opts}
}

// NewDefaultCalculator creates a calculator with default options
func NewDefaultCalculator() *DefaultCalculator {
	return NewCalculator(DefaultOptions())
}

// Calculate implements the Calculator interface
func (c *DefaultCalculator) Calculate(ctx context.Context, reader io.Reader, algo Algorithm) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}

	var r io.Reader = reader
	if c.opts.MaxSize > 0 {
		r = io.LimitReader(reader, c.opts.MaxSize+1)
	}

	buffer := make([]byte, c.opts.BufferSize)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := r.Read(buffer)
		if n > 0 {
			total += int64(n)
			if c.opts.MaxSize > 0 && total > c.opts.MaxSize {
				return "", fmt.Errorf("input exceeds maximum size (%d bytes)", c.opts.MaxSize)
			}
			h.Write(buffer[:n])
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read error: %w", err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// File computes the digest of the file at path on fs
func (c *DefaultCalculator) File(ctx context.Context, fs afero.Fs, path string, algo Algorithm) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	return c.Calculate(ctx, f, algo)
}

func newHash(algo Algorithm) (hash.Hash, error) {
	switch algo {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", algo)
	}
}

// IsSupported checks if the given algorithm is supported
func IsSupported(algo Algorithm) bool {
	_, err := newHash(algo)
	return err == nil
}
