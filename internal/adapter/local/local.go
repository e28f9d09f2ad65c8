// Package local implements adapter.Backend on a filesystem directory.
// Every drive name maps to the same root, so a local folder can stand in for a remote.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Ning0612/Cloudconvert/internal/core/checksum"
	"github.com/Ning0612/Cloudconvert/internal/domain"
)

// Mime types for common video containers. mime.TypeByExtension depends on the
// host's mime tables, which often lack these.
var videoMimeTypes = map[string]string{
	".3gp":  "video/3gpp",
	".avi":  "video/x-msvideo",
	".flv":  "video/x-flv",
	".m2ts": "video/mp2t",
	".m4v":  "video/x-m4v",
	".mkv":  "video/x-matroska",
	".mov":  "video/quicktime",
	".mp4":  "video/mp4",
	".mpeg": "video/mpeg",
	".mpg":  "video/mpeg",
	".ogv":  "video/ogg",
	".ts":   "video/mp2t",
	".vob":  "video/dvd",
	".webm": "video/webm",
	".wmv":  "video/x-ms-wmv",
}

// Backend implements adapter.Backend for a directory on an afero filesystem
type Backend struct {
	fs   afero.Fs
	root string
	calc *checksum.DefaultCalculator
}

// New creates a local backend rooted at root
// root must be an existing directory on fs
func New(fs afero.Fs, root string) (*Backend, error) {
	root = filepath.Clean(root)

	info, err := fs.Stat(root)
	if err != nil {
		return nil, mapError(err)
	}
	if !info.IsDir() {
		return nil, domain.ErrNotDirectory
	}

	return &Backend{fs: fs, root: root, calc: checksum.NewDefaultCalculator()}, nil
}

// Name implements adapter.Backend
func (b *Backend) Name() string {
	return "local"
}

// Root returns the directory every drive maps to
func (b *Backend) Root() string {
	return b.root
}

// resolve maps "drive:path" into the root and returns plain paths unchanged
// Returns ErrPermissionDenied if a remote path attempts to escape root
func (b *Backend) resolve(location string) (string, error) {
	_, p, ok := domain.SplitRemote(location)
	if !ok {
		return filepath.Clean(location), nil
	}
	return b.within(p)
}

func (b *Backend) within(p string) (string, error) {
	full := filepath.Join(b.root, filepath.FromSlash(p))

	rel, err := filepath.Rel(b.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", domain.ErrPermissionDenied
	}
	return full, nil
}

// List implements adapter.Backend
func (b *Backend) List(ctx context.Context, drive, dir string, recursive bool) ([]domain.Entry, error) {
	dir = domain.CleanRemotePath(dir)
	target := domain.JoinRemote(drive, dir)

	full, err := b.within(dir)
	if err != nil {
		return nil, &domain.ListingError{Target: target, Err: err}
	}

	info, err := b.fs.Stat(full)
	if err != nil {
		return nil, &domain.ListingError{Target: target, Err: mapError(err)}
	}
	if !info.IsDir() {
		return nil, &domain.ListingError{Target: target, Err: domain.ErrNotDirectory}
	}

	var entries []domain.Entry
	walkErr := afero.Walk(b.fs, full, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == full {
			return nil
		}

		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		entries = append(entries, entryFromInfo(filepath.ToSlash(rel), fi))

		if fi.IsDir() && !recursive {
			return filepath.SkipDir
		}
		return nil
	})
	if walkErr != nil {
		return nil, &domain.ListingError{Target: target, Err: mapError(walkErr)}
	}

	return entries, nil
}

func entryFromInfo(rel string, fi os.FileInfo) domain.Entry {
	e := domain.Entry{
		Path:  rel,
		Name:  path.Base(rel),
		IsDir: fi.IsDir(),
	}
	if fi.IsDir() {
		e.MimeType = domain.MimeDirectory
		return e
	}
	e.Size = fi.Size()
	e.MimeType = mimeType(e.Name)
	return e
}

func mimeType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if mt, ok := videoMimeTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		return mt
	}
	return "application/octet-stream"
}

// Size implements adapter.Backend
func (b *Backend) Size(ctx context.Context, location string) (int64, int64, error) {
	full, err := b.resolve(location)
	if err != nil {
		return 0, 0, &domain.ListingError{Target: location, Err: err}
	}

	var count, bytes int64
	err = afero.Walk(b.fs, full, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !fi.IsDir() {
			count++
			bytes += fi.Size()
		}
		return nil
	})
	if err != nil {
		return 0, 0, &domain.ListingError{Target: location, Err: mapError(err)}
	}
	return count, bytes, nil
}

// Hash implements adapter.Backend
func (b *Backend) Hash(ctx context.Context, location string) (string, error) {
	full, err := b.resolve(location)
	if err != nil {
		return "", err
	}

	sum, err := b.calc.File(ctx, b.fs, full, checksum.MD5)
	if err != nil {
		return "", &domain.ListingError{Target: location, Err: mapError(err)}
	}
	return sum, nil
}

// Copy implements adapter.Backend
func (b *Backend) Copy(ctx context.Context, src, dst string) error {
	if err := b.copyInto(ctx, src, dst); err != nil {
		return &domain.TransferError{Op: "copy", Src: src, Dst: dst, Err: err}
	}
	return nil
}

// Move implements adapter.Backend
func (b *Backend) Move(ctx context.Context, src, dst string) error {
	if err := b.copyInto(ctx, src, dst); err != nil {
		return &domain.TransferError{Op: "move", Src: src, Dst: dst, Err: err}
	}

	full, _ := b.resolve(src)
	if err := b.fs.Remove(full); err != nil {
		return &domain.TransferError{Op: "move", Src: src, Dst: dst, Err: mapError(err)}
	}
	return nil
}

// Delete implements adapter.Backend
func (b *Backend) Delete(ctx context.Context, location string) error {
	full, err := b.resolve(location)
	if err == nil {
		var info os.FileInfo
		if info, err = b.fs.Stat(full); err == nil && info.IsDir() {
			err = domain.ErrNotFile
		}
	}
	if err == nil {
		err = b.fs.Remove(full)
	}
	if err != nil {
		return &domain.TransferError{Op: "delete", Src: location, Err: mapError(err)}
	}
	return nil
}

// Sync implements adapter.Backend
// dst ends up with exactly the files of src; extra flags are ignored
func (b *Backend) Sync(ctx context.Context, src, dst string, extra ...string) error {
	if err := b.sync(ctx, src, dst); err != nil {
		return &domain.TransferError{Op: "sync", Src: src, Dst: dst, Err: err}
	}
	return nil
}

func (b *Backend) sync(ctx context.Context, src, dst string) error {
	srcDir, err := b.resolve(src)
	if err != nil {
		return err
	}
	dstDir, err := b.resolve(dst)
	if err != nil {
		return err
	}

	want := make(map[string]bool)
	err = afero.Walk(b.fs, srcDir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return mapError(err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dstDir, rel)
		if fi.IsDir() {
			return b.fs.MkdirAll(target, 0755)
		}
		want[rel] = true
		return b.copyFile(ctx, p, target)
	})
	if err != nil {
		return err
	}

	var stale []string
	err = afero.Walk(b.fs, dstDir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return mapError(err)
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dstDir, p)
		if err != nil {
			return err
		}
		if !want[rel] {
			stale = append(stale, p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range stale {
		if err := b.fs.Remove(p); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// copyInto copies the file src into the directory dst, creating dst if needed
func (b *Backend) copyInto(ctx context.Context, src, dst string) error {
	srcPath, err := b.resolve(src)
	if err != nil {
		return err
	}
	dstDir, err := b.resolve(dst)
	if err != nil {
		return err
	}

	info, err := b.fs.Stat(srcPath)
	if err != nil {
		return mapError(err)
	}
	if info.IsDir() {
		return domain.ErrNotFile
	}

	if err := b.fs.MkdirAll(dstDir, 0755); err != nil {
		return mapError(err)
	}
	return b.copyFile(ctx, srcPath, filepath.Join(dstDir, filepath.Base(srcPath)))
}

// copyFile writes to a temp name first and renames into place
func (b *Backend) copyFile(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := b.fs.Open(from)
	if err != nil {
		return mapError(err)
	}
	defer in.Close()

	tempPath := to + ".cloudconvert.tmp"
	out, err := b.fs.Create(tempPath)
	if err != nil {
		return mapError(err)
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()

	if copyErr != nil {
		b.fs.Remove(tempPath)
		return copyErr
	}
	if closeErr != nil {
		b.fs.Remove(tempPath)
		return closeErr
	}

	if err := b.fs.Rename(tempPath, to); err != nil {
		b.fs.Remove(tempPath)
		return mapError(err)
	}
	return nil
}

// mapError converts OS errors to domain errors
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
	default:
		return err
	}
}
