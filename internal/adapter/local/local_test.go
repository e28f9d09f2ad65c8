package local

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/testutil"
)

func newBackend(t *testing.T) (*Backend, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	fs.MkdirAll("/remote", 0755)
	testutil.WriteFile(t, fs, "/remote/Videos/movie.avi", []byte("avi-data"))
	testutil.WriteFile(t, fs, "/remote/Videos/Shows/ep1.mkv", []byte("mkv"))
	testutil.WriteFile(t, fs, "/remote/notes.txt", []byte("hi"))

	b, err := New(fs, "/remote")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b, fs
}

func TestNew_RootMustBeDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	testutil.WriteFile(t, fs, "/file", []byte("x"))

	if _, err := New(fs, "/missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing root: got %v, want ErrNotFound", err)
	}
	if _, err := New(fs, "/file"); !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("file root: got %v, want ErrNotDirectory", err)
	}
}

func TestBackend_List(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()

	flat, err := b.List(ctx, "Drive", "Videos", false)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(flat) != 2 {
		t.Fatalf("non-recursive List() returned %d entries: %+v", len(flat), flat)
	}

	byPath := map[string]domain.Entry{}
	for _, e := range flat {
		byPath[e.Path] = e
	}
	movie, ok := byPath["Videos/movie.avi"]
	if !ok {
		t.Fatalf("movie.avi missing from %+v", flat)
	}
	if movie.MimeType != "video/x-msvideo" || movie.Size != 8 || movie.IsDir {
		t.Errorf("unexpected movie entry %+v", movie)
	}
	if shows := byPath["Videos/Shows"]; !shows.IsDir || shows.MimeType != domain.MimeDirectory {
		t.Errorf("unexpected directory entry %+v", shows)
	}

	all, err := b.List(ctx, "Drive", "", true)
	if err != nil {
		t.Fatalf("recursive List() error = %v", err)
	}
	// Videos, Shows, ep1.mkv, movie.avi, notes.txt
	if len(all) != 5 {
		t.Errorf("recursive List() returned %d entries: %+v", len(all), all)
	}
}

func TestBackend_ListErrors(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()

	_, err := b.List(ctx, "Drive", "nope", false)
	var listErr *domain.ListingError
	if !errors.As(err, &listErr) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing dir: got %v", err)
	}

	if _, err := b.List(ctx, "Drive", "notes.txt", false); !errors.Is(err, domain.ErrNotDirectory) {
		t.Errorf("file as dir: got %v", err)
	}
}

func TestBackend_PathEscape(t *testing.T) {
	b, _ := newBackend(t)

	if _, err := b.within("../etc"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Errorf("within(../etc) = %v, want ErrPermissionDenied", err)
	}
	// remote paths are cleaned as rooted paths, so they cannot climb out
	if p, err := b.resolve("Drive:../../etc/passwd"); err != nil || p != "/remote/etc/passwd" {
		t.Errorf("resolve() = %q, %v", p, err)
	}
}

func TestBackend_SizeAndHash(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()

	count, bytes, err := b.Size(ctx, "Drive:Videos")
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if count != 2 || bytes != 11 {
		t.Errorf("Size() = (%d, %d), want (2, 11)", count, bytes)
	}

	sum, err := b.Hash(ctx, "Drive:notes.txt")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if sum != "49f68a5c8493ec2c0bf489821c21fc3b" {
		t.Errorf("Hash() = %s", sum)
	}
}

func TestBackend_CopyMoveDelete(t *testing.T) {
	b, fs := newBackend(t)
	ctx := context.Background()

	// download into a local temp dir
	if err := b.Copy(ctx, "Drive:Videos/movie.avi", "/tmp/job"); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	if !testutil.Exists(t, fs, "/tmp/job/movie.avi") {
		t.Fatal("downloaded file missing")
	}
	if !testutil.Exists(t, fs, "/remote/Videos/movie.avi") {
		t.Fatal("Copy() must keep the source")
	}

	// upload back with move
	testutil.WriteFile(t, fs, "/tmp/job/movie.mp4", []byte("mp4"))
	if err := b.Move(ctx, "/tmp/job/movie.mp4", "Drive:Videos"); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if !testutil.Exists(t, fs, "/remote/Videos/movie.mp4") || testutil.Exists(t, fs, "/tmp/job/movie.mp4") {
		t.Error("Move() should relocate the file")
	}

	if err := b.Delete(ctx, "Drive:Videos/movie.mp4"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if testutil.Exists(t, fs, "/remote/Videos/movie.mp4") {
		t.Error("Delete() left the file")
	}

	err := b.Delete(ctx, "Drive:Videos/movie.mp4")
	var transferErr *domain.TransferError
	if !errors.As(err, &transferErr) || !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Delete() of missing file = %v", err)
	}

	if err := b.Copy(ctx, "Drive:Videos", "/tmp/x"); !errors.Is(err, domain.ErrNotFile) {
		t.Errorf("Copy() of a directory = %v, want ErrNotFile", err)
	}
}

func TestBackend_Sync(t *testing.T) {
	b, fs := newBackend(t)
	ctx := context.Background()

	testutil.WriteFile(t, fs, "/remote/Backup/stale.avi", []byte("old"))

	if err := b.Sync(ctx, "Drive:Videos", "Drive:Backup"); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	for _, p := range []string{"/remote/Backup/movie.avi", "/remote/Backup/Shows/ep1.mkv"} {
		if !testutil.Exists(t, fs, p) {
			t.Errorf("%s not synced", p)
		}
	}
	if testutil.Exists(t, fs, "/remote/Backup/stale.avi") {
		t.Error("Sync() should remove files absent from the source")
	}
}
