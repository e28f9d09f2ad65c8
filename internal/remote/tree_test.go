package remote

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path"
	"sort"
	"sync"
	"testing"

	"github.com/Ning0612/Cloudconvert/internal/domain"
)

// fakeBackend serves listings from a fixed set of entries keyed by path
type fakeBackend struct {
	mu        sync.Mutex
	entries   []domain.Entry
	listCalls int
	hashCalls int
	sizeCalls int
	listErr   error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) List(_ context.Context, _, dir string, recursive bool) ([]domain.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	dir = domain.CleanRemotePath(dir)
	var out []domain.Entry
	for _, e := range f.entries {
		parent := path.Dir(e.Path)
		if parent == "." {
			parent = ""
		}
		switch {
		case parent == dir:
			out = append(out, e)
		case recursive && (dir == "" || len(e.Path) > len(dir) && e.Path[:len(dir)+1] == dir+"/"):
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeBackend) Size(context.Context, string) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizeCalls++
	return 2, 300, nil
}

func (f *fakeBackend) Hash(_ context.Context, location string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashCalls++
	return "hash-of-" + path.Base(location), nil
}

func (f *fakeBackend) Copy(context.Context, string, string) error            { return nil }
func (f *fakeBackend) Move(context.Context, string, string) error            { return nil }
func (f *fakeBackend) Delete(context.Context, string) error                  { return nil }
func (f *fakeBackend) Sync(context.Context, string, string, ...string) error { return nil }

func file(p string, size int64, mimeType string) domain.Entry {
	return domain.Entry{Path: p, Name: path.Base(p), Size: size, MimeType: mimeType}
}

func dir(p string) domain.Entry {
	return domain.Entry{Path: p, Name: path.Base(p), Size: -1, MimeType: domain.MimeDirectory, IsDir: true}
}

func sampleBackend() *fakeBackend {
	return &fakeBackend{entries: []domain.Entry{
		dir("Videos"),
		file("Videos/movie.avi", 100, "video/x-msvideo"),
		file("Videos/Movie.mp4", 200, "video/mp4"),
		dir("Videos/Shows"),
		file("Videos/Shows/ep1.mkv", -1, "video/x-matroska"),
		file("readme.txt", 5, "text/plain"),
	}}
}

func TestItem_Fields(t *testing.T) {
	f := NewFile(sampleBackend(), "Drive", file("Videos/Shows/ep1.MKV", -1, "video/x-matroska"))

	if f.FullPath() != "Drive:Videos/Shows/ep1.MKV" {
		t.Errorf("FullPath() = %q", f.FullPath())
	}
	if f.Extension() != ".mkv" || f.Basename() != "ep1" || f.Name() != "ep1.MKV" {
		t.Errorf("Extension/Basename/Name = %q %q %q", f.Extension(), f.Basename(), f.Name())
	}
	if f.Size() != 0 {
		t.Errorf("negative size should map to 0, got %d", f.Size())
	}
	if p, ok := f.Parent(); !ok || p != "Videos/Shows" {
		t.Errorf("Parent() = %q, %v", p, ok)
	}

	top := NewFile(sampleBackend(), "Drive", file("readme.txt", 5, "text/plain"))
	if p, ok := top.Parent(); !ok || p != "" {
		t.Errorf("top-level Parent() = %q, %v", p, ok)
	}

	root := NewTree(sampleBackend()).Dir("Drive", "")
	if _, ok := root.Parent(); ok {
		t.Error("synthetic root must not have a parent")
	}
}

func TestFile_FetchHashOnce(t *testing.T) {
	b := sampleBackend()
	f := NewFile(b, "Drive", file("Videos/movie.avi", 100, "video/x-msvideo"))

	if _, ok := f.Hash(); ok {
		t.Fatal("hash should not be known before FetchHash")
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.FetchHash(context.Background())
		}()
	}
	wg.Wait()

	if b.hashCalls != 1 {
		t.Errorf("backend hashed %d times, want 1", b.hashCalls)
	}
	if h, ok := f.Hash(); !ok || h != "hash-of-movie.avi" {
		t.Errorf("Hash() = %q, %v", h, ok)
	}
}

func TestEqual(t *testing.T) {
	b := sampleBackend()
	a := NewFile(b, "Drive", file("A/movie.avi", 100, "video/x-msvideo"))
	c := NewFile(b, "Other", file("B/movie.avi", 100, "video/x-msvideo"))
	d := NewFile(b, "Drive", file("C/movie.avi", 99, "video/x-msvideo"))

	if _, err := Equal(a, c); !errors.Is(err, domain.ErrHashNotFetched) {
		t.Fatalf("Equal() before fetching = %v, want ErrHashNotFetched", err)
	}
	if b.hashCalls != 0 {
		t.Fatal("Equal() must not fetch hashes")
	}

	ctx := context.Background()
	a.FetchHash(ctx)
	c.FetchHash(ctx)
	d.FetchHash(ctx)

	if eq, err := Equal(a, c); err != nil || !eq {
		t.Errorf("Equal(a, c) = %v, %v; want true", eq, err)
	}
	if eq, _ := Equal(a, d); eq {
		t.Error("files with different sizes must not be equal")
	}
}

func TestDirectory_ContentsPopulatesOnce(t *testing.T) {
	b := sampleBackend()
	d := NewTree(b).Dir("Drive", "Videos")

	if d.Populated() {
		t.Fatal("new directory should not be populated")
	}

	for i := 0; i < 3; i++ {
		items, err := d.Contents(context.Background())
		if err != nil {
			t.Fatalf("Contents() error = %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("Contents() returned %d items", len(items))
		}
	}

	if b.listCalls != 1 {
		t.Errorf("listed %d times, want 1", b.listCalls)
	}
	if !d.Populated() {
		t.Error("directory should be populated")
	}
}

func TestDirectory_ContentsRetriesAfterFailure(t *testing.T) {
	b := sampleBackend()
	b.listErr = &domain.ListingError{Target: "Drive:Videos/", Err: errors.New("boom")}
	d := NewTree(b).Dir("Drive", "Videos")

	if _, err := d.Contents(context.Background()); err == nil {
		t.Fatal("expected listing error")
	}
	if d.Populated() {
		t.Fatal("failed listing must not mark the directory populated")
	}

	b.listErr = nil
	if items, err := d.Contents(context.Background()); err != nil || len(items) != 3 {
		t.Errorf("retry: %d items, err %v", len(items), err)
	}
}

func TestDirectory_Find(t *testing.T) {
	d := NewTree(sampleBackend()).Dir("Drive", "Videos")
	ctx := context.Background()

	it, err := d.Find(ctx, "MOVIE")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if it == nil || it.Name() != "movie.avi" {
		t.Errorf("Find(MOVIE) = %v, want first match movie.avi", it)
	}

	if it, _ := d.Find(ctx, "nothing"); it != nil {
		t.Errorf("Find(nothing) = %v, want nil", it)
	}
}

func TestDirectory_SizeQueriedOnce(t *testing.T) {
	b := sampleBackend()
	d := NewTree(b).Dir("Drive", "Videos")
	ctx := context.Background()

	count, _ := d.ItemCount(ctx)
	total, _ := d.TotalSize(ctx)
	if count != 2 || total != 300 {
		t.Errorf("ItemCount/TotalSize = %d/%d", count, total)
	}
	if b.sizeCalls != 1 {
		t.Errorf("size queried %d times, want 1", b.sizeCalls)
	}
}

func TestBuildTree(t *testing.T) {
	b := sampleBackend()

	root, err := NewTree(b).BuildTree(context.Background(), "Drive", "")
	if err != nil {
		t.Fatalf("BuildTree() error = %v", err)
	}
	if b.listCalls != 1 {
		t.Errorf("BuildTree listed %d times, want exactly 1", b.listCalls)
	}

	var names []string
	err = Walk(context.Background(), root, func(it Item, depth int) error {
		names = append(names, fmt.Sprintf("%d:%s", depth, it.Path()))
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []string{"1:Videos", "2:Videos/movie.avi", "2:Videos/Movie.mp4", "2:Videos/Shows", "3:Videos/Shows/ep1.mkv", "1:readme.txt"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("Walk order = %v, want %v", names, want)
	}
	// Walk over a built tree must not list again
	if b.listCalls != 1 {
		t.Errorf("listed %d times after Walk, want 1", b.listCalls)
	}
}

func TestWalk_SkipDir(t *testing.T) {
	root, err := NewTree(sampleBackend()).BuildTree(context.Background(), "Drive", "")
	if err != nil {
		t.Fatalf("BuildTree() error = %v", err)
	}

	var names []string
	err = Walk(context.Background(), root, func(it Item, depth int) error {
		names = append(names, it.Path())
		if it.Path() == "Videos/Shows" {
			return SkipDir
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []string{"Videos", "Videos/movie.avi", "Videos/Movie.mp4", "Videos/Shows", "readme.txt"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("Walk order = %v, want %v", names, want)
	}

	// SkipDir from a file is an ordinary error
	err = Walk(context.Background(), root, func(it Item, depth int) error {
		if !it.IsDir() {
			return SkipDir
		}
		return nil
	})
	if !errors.Is(err, SkipDir) {
		t.Errorf("Walk() error = %v, want SkipDir", err)
	}
}

func TestBuildTree_Orphan(t *testing.T) {
	b := &fakeBackend{entries: []domain.Entry{file("Videos/movie.avi", 1, "video/x-msvideo")}}

	_, err := NewTree(b).BuildTree(context.Background(), "Drive", "")

	var parseErr *domain.ParseError
	if !errors.As(err, &parseErr) || !errors.Is(err, domain.ErrOrphanEntry) {
		t.Errorf("BuildTree() = %v, want ParseError wrapping ErrOrphanEntry", err)
	}
}

// randomListing produces a consistent flat listing with directories before their children
func randomListing(r *rand.Rand, n int) []domain.Entry {
	dirs := []string{""}
	var entries []domain.Entry
	for i := 0; i < n; i++ {
		parent := dirs[r.Intn(len(dirs))]
		name := fmt.Sprintf("n%d", i)
		p := path.Join(parent, name)
		if r.Intn(3) == 0 {
			entries = append(entries, dir(p))
			dirs = append(dirs, p)
		} else {
			entries = append(entries, file(p+".avi", int64(r.Intn(1000)), "video/x-msvideo"))
		}
	}
	return entries
}

func TestBuildTree_Reconstruction(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		entries := randomListing(r, 1+r.Intn(60))
		root, err := NewTree(&fakeBackend{entries: entries}).BuildTree(context.Background(), "Drive", "")
		if err != nil {
			t.Fatalf("round %d: BuildTree() error = %v", round, err)
		}

		var wantFiles, gotFiles []string
		for _, e := range entries {
			if !e.IsDir {
				wantFiles = append(wantFiles, e.Path)
			}
		}

		var check func(d *Directory)
		check = func(d *Directory) {
			contents, _ := d.Contents(context.Background())
			for _, it := range contents {
				if parent, ok := it.Parent(); !ok || parent != d.Path() {
					t.Fatalf("round %d: %s attached to %q but parent is %q", round, it.Path(), d.Path(), parent)
				}
				if sub, ok := it.(*Directory); ok {
					check(sub)
				} else {
					gotFiles = append(gotFiles, it.Path())
				}
			}
		}
		check(root)

		sort.Strings(wantFiles)
		sort.Strings(gotFiles)
		if fmt.Sprint(gotFiles) != fmt.Sprint(wantFiles) {
			t.Fatalf("round %d: leaves = %v, want %v", round, gotFiles, wantFiles)
		}
	}
}
