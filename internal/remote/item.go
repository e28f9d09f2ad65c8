// Package remote models files and directories on a remote drive as a lazily
// populated tree built from backend listings.
package remote

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/Ning0612/Cloudconvert/internal/adapter"
	"github.com/Ning0612/Cloudconvert/internal/domain"
)

// Item is a file or directory on a remote drive
// Identity is structural: two items with the same drive and path are the same object
type Item interface {
	Drive() string
	// Path is relative to the drive root, slash separated, "" for the root
	Path() string
	// FullPath is the "drive:path" form accepted by the backend
	FullPath() string
	Name() string
	// Parent returns the containing directory's path; ok is false for a synthetic root
	Parent() (parent string, ok bool)
	IsDir() bool
}

type node struct {
	drive     string
	path      string
	name      string
	parent    string
	hasParent bool
}

func newNode(drive, p string) node {
	p = domain.CleanRemotePath(p)
	n := node{drive: drive, path: p, name: path.Base(p), hasParent: true}
	if p == "" {
		n.name = ""
	}
	if dir := path.Dir(p); dir != "." {
		n.parent = dir
	}
	return n
}

func (n *node) Drive() string          { return n.drive }
func (n *node) Path() string           { return n.path }
func (n *node) FullPath() string       { return domain.JoinRemote(n.drive, n.path) }
func (n *node) Name() string           { return n.name }
func (n *node) Parent() (string, bool) { return n.parent, n.hasParent }
func (n *node) String() string         { return n.FullPath() }

// File is a remote file
type File struct {
	node
	backend  adapter.Backend
	mimeType string
	size     int64

	hashMu sync.Mutex
	hash   string
}

// NewFile creates a file from a listing entry
func NewFile(b adapter.Backend, drive string, e domain.Entry) *File {
	size := e.Size
	if size < 0 {
		size = 0
	}
	return &File{
		node:     newNode(drive, e.Path),
		backend:  b,
		mimeType: e.MimeType,
		size:     size,
	}
}

func (f *File) IsDir() bool { return false }

// MimeType as reported by the backend
func (f *File) MimeType() string { return f.mimeType }

// Size in bytes, 0 when unknown
func (f *File) Size() int64 { return f.size }

// Extension returns the lower-cased extension with its leading dot (".avi")
func (f *File) Extension() string {
	return strings.ToLower(path.Ext(f.name))
}

// Basename returns the name without its extension
func (f *File) Basename() string {
	return strings.TrimSuffix(f.name, path.Ext(f.name))
}

// Hash returns the cached content hash; ok is false until FetchHash succeeded
func (f *File) Hash() (string, bool) {
	f.hashMu.Lock()
	defer f.hashMu.Unlock()
	return f.hash, f.hash != ""
}

// FetchHash queries the backend for the content hash
// A successful result is cached, so the backend is asked at most once
func (f *File) FetchHash(ctx context.Context) (string, error) {
	f.hashMu.Lock()
	defer f.hashMu.Unlock()

	if f.hash != "" {
		return f.hash, nil
	}

	h, err := f.backend.Hash(ctx, f.FullPath())
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", f.FullPath(), err)
	}
	f.hash = h
	return h, nil
}

// Equal reports whether a and b have the same content
// Both hashes must have been fetched beforehand; Equal never contacts the backend
func Equal(a, b *File) (bool, error) {
	ha, okA := a.Hash()
	hb, okB := b.Hash()
	if !okA || !okB {
		return false, domain.ErrHashNotFetched
	}
	return ha == hb && a.size == b.size, nil
}

// Directory is a remote directory whose contents are listed on first access
type Directory struct {
	node
	backend adapter.Backend

	mu        sync.Mutex
	populated bool
	contents  []Item

	sizeMu    sync.Mutex
	sized     bool
	itemCount int64
	totalSize int64
}

func newDirectory(b adapter.Backend, drive, p string) *Directory {
	return &Directory{node: newNode(drive, p), backend: b}
}

func (d *Directory) IsDir() bool { return true }

// Populated reports whether Contents has already listed this directory
func (d *Directory) Populated() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.populated
}

// Contents returns the directory's children, listing them on the first call only
// A failed listing leaves the directory unpopulated so the next call retries
func (d *Directory) Contents(ctx context.Context) ([]Item, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.populated {
		return d.contents, nil
	}

	entries, err := d.backend.List(ctx, d.drive, d.path, false)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, newItem(d.backend, d.drive, e))
	}
	d.setContentsLocked(items)
	return d.contents, nil
}

func (d *Directory) setContents(items []Item) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.setContentsLocked(items)
}

// setContentsLocked keeps the first item for each name
func (d *Directory) setContentsLocked(items []Item) {
	seen := make(map[string]bool, len(items))
	contents := make([]Item, 0, len(items))
	for _, it := range items {
		if seen[it.Name()] {
			continue
		}
		seen[it.Name()] = true
		contents = append(contents, it)
	}
	d.contents = contents
	d.populated = true
}

// Find returns the first child whose name contains substr (case-insensitive), or nil
func (d *Directory) Find(ctx context.Context, substr string) (Item, error) {
	contents, err := d.Contents(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(substr)
	for _, it := range contents {
		if strings.Contains(strings.ToLower(it.Name()), needle) {
			return it, nil
		}
	}
	return nil, nil
}

// ItemCount returns the number of files below the directory (queried once)
func (d *Directory) ItemCount(ctx context.Context) (int64, error) {
	if err := d.computeSize(ctx); err != nil {
		return 0, err
	}
	return d.itemCount, nil
}

// TotalSize returns the bytes stored below the directory (queried once)
func (d *Directory) TotalSize(ctx context.Context) (int64, error) {
	if err := d.computeSize(ctx); err != nil {
		return 0, err
	}
	return d.totalSize, nil
}

func (d *Directory) computeSize(ctx context.Context) error {
	d.sizeMu.Lock()
	defer d.sizeMu.Unlock()

	if d.sized {
		return nil
	}

	count, bytes, err := d.backend.Size(ctx, d.FullPath())
	if err != nil {
		return err
	}
	d.itemCount, d.totalSize, d.sized = count, bytes, true
	return nil
}

func newItem(b adapter.Backend, drive string, e domain.Entry) Item {
	if e.IsDir {
		return newDirectory(b, drive, e.Path)
	}
	return NewFile(b, drive, e)
}
