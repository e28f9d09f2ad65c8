package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/Ning0612/Cloudconvert/internal/adapter"
	"github.com/Ning0612/Cloudconvert/internal/domain"
)

// Tree creates items backed by a single backend
type Tree struct {
	backend adapter.Backend
}

// NewTree creates a tree over backend
func NewTree(b adapter.Backend) *Tree {
	return &Tree{backend: b}
}

// Backend returns the backend items are listed and hashed with
func (t *Tree) Backend() adapter.Backend {
	return t.backend
}

// Dir returns an unpopulated directory at drive:p acting as a root (it has no parent)
func (t *Tree) Dir(drive, p string) *Directory {
	d := newDirectory(t.backend, drive, p)
	d.hasParent = false
	return d
}

// List returns the items under drive:dir, or every item below it when recursive
func (t *Tree) List(ctx context.Context, drive, dir string, recursive bool) ([]Item, error) {
	entries, err := t.backend.List(ctx, drive, dir, recursive)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		items = append(items, newItem(t.backend, drive, e))
	}
	return items, nil
}

// BuildTree lists drive:p recursively once and attaches every entry to its
// parent directory. All directories in the result are populated.
// An entry whose parent was not part of the listing is a *domain.ParseError.
func (t *Tree) BuildTree(ctx context.Context, drive, p string) (*Directory, error) {
	root := t.Dir(drive, p)

	items, err := t.List(ctx, drive, root.Path(), true)
	if err != nil {
		return nil, err
	}

	dirs := map[string]*Directory{root.Path(): root}
	for _, it := range items {
		if d, ok := it.(*Directory); ok {
			dirs[d.Path()] = d
		}
	}

	children := make(map[string][]Item, len(dirs))
	for _, it := range items {
		parent, _ := it.Parent()
		if _, ok := dirs[parent]; !ok || it.Path() == root.Path() {
			return nil, &domain.ParseError{
				What: "recursive listing of " + root.FullPath(),
				Err:  fmt.Errorf("%w: %s", domain.ErrOrphanEntry, it.Path()),
			}
		}
		children[parent] = append(children[parent], it)
	}

	for path, d := range dirs {
		d.setContents(children[path])
	}
	return root, nil
}

// SkipDir returned from a Walk callback for a directory skips its contents
var SkipDir = errors.New("skip this directory")

// Walk visits every item below dir depth-first in listing order, populating
// directories as it goes. depth is 1 for direct children.
func Walk(ctx context.Context, dir *Directory, fn func(it Item, depth int) error) error {
	return walk(ctx, dir, 1, fn)
}

func walk(ctx context.Context, dir *Directory, depth int, fn func(Item, int) error) error {
	contents, err := dir.Contents(ctx)
	if err != nil {
		return err
	}

	for _, it := range contents {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(it, depth)
		if errors.Is(err, SkipDir) && it.IsDir() {
			continue
		}
		if err != nil {
			return err
		}
		if sub, ok := it.(*Directory); ok {
			if err := walk(ctx, sub, depth+1, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
