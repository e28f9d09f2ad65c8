package pipeline

import (
	"context"
	"errors"

	"github.com/Ning0612/Cloudconvert/internal/core/policy"
	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/logger"
	"github.com/Ning0612/Cloudconvert/internal/remote"
)

// Discoverer walks a remote directory depth-first and enqueues every file
// the policy selects
type Discoverer struct {
	Tree   *remote.Tree
	Policy policy.Policy
	Drive  string
	Root   string

	// BuildTree fetches the whole structure with one recursive listing
	// instead of listing each directory as the walk reaches it
	BuildTree bool
}

// Discover implements DiscoverFunc
func (d *Discoverer) Discover(ctx context.Context, p *Pipeline) error {
	var root *remote.Directory
	if d.BuildTree {
		var err error
		if root, err = d.Tree.BuildTree(ctx, d.Drive, d.Root); err != nil {
			return err
		}
	} else {
		root = d.Tree.Dir(d.Drive, d.Root)
	}

	logger.Get().Info("discovery started", "root", root.FullPath(), "build_tree", d.BuildTree)
	return d.walk(ctx, p, root)
}

func (d *Discoverer) walk(ctx context.Context, p *Pipeline, dir *remote.Directory) error {
	// a directory listed earlier (BuildTree) may be stale by now
	cached := dir.Populated()

	contents, err := dir.Contents(ctx)
	if err != nil {
		return err
	}

	var siblings []remote.Item
	// output name -> source that claimed it; movie.avi and movie.mkv would both upload movie.mp4
	claimed := map[string]string{}
	for _, it := range contents {
		if err := ctx.Err(); err != nil {
			return err
		}

		switch it := it.(type) {
		case *remote.Directory:
			if err := d.walk(ctx, p, it); err != nil {
				return err
			}

		case *remote.File:
			if !d.Policy.NeedsConversion(it, nil) {
				continue
			}
			if siblings == nil {
				if siblings, err = d.siblings(ctx, dir, contents, cached); err != nil {
					return err
				}
			}
			if !d.Policy.NeedsConversion(it, siblings) {
				logger.Get().Debug("converted output already present", "source", it.FullPath())
				continue
			}

			output := d.Policy.OutputName(it)
			if owner, ok := claimed[output]; ok {
				logger.Get().Warn("skipping source whose output is already claimed",
					"source", it.FullPath(), "output", output, "claimed_by", owner)
				continue
			}

			if _, err := p.Enqueue(ctx, it); err != nil {
				if errors.Is(err, domain.ErrDuplicateJob) {
					logger.Get().Debug("skipping duplicate", "source", it.FullPath())
					continue
				}
				return err
			}
			claimed[output] = it.FullPath()
		}
	}
	return nil
}

// siblings returns a fresh listing of dir for the already-converted check
func (d *Discoverer) siblings(ctx context.Context, dir *remote.Directory, contents []remote.Item, cached bool) ([]remote.Item, error) {
	if !cached {
		return contents, nil
	}
	items, err := d.Tree.List(ctx, dir.Drive(), dir.Path(), false)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []remote.Item{}
	}
	return items, nil
}
