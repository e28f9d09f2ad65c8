// Package planner produces a dry-run view of what a conversion run would do.
package planner

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/Ning0612/Cloudconvert/internal/core/policy"
	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/remote"
)

// Reason explains a plan entry
type Reason string

const (
	ReasonConvert   Reason = "convert"
	ReasonAccepted  Reason = "already in target format"
	ReasonConverted Reason = "converted output exists"
)

// Entry is one video file considered by the plan
type Entry struct {
	Source   string `json:"source"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	Output   string `json:"output"` // drive:path the converted file would be uploaded to
	Reason   Reason `json:"reason"`
}

// Plan lists the files a run would convert, in discovery order
type Plan struct {
	Root        string    `json:"root"`
	CreatedAt   time.Time `json:"created_at"`
	Convert     []Entry   `json:"convert"`
	Skipped     []Entry   `json:"skipped"`
	Directories int       `json:"directories"`
	Files       int       `json:"files"`
	TotalBytes  int64     `json:"total_bytes"` // sum of Convert sizes
}

// Summary returns a one-line description of the plan
func (p *Plan) Summary() string {
	return fmt.Sprintf("%d to convert (%d bytes), %d skipped, %d files in %d directories",
		len(p.Convert), p.TotalBytes, len(p.Skipped), p.Files, p.Directories)
}

// Planner builds plans from one recursive listing
type Planner struct {
	tree   *remote.Tree
	policy policy.Policy
}

// New creates a planner
func New(tree *remote.Tree, pol policy.Policy) *Planner {
	return &Planner{tree: tree, policy: pol}
}

// Plan lists drive:root and classifies every video below it
// The queue is never touched; the only remote calls are the listing itself.
func (p *Planner) Plan(ctx context.Context, drive, root string) (*Plan, error) {
	dir, err := p.tree.BuildTree(ctx, drive, root)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Root:      dir.FullPath(),
		CreatedAt: time.Now().UTC(),
		Convert:   []Entry{},
		Skipped:   []Entry{},
	}
	if err := p.visit(ctx, plan, dir); err != nil {
		return nil, err
	}
	return plan, nil
}

// visit mirrors the discovery walk so plan order matches queue order
func (p *Planner) visit(ctx context.Context, plan *Plan, dir *remote.Directory) error {
	contents, err := dir.Contents(ctx)
	if err != nil {
		return err
	}

	for _, it := range contents {
		switch it := it.(type) {
		case *remote.Directory:
			plan.Directories++
			if err := p.visit(ctx, plan, it); err != nil {
				return err
			}

		case *remote.File:
			plan.Files++
			if !p.policy.IsVideo(it) {
				continue
			}

			e := Entry{
				Source:   it.FullPath(),
				Size:     it.Size(),
				MimeType: it.MimeType(),
				Output:   p.outputPath(it),
			}
			switch {
			case p.policy.IsAccepted(it):
				e.Reason = ReasonAccepted
				e.Output = ""
			case p.policy.HasOutput(it, contents):
				e.Reason = ReasonConverted
			default:
				e.Reason = ReasonConvert
				plan.Convert = append(plan.Convert, e)
				plan.TotalBytes += e.Size
				continue
			}
			plan.Skipped = append(plan.Skipped, e)
		}
	}
	return nil
}

func (p *Planner) outputPath(f *remote.File) string {
	parent, _ := f.Parent()
	return domain.JoinRemote(f.Drive(), path.Join(parent, p.policy.OutputName(f)))
}
