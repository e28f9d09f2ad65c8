package status

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Ning0612/Cloudconvert/internal/progress"
)

// Palette is the set of styles used to print snapshots
type Palette struct {
	title   lipgloss.Style
	running lipgloss.Style
	queued  lipgloss.Style
	err     lipgloss.Style
	help    lipgloss.Style
}

// NewPalette builds a palette from title, running, queued, error and help colors
func NewPalette(t, r, q, e, h string) *Palette {
	return &Palette{
		title:   newBold(t).MarginBottom(1),
		running: newBold(r),
		queued:  newStyle(q),
		err:     newBold(e),
		help:    newStyle(h).Italic(true),
	}
}

// DefaultPalette is used by the CLI
var DefaultPalette = NewPalette("#7D56F4", "#04B575", "#FFA500", "#FF0000", "#626262")

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func newBold(fg string) lipgloss.Style {
	return newStyle(fg).Bold(true)
}

// Render writes a human readable view of snap
func Render(w io.Writer, snap *Snapshot, p *Palette) {
	if p == nil {
		p = DefaultPalette
	}

	running := len(snap.Running())
	fmt.Fprintln(w, p.title.Render(fmt.Sprintf("Cloudconvert queue: %d running, %d waiting",
		running, len(snap.Jobs)-running)))

	if len(snap.Jobs) == 0 {
		fmt.Fprintln(w, p.help.Render("nothing to do"))
		return
	}

	for i, j := range snap.Jobs {
		marker, style := "·", p.queued
		if j.Running {
			marker, style = "▶", p.running
		}

		line := fmt.Sprintf("%s %2d  %-11s %9s  %s", marker, i+1, j.Stage, progress.FormatBytes(j.Size), j.Source)
		fmt.Fprintln(w, style.Render(line))

		if j.Error != "" {
			fmt.Fprintln(w, p.err.Render("     "+j.Error))
		}
	}

	fmt.Fprintln(w, p.help.Render("snapshot taken "+strings.TrimSpace(snap.GeneratedAt.Local().Format("2006-01-02 15:04:05"))))
}
