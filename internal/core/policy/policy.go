// Package policy decides which remote files need transcoding.
package policy

import (
	"strings"

	"github.com/Ning0612/Cloudconvert/internal/remote"
)

// Defaults
var (
	DefaultAccepted  = []string{".mp4", ".m4v"}
	DefaultTargetExt = ".mp4"
)

// Policy is the conversion rule applied during discovery
type Policy struct {
	// MimePrefix selects candidate files ("video/")
	MimePrefix string

	// Accepted extensions are already in the target format
	Accepted []string

	// TargetExt is the extension produced by the transcoder; a sibling with
	// the candidate's basename and this extension means the work is done
	TargetExt string
}

// Default returns the policy used when nothing is configured
func Default() Policy {
	return Policy{
		MimePrefix: "video/",
		Accepted:   DefaultAccepted,
		TargetExt:  DefaultTargetExt,
	}
}

// New creates a policy, falling back to the defaults for empty values
func New(accepted []string, targetExt string) Policy {
	p := Default()
	if len(accepted) > 0 {
		p.Accepted = make([]string, 0, len(accepted))
		for _, ext := range accepted {
			p.Accepted = append(p.Accepted, normalizeExt(ext))
		}
	}
	if targetExt != "" {
		p.TargetExt = normalizeExt(targetExt)
	}
	return p
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// NeedsConversion reports whether file must be transcoded
// siblings must come from a fresh listing of the file's directory, since an
// earlier run may already have uploaded the converted output
func (p Policy) NeedsConversion(file *remote.File, siblings []remote.Item) bool {
	return p.IsVideo(file) && !p.IsAccepted(file) && !p.HasOutput(file, siblings)
}

// IsVideo reports whether file's mime type selects it as a candidate
func (p Policy) IsVideo(file *remote.File) bool {
	return strings.HasPrefix(strings.ToLower(file.MimeType()), p.MimePrefix)
}

// IsAccepted reports whether file's extension is already a target format
func (p Policy) IsAccepted(file *remote.File) bool {
	ext := file.Extension()
	for _, a := range p.Accepted {
		if ext == a {
			return true
		}
	}
	return false
}

// HasOutput reports whether siblings already contain file's converted output
func (p Policy) HasOutput(file *remote.File, siblings []remote.Item) bool {
	want := p.OutputName(file)
	for _, s := range siblings {
		if !s.IsDir() && s.Name() == want {
			return true
		}
	}
	return false
}

// OutputName is the name of the converted file ("movie.avi" -> "movie.mp4")
func (p Policy) OutputName(file *remote.File) string {
	return file.Basename() + p.TargetExt
}
