package domain

import (
	"path"
	"strings"
)

// Entry is one record of a remote JSON listing
// Field names follow the listing tool's output so it can be decoded directly
type Entry struct {
	// Path is relative to the listed directory, slash separated
	Path string `json:"Path"`

	// Name is the last path segment
	Name string `json:"Name"`

	// Size in bytes; the listing reports -1 for directories and unknown sizes
	Size int64 `json:"Size"`

	// MimeType as guessed by the backend ("inode/directory" for directories)
	MimeType string `json:"MimeType"`

	// IsDir marks directory entries
	IsDir bool `json:"IsDir"`
}

// MimeDirectory is the mime type listings report for directories
const MimeDirectory = "inode/directory"

// JoinRemote builds the "drive:path" form the remote tool expects
func JoinRemote(drive, p string) string {
	return drive + ":" + CleanRemotePath(p)
}

// CleanRemotePath normalizes a remote path: slash separated, no leading or trailing slash,
// "" for the drive root
func CleanRemotePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}

// SplitRemote splits "drive:path" into its parts
// ok is false when s has no drive prefix (a plain local path)
func SplitRemote(s string) (drive, p string, ok bool) {
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return "", s, false
	}
	// Windows volume names ("C:\...") are local paths, not remotes
	if i == 1 && len(s) > 2 && (s[2] == '\\' || s[2] == '/') {
		return "", s, false
	}
	return s[:i], CleanRemotePath(s[i+1:]), true
}
