package domain

// BackendType identifies the storage backend behind a drive
type BackendType string

const (
	// BackendRclone drives the rclone command line tool
	BackendRclone BackendType = "rclone"

	// BackendLocal maps a drive onto a local directory
	BackendLocal BackendType = "local"
)

// IsValid checks if the backend type is a known value
func (t BackendType) IsValid() bool {
	switch t {
	case BackendRclone, BackendLocal:
		return true
	}
	return false
}

// TranscoderType identifies the external transcoder
type TranscoderType string

const (
	TranscoderHandBrake TranscoderType = "handbrake"
	TranscoderFFmpeg    TranscoderType = "ffmpeg"
)

// IsValid checks if the transcoder type is a known value
func (t TranscoderType) IsValid() bool {
	switch t {
	case TranscoderHandBrake, TranscoderFFmpeg:
		return true
	}
	return false
}
