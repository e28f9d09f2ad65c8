// Package transcode wraps the external video transcoders.
package transcode

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/runner"
)

// Profile is the fixed encoding profile applied to every job
type Profile struct {
	// Preset is a HandBrake preset name ("Fast 1080p30"); ffmpeg ignores it
	Preset string

	// Quality is the constant quality / CRF value
	Quality float64

	// Speed is the x264 encoder preset ("slow")
	Speed string
}

// DefaultProfile returns the profile used when nothing is configured
func DefaultProfile() Profile {
	return Profile{
		Preset:  "Fast 1080p30",
		Quality: 22.0,
		Speed:   "slow",
	}
}

// Transcoder converts a local input file into output
type Transcoder interface {
	// Transcode blocks until the tool exits; stdout is discarded
	// Returns *domain.ExecutionError when the tool fails
	Transcode(ctx context.Context, input, output string) error

	// Name identifies the tool in logs
	Name() string
}

// New creates the transcoder for kind; binary may be empty for the default executable
func New(kind domain.TranscoderType, r runner.Runner, binary string, p Profile) (Transcoder, error) {
	switch kind {
	case domain.TranscoderHandBrake, "":
		return NewHandBrake(r, binary, p), nil
	case domain.TranscoderFFmpeg:
		return NewFFmpeg(r, binary, p), nil
	default:
		return nil, fmt.Errorf("unsupported transcoder: %s", kind)
	}
}

// HandBrake drives HandBrakeCLI
type HandBrake struct {
	run     runner.Runner
	binary  string
	profile Profile
}

// NewHandBrake creates a HandBrakeCLI transcoder
func NewHandBrake(r runner.Runner, binary string, p Profile) *HandBrake {
	if binary == "" {
		binary = "HandBrakeCLI"
	}
	return &HandBrake{run: r, binary: binary, profile: p}
}

// Name implements Transcoder
func (h *HandBrake) Name() string { return "handbrake" }

// Binary returns the executable that will be run
func (h *HandBrake) Binary() string { return h.binary }

// Args returns the HandBrakeCLI argument vector
func (h *HandBrake) Args(input, output string) []string {
	args := []string{"-i", input, "-o", output, "-O"}
	if h.profile.Preset != "" {
		args = append(args, "-Z", h.profile.Preset)
	}
	args = append(args, "--quality", strconv.FormatFloat(h.profile.Quality, 'f', 1, 64))
	if h.profile.Speed != "" {
		args = append(args, "--encoder-preset", h.profile.Speed)
	}
	return args
}

// Transcode implements Transcoder
func (h *HandBrake) Transcode(ctx context.Context, input, output string) error {
	return h.run.RunQuiet(ctx, h.binary, h.Args(input, output))
}

// FFmpeg drives ffmpeg with libx264 / aac
type FFmpeg struct {
	run     runner.Runner
	binary  string
	profile Profile
}

// NewFFmpeg creates an ffmpeg transcoder
func NewFFmpeg(r runner.Runner, binary string, p Profile) *FFmpeg {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{run: r, binary: binary, profile: p}
}

// Name implements Transcoder
func (f *FFmpeg) Name() string { return "ffmpeg" }

// Binary returns the executable that will be run
func (f *FFmpeg) Binary() string { return f.binary }

// Args returns the ffmpeg argument vector
func (f *FFmpeg) Args(input, output string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", input, "-c:v", "libx264"}
	args = append(args, "-crf", strconv.FormatFloat(f.profile.Quality, 'f', -1, 64))
	if f.profile.Speed != "" {
		args = append(args, "-preset", f.profile.Speed)
	}
	return append(args, "-c:a", "aac", "-movflags", "+faststart", output)
}

// Transcode implements Transcoder
func (f *FFmpeg) Transcode(ctx context.Context, input, output string) error {
	return f.run.RunQuiet(ctx, f.binary, f.Args(input, output))
}

var (
	_ Transcoder = (*HandBrake)(nil)
	_ Transcoder = (*FFmpeg)(nil)
)
