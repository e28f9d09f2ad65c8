package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/logger"
)

// Config represents the complete configuration for cloudconvert
type Config struct {
	// Remote selects the drive and the backend used to reach it
	Remote RemoteConfig `mapstructure:"remote"`

	// Transcode configures the external encoder and the conversion policy
	Transcode TranscodeConfig `mapstructure:"transcode"`

	// Pipeline configures the worker pool and temp storage
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Status configures the TCP status server
	Status StatusConfig `mapstructure:"status"`

	// Metrics configures the optional Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Log configures the process logger
	Log LogConfig `mapstructure:"log"`

	// Settings holds process housekeeping paths
	Settings SettingsConfig `mapstructure:"settings"`
}

// RemoteConfig describes the drive to scan
type RemoteConfig struct {
	Type           domain.BackendType `mapstructure:"type"`
	Drive          string             `mapstructure:"drive"`
	Path           string             `mapstructure:"path"`
	Binary         string             `mapstructure:"binary"`
	FastList       bool               `mapstructure:"fast_list"`
	CallsPerSecond float64            `mapstructure:"calls_per_second"`
	ExtraFlags     []string           `mapstructure:"extra_flags"`

	// LocalRoot is the directory standing in for the drive when Type is local
	LocalRoot string `mapstructure:"local_root"`
}

// TranscodeConfig describes the encoder and which files need it
type TranscodeConfig struct {
	Tool          domain.TranscoderType `mapstructure:"tool"`
	Binary        string                `mapstructure:"binary"`
	Preset        string                `mapstructure:"preset"`
	Quality       float64               `mapstructure:"quality"`
	EncoderPreset string                `mapstructure:"encoder_preset"`
	OutputExt     string                `mapstructure:"output_ext"`
	AcceptedExts  []string              `mapstructure:"accepted_exts"`
}

// PipelineConfig describes the worker pool
type PipelineConfig struct {
	Workers        int    `mapstructure:"workers"`
	QueueSize      int    `mapstructure:"queue_size"`
	TempDir        string `mapstructure:"temp_dir"`
	KeepFailed     bool   `mapstructure:"keep_failed"`
	VerifyChecksum bool   `mapstructure:"verify_checksum"`

	// BuildTree lists the whole drive with one recursive call instead of directory by directory
	BuildTree bool `mapstructure:"build_tree"`
}

// StatusConfig describes the status server
type StatusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// MetricsConfig describes the metrics endpoint; empty Addr disables it
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig describes log output
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SettingsConfig 全域設定
type SettingsConfig struct {
	// LockDir holds the run lock; defaults to the temp dir
	LockDir string `mapstructure:"lock_dir"`

	// PIDFile is written by the interval daemon
	PIDFile string `mapstructure:"pid_file"`
}

// Validate checks if the configuration is complete and consistent
func (c *Config) Validate() error {
	r := c.Remote
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: invalid remote type: %s", domain.ErrConfigInvalid, r.Type)
	}
	if r.Drive == "" {
		return fmt.Errorf("%w: remote drive cannot be empty", domain.ErrConfigInvalid)
	}
	if strings.ContainsAny(r.Drive, ":/") {
		return fmt.Errorf("%w: remote drive %q must be a bare remote name", domain.ErrConfigInvalid, r.Drive)
	}
	if r.Type == domain.BackendLocal && r.LocalRoot == "" {
		return fmt.Errorf("%w: remote.local_root is required for local remotes", domain.ErrConfigInvalid)
	}
	if r.CallsPerSecond < 0 {
		return fmt.Errorf("%w: remote.calls_per_second cannot be negative", domain.ErrConfigInvalid)
	}

	t := c.Transcode
	if !t.Tool.IsValid() {
		return fmt.Errorf("%w: invalid transcoder: %s", domain.ErrConfigInvalid, t.Tool)
	}
	if t.Quality < 0 {
		return fmt.Errorf("%w: transcode.quality cannot be negative", domain.ErrConfigInvalid)
	}
	if t.OutputExt == "" {
		return fmt.Errorf("%w: transcode.output_ext cannot be empty", domain.ErrConfigInvalid)
	}

	p := c.Pipeline
	if p.Workers < 1 {
		return fmt.Errorf("%w: pipeline.workers must be at least 1, got %d", domain.ErrConfigInvalid, p.Workers)
	}
	if p.QueueSize < 0 {
		return fmt.Errorf("%w: pipeline.queue_size cannot be negative", domain.ErrConfigInvalid)
	}
	if p.TempDir == "" {
		return fmt.Errorf("%w: pipeline.temp_dir cannot be empty", domain.ErrConfigInvalid)
	}

	if c.Status.Enabled {
		if _, _, err := net.SplitHostPort(c.Status.Addr); err != nil {
			return fmt.Errorf("%w: status.addr %q: %v", domain.ErrConfigInvalid, c.Status.Addr, err)
		}
	}
	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			return fmt.Errorf("%w: metrics.addr %q: %v", domain.ErrConfigInvalid, c.Metrics.Addr, err)
		}
	}

	return nil
}

// Root returns the configured path on the drive in drive:path form
func (c *Config) Root() string {
	return domain.JoinRemote(c.Remote.Drive, c.Remote.Path)
}

// LockDir returns where the run lock lives
func (c *Config) LockDir() string {
	if c.Settings.LockDir != "" {
		return c.Settings.LockDir
	}
	return c.Pipeline.TempDir
}

// PIDFile returns the daemon pid file path
func (c *Config) PIDFile() string {
	if c.Settings.PIDFile != "" {
		return c.Settings.PIDFile
	}
	return filepath.Join(c.LockDir(), "cloudconvert.pid")
}

// LoggerConfig converts the log section into a logger.Config
func (c *Config) LoggerConfig() logger.Config {
	lc := logger.Config{
		Level:   logger.ParseLevel(c.Log.Level),
		Format:  logger.ParseFormat(c.Log.Format),
		Outputs: []logger.OutputConfig{{Type: logger.OutputStderr}},
	}
	if c.Log.File != "" {
		lc.Outputs = append(lc.Outputs, logger.OutputConfig{Type: logger.OutputFile})
		lc.File = logger.FileConfig{
			Path:       c.Log.File,
			MaxSizeMB:  c.Log.MaxSizeMB,
			MaxAgeDays: c.Log.MaxAgeDays,
			MaxBackups: c.Log.MaxBackups,
			Compress:   c.Log.Compress,
		}
	}
	return lc
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	// Expand ~ to home directory
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			if len(path) > 1 && (path[1] == '/' || path[1] == filepath.Separator) {
				path = filepath.Join(home, path[2:])
			} else if len(path) == 1 {
				path = home
			}
		}
	}
	// Expand environment variables
	path = os.ExpandEnv(path)
	return filepath.Clean(path)
}
