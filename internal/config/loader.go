package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Ning0612/Cloudconvert/internal/domain"
	"github.com/Ning0612/Cloudconvert/internal/status"
)

// EnvPrefix prefixes every environment override, e.g. CLOUDCONVERT_PIPELINE_WORKERS
const EnvPrefix = "CLOUDCONVERT"

// DefaultConfigPaths returns the default paths to search for config files
func DefaultConfigPaths() []string {
	paths := []string{
		".",
		"./configs",
	}

	// Add user config directory
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "cloudconvert"))
	}

	// Add home directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".cloudconvert"))
	}

	return paths
}

// setDefaults registers the values used when neither file nor environment sets a key
func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.type", string(domain.BackendRclone))
	v.SetDefault("remote.drive", "")
	v.SetDefault("remote.path", "")
	v.SetDefault("remote.binary", "rclone")
	v.SetDefault("remote.fast_list", true)
	v.SetDefault("remote.calls_per_second", 0)
	v.SetDefault("remote.local_root", "")
	v.SetDefault("remote.extra_flags", []string{})

	v.SetDefault("transcode.tool", string(domain.TranscoderHandBrake))
	v.SetDefault("transcode.binary", "")
	v.SetDefault("transcode.preset", "Fast 1080p30")
	v.SetDefault("transcode.quality", 22.0)
	v.SetDefault("transcode.encoder_preset", "slow")
	v.SetDefault("transcode.output_ext", ".mp4")
	v.SetDefault("transcode.accepted_exts", []string{".mp4", ".m4v"})

	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("pipeline.queue_size", 0)
	v.SetDefault("pipeline.temp_dir", filepath.Join(os.TempDir(), "cloudconvert"))
	v.SetDefault("pipeline.keep_failed", false)
	v.SetDefault("pipeline.verify_checksum", false)
	v.SetDefault("pipeline.build_tree", false)

	v.SetDefault("status.enabled", true)
	v.SetDefault("status.addr", status.DefaultAddr)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.compress", false)

	v.SetDefault("settings.lock_dir", "")
	v.SetDefault("settings.pid_file", "")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// Variables already set are not overwritten. A missing file is ignored when optional is true.
func LoadEnvFile(path string, optional bool) error {
	if err := godotenv.Load(path); err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: env file %s: %v", domain.ErrConfigInvalid, path, err)
	}
	return nil
}

// Load reads and parses a configuration file
// If path is empty, searches default locations for config.yaml; when none exists
// the defaults plus environment overrides are used.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		// Use specific file
		path = ExpandPath(path)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		v.SetConfigFile(path)
	} else {
		// Search default paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
		}
		// no config file anywhere: defaults plus environment
	}

	return decode(v)
}

// LoadFromString parses configuration from a YAML string
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigInvalid, err)
	}

	// env lists: extensions are comma separated, rclone flags whitespace separated
	if raw := os.Getenv(EnvPrefix + "_TRANSCODE_ACCEPTED_EXTS"); raw != "" {
		cfg.Transcode.AcceptedExts = splitList(raw)
	}
	if raw := os.Getenv(EnvPrefix + "_REMOTE_EXTRA_FLAGS"); raw != "" {
		cfg.Remote.ExtraFlags = strings.Fields(raw)
	}

	cfg.Remote.LocalRoot = ExpandPath(cfg.Remote.LocalRoot)
	cfg.Pipeline.TempDir = ExpandPath(cfg.Pipeline.TempDir)
	cfg.Log.File = ExpandPath(cfg.Log.File)
	cfg.Settings.LockDir = ExpandPath(cfg.Settings.LockDir)
	cfg.Settings.PIDFile = ExpandPath(cfg.Settings.PIDFile)
	cfg.Remote.Path = strings.Trim(cfg.Remote.Path, "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
