package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LibraryDir string `toml:"library_dir"`
	LogDir     string `toml:"log_dir"`
	RosterPath string `toml:"roster_path"`
}

// Discovery contains configuration for locating stream manifests on hearing
// pages.
type Discovery struct {
	UserAgent         string `toml:"user_agent"`
	PageTimeout       int    `toml:"page_timeout"`
	MaxCandidates     int    `toml:"max_candidates"`
	FollowPlayerLinks bool   `toml:"follow_player_links"`
}

// Capture contains configuration for audio extraction from stream manifests.
type Capture struct {
	Codec        string  `toml:"codec"`
	Bitrate      string  `toml:"bitrate"`
	SampleRate   int     `toml:"sample_rate"`
	Channels     int     `toml:"channels"`
	TimeoutBase  int     `toml:"timeout_base"`
	TimeoutScale float64 `toml:"timeout_scale"`
}

// Trim contains configuration for leading and trailing silence removal.
type Trim struct {
	Enabled            bool    `toml:"enabled"`
	SilenceThresholdDB float64 `toml:"silence_threshold_db"`
	WindowMillis       int     `toml:"window_millis"`
	PaddingSeconds     float64 `toml:"padding_seconds"`
}

// Transcription contains configuration for the external transcription
// service.
type Transcription struct {
	BaseURL      string  `toml:"base_url"`
	APIToken     string  `toml:"api_token"`
	Model        string  `toml:"model"`
	Language     string  `toml:"language"`
	TimeoutBase  int     `toml:"timeout_base"`
	TimeoutScale float64 `toml:"timeout_scale"`
}

// Labeling contains configuration for speaker label resolution.
type Labeling struct {
	Enabled       bool    `toml:"enabled"`
	MinConfidence float64 `toml:"min_confidence"`
}

// Review contains configuration for the transcript review gate.
type Review struct {
	AutoApprove bool `toml:"auto_approve"`
}

// Library contains configuration for published output.
type Library struct {
	OverwriteExisting bool `toml:"overwrite_existing"`
}

// Pipeline contains configuration for scheduling, leasing, and retries.
type Pipeline struct {
	Workers              int `toml:"workers"`
	PollInterval         int `toml:"poll_interval"`
	LeaseTTL             int `toml:"lease_ttl"`
	LeaseRenewalInterval int `toml:"lease_renewal_interval"`
	MaxAttempts          int `toml:"max_attempts"`
	RetryBackoffBase     int `toml:"retry_backoff_base"`
	RetryBackoffCap      int `toml:"retry_backoff_cap"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Published          bool   `toml:"published"`
	Stalled            bool   `toml:"stalled"`
	Errors             bool   `toml:"errors"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	RetentionDays  int               `toml:"retention_days"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for Gavel.
//
// Configuration sections by subsystem:
//   - Paths: staging, library, log directories and the speaker roster
//   - Discovery: hearing page fetching and manifest candidate scanning
//   - Capture: ffmpeg audio extraction settings
//   - Trim: silence analysis thresholds
//   - Transcription: external transcription service connection
//   - Labeling: speaker roster matching thresholds
//   - Review: automatic versus operator approval
//   - Library: published output handling
//   - Pipeline: workers, lease timing, and retry policy
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Discovery     Discovery     `toml:"discovery"`
	Capture       Capture       `toml:"capture"`
	Trim          Trim          `toml:"trim"`
	Transcription Transcription `toml:"transcription"`
	Labeling      Labeling      `toml:"labeling"`
	Review        Review        `toml:"review"`
	Library       Library       `toml:"library"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/gavel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/gavel/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gavel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// LibraryDir is created on a best-effort basis so the daemon can run when
// external storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if strings.TrimSpace(c.Paths.LibraryDir) != "" {
		_ = os.MkdirAll(c.Paths.LibraryDir, 0o755)
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable name used for audio capture.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media validation.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
