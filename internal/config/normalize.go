package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDiscovery()
	c.normalizeCapture()
	c.normalizeTrim()
	c.normalizeTranscription()
	c.normalizePipeline()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RosterPath) == "" {
		c.Paths.RosterPath = defaultRosterPath
	}
	if c.Paths.RosterPath, err = expandPath(c.Paths.RosterPath); err != nil {
		return fmt.Errorf("paths.roster_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeDiscovery() {
	c.Discovery.UserAgent = strings.TrimSpace(c.Discovery.UserAgent)
	if c.Discovery.UserAgent == "" {
		c.Discovery.UserAgent = defaultDiscoveryUserAgent
	}
	if c.Discovery.PageTimeout <= 0 {
		c.Discovery.PageTimeout = defaultDiscoveryPageTimeout
	}
	if c.Discovery.MaxCandidates <= 0 {
		c.Discovery.MaxCandidates = defaultDiscoveryCandidates
	}
}

func (c *Config) normalizeCapture() {
	c.Capture.Codec = strings.TrimSpace(c.Capture.Codec)
	if c.Capture.Codec == "" {
		c.Capture.Codec = defaultCaptureCodec
	}
	c.Capture.Bitrate = strings.TrimSpace(c.Capture.Bitrate)
	if c.Capture.Bitrate == "" {
		c.Capture.Bitrate = defaultCaptureBitrate
	}
	if c.Capture.SampleRate <= 0 {
		c.Capture.SampleRate = defaultCaptureSampleRate
	}
	if c.Capture.Channels <= 0 {
		c.Capture.Channels = defaultCaptureChannels
	}
	if c.Capture.TimeoutBase <= 0 {
		c.Capture.TimeoutBase = defaultCaptureTimeoutBase
	}
	if c.Capture.TimeoutScale <= 0 {
		c.Capture.TimeoutScale = defaultCaptureTimeoutScale
	}
}

func (c *Config) normalizeTrim() {
	if c.Trim.SilenceThresholdDB >= 0 {
		c.Trim.SilenceThresholdDB = defaultTrimThresholdDB
	}
	if c.Trim.WindowMillis <= 0 {
		c.Trim.WindowMillis = defaultTrimWindowMillis
	}
	if c.Trim.PaddingSeconds < 0 {
		c.Trim.PaddingSeconds = defaultTrimPaddingSeconds
	}
}

func (c *Config) normalizeTranscription() {
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if value, ok := os.LookupEnv("GAVEL_TRANSCRIPTION_URL"); ok && strings.TrimSpace(value) != "" {
		c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
	}
	c.Transcription.APIToken = strings.TrimSpace(c.Transcription.APIToken)
	if value, ok := os.LookupEnv("GAVEL_TRANSCRIPTION_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Transcription.APIToken = strings.TrimSpace(value)
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscribeModel
	}
	c.Transcription.Language = strings.ToLower(strings.TrimSpace(c.Transcription.Language))
	if c.Transcription.Language == "" {
		c.Transcription.Language = defaultTranscribeLanguage
	}
	if c.Transcription.TimeoutBase <= 0 {
		c.Transcription.TimeoutBase = defaultTranscribeBase
	}
	if c.Transcription.TimeoutScale <= 0 {
		c.Transcription.TimeoutScale = defaultTranscribeScale
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.Workers <= 0 {
		c.Pipeline.Workers = defaultWorkers
	}
	if c.Pipeline.PollInterval <= 0 {
		c.Pipeline.PollInterval = defaultPollInterval
	}
	if c.Pipeline.LeaseTTL <= 0 {
		c.Pipeline.LeaseTTL = defaultLeaseTTL
	}
	if c.Pipeline.LeaseRenewalInterval <= 0 {
		c.Pipeline.LeaseRenewalInterval = defaultLeaseRenewal
	}
	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = defaultMaxAttempts
	}
	if c.Pipeline.RetryBackoffBase <= 0 {
		c.Pipeline.RetryBackoffBase = defaultRetryBackoffBase
	}
	if c.Pipeline.RetryBackoffCap <= 0 {
		c.Pipeline.RetryBackoffCap = defaultRetryBackoffCap
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
