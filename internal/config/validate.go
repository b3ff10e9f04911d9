package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateCapture(); err != nil {
		return err
	}
	if err := c.validateTrim(); err != nil {
		return err
	}
	if err := c.validateLabeling(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if strings.TrimSpace(c.Transcription.BaseURL) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/gavel/config.toml"
		}
		return fmt.Errorf("transcription.base_url is required. Edit %s (create with 'gavel config init')", defaultPath)
	}
	if !strings.HasPrefix(c.Transcription.BaseURL, "http://") && !strings.HasPrefix(c.Transcription.BaseURL, "https://") {
		return errors.New("transcription.base_url must start with http:// or https://")
	}
	return nil
}

func (c *Config) validateCapture() error {
	return ensurePositiveMap(map[string]int{
		"capture.sample_rate":    c.Capture.SampleRate,
		"capture.channels":       c.Capture.Channels,
		"capture.timeout_base":   c.Capture.TimeoutBase,
		"discovery.page_timeout": c.Discovery.PageTimeout,
	})
}

func (c *Config) validateTrim() error {
	if !c.Trim.Enabled {
		return nil
	}
	if c.Trim.SilenceThresholdDB >= 0 {
		return errors.New("trim.silence_threshold_db must be negative (decibels below full scale)")
	}
	if c.Trim.WindowMillis <= 0 {
		return errors.New("trim.window_millis must be positive")
	}
	return nil
}

func (c *Config) validateLabeling() error {
	if !c.Labeling.Enabled {
		return nil
	}
	if c.Labeling.MinConfidence < 0 || c.Labeling.MinConfidence > 1 {
		return errors.New("labeling.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.workers":            c.Pipeline.Workers,
		"pipeline.poll_interval":      c.Pipeline.PollInterval,
		"pipeline.max_attempts":       c.Pipeline.MaxAttempts,
		"pipeline.retry_backoff_base": c.Pipeline.RetryBackoffBase,
		"pipeline.retry_backoff_cap":  c.Pipeline.RetryBackoffCap,
	}); err != nil {
		return err
	}
	if c.Pipeline.LeaseTTL <= 0 {
		return errors.New("pipeline.lease_ttl must be positive")
	}
	if c.Pipeline.LeaseRenewalInterval <= 0 {
		return errors.New("pipeline.lease_renewal_interval must be positive")
	}
	if c.Pipeline.LeaseTTL <= c.Pipeline.LeaseRenewalInterval {
		return errors.New("pipeline.lease_ttl must be greater than pipeline.lease_renewal_interval")
	}
	if c.Pipeline.RetryBackoffCap < c.Pipeline.RetryBackoffBase {
		return errors.New("pipeline.retry_backoff_cap must be at least pipeline.retry_backoff_base")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		return errors.New("notifications.dedup_window_seconds must be >= 0")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
