package preflight

import (
	"context"
	"strings"

	"gavel/internal/config"
)

// CheckTranscriptionFromConfig evaluates transcription service status from
// config and connectivity.
func CheckTranscriptionFromConfig(cfg *config.Config) Result {
	const name = "Transcription service"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Transcription.BaseURL) == "" {
		return Result{Name: name, Detail: "Missing base URL"}
	}
	check := CheckTranscription(context.Background(), cfg.Transcription.BaseURL, cfg.Transcription.APIToken)
	return Result{Name: name, Passed: check.Passed, Detail: check.Detail}
}

// CheckRosterFromConfig evaluates speaker roster status from config.
func CheckRosterFromConfig(cfg *config.Config) Result {
	const name = "Speaker roster"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if !cfg.Labeling.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	return CheckRoster(name, cfg.Paths.RosterPath)
}

// CheckNotificationsFromConfig evaluates ntfy notification status from
// config. Connectivity is exercised separately by the notify test command, so
// this reports configuration state only.
func CheckNotificationsFromConfig(cfg *config.Config) Result {
	const name = "Notifications"

	if cfg == nil {
		return Result{Name: name, Detail: "Unknown"}
	}
	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}

	events := make([]string, 0, 3)
	if cfg.Notifications.Published {
		events = append(events, "published")
	}
	if cfg.Notifications.Stalled {
		events = append(events, "stalled")
	}
	if cfg.Notifications.Errors {
		events = append(events, "errors")
	}
	if len(events) == 0 {
		return Result{Name: name, Passed: true, Detail: "Configured (no events enabled)"}
	}
	return Result{Name: name, Passed: true, Detail: "Configured (" + strings.Join(events, ", ") + ")"}
}
