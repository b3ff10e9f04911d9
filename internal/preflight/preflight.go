package preflight

import (
	"context"

	"gavel/internal/config"
)

// Result captures the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every configuration-gated preflight check and returns the
// results in display order. A nil config yields nil results.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := make([]Result, 0, 5)
	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	if cfg.Paths.LibraryDir != "" {
		results = append(results, CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir))
	}
	if cfg.Labeling.Enabled {
		results = append(results, CheckRoster("Speaker roster", cfg.Paths.RosterPath))
	}
	results = append(results, CheckTranscription(ctx, cfg.Transcription.BaseURL, cfg.Transcription.APIToken))
	return results
}
