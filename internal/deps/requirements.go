package deps

import "gavel/internal/config"

// Required returns the external binary table for the configured pipeline.
// Capture and trimming stream through ffmpeg; artifact verification uses
// ffprobe.
func Required(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     cfg.FFmpegBinary(),
			Description: "Audio capture and silence trimming",
		},
		{
			Name:        "FFprobe",
			Command:     cfg.FFprobeBinary(),
			Description: "Captured artifact verification",
		},
	}
}
