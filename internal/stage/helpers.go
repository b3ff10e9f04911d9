package stage

import (
	"strings"

	"gavel/internal/hearings"
	"gavel/internal/services"
)

// RequireManifest returns the stream manifest recorded by the analyze pass.
// On absence it returns a services.ErrValidation suitable for stage Execute
// methods. A blank kind is reported as archive, matching what analysis
// records for direct media URLs.
func RequireManifest(h *hearings.Hearing) (string, string, error) {
	url := strings.TrimSpace(h.ManifestURL)
	if url == "" {
		return "", "", services.Wrap(
			services.ErrValidation, "stage", "manifest lookup",
			"stream manifest missing; rerun analysis", nil)
	}
	kind := strings.TrimSpace(h.ManifestKind)
	if kind == "" {
		kind = hearings.ManifestKindArchive
	}
	return url, kind, nil
}

// RequireAudio returns the captured audio artifact path recorded by the
// capture pass, or a services.ErrValidation when no capture has run.
func RequireAudio(h *hearings.Hearing) (string, error) {
	path := strings.TrimSpace(h.AudioPath)
	if path == "" {
		return "", services.Wrap(
			services.ErrValidation, "stage", "audio lookup",
			"captured audio missing; rerun capture", nil)
	}
	return path, nil
}

// RequireTranscript returns the transcript artifact path recorded by the
// transcription pass, or a services.ErrValidation when none exists.
func RequireTranscript(h *hearings.Hearing) (string, error) {
	path := strings.TrimSpace(h.TranscriptPath)
	if path == "" {
		return "", services.Wrap(
			services.ErrValidation, "stage", "transcript lookup",
			"transcript missing; rerun transcription", nil)
	}
	return path, nil
}
