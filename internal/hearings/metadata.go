package hearings

import (
	"encoding/json"
)

// Metadata carries stage-produced detail that does not warrant its own
// column. It round-trips through the metadata_json column.
type Metadata struct {
	Discovery  *DiscoveryMetadata  `json:"discovery,omitempty"`
	Artifact   *ArtifactMetadata   `json:"artifact,omitempty"`
	Trim       *TrimMetadata       `json:"trim,omitempty"`
	Transcript *TranscriptMetadata `json:"transcript,omitempty"`
	Review     *ReviewMetadata     `json:"review,omitempty"`
	Publish    *PublishMetadata    `json:"publish,omitempty"`
	Warnings   []string            `json:"warnings,omitempty"`
}

// DiscoveryMetadata records how the stream manifest was located.
type DiscoveryMetadata struct {
	CandidatesFound int     `json:"candidates_found"`
	Confidence      float64 `json:"confidence"`
	PlayerURL       string  `json:"player_url,omitempty"`
}

// ArtifactMetadata describes the captured audio artifact.
type ArtifactMetadata struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// TrimMetadata records the silence trim applied before transcription.
type TrimMetadata struct {
	LeadSeconds     float64 `json:"lead_seconds"`
	TrailSeconds    float64 `json:"trail_seconds"`
	OriginalSeconds float64 `json:"original_seconds"`
	TrimmedSeconds  float64 `json:"trimmed_seconds"`
	AllSilent       bool    `json:"all_silent,omitempty"`
	Skipped         bool    `json:"skipped,omitempty"`
}

// TranscriptMetadata summarizes the transcript artifact.
type TranscriptMetadata struct {
	Language        string `json:"language,omitempty"`
	SegmentCount    int    `json:"segment_count"`
	LabeledSegments int    `json:"labeled_segments"`
}

// ReviewMetadata records how the transcript cleared review.
type ReviewMetadata struct {
	ApprovedAt   string `json:"approved_at,omitempty"`
	AutoApproved bool   `json:"auto_approved,omitempty"`
}

// PublishMetadata records where the published artifacts landed.
type PublishMetadata struct {
	Directory   string `json:"directory"`
	PublishedAt string `json:"published_at"`
}

// Metadata decodes the hearing's stored metadata. Malformed JSON yields the
// zero value rather than an error; stages always rewrite what they own.
func (h *Hearing) Metadata() Metadata {
	var meta Metadata
	if h != nil && h.MetadataJSON != "" {
		_ = json.Unmarshal([]byte(h.MetadataJSON), &meta)
	}
	return meta
}

// SetMetadata encodes meta back onto the hearing for the next persist.
func (h *Hearing) SetMetadata(meta Metadata) {
	if h == nil {
		return
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return
	}
	h.MetadataJSON = string(encoded)
}

// UpdateMetadata applies fn to the decoded metadata and stores the result.
func (h *Hearing) UpdateMetadata(fn func(*Metadata)) {
	if h == nil || fn == nil {
		return
	}
	meta := h.Metadata()
	fn(&meta)
	h.SetMetadata(meta)
}

// AddWarning appends a non-fatal processing note to the hearing metadata.
func (h *Hearing) AddWarning(message string) {
	if message == "" {
		return
	}
	h.UpdateMetadata(func(meta *Metadata) {
		meta.Warnings = append(meta.Warnings, message)
	})
}
