package transcribe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Transcript is the JSON artifact recorded once transcription completes.
type Transcript struct {
	CommitteeCode string              `json:"committee_code"`
	Title         string              `json:"title"`
	HearingDate   string              `json:"hearing_date"`
	Language      string              `json:"language,omitempty"`
	Segments      []TranscriptSegment `json:"segments"`
}

// TranscriptSegment pairs a transcribed span with its speaker label.
type TranscriptSegment struct {
	Index      int     `json:"index"`
	StartMS    int64   `json:"start_ms"`
	EndMS      int64   `json:"end_ms"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker"`
	Role       string  `json:"role,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// WriteTranscript writes the transcript atomically through a sibling temp
// file.
func WriteTranscript(path string, transcript Transcript) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create transcript dir: %w", err)
	}
	encoded, err := json.MarshalIndent(transcript, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	encoded = append(encoded, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace transcript: %w", err)
	}
	return nil
}

// ReadTranscript loads a transcript artifact from disk.
func ReadTranscript(path string) (Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	var transcript Transcript
	if err := json.Unmarshal(data, &transcript); err != nil {
		return Transcript{}, fmt.Errorf("parse transcript %s: %w", path, err)
	}
	return transcript, nil
}
