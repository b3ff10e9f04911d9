package stage

import (
	"errors"
	"testing"

	"gavel/internal/hearings"
	"gavel/internal/services"
)

func TestRequireManifest_Valid(t *testing.T) {
	h := &hearings.Hearing{ManifestURL: "https://example.com/archive/master.m3u8", ManifestKind: hearings.ManifestKindLive}
	url, kind, err := RequireManifest(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://example.com/archive/master.m3u8" {
		t.Fatalf("unexpected url: %q", url)
	}
	if kind != hearings.ManifestKindLive {
		t.Fatalf("unexpected kind: %q", kind)
	}
}

func TestRequireManifest_DefaultsKindToArchive(t *testing.T) {
	h := &hearings.Hearing{ManifestURL: "https://example.com/audio.mp3"}
	_, kind, err := RequireManifest(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != hearings.ManifestKindArchive {
		t.Fatalf("expected archive kind, got %q", kind)
	}
}

func TestRequireManifest_Missing(t *testing.T) {
	_, _, err := RequireManifest(&hearings.Hearing{ManifestURL: "   "})
	if err == nil {
		t.Fatal("expected error for missing manifest")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRequireAudio(t *testing.T) {
	path, err := RequireAudio(&hearings.Hearing{AudioPath: "/tmp/h1/audio.ogg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/tmp/h1/audio.ogg" {
		t.Fatalf("unexpected path: %q", path)
	}

	if _, err := RequireAudio(&hearings.Hearing{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRequireTranscript(t *testing.T) {
	path, err := RequireTranscript(&hearings.Hearing{TranscriptPath: "/tmp/h1/transcript.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "/tmp/h1/transcript.json" {
		t.Fatalf("unexpected path: %q", path)
	}

	if _, err := RequireTranscript(&hearings.Hearing{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
