package transcribe_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gavel/internal/capture"
	"gavel/internal/hearings"
	"gavel/internal/labeling"
	"gavel/internal/logging"
	"gavel/internal/media/ffprobe"
	"gavel/internal/roster"
	"gavel/internal/services"
	"gavel/internal/testsupport"
	"gavel/internal/transcribe"
	"gavel/internal/trim"
)

const stageRoster = `
[[committee]]
code = "JUD"
name = "Judiciary"
chamber = "senate"

[[committee.member]]
name = "Dana Whitfield"
role = "chair"

[[committee.member]]
name = "Priya Natarajan"
role = "ranking"
`

func loadStageRoster(t *testing.T, catalog string) *roster.Roster {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.toml")
	if err := os.WriteFile(path, []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := roster.Load(path)
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	return loaded
}

func segmentServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func capturedHearing(t *testing.T, store *hearings.Store) *hearings.Hearing {
	t.Helper()
	hearing := testsupport.AddHearing(t, store, "Oversight of the Courts", "")
	hearing.AudioPath = writeAudioFile(t)
	hearing.UpdateMetadata(func(meta *hearings.Metadata) {
		meta.Artifact = &hearings.ArtifactMetadata{Format: "ogg", SampleRate: 16000, Channels: 1, DurationSeconds: 118.7}
	})
	return hearing
}

func floatNear(t *testing.T, label string, got, want float64) {
	t.Helper()
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > 0.01 {
		t.Fatalf("%s = %v, want about %v", label, got, want)
	}
}

func TestExecuteWritesLabeledTranscript(t *testing.T) {
	server := segmentServer(t, `{"language":"en","segments":[
		{"text":" The Committee will come to order.","start":"0.0","end":"4.2"},
		{"text":" We welcome today's witnesses.","start":"4.9","end":"9.0"}
	]}`)

	cfg := testsupport.NewConfig(t, testsupport.WithTranscriptionURL(server.URL))
	cfg.Trim.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	hearing := capturedHearing(t, store)

	labeler := labeling.New(loadStageRoster(t, stageRoster), cfg.Labeling.MinConfidence)
	stage := transcribe.NewStage(cfg, store, transcribe.New(cfg), nil, labeler, logging.NewNop())

	if err := stage.Execute(context.Background(), hearing); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wantPath := filepath.Join(cfg.Paths.StagingDir, "transcripts",
		fmt.Sprintf("JUD-2026-03-14-%d.json", hearing.ID))
	if hearing.TranscriptPath != wantPath {
		t.Fatalf("TranscriptPath = %q, want %q", hearing.TranscriptPath, wantPath)
	}

	transcript, err := transcribe.ReadTranscript(hearing.TranscriptPath)
	if err != nil {
		t.Fatalf("ReadTranscript: %v", err)
	}
	if transcript.CommitteeCode != "JUD" || transcript.HearingDate != "2026-03-14" {
		t.Fatalf("transcript header = %q/%q", transcript.CommitteeCode, transcript.HearingDate)
	}
	if transcript.Language != "en" {
		t.Fatalf("Language = %q", transcript.Language)
	}
	if len(transcript.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(transcript.Segments))
	}
	opening := transcript.Segments[0]
	if opening.Speaker != "Dana Whitfield" || opening.Role != "chair" {
		t.Fatalf("opening segment labeled %q/%q, want chair", opening.Speaker, opening.Role)
	}
	if opening.StartMS != 0 || opening.EndMS != 4200 {
		t.Fatalf("opening timestamps %d..%d", opening.StartMS, opening.EndMS)
	}
	if transcript.Segments[1].Speaker != labeling.UnknownSpeaker {
		t.Fatalf("unattributed segment labeled %q", transcript.Segments[1].Speaker)
	}

	meta := hearing.Metadata()
	if meta.Transcript == nil {
		t.Fatal("transcript metadata not recorded")
	}
	if meta.Transcript.SegmentCount != 2 || meta.Transcript.LabeledSegments != 1 {
		t.Fatalf("transcript metadata = %+v", meta.Transcript)
	}
}

func TestExecuteTrimsBeforeSubmission(t *testing.T) {
	server := segmentServer(t, `{"segments":[{"text":" Testimony.","start":"0.1","end":"0.5"}]}`)

	cfg := testsupport.NewConfig(t, testsupport.WithTranscriptionURL(server.URL))
	cfg.Trim.PaddingSeconds = 0.05
	store := testsupport.MustOpenStore(t, cfg)
	hearing := capturedHearing(t, store)
	originalFingerprint, err := capture.Fingerprint(hearing.AudioPath)
	if err != nil {
		t.Fatal(err)
	}
	hearing.AudioFingerprint = originalFingerprint

	perWindow := 16000 * cfg.Trim.WindowMillis / 1000
	var pcm []byte
	pcm = append(pcm, silenceSamples(3*perWindow)...)
	pcm = append(pcm, toneSamples(5*perWindow)...)
	pcm = append(pcm, silenceSamples(2*perWindow)...)

	trimmer := trim.New(cfg)
	trimmer.WithProber(func(_ context.Context, path string) (ffprobe.Result, error) {
		if strings.Contains(path, ".trim-tmp") {
			return probeResult("0.600"), nil
		}
		return probeResult("1.000"), nil
	})
	trimmer.WithDecoder(func(context.Context, string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(pcm)), nil
	})
	trimmer.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		return os.WriteFile(args[len(args)-1], []byte("trimmed audio"), 0o644)
	})

	stage := transcribe.NewStage(cfg, store, transcribe.New(cfg), trimmer, nil, logging.NewNop())
	if err := stage.Execute(context.Background(), hearing); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	meta := hearing.Metadata()
	if meta.Trim == nil {
		t.Fatal("trim metadata not recorded")
	}
	floatNear(t, "LeadSeconds", meta.Trim.LeadSeconds, 0.25)
	floatNear(t, "TrimmedSeconds", meta.Trim.TrimmedSeconds, 0.6)
	floatNear(t, "Artifact duration", meta.Artifact.DurationSeconds, 0.6)

	if hearing.AudioFingerprint == originalFingerprint {
		t.Fatal("fingerprint not refreshed after trim")
	}
	recomputed, err := capture.Fingerprint(hearing.AudioPath)
	if err != nil {
		t.Fatal(err)
	}
	if hearing.AudioFingerprint != recomputed {
		t.Fatal("fingerprint does not match trimmed artifact")
	}

	stored, err := store.GetByID(context.Background(), hearing.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.AudioFingerprint != recomputed {
		t.Fatal("trim result not persisted before submission")
	}
}

func TestExecuteTrimFailureFallsBackToUntrimmedAudio(t *testing.T) {
	server := segmentServer(t, `{"segments":[{"text":" Testimony.","start":"0.1","end":"0.5"}]}`)

	cfg := testsupport.NewConfig(t, testsupport.WithTranscriptionURL(server.URL))
	store := testsupport.MustOpenStore(t, cfg)
	hearing := capturedHearing(t, store)

	trimmer := trim.New(cfg)
	trimmer.WithProber(func(context.Context, string) (ffprobe.Result, error) {
		return probeResult("1.000"), nil
	})
	trimmer.WithDecoder(func(context.Context, string) (io.ReadCloser, error) {
		return nil, errors.New("decoder exploded")
	})

	stage := transcribe.NewStage(cfg, store, transcribe.New(cfg), trimmer, nil, logging.NewNop())
	if err := stage.Execute(context.Background(), hearing); err != nil {
		t.Fatalf("trim failure must not fail the stage: %v", err)
	}

	meta := hearing.Metadata()
	if meta.Trim == nil || !meta.Trim.Skipped {
		t.Fatalf("expected skipped trim metadata, got %+v", meta.Trim)
	}
	if len(meta.Warnings) == 0 || !strings.Contains(meta.Warnings[0], "silence trim failed") {
		t.Fatalf("expected trim warning, got %v", meta.Warnings)
	}
	if hearing.TranscriptPath == "" {
		t.Fatal("transcript should still be written")
	}
}

func TestExecuteServiceFailureLeavesTranscriptUnset(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithTranscriptionURL(server.URL))
	cfg.Trim.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	hearing := capturedHearing(t, store)

	stage := transcribe.NewStage(cfg, store, transcribe.New(cfg), nil, nil, logging.NewNop())
	err := stage.Execute(context.Background(), hearing)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
	if hearing.TranscriptPath != "" {
		t.Fatalf("TranscriptPath must stay empty, got %q", hearing.TranscriptPath)
	}
	if hearing.Metadata().Transcript != nil {
		t.Fatal("transcript metadata must not be recorded on failure")
	}
}

func TestExecuteLabelingFailureDegradesToUnknown(t *testing.T) {
	server := segmentServer(t, `{"segments":[
		{"text":" The Committee will come to order.","start":"0.0","end":"4.2"}
	]}`)

	cfg := testsupport.NewConfig(t, testsupport.WithTranscriptionURL(server.URL))
	cfg.Trim.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	hearing := capturedHearing(t, store)

	otherCommittee := strings.ReplaceAll(stageRoster, `"JUD"`, `"FIN"`)
	labeler := labeling.New(loadStageRoster(t, otherCommittee), cfg.Labeling.MinConfidence)
	stage := transcribe.NewStage(cfg, store, transcribe.New(cfg), nil, labeler, logging.NewNop())

	if err := stage.Execute(context.Background(), hearing); err != nil {
		t.Fatalf("labeling failure must not fail the stage: %v", err)
	}

	transcript, err := transcribe.ReadTranscript(hearing.TranscriptPath)
	if err != nil {
		t.Fatalf("ReadTranscript: %v", err)
	}
	if transcript.Segments[0].Speaker != labeling.UnknownSpeaker {
		t.Fatalf("speaker = %q, want unknown", transcript.Segments[0].Speaker)
	}

	meta := hearing.Metadata()
	if meta.Transcript.LabeledSegments != 0 {
		t.Fatalf("LabeledSegments = %d, want 0", meta.Transcript.LabeledSegments)
	}
	if len(meta.Warnings) == 0 || !strings.Contains(meta.Warnings[0], "speaker labeling failed") {
		t.Fatalf("expected labeling warning, got %v", meta.Warnings)
	}
}

func TestPrepareRequiresCapturedAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	stage := transcribe.NewStage(cfg, store, transcribe.New(cfg), nil, nil, logging.NewNop())

	hearing := testsupport.AddHearing(t, store, "No Audio Yet", "")
	if err := stage.Prepare(context.Background(), hearing); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation without audio path, got %v", err)
	}

	hearing.AudioPath = filepath.Join(cfg.Paths.StagingDir, "audio", "missing.ogg")
	if err := stage.Prepare(context.Background(), hearing); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for missing artifact, got %v", err)
	}
}

func TestPrepareRequiresClient(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stage := transcribe.NewStage(cfg, nil, nil, nil, nil, logging.NewNop())
	err := stage.Prepare(context.Background(), &hearings.Hearing{AudioPath: "x.ogg"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stage := transcribe.NewStage(cfg, nil, transcribe.New(cfg), nil, nil, logging.NewNop())
	health := stage.HealthCheck(context.Background())
	if !health.Ready {
		t.Fatalf("expected healthy, got %q", health.Detail)
	}
	if health.Name != "transcribe" {
		t.Fatalf("Name = %q", health.Name)
	}

	cfg.Transcription.BaseURL = ""
	if health := stage.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy without a base URL")
	}
}

func probeResult(duration string) ffprobe.Result {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "audio", CodecName: "opus", Channels: 1, SampleRate: "16000"}},
		Format:  ffprobe.Format{Duration: duration, FormatName: "ogg"},
	}
}

func silenceSamples(n int) []byte {
	return make([]byte, n*2)
}

func toneSamples(n int) []byte {
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		value := int16(8000)
		if i%2 == 1 {
			value = -value
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(value))
	}
	return out
}
