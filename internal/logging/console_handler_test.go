package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func newTestConsoleLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	lvl := new(slog.LevelVar)
	lvl.Set(level)
	return slog.New(newPrettyHandler(buf, lvl, false))
}

func TestConsoleHandlerFormatsSubjectAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, slog.LevelInfo)

	logger.Info("stage complete",
		Int64(FieldHearingID, 12),
		String(FieldStage, "captured"),
		String(FieldLane, "worker-1"),
		String("committee", "JUD"),
		Duration("stage_duration", 90*time.Second),
		Int64("audio_size_bytes", 5*1024*1024),
	)

	out := buf.String()
	if !strings.Contains(out, "Worker-1 · Hearing #12 (captured)") {
		t.Fatalf("expected subject in output, got %q", out)
	}
	if !strings.Contains(out, "– stage complete") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "- Committee: JUD") {
		t.Fatalf("expected committee field, got %q", out)
	}
	if !strings.Contains(out, "- Duration: 1m30s") {
		t.Fatalf("expected humanized duration, got %q", out)
	}
	if !strings.Contains(out, "- Audio Size: 5.00 MiB") {
		t.Fatalf("expected humanized size, got %q", out)
	}
}

func TestConsoleHandlerHidesDebugKeysAtInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, slog.LevelInfo)

	logger.Info("manifest located",
		Int64(FieldHearingID, 3),
		String("manifest_url", "https://example.com/archive/master.m3u8"),
	)

	out := buf.String()
	if strings.Contains(out, "master.m3u8") {
		t.Fatalf("expected manifest URL to be hidden at info, got %q", out)
	}
	if !strings.Contains(out, "1 more field hidden") {
		t.Fatalf("expected hidden count, got %q", out)
	}

	buf.Reset()
	logger.Warn("manifest fetch degraded",
		Int64(FieldHearingID, 3),
		String("manifest_url", "https://example.com/archive/master.m3u8"),
	)
	if !strings.Contains(buf.String(), "master.m3u8") {
		t.Fatalf("expected URL to surface at warn, got %q", buf.String())
	}
}

func TestConsoleHandlerSuppressesRepeatedInfoFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, slog.LevelInfo)

	logger.Info("probe finished", Int64(FieldHearingID, 7), String("committee", "FIN"))
	first := buf.String()
	buf.Reset()
	logger.Info("capture started", Int64(FieldHearingID, 7), String("committee", "FIN"))
	second := buf.String()

	if !strings.Contains(first, "- Committee: FIN") {
		t.Fatalf("expected committee on first line, got %q", first)
	}
	if strings.Contains(second, "- Committee: FIN") {
		t.Fatalf("expected repeated field to be suppressed, got %q", second)
	}
}

func TestConsoleHandlerDebugDumpsAllAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestConsoleLogger(&buf, slog.LevelDebug)

	logger.Debug("claim attempt",
		Int64(FieldHearingID, 9),
		String("lock_owner", "worker-2"),
	)

	out := buf.String()
	if !strings.Contains(out, "lock_owner: worker-2") {
		t.Fatalf("expected raw attrs in debug output, got %q", out)
	}
}

func TestFormatSubject(t *testing.T) {
	cases := []struct {
		lane, hearingID, stage string
		want                   string
	}{
		{"", "", "", ""},
		{"", "4", "", "Hearing #4"},
		{"", "4", "captured", "Hearing #4 (captured)"},
		{"worker-1", "", "", "Worker-1"},
		{"worker-1", "4", "analyzed", "Worker-1 · Hearing #4 (analyzed)"},
		{"", "", "discovered", "discovered"},
	}
	for _, tc := range cases {
		if got := FormatSubject(tc.lane, tc.hearingID, tc.stage); got != tc.want {
			t.Errorf("FormatSubject(%q, %q, %q) = %q, want %q", tc.lane, tc.hearingID, tc.stage, got, tc.want)
		}
	}
}

func TestHighlightKeysOrderedFirst(t *testing.T) {
	attrs := []kv{
		{key: "segment_count", value: slog.IntValue(42)},
		{key: FieldEventType, value: slog.StringValue("transcript_ready")},
	}
	fields, hidden := selectInfoFields(attrs, true)
	if hidden != 0 {
		t.Fatalf("expected no hidden fields, got %d", hidden)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].label != "Event" {
		t.Fatalf("expected event field first, got %q", fields[0].label)
	}
}
