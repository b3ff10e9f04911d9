package fileutil_test

import (
	"os"
	"path/filepath"
	"testing"

	"gavel/internal/fileutil"
)

func TestCopyVerifiedCopiesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staging", "audio.ogg")
	dst := filepath.Join(dir, "library", "audio.ogg")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("hearing audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := fileutil.CopyVerified(src, dst); err != nil {
		t.Fatalf("CopyVerified: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hearing audio" {
		t.Fatalf("copied content = %q", got)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatal("copy must not remove the source")
	}
}

func TestCopyVerifiedMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := fileutil.CopyVerified(filepath.Join(dir, "missing.ogg"), filepath.Join(dir, "out.ogg"))
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestMoveVerifiedMovesAcrossDirectories(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "staging", "transcript.json")
	dst := filepath.Join(dir, "library", "JUD", "2026-03-14 - Budget", "transcript.json")
	if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte(`{"segments":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := fileutil.MoveVerified(src, dst); err != nil {
		t.Fatalf("MoveVerified: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatal("move must remove the source")
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"segments":[]}` {
		t.Fatalf("moved content = %q", got)
	}
}

func TestFreeSpaceReportsFilesystem(t *testing.T) {
	total, free, err := fileutil.FreeSpace(t.TempDir())
	if err != nil {
		t.Fatalf("FreeSpace: %v", err)
	}
	if total == 0 {
		t.Fatal("expected non-zero total")
	}
	if free > total {
		t.Fatalf("free %d exceeds total %d", free, total)
	}
}
