package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gavel/internal/config"
)

const testRoster = `
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

func writeTestRoster(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRoster_OK(t *testing.T) {
	path := writeTestRoster(t, testRoster)
	result := CheckRoster("roster", path)
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
	if result.Detail == "" {
		t.Fatal("expected detail with catalog summary")
	}
}

func TestCheckRoster_Missing(t *testing.T) {
	result := CheckRoster("roster", filepath.Join(t.TempDir(), "roster.toml"))
	if result.Passed {
		t.Fatal("expected failure for missing roster")
	}
}

func TestCheckRoster_Invalid(t *testing.T) {
	path := writeTestRoster(t, "[[committee]\ncode = broken")
	result := CheckRoster("roster", path)
	if result.Passed {
		t.Fatal("expected failure for unparsable roster")
	}
}

func TestCheckRoster_Empty(t *testing.T) {
	path := writeTestRoster(t, "# no committees yet\n")
	result := CheckRoster("roster", path)
	if result.Passed {
		t.Fatal("expected failure for empty catalog")
	}
}

func TestCheckTranscription_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	result := CheckTranscription(context.Background(), srv.URL, "good-token")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckTranscription_NotFoundStillReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := CheckTranscription(context.Background(), srv.URL, "")
	if !result.Passed {
		t.Fatalf("expected 404 to count as reachable, got: %s", result.Detail)
	}
}

func TestCheckTranscription_BadToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	result := CheckTranscription(context.Background(), srv.URL, "bad-token")
	if result.Passed {
		t.Fatal("expected failure for rejected token")
	}
}

func TestCheckTranscription_MissingURL(t *testing.T) {
	result := CheckTranscription(context.Background(), "", "token")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.LibraryDir = t.TempDir()
	cfg.Labeling.Enabled = false
	cfg.Transcription.BaseURL = srv.URL

	results := RunAll(context.Background(), &cfg)
	// Staging, log, and library directories plus the transcription service.
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}

func TestRunAll_IncludesRosterWhenLabelingEnabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.LibraryDir = ""
	cfg.Paths.RosterPath = writeTestRoster(t, testRoster)
	cfg.Labeling.Enabled = true
	cfg.Transcription.BaseURL = srv.URL

	results := RunAll(context.Background(), &cfg)
	found := false
	for _, r := range results {
		if r.Name == "Speaker roster" {
			found = true
			if !r.Passed {
				t.Errorf("roster check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected roster check in results")
	}
}

func TestCheckNotificationsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	result := CheckNotificationsFromConfig(&cfg)
	if !result.Passed || result.Detail != "Disabled" {
		t.Fatalf("expected disabled pass, got passed=%v detail=%s", result.Passed, result.Detail)
	}

	cfg.Notifications.NtfyTopic = "https://ntfy.sh/gavel"
	result = CheckNotificationsFromConfig(&cfg)
	if !result.Passed {
		t.Fatalf("expected configured pass, got: %s", result.Detail)
	}
	if result.Detail == "Disabled" {
		t.Fatal("expected configured detail")
	}
}

func TestCheckRosterFromConfigDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Labeling.Enabled = false
	result := CheckRosterFromConfig(&cfg)
	if !result.Passed || result.Detail != "Disabled" {
		t.Fatalf("expected disabled pass, got passed=%v detail=%s", result.Passed, result.Detail)
	}
}
