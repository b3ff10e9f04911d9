package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/services"
	"gavel/internal/testsupport"
)

func TestStageExecuteRecordsManifest(t *testing.T) {
	page := `<html>
<a href="https://media.example.gov/live/chamber-2/playlist.m3u8">Live</a>
<source src="https://media.example.gov/vod/jud-2026-03-14/playlist.m3u8">
</html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hearing := testsupport.AddHearing(t, store, "Oversight of Data Brokers", server.URL)

	st := NewStage(store, NewLocator(cfg), logging.NewNop())
	if err := st.Prepare(context.Background(), hearing); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := st.Execute(context.Background(), hearing); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if hearing.ManifestURL != "https://media.example.gov/vod/jud-2026-03-14/playlist.m3u8" {
		t.Fatalf("ManifestURL = %q", hearing.ManifestURL)
	}
	if hearing.ManifestKind != hearings.ManifestKindArchive {
		t.Fatalf("ManifestKind = %q, want archive", hearing.ManifestKind)
	}

	meta := hearing.Metadata()
	if meta.Discovery == nil {
		t.Fatal("expected discovery metadata")
	}
	if meta.Discovery.CandidatesFound != 2 {
		t.Fatalf("CandidatesFound = %d, want 2", meta.Discovery.CandidatesFound)
	}
	if meta.Discovery.Confidence <= 0 {
		t.Fatalf("Confidence = %v, want > 0", meta.Discovery.Confidence)
	}
}

func TestStageExecuteNoManifestsIsDiscoveryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><p>Hearing video coming soon.</p></html>`)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hearing := testsupport.AddHearing(t, store, "Budget Markup", server.URL)

	st := NewStage(store, NewLocator(cfg), logging.NewNop())
	err := st.Execute(context.Background(), hearing)
	if !errors.Is(err, services.ErrDiscovery) {
		t.Fatalf("expected ErrDiscovery, got %v", err)
	}
	if hearing.ManifestURL != "" {
		t.Fatalf("ManifestURL should stay empty on failure, got %q", hearing.ManifestURL)
	}
}

func TestStageExecuteFetchFailureIsDiscoveryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hearing := testsupport.AddHearing(t, store, "Nominations", server.URL)

	st := NewStage(store, NewLocator(cfg), logging.NewNop())
	if err := st.Execute(context.Background(), hearing); !errors.Is(err, services.ErrDiscovery) {
		t.Fatalf("expected ErrDiscovery, got %v", err)
	}
}

func TestStagePrepareRejectsMissingSourceURL(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hearing := testsupport.AddHearing(t, store, "Field Hearing", "https://hearings.test/field")
	hearing.SourceURL = ""

	st := NewStage(store, NewLocator(cfg), logging.NewNop())
	if err := st.Prepare(context.Background(), hearing); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestStagePrepareRequiresLocator(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hearing := testsupport.AddHearing(t, store, "Closed Session", "https://hearings.test/closed")

	st := NewStage(store, nil, logging.NewNop())
	if err := st.Prepare(context.Background(), hearing); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestStageHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	healthy := NewStage(store, NewLocator(cfg), logging.NewNop())
	if health := healthy.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy stage, got %+v", health)
	}

	broken := NewStage(store, nil, logging.NewNop())
	if health := broken.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy stage without locator")
	}
}
