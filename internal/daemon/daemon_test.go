package daemon_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"gavel/internal/daemon"
	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/pipeline"
	"gavel/internal/stage"
	"gavel/internal/testsupport"
)

type noopStage struct{ name string }

func (s noopStage) Prepare(context.Context, *hearings.Hearing) error { return nil }
func (s noopStage) Execute(context.Context, *hearings.Hearing) error { return nil }
func (s noopStage) HealthCheck(context.Context) stage.Health         { return stage.Healthy(s.name) }

func newTestDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *hearings.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Pipeline.PollInterval = 0
	store := testsupport.MustOpenStore(t, cfg)
	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), nil)
	if err := mgr.ConfigureStages(pipeline.StageSet{
		Discover: noopStage{name: "discover"},
		Review:   noopStage{name: "review"},
	}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr, cfg.Paths.LogDir+"/gavel.log")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store
}

func TestDaemonEnforcesSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.PollInterval = 0
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	newDaemon := func() *daemon.Daemon {
		mgr := pipeline.NewManagerWithNotifier(cfg, store, logger, nil)
		if err := mgr.ConfigureStages(pipeline.StageSet{Discover: noopStage{name: "discover"}}); err != nil {
			t.Fatalf("ConfigureStages: %v", err)
		}
		d, err := daemon.New(cfg, store, logger, mgr, cfg.Paths.LogDir+"/gavel.log")
		if err != nil {
			t.Fatalf("daemon.New: %v", err)
		}
		return d
	}

	first := newDaemon()
	second := newDaemon()

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be refused")
	} else if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("second Start error = %v", err)
	}

	status := first.Status(ctx)
	if !status.Running {
		t.Fatal("expected running status")
	}
	if status.PID != os.Getpid() {
		t.Fatalf("status pid = %d, want %d", status.PID, os.Getpid())
	}
	if status.DatabasePath != store.Path() {
		t.Fatalf("status database path = %q", status.DatabasePath)
	}
	if status.LockPath == "" {
		t.Fatal("expected lock path in status")
	}

	first.Stop()
	if first.Status(ctx).Running {
		t.Fatal("expected stopped status")
	}
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start after lock release: %v", err)
	}
	second.Stop()
}

func TestAddHearingValidatesInput(t *testing.T) {
	d, _ := newTestDaemon(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  hearings.NewHearing
		want string
	}{
		{
			name: "relative url",
			req:  hearings.NewHearing{SourceURL: "hearings/123", CommitteeCode: "JUD", HearingDate: "2026-03-14"},
			want: "http(s)",
		},
		{
			name: "unsupported scheme",
			req:  hearings.NewHearing{SourceURL: "ftp://example.gov/h", CommitteeCode: "JUD", HearingDate: "2026-03-14"},
			want: "http(s)",
		},
		{
			name: "missing committee",
			req:  hearings.NewHearing{SourceURL: "https://example.gov/h", HearingDate: "2026-03-14"},
			want: "committee code is required",
		},
		{
			name: "bad date",
			req:  hearings.NewHearing{SourceURL: "https://example.gov/h", CommitteeCode: "JUD", HearingDate: "03/14/2026"},
			want: "YYYY-MM-DD",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := d.AddHearing(ctx, tc.req)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error = %v, want substring %q", err, tc.want)
			}
		})
	}

	hearing, created, err := d.AddHearing(ctx, hearings.NewHearing{
		SourceURL:     "https://example.gov/hearings/42",
		CommitteeCode: "jud",
		Title:         "Oversight of the Courts",
		HearingDate:   "2026-03-14",
	})
	if err != nil {
		t.Fatalf("AddHearing: %v", err)
	}
	if !created {
		t.Fatal("expected new record")
	}
	if hearing.CommitteeCode != "JUD" {
		t.Fatalf("committee = %q, want normalized JUD", hearing.CommitteeCode)
	}

	again, created, err := d.AddHearing(ctx, hearings.NewHearing{
		SourceURL:     "https://example.gov/hearings/42",
		CommitteeCode: "JUD",
		HearingDate:   "2026-03-14",
	})
	if err != nil {
		t.Fatalf("AddHearing duplicate: %v", err)
	}
	if created {
		t.Fatal("expected duplicate to reuse the existing record")
	}
	if again.ID != hearing.ID {
		t.Fatalf("duplicate returned id %d, want %d", again.ID, hearing.ID)
	}
}

func TestAddHearingChecksRoster(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.PollInterval = 0
	testsupport.WriteRoster(t, cfg)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), nil)
	if err := mgr.ConfigureStages(pipeline.StageSet{Discover: noopStage{name: "discover"}}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr, cfg.Paths.LogDir+"/gavel.log")
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx := context.Background()
	_, _, err = d.AddHearing(ctx, hearings.NewHearing{
		SourceURL:     "https://example.gov/hearings/7",
		CommitteeCode: "AGRI",
		HearingDate:   "2026-04-02",
	})
	if err == nil {
		t.Fatal("expected unknown committee to be rejected")
	}
	if !strings.Contains(err.Error(), "not in the roster") {
		t.Fatalf("error = %v", err)
	}

	if _, _, err := d.AddHearing(ctx, hearings.NewHearing{
		SourceURL:     "https://example.gov/hearings/8",
		CommitteeCode: "jud",
		HearingDate:   "2026-04-02",
	}); err != nil {
		t.Fatalf("AddHearing with roster committee: %v", err)
	}
}

func TestApproveRecordsApprovalAndRunsReview(t *testing.T) {
	d, store := newTestDaemon(t, testsupport.WithAutoApprove(false))
	ctx := context.Background()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	hearing := testsupport.AddHearing(t, store, "Data Privacy Hearing", "")
	testsupport.MustLease(t, store, hearing, "test/seed")
	for _, next := range []hearings.Stage{hearings.StageAnalyzed, hearings.StageCaptured, hearings.StageTranscribed} {
		if err := store.AdvanceStage(ctx, hearing, next); err != nil {
			t.Fatalf("AdvanceStage(%s): %v", next, err)
		}
	}
	if err := store.ReleaseLease(ctx, hearing.ID, "test/seed"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}

	approved, err := d.Approve(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	meta := approved.Metadata()
	if meta.Review == nil || meta.Review.ApprovedAt == "" {
		t.Fatal("expected approval recorded in metadata")
	}
	if meta.Review.AutoApproved {
		t.Fatal("operator approval must not be marked auto approved")
	}

	deadline := time.After(20 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for review to finish")
		default:
		}
		updated, err := store.GetByID(ctx, hearing.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if updated.Stage == hearings.StageReviewed {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}

	// Approving again after the advance is a no-op.
	again, err := d.Approve(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("Approve after advance: %v", err)
	}
	if again.Stage != hearings.StageReviewed {
		t.Fatalf("stage = %s, want reviewed", again.Stage)
	}

	if _, err := d.Approve(ctx, 9999); err == nil {
		t.Fatal("expected missing hearing to be rejected")
	}
}

func TestApproveRefusesWrongStage(t *testing.T) {
	d, store := newTestDaemon(t, testsupport.WithAutoApprove(false))
	ctx := context.Background()

	hearing := testsupport.AddHearing(t, store, "Infrastructure Oversight", "")
	_, err := d.Approve(ctx, hearing.ID)
	if err == nil {
		t.Fatal("expected approval of discovered hearing to fail")
	}
	if !strings.Contains(err.Error(), "approval applies once transcription finishes") {
		t.Fatalf("error = %v", err)
	}
}

func TestResetStalledClearsBudget(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	first := testsupport.AddHearing(t, store, "Stalled One", "https://example.gov/s1")
	second := testsupport.AddHearing(t, store, "Stalled Two", "https://example.gov/s2")
	for _, hearing := range []*hearings.Hearing{first, second} {
		testsupport.MustLease(t, store, hearing, "test/seed")
		if err := store.RecordFailure(ctx, hearing, "stream gone", nil, true); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
		if err := store.ReleaseLease(ctx, hearing.ID, "test/seed"); err != nil {
			t.Fatalf("ReleaseLease: %v", err)
		}
	}

	updated, err := d.ResetStalled(ctx, nil)
	if err != nil {
		t.Fatalf("ResetStalled: %v", err)
	}
	if updated != 2 {
		t.Fatalf("reset %d hearings, want 2", updated)
	}

	for _, id := range []int64{first.ID, second.ID} {
		hearing, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if hearing.Stalled {
			t.Fatalf("hearing %d still stalled", id)
		}
		if hearing.AttemptCount != 0 {
			t.Fatalf("hearing %d attempt count = %d", id, hearing.AttemptCount)
		}
		if hearing.Stage != hearings.StageDiscovered {
			t.Fatalf("hearing %d stage = %s, want discovered", id, hearing.Stage)
		}
	}

	// Nothing left to reset.
	updated, err = d.ResetStalled(ctx, nil)
	if err != nil {
		t.Fatalf("ResetStalled second pass: %v", err)
	}
	if updated != 0 {
		t.Fatalf("second reset touched %d hearings", updated)
	}
}

func TestResetToStageRefusesForwardMoves(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	hearing := testsupport.AddHearing(t, store, "Forward Reset", "")
	err := d.ResetToStage(ctx, hearing.ID, hearings.StageCaptured)
	if err == nil {
		t.Fatal("expected forward reset to be refused")
	}
	if !strings.Contains(err.Error(), "use advance") {
		t.Fatalf("error = %v", err)
	}

	// Backward reset is the supported escape hatch.
	testsupport.MustLease(t, store, hearing, "test/seed")
	if err := store.AdvanceStage(ctx, hearing, hearings.StageAnalyzed); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if err := store.ReleaseLease(ctx, hearing.ID, "test/seed"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}
	if err := d.ResetToStage(ctx, hearing.ID, hearings.StageDiscovered); err != nil {
		t.Fatalf("ResetToStage: %v", err)
	}
	updated, err := store.GetByID(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Stage != hearings.StageDiscovered {
		t.Fatalf("stage = %s, want discovered", updated.Stage)
	}
}

func TestRemoveHearing(t *testing.T) {
	d, store := newTestDaemon(t)
	ctx := context.Background()

	hearing := testsupport.AddHearing(t, store, "Removable", "")
	removed, err := d.RemoveHearing(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("RemoveHearing: %v", err)
	}
	if !removed {
		t.Fatal("expected removal")
	}
	gone, err := store.GetByID(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if gone != nil {
		t.Fatal("hearing still present after removal")
	}

	removed, err = d.RemoveHearing(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("RemoveHearing missing: %v", err)
	}
	if removed {
		t.Fatal("expected missing hearing removal to report false")
	}

	// A live lease blocks removal.
	leased := testsupport.AddHearing(t, store, "Leased", "https://example.gov/leased")
	testsupport.MustLease(t, store, leased, "test/worker")
	removed, err = d.RemoveHearing(ctx, leased.ID)
	if err != nil {
		t.Fatalf("RemoveHearing leased: %v", err)
	}
	if removed {
		t.Fatal("expected leased hearing removal to be refused")
	}
}
