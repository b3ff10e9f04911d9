package hearings_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"gavel/internal/hearings"
	"gavel/internal/testsupport"
)

func TestAdvanceStagePersistsArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	hearing := testsupport.AddHearing(t, store, "Advance", "")
	testsupport.MustLease(t, store, hearing, "worker-1")

	hearing.ManifestURL = "https://cdn.test/session.m3u8"
	hearing.ManifestKind = hearings.ManifestKindArchive
	if err := store.AdvanceStage(ctx, hearing, hearings.StageAnalyzed); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}

	stored, err := store.GetByID(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Stage != hearings.StageAnalyzed {
		t.Fatalf("expected analyzed, got %s", stored.Stage)
	}
	if stored.ManifestURL != "https://cdn.test/session.m3u8" {
		t.Fatalf("expected manifest persisted, got %q", stored.ManifestURL)
	}
	if stored.AttemptCount != 0 || stored.NextAttemptAt != nil || stored.ErrorMessage != "" {
		t.Fatalf("expected retry bookkeeping reset, got %#v", stored)
	}
}

func TestAdvanceStageResetsFailureBookkeeping(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	hearing := testsupport.AddHearing(t, store, "ResetCounters", "")
	testsupport.MustLease(t, store, hearing, "worker-1")

	next := time.Now().Add(time.Minute).UTC()
	if err := store.RecordFailure(ctx, hearing, "first failure", &next, false); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if hearing.AttemptCount != 1 {
		t.Fatalf("expected in-memory attempt count 1, got %d", hearing.AttemptCount)
	}

	if err := store.AdvanceStage(ctx, hearing, hearings.StageAnalyzed); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}

	stored, err := store.GetByID(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.AttemptCount != 0 {
		t.Fatalf("expected attempt count reset on advance, got %d", stored.AttemptCount)
	}
	if stored.NextAttemptAt != nil {
		t.Fatalf("expected backoff cleared, got %v", stored.NextAttemptAt)
	}
	if stored.ErrorMessage != "" {
		t.Fatalf("expected error message cleared, got %q", stored.ErrorMessage)
	}
}

func TestAdvanceStageRejectsSkips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	hearing := testsupport.AddHearing(t, store, "Skip", "")
	testsupport.MustLease(t, store, hearing, "worker-1")

	if err := store.AdvanceStage(context.Background(), hearing, hearings.StageCaptured); err == nil {
		t.Fatal("expected error for skipping analyzed")
	}
	if err := store.AdvanceStage(context.Background(), hearing, hearings.StageDiscovered); err == nil {
		t.Fatal("expected error for non-forward transition")
	}
}

func TestAdvanceStageDetectsLostLease(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	hearing := testsupport.AddHearing(t, store, "LostLease", "")
	ok, err := store.AcquireLease(ctx, hearing.ID, "worker-1", 10*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("AcquireLease: ok=%v err=%v", ok, err)
	}
	hearing.LockOwner = "worker-1"

	time.Sleep(25 * time.Millisecond)
	ok, err = store.AcquireLease(ctx, hearing.ID, "worker-2", time.Minute)
	if err != nil || !ok {
		t.Fatalf("reclaim: ok=%v err=%v", ok, err)
	}

	err = store.AdvanceStage(ctx, hearing, hearings.StageAnalyzed)
	if !errors.Is(err, hearings.ErrLeaseLost) {
		t.Fatalf("expected ErrLeaseLost, got %v", err)
	}

	stored, err := store.GetByID(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Stage != hearings.StageDiscovered {
		t.Fatalf("expected stage unchanged after lost lease, got %s", stored.Stage)
	}
}

func TestRecordFailureStallsAtLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	hearing := testsupport.AddHearing(t, store, "Stall", "")
	testsupport.MustLease(t, store, hearing, "worker-1")

	for i := 0; i < 2; i++ {
		next := time.Now().Add(time.Minute).UTC()
		if err := store.RecordFailure(ctx, hearing, "manifest fetch failed", &next, false); err != nil {
			t.Fatalf("RecordFailure %d: %v", i, err)
		}
	}
	if err := store.RecordFailure(ctx, hearing, "manifest fetch failed", nil, true); err != nil {
		t.Fatalf("RecordFailure final: %v", err)
	}

	stored, err := store.GetByID(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.AttemptCount != 3 {
		t.Fatalf("expected 3 consecutive failures, got %d", stored.AttemptCount)
	}
	if !stored.Stalled {
		t.Fatal("expected hearing stalled")
	}
	if stored.Stage != hearings.StageDiscovered {
		t.Fatalf("expected stage retained while stalled, got %s", stored.Stage)
	}
	if stored.ErrorMessage != "manifest fetch failed" {
		t.Fatalf("expected failure message persisted, got %q", stored.ErrorMessage)
	}
}

func TestResetToStageClearsStallAndMovesBack(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	hearing := testsupport.AddHearing(t, store, "Reset", "")
	testsupport.MustLease(t, store, hearing, "worker-1")
	if err := store.AdvanceStage(ctx, hearing, hearings.StageAnalyzed); err != nil {
		t.Fatalf("AdvanceStage: %v", err)
	}
	if err := store.RecordFailure(ctx, hearing, "capture failed", nil, true); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if err := store.ReleaseLease(ctx, hearing.ID, "worker-1"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}

	reset, err := store.ResetToStage(ctx, hearing.ID, hearings.StageDiscovered)
	if err != nil {
		t.Fatalf("ResetToStage: %v", err)
	}
	if !reset {
		t.Fatal("expected reset to apply")
	}

	stored, err := store.GetByID(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Stage != hearings.StageDiscovered {
		t.Fatalf("expected stage moved back to discovered, got %s", stored.Stage)
	}
	if stored.Stalled || stored.AttemptCount != 0 || stored.ErrorMessage != "" {
		t.Fatalf("expected stall cleared, got %#v", stored)
	}
}

func TestResetToStageRefusesWhileLeased(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	hearing := testsupport.AddHearing(t, store, "ResetLocked", "")
	testsupport.MustLease(t, store, hearing, "worker-1")

	reset, err := store.ResetToStage(ctx, hearing.ID, hearings.StageDiscovered)
	if err != nil {
		t.Fatalf("ResetToStage: %v", err)
	}
	if reset {
		t.Fatal("expected reset refused while leased")
	}
}
