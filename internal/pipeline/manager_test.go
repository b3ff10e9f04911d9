package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gavel/internal/config"
	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/pipeline"
	"gavel/internal/services"
	"gavel/internal/stage"
	"gavel/internal/testsupport"
)

type stubStage struct {
	name        string
	health      stage.Health
	prepareErr  error
	executeHook func(context.Context, *hearings.Hearing) error

	mu   sync.Mutex
	runs int
}

func newStubStage(name string) *stubStage {
	return &stubStage{name: name, health: stage.Healthy(name)}
}

func (s *stubStage) Prepare(_ context.Context, _ *hearings.Hearing) error {
	return s.prepareErr
}

func (s *stubStage) Execute(ctx context.Context, hearing *hearings.Hearing) error {
	s.mu.Lock()
	s.runs++
	hook := s.executeHook
	s.mu.Unlock()
	if hook != nil {
		return hook(ctx, hearing)
	}
	return nil
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

func (s *stubStage) executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

type stubNotifier struct {
	mu       sync.Mutex
	events   []notifications.Event
	payloads []notifications.Payload
}

func (s *stubNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	s.payloads = append(s.payloads, payload)
	return nil
}

func (s *stubNotifier) Test(context.Context) error { return nil }

func (s *stubNotifier) stalled() []notifications.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []notifications.Payload
	for i, event := range s.events {
		if event == notifications.EventHearingStalled {
			out = append(out, s.payloads[i])
		}
	}
	return out
}

func pipelineConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Pipeline.PollInterval = 0
	cfg.Pipeline.Workers = 1
	return cfg
}

// seedTranscribed walks a fresh hearing to the transcribed stage through the
// store's guarded transitions, then releases the seeding lease.
func seedTranscribed(t *testing.T, store *hearings.Store, title string) *hearings.Hearing {
	t.Helper()
	ctx := context.Background()
	hearing := testsupport.AddHearing(t, store, title, "")
	testsupport.MustLease(t, store, hearing, "test/seed")
	for _, next := range []hearings.Stage{hearings.StageAnalyzed, hearings.StageCaptured, hearings.StageTranscribed} {
		if err := store.AdvanceStage(ctx, hearing, next); err != nil {
			t.Fatalf("AdvanceStage(%s): %v", next, err)
		}
	}
	if err := store.ReleaseLease(ctx, hearing.ID, "test/seed"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}
	hearing.LockOwner = ""
	return hearing
}

func waitForStage(t *testing.T, store *hearings.Store, id int64, want hearings.Stage) *hearings.Hearing {
	t.Helper()
	ctx := context.Background()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for hearing %d to reach %s", id, want)
		default:
		}
		hearing, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if hearing != nil && hearing.Stage == want {
			return hearing
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func waitForStalled(t *testing.T, store *hearings.Store, id int64) *hearings.Hearing {
	t.Helper()
	ctx := context.Background()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for hearing %d to stall", id)
		default:
		}
		hearing, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if hearing != nil && hearing.Stalled {
			return hearing
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func waitForClosedAttempts(t *testing.T, store *hearings.Store, id int64, want int) []*hearings.Attempt {
	t.Helper()
	ctx := context.Background()
	deadline := time.After(30 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d closed attempts on hearing %d", want, id)
		default:
		}
		attempts, err := store.ListAttempts(ctx, id)
		if err != nil {
			t.Fatalf("ListAttempts: %v", err)
		}
		closed := 0
		for _, attempt := range attempts {
			if !attempt.Open() {
				closed++
			}
		}
		if closed >= want {
			return attempts
		}
		time.Sleep(25 * time.Millisecond)
	}
}

func TestManagerAdvancesThroughAllStages(t *testing.T) {
	cfg := pipelineConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	notifier := &stubNotifier{}
	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	err := mgr.ConfigureStages(pipeline.StageSet{
		Discover:   newStubStage("discover"),
		Capture:    newStubStage("capture"),
		Transcribe: newStubStage("transcribe"),
		Review:     newStubStage("review"),
		Publish:    newStubStage("publish"),
	})
	if err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	hearing := testsupport.AddHearing(t, store, "Oversight of the Courts", "")
	final := waitForStage(t, store, hearing.ID, hearings.StagePublished)

	if final.Stalled {
		t.Fatal("expected hearing not to stall")
	}
	if final.AttemptCount != 0 {
		t.Fatalf("expected attempt count reset, got %d", final.AttemptCount)
	}
	if final.LockOwner != "" {
		t.Fatalf("expected lease released, got owner %q", final.LockOwner)
	}

	attempts := waitForClosedAttempts(t, store, hearing.ID, 5)
	if len(attempts) != 5 {
		t.Fatalf("expected 5 attempts, got %d", len(attempts))
	}
	wantStages := []hearings.Stage{
		hearings.StageDiscovered,
		hearings.StageAnalyzed,
		hearings.StageCaptured,
		hearings.StageTranscribed,
		hearings.StageReviewed,
	}
	for i, attempt := range attempts {
		if attempt.Stage != wantStages[i] {
			t.Fatalf("attempt %d ran at %s, want %s", i, attempt.Stage, wantStages[i])
		}
		if attempt.Outcome != hearings.OutcomeSuccess {
			t.Fatalf("attempt %d outcome = %s, want success", i, attempt.Outcome)
		}
	}
}

func TestManagerRetriesFailures(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.Pipeline.RetryBackoffBase = 1
	store := testsupport.MustOpenStore(t, cfg)

	discover := newStubStage("discover")
	discover.executeHook = func(context.Context, *hearings.Hearing) error {
		if discover.executions() == 1 {
			return services.Wrap(services.ErrDiscovery, "discover", "locate", "no usable stream found", nil)
		}
		return nil
	}

	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})
	if err := mgr.ConfigureStages(pipeline.StageSet{Discover: discover}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	hearing := testsupport.AddHearing(t, store, "Budget Markup", "")
	final := waitForStage(t, store, hearing.ID, hearings.StageAnalyzed)

	if final.AttemptCount != 0 {
		t.Fatalf("expected attempt count reset after advance, got %d", final.AttemptCount)
	}
	if final.ErrorMessage != "" {
		t.Fatalf("expected error message cleared after advance, got %q", final.ErrorMessage)
	}

	attempts := waitForClosedAttempts(t, store, hearing.ID, 2)
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Outcome != hearings.OutcomeFailure {
		t.Fatalf("first attempt outcome = %s, want failure", attempts[0].Outcome)
	}
	if attempts[0].ErrorKind != "discovery" {
		t.Fatalf("first attempt error kind = %q, want discovery", attempts[0].ErrorKind)
	}
	if attempts[0].ErrorMessage != "no usable stream found" {
		t.Fatalf("first attempt error message = %q", attempts[0].ErrorMessage)
	}
	if attempts[1].Outcome != hearings.OutcomeSuccess {
		t.Fatalf("second attempt outcome = %s, want success", attempts[1].Outcome)
	}
}

func TestManagerStallsAfterMaxAttempts(t *testing.T) {
	cfg := pipelineConfig(t)
	cfg.Pipeline.RetryBackoffBase = 1
	cfg.Pipeline.MaxAttempts = 2
	store := testsupport.MustOpenStore(t, cfg)

	discover := newStubStage("discover")
	discover.executeHook = func(context.Context, *hearings.Hearing) error {
		return services.Wrap(services.ErrDiscovery, "discover", "locate", "event page removed", nil)
	}

	notifier := &stubNotifier{}
	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), notifier)
	if err := mgr.ConfigureStages(pipeline.StageSet{Discover: discover}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	hearing := testsupport.AddHearing(t, store, "Nomination Hearing", "")
	stalled := waitForStalled(t, store, hearing.ID)

	if stalled.Stage != hearings.StageDiscovered {
		t.Fatalf("stalled at %s, want discovered", stalled.Stage)
	}
	if stalled.AttemptCount != 2 {
		t.Fatalf("attempt count = %d, want 2", stalled.AttemptCount)
	}
	if !strings.Contains(stalled.ErrorMessage, "event page removed") {
		t.Fatalf("error message = %q", stalled.ErrorMessage)
	}

	attempts := waitForClosedAttempts(t, store, hearing.ID, 2)
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	for i, attempt := range attempts {
		if attempt.Outcome != hearings.OutcomeFailure {
			t.Fatalf("attempt %d outcome = %s, want failure", i, attempt.Outcome)
		}
	}

	// A stalled hearing must drop out of the scan entirely.
	time.Sleep(300 * time.Millisecond)
	attempts, err := store.ListAttempts(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("stalled hearing was dispatched again; %d attempts", len(attempts))
	}

	deadline := time.After(10 * time.Second)
	for len(notifier.stalled()) == 0 {
		select {
		case <-deadline:
			t.Fatal("expected stalled notification")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	payload := notifier.stalled()[0]
	if payload["stage"] != "discovered" {
		t.Fatalf("stalled payload stage = %q", payload["stage"])
	}
	if payload["title"] != "Nomination Hearing" {
		t.Fatalf("stalled payload title = %q", payload["title"])
	}
}

func TestRequestStageValidatesTargets(t *testing.T) {
	cfg := pipelineConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})
	if err := mgr.ConfigureStages(pipeline.StageSet{
		Discover: newStubStage("discover"),
		Capture:  newStubStage("capture"),
	}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	ctx := context.Background()
	hearing := testsupport.AddHearing(t, store, "Farm Bill Hearing", "")

	if err := mgr.RequestStage(ctx, hearing.ID, "finalized"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown stage error = %v, want validation", err)
	}
	if err := mgr.RequestStage(ctx, 9999, hearings.StageAnalyzed); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing hearing error = %v, want not found", err)
	}

	// Requests at or behind the current stage are accepted as no-ops.
	if err := mgr.RequestStage(ctx, hearing.ID, hearings.StageDiscovered); err != nil {
		t.Fatalf("no-op request: %v", err)
	}
	attempts, err := store.ListAttempts(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("no-op request opened %d attempts", len(attempts))
	}

	err = mgr.RequestStage(ctx, hearing.ID, hearings.StageCaptured)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("skip-ahead error = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "request analyzed instead") {
		t.Fatalf("skip-ahead message = %q", err.Error())
	}

	// Valid target but the pipeline is not running.
	err = mgr.RequestStage(ctx, hearing.ID, hearings.StageAnalyzed)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("stopped pipeline error = %v, want validation", err)
	}
	if !strings.Contains(err.Error(), "not running") {
		t.Fatalf("stopped pipeline message = %q", err.Error())
	}

	testsupport.MustLease(t, store, hearing, "test/seed")
	if err := store.RecordFailure(ctx, hearing, "stream gone", nil, true); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	if err := store.ReleaseLease(ctx, hearing.ID, "test/seed"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}
	if err := mgr.RequestStage(ctx, hearing.ID, hearings.StageAnalyzed); !errors.Is(err, services.ErrStalled) {
		t.Fatalf("stalled hearing error = %v, want stalled", err)
	}
}

func TestRequestStageSerializesContenders(t *testing.T) {
	cfg := pipelineConfig(t, testsupport.WithAutoApprove(false))
	store := testsupport.MustOpenStore(t, cfg)

	review := newStubStage("review")
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	review.executeHook = func(ctx context.Context, _ *hearings.Hearing) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})
	if err := mgr.ConfigureStages(pipeline.StageSet{Review: review}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	hearing := seedTranscribed(t, store, "Judicial Nominations")

	if err := mgr.RequestStage(ctx, hearing.ID, hearings.StageReviewed); err != nil {
		t.Fatalf("first request: %v", err)
	}
	err := mgr.RequestStage(ctx, hearing.ID, hearings.StageReviewed)
	if !errors.Is(err, services.ErrLockContention) {
		t.Fatalf("second request error = %v, want lock contention", err)
	}

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("stage action never started")
	}
	close(release)

	final := waitForStage(t, store, hearing.ID, hearings.StageReviewed)
	if final.LockOwner != "" {
		t.Fatalf("expected lease released, got owner %q", final.LockOwner)
	}

	attempts := waitForClosedAttempts(t, store, hearing.ID, 1)
	if len(attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Outcome != hearings.OutcomeSuccess {
		t.Fatalf("attempt outcome = %s, want success", attempts[0].Outcome)
	}
	if attempts[0].Stage != hearings.StageTranscribed {
		t.Fatalf("attempt stage = %s, want transcribed", attempts[0].Stage)
	}
}

func TestCancelClosesAttemptWithoutRetryPenalty(t *testing.T) {
	cfg := pipelineConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	discover := newStubStage("discover")
	started := make(chan struct{}, 4)
	discover.executeHook = func(ctx context.Context, _ *hearings.Hearing) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})
	if err := mgr.ConfigureStages(pipeline.StageSet{Discover: discover}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	hearing := testsupport.AddHearing(t, store, "Trade Policy Review", "")
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("stage action never started")
	}

	if err := mgr.Cancel(hearing.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitForClosedAttempts(t, store, hearing.ID, 1)

	// Stop unwinds any re-dispatched attempt before the assertions below.
	mgr.Stop()

	attempts, err := store.ListAttempts(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("ListAttempts: %v", err)
	}
	if len(attempts) == 0 {
		t.Fatal("expected at least one attempt")
	}
	for i, attempt := range attempts {
		if attempt.Open() {
			t.Fatalf("attempt %d still open after Stop", i)
		}
		if attempt.Outcome != hearings.OutcomeCancelled {
			t.Fatalf("attempt %d outcome = %s, want cancelled", i, attempt.Outcome)
		}
	}

	final, err := store.GetByID(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Stage != hearings.StageDiscovered {
		t.Fatalf("stage = %s, want discovered", final.Stage)
	}
	if final.AttemptCount != 0 {
		t.Fatalf("cancellation counted against retry budget; attempt count = %d", final.AttemptCount)
	}
	if final.Stalled {
		t.Fatal("cancellation stalled the hearing")
	}

	if err := mgr.Cancel(hearing.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("idle cancel error = %v, want validation", err)
	}
}

func TestLeaseLossAbortsStage(t *testing.T) {
	cfg := pipelineConfig(t, testsupport.WithAutoApprove(false))
	cfg.Pipeline.LeaseRenewalInterval = 1
	store := testsupport.MustOpenStore(t, cfg)

	review := newStubStage("review")
	started := make(chan struct{}, 1)
	review.executeHook = func(ctx context.Context, _ *hearings.Hearing) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}

	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})
	if err := mgr.ConfigureStages(pipeline.StageSet{Review: review}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	hearing := seedTranscribed(t, store, "Appropriations Conference")
	if err := mgr.RequestStage(ctx, hearing.ID, hearings.StageReviewed); err != nil {
		t.Fatalf("RequestStage: %v", err)
	}
	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("stage action never started")
	}

	// Another instance stealing the hearing looks like a vanished lease.
	if err := store.ReleaseLease(ctx, hearing.ID, mgr.Instance()+"/request"); err != nil {
		t.Fatalf("ReleaseLease: %v", err)
	}

	attempts := waitForClosedAttempts(t, store, hearing.ID, 1)
	if attempts[0].Outcome != hearings.OutcomeFailure {
		t.Fatalf("attempt outcome = %s, want failure", attempts[0].Outcome)
	}
	if attempts[0].ErrorKind != "lock_contention" {
		t.Fatalf("attempt error kind = %q, want lock_contention", attempts[0].ErrorKind)
	}

	final, err := store.GetByID(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if final.Stage != hearings.StageTranscribed {
		t.Fatalf("stage = %s, want transcribed", final.Stage)
	}
	if final.AttemptCount != 0 {
		t.Fatalf("lease loss counted against retry budget; attempt count = %d", final.AttemptCount)
	}
}

func TestStatusReportsHandlersAndCounts(t *testing.T) {
	cfg := pipelineConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	discover := newStubStage("discover")
	capture := newStubStage("capture")
	capture.health = stage.Unhealthy("capture", "stream endpoint unreachable")

	mgr := pipeline.NewManagerWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})
	if err := mgr.ConfigureStages(pipeline.StageSet{Discover: discover, Capture: capture}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}

	ctx := context.Background()
	hearing := testsupport.AddHearing(t, store, "Postal Service Oversight", "")

	report, err := mgr.GetStatus(ctx, hearing.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if report.Hearing.ID != hearing.ID {
		t.Fatalf("report hearing id = %d", report.Hearing.ID)
	}
	if report.InFlight {
		t.Fatal("expected no in-flight attempt")
	}
	if report.LastAttempt != nil {
		t.Fatalf("expected no attempts, got %+v", report.LastAttempt)
	}
	if _, err := mgr.GetStatus(ctx, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing hearing error = %v, want not found", err)
	}

	summary := mgr.Status(ctx)
	if summary.Running {
		t.Fatal("expected stopped summary before Start")
	}
	if summary.StageCounts[hearings.StageDiscovered] != 1 {
		t.Fatalf("discovered count = %d, want 1", summary.StageCounts[hearings.StageDiscovered])
	}
	if summary.StalledCount != 0 {
		t.Fatalf("stalled count = %d, want 0", summary.StalledCount)
	}
	health, ok := summary.StageHealth["capture"]
	if !ok {
		t.Fatal("capture health missing from summary")
	}
	if health.Ready {
		t.Fatal("expected capture to report unhealthy")
	}
	if health.Detail != "stream endpoint unreachable" {
		t.Fatalf("capture health detail = %q", health.Detail)
	}
	if _, ok := summary.StageHealth["discover"]; !ok {
		t.Fatal("discover health missing from summary")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := mgr.Start(runCtx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(mgr.Stop)

	summary = mgr.Status(ctx)
	if !summary.Running {
		t.Fatal("expected running summary after Start")
	}
	if summary.Instance == "" {
		t.Fatal("expected instance identifier")
	}
}
