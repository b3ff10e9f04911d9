package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/pipeline"
	"gavel/internal/review"
	"gavel/internal/roster"
	"gavel/internal/services"
)

const hearingDateLayout = "2006-01-02"

// AddHearing validates and registers a hearing for processing. Registration
// is idempotent on the source URL; the second return reports whether a new
// record was created.
func (d *Daemon) AddHearing(ctx context.Context, req hearings.NewHearing) (*hearings.Hearing, bool, error) {
	if d.store == nil {
		return nil, false, errors.New("hearings store unavailable")
	}

	parsed, err := url.Parse(strings.TrimSpace(req.SourceURL))
	if err != nil {
		return nil, false, fmt.Errorf("parse source url: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, false, fmt.Errorf("source url %q must be an absolute http(s) url", req.SourceURL)
	}

	committee := strings.ToUpper(strings.TrimSpace(req.CommitteeCode))
	if committee == "" {
		return nil, false, errors.New("committee code is required")
	}
	if err := d.checkCommittee(committee); err != nil {
		return nil, false, err
	}
	req.CommitteeCode = committee

	date := strings.TrimSpace(req.HearingDate)
	if date == "" {
		return nil, false, errors.New("hearing date is required")
	}
	if _, err := time.Parse(hearingDateLayout, date); err != nil {
		return nil, false, fmt.Errorf("hearing date %q must use YYYY-MM-DD", date)
	}
	req.HearingDate = date

	hearing, created, err := d.store.Add(ctx, req)
	if err != nil {
		return nil, false, err
	}
	if created {
		d.logger.Info("hearing registered",
			logging.String(logging.FieldEventType, "hearing_added"),
			logging.Int64(logging.FieldHearingID, hearing.ID),
			logging.String("committee", hearing.CommitteeCode),
			logging.String("source_url", hearing.SourceURL),
		)
	}
	return hearing, created, nil
}

// checkCommittee validates the code against the roster when one is
// configured and readable. A missing or broken roster does not block
// registration; preflight reports it separately.
func (d *Daemon) checkCommittee(code string) error {
	path := strings.TrimSpace(d.cfg.Paths.RosterPath)
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	catalog, err := roster.Load(path)
	if err != nil {
		d.logger.Warn("roster unreadable; accepting committee code unchecked", logging.Error(err))
		return nil
	}
	if _, ok := catalog.Committee(code); !ok {
		codes := make([]string, 0, catalog.Len())
		for _, committee := range catalog.Committees() {
			codes = append(codes, committee.Code)
		}
		return fmt.Errorf("committee %q is not in the roster (known: %s)", code, strings.Join(codes, ", "))
	}
	return nil
}

// ListHearings returns hearings filtered by optional stages, or only the
// stalled ones.
func (d *Daemon) ListHearings(ctx context.Context, stages []hearings.Stage, stalledOnly bool) ([]*hearings.Hearing, error) {
	if d.store == nil {
		return nil, errors.New("hearings store unavailable")
	}
	if stalledOnly {
		return d.store.ListStalled(ctx)
	}
	return d.store.List(ctx, stages...)
}

// SearchHearings matches against titles, committees, and source URLs.
func (d *Daemon) SearchHearings(ctx context.Context, query string) ([]*hearings.Hearing, error) {
	if d.store == nil {
		return nil, errors.New("hearings store unavailable")
	}
	return d.store.Search(ctx, query)
}

// GetHearing fetches one hearing; a missing id returns (nil, nil).
func (d *Daemon) GetHearing(ctx context.Context, id int64) (*hearings.Hearing, error) {
	if d.store == nil {
		return nil, errors.New("hearings store unavailable")
	}
	return d.store.GetByID(ctx, id)
}

// Attempts returns the attempt history for a hearing.
func (d *Daemon) Attempts(ctx context.Context, id int64) ([]*hearings.Attempt, error) {
	if d.store == nil {
		return nil, errors.New("hearings store unavailable")
	}
	hearing, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if hearing == nil {
		return nil, fmt.Errorf("hearing %d not found", id)
	}
	return d.store.ListAttempts(ctx, id)
}

// Approve records operator approval on a transcribed hearing and asks the
// pipeline to run the review stage. Approving an already reviewed or
// published hearing is a no-op.
func (d *Daemon) Approve(ctx context.Context, id int64) (*hearings.Hearing, error) {
	if d.store == nil {
		return nil, errors.New("hearings store unavailable")
	}
	hearing, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if hearing == nil {
		return nil, fmt.Errorf("hearing %d not found", id)
	}
	if hearing.Stage.AtLeast(hearings.StageReviewed) {
		return hearing, nil
	}
	if hearing.Stage != hearings.StageTranscribed {
		return nil, fmt.Errorf("hearing %d is at %s; approval applies once transcription finishes", id, hearing.Stage)
	}
	if hearing.Stalled {
		return nil, fmt.Errorf("hearing %d is stalled; reset it before approving", id)
	}

	review.RecordApproval(hearing, time.Now().UTC())
	if err := d.store.Update(ctx, hearing); err != nil {
		return nil, fmt.Errorf("persist approval: %w", err)
	}
	d.logger.Info("hearing approved",
		logging.String(logging.FieldEventType, "hearing_approved"),
		logging.Int64(logging.FieldHearingID, id),
	)

	// A lease held by a concurrent review worker is fine; its next attempt
	// reads the recorded approval.
	if err := d.pipeline.RequestStage(ctx, id, hearings.StageReviewed); err != nil {
		if errors.Is(err, services.ErrLockContention) {
			return hearing, nil
		}
		return nil, err
	}
	return hearing, nil
}

// RequestStage asks the pipeline to run the action advancing the hearing to
// the target stage.
func (d *Daemon) RequestStage(ctx context.Context, id int64, target hearings.Stage) error {
	return d.pipeline.RequestStage(ctx, id, target)
}

// CancelAttempt aborts the in-flight attempt for the hearing, if any.
func (d *Daemon) CancelAttempt(id int64) error {
	return d.pipeline.Cancel(id)
}

// HearingStatus reports the pipeline's view of one hearing.
func (d *Daemon) HearingStatus(ctx context.Context, id int64) (*pipeline.StatusReport, error) {
	return d.pipeline.GetStatus(ctx, id)
}

// ResetStalled clears the stall flag and retry bookkeeping so attempts
// resume at the current stage. With no ids, every stalled hearing is reset.
// Hearings under a live lease are skipped.
func (d *Daemon) ResetStalled(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("hearings store unavailable")
	}
	if len(ids) == 0 {
		stalled, err := d.store.ListStalled(ctx)
		if err != nil {
			return 0, err
		}
		for _, hearing := range stalled {
			ids = append(ids, hearing.ID)
		}
	}
	var updated int64
	for _, id := range ids {
		hearing, err := d.store.GetByID(ctx, id)
		if err != nil {
			return updated, err
		}
		if hearing == nil {
			continue
		}
		ok, err := d.store.ResetToStage(ctx, id, hearing.Stage)
		if err != nil {
			return updated, err
		}
		if ok {
			updated++
		}
	}
	if updated > 0 {
		d.logger.Info("hearings reset",
			logging.String(logging.FieldEventType, "hearings_reset"),
			logging.Int64("updated_count", updated),
		)
	}
	return updated, nil
}

// ResetToStage moves one hearing backward (or clears its stall in place)
// for reprocessing. Forward targets are refused; advance exists for that.
func (d *Daemon) ResetToStage(ctx context.Context, id int64, target hearings.Stage) error {
	if d.store == nil {
		return errors.New("hearings store unavailable")
	}
	if !target.Valid() {
		return fmt.Errorf("unknown stage %q", target)
	}
	hearing, err := d.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if hearing == nil {
		return fmt.Errorf("hearing %d not found", id)
	}
	if hearing.Stage.Before(target) {
		return fmt.Errorf("reset cannot move hearing %d forward from %s to %s; use advance", id, hearing.Stage, target)
	}
	ok, err := d.store.ResetToStage(ctx, id, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("hearing %d is being processed; try again shortly", id)
	}
	d.logger.Info("hearing reset",
		logging.String(logging.FieldEventType, "hearing_reset"),
		logging.Int64(logging.FieldHearingID, id),
		logging.String("target", string(target)),
	)
	return nil
}

// RemoveHearing deletes a hearing record. Removal is refused while an
// attempt is in flight or a live lease exists. Artifacts on disk are left
// alone.
func (d *Daemon) RemoveHearing(ctx context.Context, id int64) (bool, error) {
	if d.store == nil {
		return false, errors.New("hearings store unavailable")
	}
	removed, err := d.store.Remove(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		d.logger.Info("hearing removed",
			logging.String(logging.FieldEventType, "hearing_removed"),
			logging.Int64(logging.FieldHearingID, id),
		)
	}
	return removed, nil
}

// TestNotification sends a probe through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if d.cfg == nil {
		return false, "configuration unavailable", errors.New("configuration unavailable")
	}
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Test(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// HearingsHealth returns aggregate queue diagnostics.
func (d *Daemon) HearingsHealth(ctx context.Context) (hearings.HealthSummary, error) {
	if d.store == nil {
		return hearings.HealthSummary{}, errors.New("hearings store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (hearings.DatabaseHealth, error) {
	if d.store == nil {
		return hearings.DatabaseHealth{}, errors.New("hearings store unavailable")
	}
	return d.store.CheckHealth(ctx)
}
