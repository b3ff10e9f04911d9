package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/services"
)

// cleanupTimeout bounds the store writes that settle an attempt after its
// stage action returns. They run on a detached context so a daemon shutdown
// still closes attempts and releases leases.
const cleanupTimeout = 10 * time.Second

func (m *Manager) processHearing(ctx context.Context, id int64, lane, owner string) {
	defer m.clearPending(id)

	hearing, err := m.store.GetByID(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.setLastError(err)
		m.logger.Error("failed to load hearing for dispatch",
			logging.Error(err),
			logging.Int64(logging.FieldHearingID, id),
		)
		return
	}
	if hearing == nil || hearing.Stalled {
		return
	}
	bound, ok := m.handlerFor(hearing.Stage)
	if !ok {
		return
	}

	won, err := m.store.AcquireLease(ctx, hearing.ID, owner, m.leaseTTL)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.setLastError(err)
		m.logger.Error("failed to acquire lease",
			logging.Error(err),
			logging.Int64(logging.FieldHearingID, hearing.ID),
		)
		return
	}
	if !won {
		return
	}
	hearing.LockOwner = owner

	m.runStage(ctx, hearing, bound, lane, owner)
}

// runStage drives one attempt: open the attempt row, run the stage action
// under a renewed lease, then settle the outcome. The lease is always
// released on the way out, even when ctx is already cancelled.
func (m *Manager) runStage(ctx context.Context, hearing *hearings.Hearing, bound boundStage, lane, owner string) {
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := m.store.ReleaseLease(releaseCtx, hearing.ID, owner); err != nil {
			m.logger.Warn("failed to release lease",
				logging.Error(err),
				logging.Int64(logging.FieldHearingID, hearing.ID),
			)
		}
	}()

	stageCtx, cancelStage := context.WithCancel(ctx)
	defer cancelStage()
	m.trackInflight(hearing.ID, cancelStage)
	defer m.untrackInflight(hearing.ID)

	stageCtx = services.WithHearingID(stageCtx, hearing.ID)
	stageCtx = services.WithStage(stageCtx, bound.name)
	stageCtx = services.WithLane(stageCtx, lane)
	stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	stageLogger := logging.WithContext(stageCtx, m.logger)
	if aware, ok := bound.handler.(loggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	attemptID, err := m.store.OpenAttempt(ctx, hearing.ID, hearing.Stage)
	if err != nil {
		m.setLastError(err)
		stageLogger.Error("failed to open attempt", logging.Error(err))
		return
	}

	var leaseLost atomic.Bool
	renewDone := make(chan struct{})
	renewCtx, stopRenewal := context.WithCancel(ctx)
	defer stopRenewal()
	go m.renewLease(renewCtx, hearing.ID, owner, &leaseLost, cancelStage, renewDone, stageLogger)

	started := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("title", hearing.Title),
	)

	execErr := bound.handler.Prepare(stageCtx, hearing)
	if execErr == nil {
		execErr = bound.handler.Execute(stageCtx, hearing)
	}

	stopRenewal()
	<-renewDone

	cleanupCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	switch {
	case leaseLost.Load():
		m.closeAttempt(cleanupCtx, attemptID, hearings.OutcomeFailure, "lock_contention", "lease lost during execution", stageLogger)
		stageLogger.Warn("stage abandoned after losing lease",
			logging.String(logging.FieldEventType, "lease_lost"),
			logging.Duration("stage_duration", time.Since(started)),
		)
	case services.IsCancellation(execErr):
		m.closeAttempt(cleanupCtx, attemptID, hearings.OutcomeCancelled, "", "", stageLogger)
		stageLogger.Info("stage cancelled",
			logging.String(logging.FieldEventType, "stage_cancelled"),
			logging.Duration("stage_duration", time.Since(started)),
		)
	case execErr != nil:
		m.handleStageFailure(cleanupCtx, hearing, bound, attemptID, execErr, stageLogger)
	default:
		next, _ := hearing.Stage.Next()
		if err := m.store.AdvanceStage(cleanupCtx, hearing, next); err != nil {
			if errors.Is(err, hearings.ErrLeaseLost) {
				m.closeAttempt(cleanupCtx, attemptID, hearings.OutcomeFailure, "lock_contention", "lease lost before advancing", stageLogger)
				stageLogger.Warn("stage finished but lease was lost",
					logging.String(logging.FieldEventType, "lease_lost"),
				)
				return
			}
			m.setLastError(err)
			m.closeAttempt(cleanupCtx, attemptID, hearings.OutcomeFailure, "transient", err.Error(), stageLogger)
			stageLogger.Error("failed to advance stage", logging.Error(err))
			return
		}
		m.closeAttempt(cleanupCtx, attemptID, hearings.OutcomeSuccess, "", "", stageLogger)
		stageLogger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("next_stage", string(hearing.Stage)),
			logging.Duration("stage_duration", time.Since(started)),
		)
	}
}

// renewLease keeps the worker's lease fresh while the stage action runs.
// Losing the lease means another instance may own the hearing now, so the
// stage action is cancelled rather than allowed to keep mutating.
func (m *Manager) renewLease(ctx context.Context, hearingID int64, owner string, lost *atomic.Bool, cancelStage context.CancelFunc, done chan<- struct{}, logger *slog.Logger) {
	defer close(done)
	ticker := time.NewTicker(m.renewInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		renewed, err := m.store.RenewLease(ctx, hearingID, owner, m.leaseTTL)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("lease renewal failed", logging.Error(err))
			continue
		}
		if !renewed {
			lost.Store(true)
			logger.Warn("lease no longer held; cancelling stage action",
				logging.String(logging.FieldEventType, "lease_lost"),
			)
			cancelStage()
			return
		}
	}
}

func (m *Manager) handleStageFailure(ctx context.Context, hearing *hearings.Hearing, bound boundStage, attemptID int64, execErr error, logger *slog.Logger) {
	details := services.Details(execErr)
	message := details.Message
	if message == "" {
		message = execErr.Error()
	}
	if message == "" {
		message = bound.name + " failed"
	}
	m.closeAttempt(ctx, attemptID, hearings.OutcomeFailure, details.Kind, message, logger)

	failures := hearing.AttemptCount + 1
	maxAttempts := m.cfg.Pipeline.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	stall := failures >= maxAttempts
	var nextAttempt *time.Time
	if !stall {
		at := time.Now().UTC().Add(m.retryDelay(failures))
		nextAttempt = &at
	}

	if err := m.store.RecordFailure(ctx, hearing, message, nextAttempt, stall); err != nil {
		if errors.Is(err, hearings.ErrLeaseLost) {
			logger.Warn("failure not recorded; lease was lost",
				logging.String(logging.FieldEventType, "lease_lost"),
			)
			return
		}
		m.setLastError(err)
		logger.Error("failed to record stage failure", logging.Error(err))
		return
	}
	m.setLastError(execErr)

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_kind", details.Kind),
		logging.String("error_message", message),
		logging.Int("attempt_count", failures),
		logging.Error(execErr),
	}
	if stall {
		attrs = append(attrs, logging.Alert("hearing_stalled"))
		logger.Error("hearing stalled after repeated failures", logging.Args(attrs...)...)
		m.notifyStalled(ctx, hearing, message)
		return
	}
	attrs = append(attrs, logging.Duration("retry_in", time.Until(*nextAttempt)))
	logger.Warn("stage failed; retry scheduled", logging.Args(attrs...)...)
}

func (m *Manager) notifyStalled(ctx context.Context, hearing *hearings.Hearing, message string) {
	if m.notifier == nil {
		return
	}
	err := m.notifier.Publish(ctx, notifications.EventHearingStalled, notifications.Payload{
		"title": hearing.Title,
		"stage": string(hearing.Stage),
		"error": message,
	})
	if err != nil {
		m.logger.Warn("failed to send stalled notification", logging.Error(err))
	}
}

func (m *Manager) closeAttempt(ctx context.Context, attemptID int64, outcome hearings.Outcome, errorKind, errorMessage string, logger *slog.Logger) {
	if err := m.store.CloseAttempt(ctx, attemptID, outcome, errorKind, errorMessage); err != nil {
		logger.Warn("failed to close attempt",
			logging.Error(err),
			logging.Int64("attempt_id", attemptID),
		)
	}
}
