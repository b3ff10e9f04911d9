package pipeline

import (
	"context"
	"fmt"

	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/services"
	"gavel/internal/stage"
)

// RequestStage runs the stage action that advances the hearing to target,
// outside the normal poll cadence. Requests for a stage the hearing already
// reached are accepted as no-ops. The attempt itself runs asynchronously;
// a nil return means the request was accepted, not that the stage finished.
func (m *Manager) RequestStage(ctx context.Context, id int64, target hearings.Stage) error {
	if !target.Valid() {
		return services.Wrap(services.ErrValidation, "", "request_stage",
			fmt.Sprintf("unknown stage %q", string(target)), nil)
	}

	hearing, err := m.store.GetByID(ctx, id)
	if err != nil {
		return services.Wrap(services.ErrTransient, "", "request_stage", "failed to load hearing", err)
	}
	if hearing == nil {
		return services.Wrap(services.ErrNotFound, "", "request_stage",
			fmt.Sprintf("hearing %d not found", id), nil)
	}
	if hearing.Stage.AtLeast(target) {
		m.logger.Debug("stage request already satisfied",
			logging.Int64(logging.FieldHearingID, id),
			logging.String("target", string(target)),
		)
		return nil
	}
	if next, ok := hearing.Stage.Next(); !ok || next != target {
		return services.Wrap(services.ErrValidation, "", "request_stage",
			fmt.Sprintf("cannot skip from %s to %s; request %s instead", hearing.Stage, target, next), nil)
	}
	if hearing.Stalled {
		return services.Wrap(services.ErrStalled, "", "request_stage",
			fmt.Sprintf("hearing %d is stalled; reset it to resume processing", id), nil)
	}
	bound, ok := m.handlerFor(hearing.Stage)
	if !ok {
		return services.Wrap(services.ErrValidation, "", "request_stage",
			fmt.Sprintf("no handler bound for stage %s", hearing.Stage), nil)
	}

	m.mu.RLock()
	running := m.running
	m.mu.RUnlock()
	if !running {
		return services.Wrap(services.ErrValidation, "", "request_stage", "pipeline is not running", nil)
	}

	owner := m.instance + "/request"
	won, err := m.store.AcquireLease(ctx, hearing.ID, owner, m.leaseTTL)
	if err != nil {
		return services.Wrap(services.ErrTransient, "", "request_stage", "failed to acquire lease", err)
	}
	if !won {
		return services.Wrap(services.ErrLockContention, bound.name, "request_stage",
			fmt.Sprintf("hearing %d is locked by another worker", id), nil)
	}
	hearing.LockOwner = owner

	// Recheck under the lock so the goroutine never races a completed Stop;
	// running is flipped before Stop waits on the group.
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		releaseCtx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if releaseErr := m.store.ReleaseLease(releaseCtx, hearing.ID, owner); releaseErr != nil {
			m.logger.Warn("failed to release lease", logging.Error(releaseErr))
		}
		return services.Wrap(services.ErrValidation, "", "request_stage", "pipeline is not running", nil)
	}
	runCtx := m.runCtx
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("stage request accepted",
		logging.String(logging.FieldEventType, "stage_requested"),
		logging.Int64(logging.FieldHearingID, id),
		logging.String("target", string(target)),
	)
	go func() {
		defer m.wg.Done()
		m.runStage(runCtx, hearing, bound, "request", owner)
	}()
	return nil
}

// Cancel aborts the in-flight attempt for the hearing, if any. The attempt
// is recorded as cancelled and does not count against the retry budget.
func (m *Manager) Cancel(id int64) error {
	m.mu.RLock()
	cancel, ok := m.inflight[id]
	m.mu.RUnlock()
	if !ok {
		return services.Wrap(services.ErrValidation, "", "cancel",
			fmt.Sprintf("hearing %d has no attempt in flight", id), nil)
	}
	m.logger.Info("cancellation requested",
		logging.String(logging.FieldEventType, "stage_cancel_requested"),
		logging.Int64(logging.FieldHearingID, id),
	)
	cancel()
	return nil
}

// StatusReport describes one hearing for operator inspection.
type StatusReport struct {
	Hearing     *hearings.Hearing
	InFlight    bool
	LastAttempt *hearings.Attempt
}

// GetStatus loads the hearing plus its most recent attempt record.
func (m *Manager) GetStatus(ctx context.Context, id int64) (*StatusReport, error) {
	hearing, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "status", "failed to load hearing", err)
	}
	if hearing == nil {
		return nil, services.Wrap(services.ErrNotFound, "", "status",
			fmt.Sprintf("hearing %d not found", id), nil)
	}
	attempt, err := m.store.LastAttempt(ctx, id)
	if err != nil {
		m.logger.Warn("failed to load last attempt",
			logging.Error(err),
			logging.Int64(logging.FieldHearingID, id),
		)
		attempt = nil
	}
	m.mu.RLock()
	_, inflight := m.inflight[id]
	m.mu.RUnlock()
	return &StatusReport{Hearing: hearing, InFlight: inflight, LastAttempt: attempt}, nil
}

// Summary is the daemon-wide status view.
type Summary struct {
	Running      bool
	Instance     string
	StageCounts  map[hearings.Stage]int
	StalledCount int
	InFlight     int
	LastError    string
	StageHealth  map[string]stage.Health
}

// Status assembles queue counts and per-handler health. Store errors degrade
// the summary instead of failing it; status must stay usable while the
// database is misbehaving.
func (m *Manager) Status(ctx context.Context) Summary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	inflight := len(m.inflight)
	bounds := make([]boundStage, 0, len(m.handlers))
	for _, bound := range m.handlers {
		bounds = append(bounds, bound)
	}
	m.mu.RUnlock()

	summary := Summary{
		Running:     running,
		Instance:    m.instance,
		InFlight:    inflight,
		StageHealth: make(map[string]stage.Health, len(bounds)),
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}

	counts, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read stage counts", logging.Error(err))
	} else {
		summary.StageCounts = counts
	}
	stalled, err := m.store.StalledCount(ctx)
	if err != nil {
		m.logger.Warn("failed to count stalled hearings", logging.Error(err))
	} else {
		summary.StalledCount = stalled
	}
	for _, bound := range bounds {
		summary.StageHealth[bound.name] = bound.handler.HealthCheck(ctx)
	}
	return summary
}
