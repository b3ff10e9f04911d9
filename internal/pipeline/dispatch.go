package pipeline

import (
	"context"
	"time"

	"gavel/internal/logging"
)

// pollLoop scans for eligible hearings on a fixed cadence. The first scan
// runs immediately so daemon startup does not wait out a full interval.
func (m *Manager) pollLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		m.dispatchEligible(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// dispatchEligible hands eligible hearings to idle workers until the pool
// saturates or the scan runs dry. Hearings already handed out wait for the
// next tick; by then the worker holds the lease and the scan skips them.
func (m *Manager) dispatchEligible(ctx context.Context) {
	scan := m.scanStages()
	if len(scan) == 0 {
		return
	}
	for {
		hearing, err := m.store.NextEligible(ctx, scan...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setLastError(err)
			m.logger.Error("eligibility scan failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "scan_failed"),
			)
			return
		}
		if hearing == nil {
			return
		}
		if !m.claimPending(hearing.ID) {
			return
		}
		select {
		case m.dispatch <- hearing.ID:
		default:
			m.clearPending(hearing.ID)
			return
		}
	}
}

func (m *Manager) workerLoop(ctx context.Context, lane string) {
	defer m.wg.Done()
	owner := m.instance + "/" + lane
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.dispatch:
			m.processHearing(ctx, id, lane, owner)
		}
	}
}

// leaseSweepLoop clears leases abandoned by crashed workers. The
// eligibility scan already treats expired leases as free; the sweep keeps
// status output honest between scans. Live leases are renewed well inside
// the TTL and are never touched.
func (m *Manager) leaseSweepLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.leaseTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		cleared, err := m.store.ExpireAbandonedLeases(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn("lease sweep failed", logging.Error(err))
			continue
		}
		if cleared > 0 {
			m.logger.Info("cleared abandoned leases",
				logging.String(logging.FieldEventType, "lease_sweep"),
				logging.Int64("count", cleared),
			)
		}
	}
}
