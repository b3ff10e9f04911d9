package hearings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AcquireLease attempts to claim a hearing for the given owner. The claim is
// a single guarded UPDATE so exactly one caller wins when several race for
// the same row; an expired lease is claimable by any owner.
func (s *Store) AcquireLease(ctx context.Context, id int64, owner string, ttl time.Duration) (bool, error) {
	if owner == "" {
		return false, errors.New("lease owner is required")
	}
	if ttl <= 0 {
		return false, errors.New("lease ttl must be positive")
	}
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE hearings
         SET lock_owner = ?, lock_expires_at = ?, updated_at = ?
         WHERE id = ?
           AND (lock_owner IS NULL OR lock_expires_at IS NULL OR lock_expires_at < ?)`,
		owner,
		formatTime(now.Add(ttl)),
		formatTime(now),
		id,
		formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// RenewLease extends a lease the owner still holds. A false return means the
// lease was lost and the caller must stop mutating the hearing.
func (s *Store) RenewLease(ctx context.Context, id int64, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE hearings
         SET lock_expires_at = ?, updated_at = ?
         WHERE id = ? AND lock_owner = ?`,
		formatTime(now.Add(ttl)),
		formatTime(now),
		id,
		owner,
	)
	if err != nil {
		return false, fmt.Errorf("renew lease: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ReleaseLease clears a lease held by the owner. Releasing a lease that was
// already reclaimed is a no-op.
func (s *Store) ReleaseLease(ctx context.Context, id int64, owner string) error {
	now := formatTime(time.Now().UTC())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE hearings
         SET lock_owner = NULL, lock_expires_at = NULL, updated_at = ?
         WHERE id = ? AND lock_owner = ?`,
		now,
		id,
		owner,
	); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// NextEligible returns the oldest hearing ready for dispatch at one of the
// given stages: not stalled, unlocked or lease-expired, and past any retry
// backoff gate.
func (s *Store) NextEligible(ctx context.Context, stages ...Stage) (*Hearing, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	placeholders := makePlaceholders(len(stages))
	now := formatTime(time.Now().UTC())
	args := make([]any, 0, len(stages)+2)
	for _, stage := range stages {
		args = append(args, stage)
	}
	args = append(args, now, now)

	query := `SELECT ` + hearingColumns + ` FROM hearings
        WHERE stage IN (` + placeholders + `)
          AND stalled = 0
          AND (lock_owner IS NULL OR lock_expires_at IS NULL OR lock_expires_at < ?)
          AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
        ORDER BY created_at LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, args...)
	hearing, err := scanHearing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next eligible hearing: %w", err)
	}
	return hearing, nil
}

// ExpireAbandonedLeases clears leases whose expiry has passed, typically
// after a crashed run. The eligibility query already treats them as free;
// this keeps status output honest.
func (s *Store) ExpireAbandonedLeases(ctx context.Context) (int64, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE hearings
         SET lock_owner = NULL, lock_expires_at = NULL, updated_at = ?
         WHERE lock_owner IS NOT NULL AND lock_expires_at IS NOT NULL AND lock_expires_at < ?`,
		now,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("expire abandoned leases: %w", err)
	}
	return res.RowsAffected()
}
