package hearings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// OpenAttempt appends a processing attempt record for a stage action that is
// beginning now.
func (s *Store) OpenAttempt(ctx context.Context, hearingID int64, stage Stage) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO processing_attempts (hearing_id, stage, started_at) VALUES (?, ?, ?)`,
		hearingID,
		stage,
		formatTime(time.Now().UTC()),
	)
	if err != nil {
		return 0, fmt.Errorf("open attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// CloseAttempt finalizes an open attempt with its outcome. Closing an
// already-closed attempt is a no-op.
func (s *Store) CloseAttempt(ctx context.Context, attemptID int64, outcome Outcome, errorKind, errorMessage string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE processing_attempts
         SET ended_at = ?, outcome = ?, error_kind = ?, error_message = ?
         WHERE id = ? AND ended_at IS NULL`,
		formatTime(time.Now().UTC()),
		outcome,
		nullableString(errorKind),
		nullableString(errorMessage),
		attemptID,
	); err != nil {
		return fmt.Errorf("close attempt: %w", err)
	}
	return nil
}

// LastAttempt returns the most recent attempt for a hearing, open or closed.
func (s *Store) LastAttempt(ctx context.Context, hearingID int64) (*Attempt, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+attemptColumns+` FROM processing_attempts WHERE hearing_id = ? ORDER BY id DESC LIMIT 1`,
		hearingID,
	)
	attempt, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last attempt: %w", err)
	}
	return attempt, nil
}

// ListAttempts returns the full attempt history for a hearing in execution
// order.
func (s *Store) ListAttempts(ctx context.Context, hearingID int64) ([]*Attempt, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+attemptColumns+` FROM processing_attempts WHERE hearing_id = ? ORDER BY id`,
		hearingID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// CountOpenAttempts reports how many attempts for a hearing have not ended.
// A healthy pipeline keeps this at zero or one.
func (s *Store) CountOpenAttempts(ctx context.Context, hearingID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM processing_attempts WHERE hearing_id = ? AND ended_at IS NULL`,
		hearingID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count open attempts: %w", err)
	}
	return count, nil
}

// CloseInterruptedAttempts finalizes attempts left open by a previous run.
// It runs during startup maintenance before any worker starts.
func (s *Store) CloseInterruptedAttempts(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE processing_attempts
         SET ended_at = ?, outcome = ?, error_kind = 'interrupted', error_message = 'daemon stopped while the attempt was running'
         WHERE ended_at IS NULL`,
		formatTime(time.Now().UTC()),
		OutcomeFailure,
	)
	if err != nil {
		return 0, fmt.Errorf("close interrupted attempts: %w", err)
	}
	return res.RowsAffected()
}
