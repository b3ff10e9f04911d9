package hearings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLeaseLost indicates a guarded write found the caller no longer owns the
// hearing, either because the lease expired and was reclaimed or because the
// row changed underneath it.
var ErrLeaseLost = errors.New("hearing lease lost")

// AdvanceStage moves a hearing exactly one step forward and persists the
// artifact fields the stage action produced. The write is guarded by the
// caller's lease and the expected current stage, so a reclaimed lease can
// never regress or double-apply a transition. Retry bookkeeping resets on
// success.
func (s *Store) AdvanceStage(ctx context.Context, hearing *Hearing, to Stage) error {
	if hearing == nil {
		return errors.New("hearing is nil")
	}
	if hearing.LockOwner == "" {
		return errors.New("advance requires a held lease")
	}
	next, ok := hearing.Stage.Next()
	if !ok || next != to {
		return fmt.Errorf("invalid stage transition from %s to %s", hearing.Stage, to)
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE hearings
         SET stage = ?, title = ?, hearing_date = ?,
             manifest_url = ?, manifest_kind = ?, audio_path = ?,
             audio_fingerprint = ?, transcript_path = ?, metadata_json = ?,
             error_message = NULL, attempt_count = 0, next_attempt_at = NULL,
             updated_at = ?
         WHERE id = ? AND lock_owner = ? AND stage = ?`,
		to,
		hearing.Title,
		hearing.HearingDate,
		nullableString(hearing.ManifestURL),
		nullableString(hearing.ManifestKind),
		nullableString(hearing.AudioPath),
		nullableString(hearing.AudioFingerprint),
		nullableString(hearing.TranscriptPath),
		nullableString(hearing.MetadataJSON),
		formatTime(now),
		hearing.ID,
		hearing.LockOwner,
		hearing.Stage,
	)
	if err != nil {
		return fmt.Errorf("advance stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrLeaseLost
	}

	hearing.Stage = to
	hearing.AttemptCount = 0
	hearing.NextAttemptAt = nil
	hearing.ErrorMessage = ""
	hearing.UpdatedAt = now
	return nil
}

// RecordFailure increments the consecutive-failure counter for the current
// stage, stores the failure message, and applies the retry gate. When
// stalled is true the hearing leaves automatic scheduling until an operator
// resets it. The write is guarded by the caller's lease.
func (s *Store) RecordFailure(ctx context.Context, hearing *Hearing, message string, nextAttempt *time.Time, stalled bool) error {
	if hearing == nil {
		return errors.New("hearing is nil")
	}
	if hearing.LockOwner == "" {
		return errors.New("recording a failure requires a held lease")
	}

	now := time.Now().UTC()
	res, err := s.execWithRetry(
		ctx,
		`UPDATE hearings
         SET attempt_count = attempt_count + 1, error_message = ?,
             next_attempt_at = ?, stalled = ?, metadata_json = ?, updated_at = ?
         WHERE id = ? AND lock_owner = ?`,
		nullableString(message),
		nullableTime(nextAttempt),
		boolToInt(stalled),
		nullableString(hearing.MetadataJSON),
		formatTime(now),
		hearing.ID,
		hearing.LockOwner,
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrLeaseLost
	}

	hearing.AttemptCount++
	hearing.ErrorMessage = message
	hearing.NextAttemptAt = nextAttempt
	hearing.Stalled = stalled
	hearing.UpdatedAt = now
	return nil
}

// ResetToStage is the operator escape hatch: it clears the stall flag and
// retry bookkeeping and, when target precedes the current stage, moves the
// hearing backward for reprocessing. It refuses to touch a hearing under a
// live lease. Artifacts from later stages are left in place; rerun stages
// overwrite them.
func (s *Store) ResetToStage(ctx context.Context, id int64, target Stage) (bool, error) {
	if !target.Valid() {
		return false, fmt.Errorf("unknown stage %q", target)
	}
	now := formatTime(time.Now().UTC())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE hearings
         SET stage = ?, stalled = 0, attempt_count = 0, next_attempt_at = NULL,
             error_message = NULL, lock_owner = NULL, lock_expires_at = NULL,
             updated_at = ?
         WHERE id = ? AND (lock_owner IS NULL OR lock_expires_at IS NULL OR lock_expires_at < ?)`,
		target,
		now,
		id,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("reset hearing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
