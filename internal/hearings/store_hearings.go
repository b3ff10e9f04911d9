package hearings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const sqliteConstraintCode = 19

func isSQLiteConstraint(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteConstraintCode {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Add registers a hearing. When the source URL is already tracked the
// existing row is returned and created is false.
func (s *Store) Add(ctx context.Context, req NewHearing) (*Hearing, bool, error) {
	sourceURL := strings.TrimSpace(req.SourceURL)
	if sourceURL == "" {
		return nil, false, errors.New("source url is required")
	}
	if existing, err := s.GetBySourceURL(ctx, sourceURL); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO hearings (
            committee_code, title, hearing_date, source_url, stage, stalled,
            attempt_count, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		strings.TrimSpace(req.CommitteeCode),
		strings.TrimSpace(req.Title),
		strings.TrimSpace(req.HearingDate),
		sourceURL,
		StageDiscovered,
		timestamp,
		timestamp,
	)
	if err != nil {
		if isSQLiteConstraint(err) {
			existing, lookupErr := s.GetBySourceURL(ctx, sourceURL)
			if lookupErr == nil && existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("insert hearing: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}

	hearing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return hearing, true, nil
}

// GetByID fetches a hearing by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Hearing, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+hearingColumns+` FROM hearings WHERE id = ?`, id)
	hearing, err := scanHearing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hearing: %w", err)
	}
	return hearing, nil
}

// GetBySourceURL fetches the hearing tracking a source page, if any.
func (s *Store) GetBySourceURL(ctx context.Context, sourceURL string) (*Hearing, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+hearingColumns+` FROM hearings WHERE source_url = ? ORDER BY id LIMIT 1`,
		sourceURL,
	)
	hearing, err := scanHearing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get hearing by source url: %w", err)
	}
	return hearing, nil
}

// Update persists descriptive, artifact, and metadata changes to a hearing.
// Stage, stall, lease, and retry bookkeeping move only through the guarded
// transition operations.
func (s *Store) Update(ctx context.Context, hearing *Hearing) error {
	if hearing == nil {
		return errors.New("hearing is nil")
	}
	hearing.UpdatedAt = time.Now().UTC()
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE hearings
         SET committee_code = ?, title = ?, hearing_date = ?,
             manifest_url = ?, manifest_kind = ?, audio_path = ?,
             audio_fingerprint = ?, transcript_path = ?, error_message = ?,
             metadata_json = ?, updated_at = ?
         WHERE id = ?`,
		hearing.CommitteeCode,
		hearing.Title,
		hearing.HearingDate,
		nullableString(hearing.ManifestURL),
		nullableString(hearing.ManifestKind),
		nullableString(hearing.AudioPath),
		nullableString(hearing.AudioFingerprint),
		nullableString(hearing.TranscriptPath),
		nullableString(hearing.ErrorMessage),
		nullableString(hearing.MetadataJSON),
		hearing.UpdatedAt.Format(time.RFC3339Nano),
		hearing.ID,
	); err != nil {
		return fmt.Errorf("update hearing: %w", err)
	}
	return nil
}

// List returns hearings filtered by stage set (or all hearings when no stage
// is provided) ordered by creation time.
func (s *Store) List(ctx context.Context, stages ...Stage) ([]*Hearing, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + hearingColumns + ` FROM hearings`
	orderClause := ` ORDER BY created_at`

	if len(stages) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(stages))
		args := make([]any, len(stages))
		for i, stage := range stages {
			args[i] = stage
		}
		query := baseQuery + ` WHERE stage IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list hearings: %w", err)
	}
	defer rows.Close()

	var results []*Hearing
	for rows.Next() {
		hearing, err := scanHearing(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, hearing)
	}
	return results, rows.Err()
}

// ListStalled returns hearings flagged as stalled ordered by creation time.
func (s *Store) ListStalled(ctx context.Context) ([]*Hearing, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+hearingColumns+` FROM hearings WHERE stalled = 1 ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list stalled hearings: %w", err)
	}
	defer rows.Close()

	var results []*Hearing
	for rows.Next() {
		hearing, err := scanHearing(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, hearing)
	}
	return results, rows.Err()
}

// Search returns hearings whose title or committee code matches the query.
func (s *Store) Search(ctx context.Context, query string) ([]*Hearing, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+hearingColumns+` FROM hearings
         WHERE title LIKE ? COLLATE NOCASE OR committee_code LIKE ? COLLATE NOCASE
         ORDER BY created_at`,
		pattern,
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("search hearings: %w", err)
	}
	defer rows.Close()

	var results []*Hearing
	for rows.Next() {
		hearing, err := scanHearing(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, hearing)
	}
	return results, rows.Err()
}

// Remove deletes an unlocked hearing by identifier. Removal is refused while
// a live lease exists.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM hearings WHERE id = ? AND (lock_owner IS NULL OR lock_expires_at IS NULL OR lock_expires_at < ?)`,
		id,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("delete hearing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
