package hearings

import (
	"database/sql"
	"errors"
	"time"
)

const hearingColumns = "id, committee_code, title, hearing_date, source_url, stage, stalled, manifest_url, manifest_kind, audio_path, audio_fingerprint, transcript_path, error_message, lock_owner, lock_expires_at, attempt_count, next_attempt_at, metadata_json, created_at, updated_at"

const attemptColumns = "id, hearing_id, stage, started_at, ended_at, outcome, error_kind, error_message"

func scanHearing(scanner interface{ Scan(dest ...any) error }) (*Hearing, error) {
	var (
		id            int64
		committeeCode sql.NullString
		title         sql.NullString
		hearingDate   sql.NullString
		sourceURL     sql.NullString
		stageStr      string
		stalled       sql.NullInt64
		manifestURL   sql.NullString
		manifestKind  sql.NullString
		audioPath     sql.NullString
		fingerprint   sql.NullString
		transcript    sql.NullString
		errorMessage  sql.NullString
		lockOwner     sql.NullString
		lockExpiresRaw sql.NullString
		attemptCount  sql.NullInt64
		nextAttemptRaw sql.NullString
		metadata      sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&committeeCode,
		&title,
		&hearingDate,
		&sourceURL,
		&stageStr,
		&stalled,
		&manifestURL,
		&manifestKind,
		&audioPath,
		&fingerprint,
		&transcript,
		&errorMessage,
		&lockOwner,
		&lockExpiresRaw,
		&attemptCount,
		&nextAttemptRaw,
		&metadata,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	hearing := &Hearing{
		ID:               id,
		CommitteeCode:    committeeCode.String,
		Title:            title.String,
		HearingDate:      hearingDate.String,
		SourceURL:        sourceURL.String,
		Stage:            Stage(stageStr),
		ManifestURL:      manifestURL.String,
		ManifestKind:     manifestKind.String,
		AudioPath:        audioPath.String,
		AudioFingerprint: fingerprint.String,
		TranscriptPath:   transcript.String,
		ErrorMessage:     errorMessage.String,
		LockOwner:        lockOwner.String,
		MetadataJSON:     metadata.String,
	}
	if stalled.Valid {
		hearing.Stalled = stalled.Int64 != 0
	}
	if attemptCount.Valid {
		hearing.AttemptCount = int(attemptCount.Int64)
	}
	if lockExpiresRaw.Valid {
		if expires, err := parseTimeString(lockExpiresRaw.String); err == nil {
			hearing.LockExpiresAt = &expires
		}
	}
	if nextAttemptRaw.Valid {
		if next, err := parseTimeString(nextAttemptRaw.String); err == nil {
			hearing.NextAttemptAt = &next
		}
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		hearing.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		hearing.UpdatedAt = updated
	}
	return hearing, nil
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (*Attempt, error) {
	var (
		id           int64
		hearingID    int64
		stageStr     string
		startedRaw   sql.NullString
		endedRaw     sql.NullString
		outcome      sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&hearingID,
		&stageStr,
		&startedRaw,
		&endedRaw,
		&outcome,
		&errorKind,
		&errorMessage,
	); err != nil {
		return nil, err
	}

	attempt := &Attempt{
		ID:           id,
		HearingID:    hearingID,
		Stage:        Stage(stageStr),
		Outcome:      Outcome(outcome.String),
		ErrorKind:    errorKind.String,
		ErrorMessage: errorMessage.String,
	}
	if started, err := parseTimeString(startedRaw.String); err == nil {
		attempt.StartedAt = started
	}
	if endedRaw.Valid {
		if ended, err := parseTimeString(endedRaw.String); err == nil {
			attempt.EndedAt = &ended
		}
	}
	return attempt, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
