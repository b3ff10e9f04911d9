package ipc

import (
	"encoding/json"

	"gavel/internal/hearings"
)

// dateTimeFormat renders RFC3339 timestamps in IPC payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// HearingSummary describes a hearing in a transport-friendly format.
type HearingSummary struct {
	ID               int64           `json:"id"`
	CommitteeCode    string          `json:"committeeCode"`
	Title            string          `json:"title"`
	HearingDate      string          `json:"hearingDate"`
	SourceURL        string          `json:"sourceUrl"`
	Stage            string          `json:"stage"`
	Stalled          bool            `json:"stalled"`
	ManifestURL      string          `json:"manifestUrl,omitempty"`
	ManifestKind     string          `json:"manifestKind,omitempty"`
	AudioPath        string          `json:"audioPath,omitempty"`
	AudioFingerprint string          `json:"audioFingerprint,omitempty"`
	TranscriptPath   string          `json:"transcriptPath,omitempty"`
	ErrorMessage     string          `json:"errorMessage,omitempty"`
	LockOwner        string          `json:"lockOwner,omitempty"`
	LockExpiresAt    string          `json:"lockExpiresAt,omitempty"`
	AttemptCount     int             `json:"attemptCount"`
	NextAttemptAt    string          `json:"nextAttemptAt,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        string          `json:"createdAt,omitempty"`
	UpdatedAt        string          `json:"updatedAt,omitempty"`
}

// FromHearing converts a stored hearing to its IPC representation.
func FromHearing(hearing *hearings.Hearing) HearingSummary {
	if hearing == nil {
		return HearingSummary{}
	}
	dto := HearingSummary{
		ID:               hearing.ID,
		CommitteeCode:    hearing.CommitteeCode,
		Title:            hearing.Title,
		HearingDate:      hearing.HearingDate,
		SourceURL:        hearing.SourceURL,
		Stage:            string(hearing.Stage),
		Stalled:          hearing.Stalled,
		ManifestURL:      hearing.ManifestURL,
		ManifestKind:     hearing.ManifestKind,
		AudioPath:        hearing.AudioPath,
		AudioFingerprint: hearing.AudioFingerprint,
		TranscriptPath:   hearing.TranscriptPath,
		ErrorMessage:     hearing.ErrorMessage,
		LockOwner:        hearing.LockOwner,
		AttemptCount:     hearing.AttemptCount,
	}
	if hearing.LockExpiresAt != nil {
		dto.LockExpiresAt = hearing.LockExpiresAt.UTC().Format(dateTimeFormat)
	}
	if hearing.NextAttemptAt != nil {
		dto.NextAttemptAt = hearing.NextAttemptAt.UTC().Format(dateTimeFormat)
	}
	if raw := hearing.MetadataJSON; raw != "" {
		dto.Metadata = json.RawMessage(raw)
	}
	if !hearing.CreatedAt.IsZero() {
		dto.CreatedAt = hearing.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !hearing.UpdatedAt.IsZero() {
		dto.UpdatedAt = hearing.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// AttemptSummary describes one execution attempt of a stage action.
type AttemptSummary struct {
	ID           int64  `json:"id"`
	HearingID    int64  `json:"hearingId"`
	Stage        string `json:"stage"`
	StartedAt    string `json:"startedAt,omitempty"`
	EndedAt      string `json:"endedAt,omitempty"`
	Outcome      string `json:"outcome,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// FromAttempt converts an attempt record to its IPC representation.
func FromAttempt(attempt *hearings.Attempt) AttemptSummary {
	if attempt == nil {
		return AttemptSummary{}
	}
	dto := AttemptSummary{
		ID:           attempt.ID,
		HearingID:    attempt.HearingID,
		Stage:        string(attempt.Stage),
		Outcome:      string(attempt.Outcome),
		ErrorKind:    attempt.ErrorKind,
		ErrorMessage: attempt.ErrorMessage,
	}
	if !attempt.StartedAt.IsZero() {
		dto.StartedAt = attempt.StartedAt.UTC().Format(dateTimeFormat)
	}
	if attempt.EndedAt != nil {
		dto.EndedAt = attempt.EndedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// StageHealth mirrors readiness reporting for pipeline stage handlers.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// StartRequest triggers pipeline startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops the pipeline.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse aggregates daemon and pipeline state.
type StatusResponse struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	Instance     string         `json:"instance,omitempty"`
	DatabasePath string         `json:"databasePath"`
	LockPath     string         `json:"lockPath"`
	LogPath      string         `json:"logPath"`
	StageCounts  map[string]int `json:"stageCounts"`
	StalledCount int            `json:"stalledCount"`
	InFlight     int            `json:"inFlight"`
	LastError    string         `json:"lastError,omitempty"`
	StageHealth  []StageHealth  `json:"stageHealth"`
}

// AddRequest registers a hearing for processing.
type AddRequest struct {
	SourceURL     string `json:"sourceUrl"`
	CommitteeCode string `json:"committeeCode"`
	Title         string `json:"title"`
	HearingDate   string `json:"hearingDate"`
}

// AddResponse reports the stored hearing and whether it was newly created.
type AddResponse struct {
	Hearing HearingSummary `json:"hearing"`
	Created bool           `json:"created"`
}

// ListRequest filters the hearing listing. Unknown stage names are ignored.
type ListRequest struct {
	Stages      []string `json:"stages"`
	StalledOnly bool     `json:"stalledOnly"`
}

// ListResponse contains hearings in stage order.
type ListResponse struct {
	Hearings []HearingSummary `json:"hearings"`
}

// SearchRequest matches hearings against title, committee, or source URL.
type SearchRequest struct {
	Query string `json:"query"`
}

// SearchResponse contains matching hearings.
type SearchResponse struct {
	Hearings []HearingSummary `json:"hearings"`
}

// DescribeRequest fetches a single hearing with execution detail.
type DescribeRequest struct {
	ID int64 `json:"id"`
}

// DescribeResponse contains the hearing plus its most recent attempt.
type DescribeResponse struct {
	Hearing     HearingSummary  `json:"hearing"`
	InFlight    bool            `json:"inFlight"`
	LastAttempt *AttemptSummary `json:"lastAttempt,omitempty"`
}

// AdvanceRequest asks the pipeline to run the named stage for a hearing.
type AdvanceRequest struct {
	ID     int64  `json:"id"`
	Target string `json:"target"`
}

// AdvanceResponse reports whether the request was accepted.
type AdvanceResponse struct {
	Accepted bool `json:"accepted"`
}

// ApproveRequest records operator approval for a transcribed hearing.
type ApproveRequest struct {
	ID int64 `json:"id"`
}

// ApproveResponse contains the hearing after approval was recorded.
type ApproveResponse struct {
	Hearing HearingSummary `json:"hearing"`
}

// CancelRequest cancels the in-flight attempt for a hearing.
type CancelRequest struct {
	ID int64 `json:"id"`
}

// CancelResponse indicates the cancellation was delivered.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// ResetRequest clears stall state so hearings resume processing. With Stage
// set it rewinds a single hearing to that stage instead; this form requires
// exactly one id.
type ResetRequest struct {
	IDs   []int64 `json:"ids"`
	All   bool    `json:"all"`
	Stage string  `json:"stage,omitempty"`
}

// ResetResponse reports the number of hearings reset.
type ResetResponse struct {
	Updated int64 `json:"updated"`
}

// RemoveRequest deletes a hearing and its attempt history.
type RemoveRequest struct {
	ID int64 `json:"id"`
}

// RemoveResponse indicates whether a record was deleted.
type RemoveResponse struct {
	Removed bool `json:"removed"`
}

// AttemptsRequest fetches the attempt history for a hearing.
type AttemptsRequest struct {
	ID int64 `json:"id"`
}

// AttemptsResponse contains attempts in execution order.
type AttemptsResponse struct {
	Attempts []AttemptSummary `json:"attempts"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64 `json:"offset"`
	Limit      int   `json:"limit"`
	Follow     bool  `json:"follow"`
	WaitMillis int   `json:"waitMillis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// HearingsHealthRequest fetches aggregate pipeline counts.
type HearingsHealthRequest struct{}

// HearingsHealthResponse reports aggregate hearing counts.
type HearingsHealthResponse struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Stalled   int `json:"stalled"`
	Published int `json:"published"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"dbPath"`
	DatabaseExists   bool     `json:"databaseExists"`
	DatabaseReadable bool     `json:"databaseReadable"`
	SchemaVersion    string   `json:"schemaVersion"`
	TableExists      bool     `json:"tableExists"`
	ColumnsPresent   []string `json:"columnsPresent"`
	MissingColumns   []string `json:"missingColumns"`
	IntegrityCheck   bool     `json:"integrityCheck"`
	TotalHearings    int      `json:"totalHearings"`
	Error            string   `json:"error,omitempty"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
