package hearings

import (
	"strings"
	"time"
)

// Stage represents one step of the fixed hearing-processing lifecycle.
type Stage string

const (
	StageDiscovered  Stage = "discovered"
	StageAnalyzed    Stage = "analyzed"
	StageCaptured    Stage = "captured"
	StageTranscribed Stage = "transcribed"
	StageReviewed    Stage = "reviewed"
	StagePublished   Stage = "published"
)

var stageOrder = []Stage{
	StageDiscovered,
	StageAnalyzed,
	StageCaptured,
	StageTranscribed,
	StageReviewed,
	StagePublished,
}

var stageRank = func() map[Stage]int {
	ranks := make(map[Stage]int, len(stageOrder))
	for i, stage := range stageOrder {
		ranks[stage] = i
	}
	return ranks
}()

// AllStages returns the lifecycle stages in processing order.
func AllStages() []Stage {
	cp := make([]Stage, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageRank[normalized]
	return normalized, ok
}

// Valid reports whether the stage is one of the known lifecycle values.
func (s Stage) Valid() bool {
	_, ok := stageRank[s]
	return ok
}

// Ordinal returns the stage's position in the lifecycle order, or -1 for
// unknown values.
func (s Stage) Ordinal() int {
	rank, ok := stageRank[s]
	if !ok {
		return -1
	}
	return rank
}

// Before reports whether s precedes other in the lifecycle order.
func (s Stage) Before(other Stage) bool {
	return s.Ordinal() < other.Ordinal()
}

// AtLeast reports whether s is at or beyond other in the lifecycle order.
func (s Stage) AtLeast(other Stage) bool {
	return s.Valid() && other.Valid() && s.Ordinal() >= other.Ordinal()
}

// Next returns the following stage. The second return is false for the
// terminal stage and unknown values.
func (s Stage) Next() (Stage, bool) {
	rank, ok := stageRank[s]
	if !ok || rank+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[rank+1], true
}

// Terminal reports whether the stage ends the lifecycle.
func (s Stage) Terminal() bool {
	return s == StagePublished
}

// Outcome records how a processing attempt ended.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// ManifestKind classifies a discovered stream manifest.
const (
	ManifestKindArchive = "archive"
	ManifestKindLive    = "live"
)

// Hearing represents a recorded proceeding persisted in SQLite. Stage and
// artifact fields are mutated only by the lease holder; the pipeline enforces
// this through the store's guarded updates.
type Hearing struct {
	ID               int64
	CommitteeCode    string
	Title            string
	HearingDate      string
	SourceURL        string
	Stage            Stage
	Stalled          bool
	ManifestURL      string
	ManifestKind     string
	AudioPath        string
	AudioFingerprint string
	TranscriptPath   string
	ErrorMessage     string
	LockOwner        string
	LockExpiresAt    *time.Time
	AttemptCount     int
	NextAttemptAt    *time.Time
	MetadataJSON     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Locked reports whether the hearing carries an unexpired lease as of now.
func (h *Hearing) Locked(now time.Time) bool {
	if h == nil || h.LockOwner == "" || h.LockExpiresAt == nil {
		return false
	}
	return h.LockExpiresAt.After(now)
}

// Terminal reports whether the hearing reached the end of the lifecycle.
func (h *Hearing) Terminal() bool {
	return h != nil && h.Stage.Terminal()
}

// Eligible reports whether the hearing can be dispatched as of now: it must
// be non-terminal, not stalled, unlocked (or lease-expired), and past any
// retry backoff gate.
func (h *Hearing) Eligible(now time.Time) bool {
	if h == nil || h.Terminal() || h.Stalled {
		return false
	}
	if h.Locked(now) {
		return false
	}
	if h.NextAttemptAt != nil && h.NextAttemptAt.After(now) {
		return false
	}
	return true
}

// Attempt is one execution record of a stage action. Rows are append-only;
// an open attempt has no ended_at.
type Attempt struct {
	ID           int64
	HearingID    int64
	Stage        Stage
	StartedAt    time.Time
	EndedAt      *time.Time
	Outcome      Outcome
	ErrorKind    string
	ErrorMessage string
}

// Open reports whether the attempt is still executing.
func (a *Attempt) Open() bool {
	return a != nil && a.EndedAt == nil
}

// NewHearing carries the fields required to register a hearing.
type NewHearing struct {
	CommitteeCode string
	Title         string
	HearingDate   string
	SourceURL     string
}

// HealthSummary describes aggregated hearing counts for diagnostics.
type HealthSummary struct {
	Total     int
	Active    int
	Stalled   int
	Published int
}

// DatabaseHealth captures diagnostic information about the hearings database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalHearings    int
	Error            string
}
