package review

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gavel/internal/config"
	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/services"
	"gavel/internal/stage"
	"gavel/internal/transcribe"
)

// Stage advances hearings from transcribed to reviewed.
type Stage struct {
	cfg    *config.Config
	store  *hearings.Store
	logger *slog.Logger
}

// NewStage constructs the review stage handler.
func NewStage(cfg *config.Config, store *hearings.Store, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "review-stage"),
	}
}

// SetLogger replaces the logger, typically with a hearing-scoped one.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "review-stage")
}

// Prepare validates that a transcript artifact exists to review.
func (s *Stage) Prepare(ctx context.Context, hearing *hearings.Hearing) error {
	if s == nil || s.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "review", "prepare", "configuration unavailable", nil)
	}
	if hearing == nil {
		return services.Wrap(services.ErrValidation, "review", "prepare", "hearing is nil", nil)
	}
	if strings.TrimSpace(hearing.TranscriptPath) == "" {
		return services.Wrap(services.ErrValidation, "review", "prepare", "hearing has no transcript; transcription must run first", nil)
	}
	if _, err := os.Stat(hearing.TranscriptPath); err != nil {
		return services.Wrap(services.ErrValidation, "review", "prepare", "transcript artifact is missing", err)
	}
	return nil
}

// Execute validates the transcript and records the approval. In manual mode
// the approval must already be on the hearing; the stage only runs then via
// an explicit request.
func (s *Stage) Execute(ctx context.Context, hearing *hearings.Hearing) error {
	if err := s.Prepare(ctx, hearing); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, s.logger)

	transcript, err := transcribe.ReadTranscript(hearing.TranscriptPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "review", "validate transcript", "transcript artifact is unreadable", err)
	}
	if len(transcript.Segments) == 0 {
		return services.Wrap(services.ErrValidation, "review", "validate transcript", "transcript has no segments", nil)
	}
	for i, segment := range transcript.Segments {
		if strings.TrimSpace(segment.Text) == "" {
			return services.Wrap(services.ErrValidation, "review", "validate transcript",
				fmt.Sprintf("transcript segment %d has no text", i), nil)
		}
	}

	meta := hearing.Metadata()
	autoApproved := false
	switch {
	case meta.Review != nil && meta.Review.ApprovedAt != "":
		// Operator approval recorded before the stage request.
	case s.cfg.Review.AutoApprove:
		autoApproved = true
		hearing.UpdateMetadata(func(meta *hearings.Metadata) {
			meta.Review = &hearings.ReviewMetadata{
				ApprovedAt:   time.Now().UTC().Format(time.RFC3339),
				AutoApproved: true,
			}
		})
	default:
		return services.Wrap(services.ErrValidation, "review", "check approval", "hearing awaits manual approval", nil)
	}

	logger.Info("transcript approved",
		logging.String(logging.FieldEventType, "review_approved"),
		logging.Bool("auto_approved", autoApproved),
		logging.Int("segment_count", len(transcript.Segments)),
	)
	return nil
}

// HealthCheck reports readiness. Review needs only configuration.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	const name = "review"
	if s == nil || s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	return stage.Healthy(name)
}

// RecordApproval marks the hearing as approved by an operator. The caller
// persists the hearing and requests the review stage.
func RecordApproval(hearing *hearings.Hearing, at time.Time) {
	if hearing == nil {
		return
	}
	hearing.UpdateMetadata(func(meta *hearings.Metadata) {
		meta.Review = &hearings.ReviewMetadata{
			ApprovedAt:   at.UTC().Format(time.RFC3339),
			AutoApproved: false,
		}
	})
}
