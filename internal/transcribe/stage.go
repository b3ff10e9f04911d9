package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gavel/internal/capture"
	"gavel/internal/config"
	"gavel/internal/hearings"
	"gavel/internal/labeling"
	"gavel/internal/logging"
	"gavel/internal/services"
	"gavel/internal/stage"
	"gavel/internal/trim"
)

// Stage advances hearings from captured to transcribed. The action chains
// silence trimming, submission to the transcription service, speaker
// labeling, and the transcript artifact write.
type Stage struct {
	cfg     *config.Config
	store   *hearings.Store
	client  Client
	trimmer *trim.Trimmer
	labeler *labeling.Labeler
	logger  *slog.Logger
}

// NewStage constructs the transcribe stage handler. The trimmer and labeler
// may be nil when their phases are disabled.
func NewStage(cfg *config.Config, store *hearings.Store, client Client, trimmer *trim.Trimmer, labeler *labeling.Labeler, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:     cfg,
		store:   store,
		client:  client,
		trimmer: trimmer,
		labeler: labeler,
		logger:  logging.NewComponentLogger(logger, "transcribe-stage"),
	}
}

// SetLogger replaces the logger, typically with a hearing-scoped one.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "transcribe-stage")
}

// Prepare validates configuration and the captured artifact.
func (s *Stage) Prepare(ctx context.Context, hearing *hearings.Hearing) error {
	if s == nil || s.client == nil {
		return services.Wrap(services.ErrConfiguration, "transcribe", "prepare", "transcription client is not configured", nil)
	}
	if s.cfg == nil || strings.TrimSpace(s.cfg.Paths.StagingDir) == "" {
		return services.Wrap(services.ErrConfiguration, "transcribe", "prepare", "staging directory is not configured", nil)
	}
	if hearing == nil {
		return services.Wrap(services.ErrValidation, "transcribe", "prepare", "hearing is nil", nil)
	}
	if strings.TrimSpace(hearing.AudioPath) == "" {
		return services.Wrap(services.ErrValidation, "transcribe", "prepare", "hearing has no captured audio; capture must run first", nil)
	}
	if _, err := os.Stat(hearing.AudioPath); err != nil {
		return services.Wrap(services.ErrValidation, "transcribe", "prepare", "captured audio artifact is missing", err)
	}
	return nil
}

// Execute runs the trim, submit, label, and write phases. The caller
// persists the final mutation and advances the stage.
func (s *Stage) Execute(ctx context.Context, hearing *hearings.Hearing) error {
	if err := s.Prepare(ctx, hearing); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, s.logger)

	s.runTrimPhase(ctx, hearing, logger)

	duration := hearing.Metadata().Artifact
	var durationSeconds float64
	if duration != nil {
		durationSeconds = duration.DurationSeconds
	}

	response, err := s.client.Transcribe(ctx, Request{
		FilePath:        hearing.AudioPath,
		Model:           s.cfg.Transcription.Model,
		Language:        s.cfg.Transcription.Language,
		DurationSeconds: durationSeconds,
	})
	if err != nil {
		return err
	}

	labels := s.labelSegments(hearing, response, logger)

	language := response.Language
	if language == "" {
		language = s.cfg.Transcription.Language
	}
	transcript := Transcript{
		CommitteeCode: hearing.CommitteeCode,
		Title:         hearing.Title,
		HearingDate:   hearing.HearingDate,
		Language:      language,
		Segments:      make([]TranscriptSegment, len(response.Segments)),
	}
	for i, seg := range response.Segments {
		transcript.Segments[i] = TranscriptSegment{
			Index:      seg.Index,
			StartMS:    seg.StartMS,
			EndMS:      seg.EndMS,
			Text:       seg.Text,
			Speaker:    labels[i].Speaker,
			Role:       labels[i].Role,
			Confidence: labels[i].Confidence,
		}
	}

	path := s.transcriptPath(hearing)
	if err := WriteTranscript(path, transcript); err != nil {
		return services.Wrap(services.ErrTransient, "transcribe", "write transcript", "record transcript artifact", err)
	}

	hearing.TranscriptPath = path
	labeled := labeling.CountLabeled(labels)
	hearing.UpdateMetadata(func(meta *hearings.Metadata) {
		meta.Transcript = &hearings.TranscriptMetadata{
			Language:        language,
			SegmentCount:    len(transcript.Segments),
			LabeledSegments: labeled,
		}
	})

	logger.Info("transcript ready",
		logging.String(logging.FieldEventType, "transcript_ready"),
		logging.String("transcript_path", path),
		logging.Int("segment_count", len(transcript.Segments)),
		logging.Int("labeled_segments", labeled),
	)
	return nil
}

// runTrimPhase refines the captured artifact in place. Failures never block
// transcription; the untrimmed audio is submitted with a warning recorded.
func (s *Stage) runTrimPhase(ctx context.Context, hearing *hearings.Hearing, logger *slog.Logger) {
	if !s.cfg.Trim.Enabled || s.trimmer == nil {
		return
	}

	result, err := s.trimmer.Process(ctx, hearing.AudioPath)
	if err != nil {
		logger.Warn("silence trim failed; transcribing untrimmed audio", logging.Error(err))
		hearing.AddWarning("silence trim failed; transcript timestamps include untrimmed silence")
		hearing.UpdateMetadata(func(meta *hearings.Metadata) {
			meta.Trim = &hearings.TrimMetadata{Skipped: true}
		})
		return
	}

	hearing.UpdateMetadata(func(meta *hearings.Metadata) {
		meta.Trim = &hearings.TrimMetadata{
			LeadSeconds:     result.Lead.Seconds(),
			TrailSeconds:    result.Trail.Seconds(),
			OriginalSeconds: result.Original.Seconds(),
			TrimmedSeconds:  result.Final.Seconds(),
			AllSilent:       result.AllSilent,
		}
		if result.Trimmed && meta.Artifact != nil {
			meta.Artifact.DurationSeconds = result.Final.Seconds()
		}
	})
	if result.AllSilent {
		hearing.AddWarning("captured audio is entirely below the silence threshold")
	}

	if result.Trimmed {
		fingerprint, err := capture.Fingerprint(hearing.AudioPath)
		if err != nil {
			logger.Warn("fingerprint refresh after trim failed", logging.Error(err))
		} else {
			hearing.AudioFingerprint = fingerprint
		}
		logger.Info("silence trimmed",
			logging.String(logging.FieldEventType, "silence_trimmed"),
			logging.Duration("lead", result.Lead),
			logging.Duration("trail", result.Trail),
			logging.Duration("final", result.Final),
		)
		// Persist before submission so the stored fingerprint matches the
		// rewritten file even if a later phase fails this attempt.
		if s.store != nil {
			if err := s.store.Update(ctx, hearing); err != nil {
				logger.Warn("failed to persist trim result", logging.Error(err))
			}
		}
	}
}

// labelSegments resolves speakers for the transcribed segments. Labeling
// failures degrade to unknown speakers rather than failing the stage.
func (s *Stage) labelSegments(hearing *hearings.Hearing, response Response, logger *slog.Logger) []labeling.Label {
	if !s.cfg.Labeling.Enabled || s.labeler == nil {
		return labeling.AllUnknown(len(response.Segments))
	}

	inputs := make([]labeling.Segment, len(response.Segments))
	for i, seg := range response.Segments {
		inputs[i] = labeling.Segment{Index: seg.Index, Text: seg.Text}
	}
	labels, err := s.labeler.LabelSegments(hearing.CommitteeCode, inputs)
	if err != nil {
		logger.Warn("speaker labeling failed; speakers marked unknown", logging.Error(err))
		hearing.AddWarning("speaker labeling failed; all speakers marked unknown")
		return labeling.AllUnknown(len(response.Segments))
	}
	return labels
}

// HealthCheck verifies the transcription dependencies.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcribe"
	if s == nil || s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(s.cfg.Transcription.BaseURL) == "" {
		return stage.Unhealthy(name, "transcription base URL not configured")
	}
	if s.client == nil {
		return stage.Unhealthy(name, "transcription client unavailable")
	}
	if strings.TrimSpace(s.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	return stage.Healthy(name)
}

// transcriptPath places transcripts under the staging directory using the
// same key as the audio artifact.
func (s *Stage) transcriptPath(hearing *hearings.Hearing) string {
	name := fmt.Sprintf("%s-%s-%d.json", hearing.CommitteeCode, hearing.HearingDate, hearing.ID)
	return filepath.Join(s.cfg.Paths.StagingDir, "transcripts", name)
}
