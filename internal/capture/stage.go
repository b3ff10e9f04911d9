package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gavel/internal/config"
	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/services"
	"gavel/internal/stage"
)

// progressLogInterval throttles capture progress logging.
const progressLogInterval = 15 * time.Second

// Stage advances hearings from analyzed to captured by extracting audio
// from the selected stream manifest.
type Stage struct {
	cfg       *config.Config
	store     *hearings.Store
	extractor *Extractor
	logger    *slog.Logger
}

// NewStage constructs the capture stage handler.
func NewStage(cfg *config.Config, store *hearings.Store, extractor *Extractor, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		logger:    logging.NewComponentLogger(logger, "capture-stage"),
	}
}

// SetLogger replaces the logger, typically with a hearing-scoped one.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "capture-stage")
}

// Prepare validates configuration and the hearing's manifest reference.
func (s *Stage) Prepare(ctx context.Context, hearing *hearings.Hearing) error {
	if s == nil || s.extractor == nil {
		return services.Wrap(services.ErrConfiguration, "capture", "prepare", "audio extractor is not configured", nil)
	}
	if s.cfg == nil || strings.TrimSpace(s.cfg.Paths.StagingDir) == "" {
		return services.Wrap(services.ErrConfiguration, "capture", "prepare", "staging directory is not configured", nil)
	}
	if hearing == nil {
		return services.Wrap(services.ErrValidation, "capture", "prepare", "hearing is nil", nil)
	}
	if strings.TrimSpace(hearing.ManifestURL) == "" {
		return services.Wrap(services.ErrValidation, "capture", "prepare", "hearing has no manifest URL; discovery must run first", nil)
	}
	return nil
}

// Execute streams the manifest into a staged artifact and records it on the
// hearing. The caller persists the mutation and advances the stage.
func (s *Stage) Execute(ctx context.Context, hearing *hearings.Hearing) error {
	if err := s.Prepare(ctx, hearing); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, s.logger)

	expected := s.extractor.ExpectedDuration(ctx, hearing.ManifestURL)
	logger.Info("starting audio capture",
		logging.String("manifest_kind", hearing.ManifestKind),
		logging.Duration("expected_duration", expected),
	)

	lastLog := time.Time{}
	progress := func(update ProgressUpdate) {
		if update.Done {
			return
		}
		now := time.Now()
		if now.Sub(lastLog) < progressLogInterval {
			return
		}
		lastLog = now
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "capture_progress"),
			logging.String(logging.FieldProgressStage, "Capturing"),
			logging.String(logging.FieldProgressMessage, fmt.Sprintf("captured %s", update.OutTime.Round(time.Second))),
		}
		if expected > 0 {
			percent := float64(update.OutTime) / float64(expected) * 100
			if percent > 100 {
				percent = 100
			}
			attrs = append(attrs, logging.Float64(logging.FieldProgressPercent, percent))
			if update.Speed > 0 && update.OutTime < expected {
				eta := time.Duration(float64(expected-update.OutTime) / update.Speed)
				attrs = append(attrs, logging.Duration(logging.FieldProgressETA, eta.Round(time.Second)))
			}
		}
		logger.Info("capture progress", logging.Args(attrs...)...)
	}

	artifact, err := s.extractor.Extract(ctx, Request{
		ManifestURL:      hearing.ManifestURL,
		DestPath:         s.artifactPath(hearing),
		ExpectedDuration: expected,
		UserAgent:        s.cfg.Discovery.UserAgent,
	}, progress)
	if err != nil {
		message := "ffmpeg capture failed; the scheduler will retry"
		if errors.Is(err, context.DeadlineExceeded) {
			message = "capture timed out; the scheduler will retry"
		}
		return services.Wrap(services.ErrExtraction, "capture", "extract audio", message, err)
	}

	hearing.AudioPath = artifact.Path
	hearing.AudioFingerprint = artifact.Fingerprint
	hearing.UpdateMetadata(func(meta *hearings.Metadata) {
		meta.Artifact = &hearings.ArtifactMetadata{
			Format:          artifact.Format,
			SampleRate:      artifact.SampleRate,
			Channels:        artifact.Channels,
			DurationSeconds: artifact.DurationSeconds,
		}
	})

	logger.Info("audio captured",
		logging.String(logging.FieldEventType, "capture_complete"),
		logging.String("audio_path", artifact.Path),
		logging.String("format", artifact.Format),
		logging.Float64("duration_seconds", artifact.DurationSeconds),
	)
	return nil
}

// HealthCheck verifies the capture dependencies.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	const name = "capture"
	if s == nil || s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(s.cfg.Paths.StagingDir) == "" {
		return stage.Unhealthy(name, "staging directory not configured")
	}
	if s.extractor == nil {
		return stage.Unhealthy(name, "audio extractor unavailable")
	}
	if _, err := exec.LookPath(s.cfg.FFmpegBinary()); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffmpeg binary %q not found", s.cfg.FFmpegBinary()))
	}
	if _, err := exec.LookPath(s.cfg.FFprobeBinary()); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffprobe binary %q not found", s.cfg.FFprobeBinary()))
	}
	return stage.Healthy(name)
}

// artifactPath places captured audio under the staging directory, keyed by
// committee, date, and hearing ID so a retry overwrites the same file.
func (s *Stage) artifactPath(hearing *hearings.Hearing) string {
	name := fmt.Sprintf("%s-%s-%d%s", hearing.CommitteeCode, hearing.HearingDate, hearing.ID, ArtifactExtension(s.cfg.Capture.Codec))
	return filepath.Join(s.cfg.Paths.StagingDir, "audio", name)
}
