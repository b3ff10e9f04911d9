package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gavel/internal/config"
	"gavel/internal/fileutil"
	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/services"
	"gavel/internal/stage"
	"gavel/internal/textutil"
)

// freeSpaceHeadroom is required beyond the artifact bytes so publishing
// never fills the library filesystem to the brim.
const freeSpaceHeadroom = 256 << 20

const maxTitleRunes = 120

// Stage advances hearings from reviewed to published by moving the audio
// and transcript artifacts into the library layout.
type Stage struct {
	cfg       *config.Config
	store     *hearings.Store
	notifier  notifications.Service
	logger    *slog.Logger
	freeSpace func(path string) (total uint64, free uint64, err error)
}

// NewStage constructs the publish stage handler.
func NewStage(cfg *config.Config, store *hearings.Store, notifier notifications.Service, logger *slog.Logger) *Stage {
	return &Stage{
		cfg:       cfg,
		store:     store,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "publish-stage"),
		freeSpace: fileutil.FreeSpace,
	}
}

// SetLogger replaces the logger, typically with a hearing-scoped one.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "publish-stage")
}

// WithFreeSpace sets a custom filesystem stats source (for testing).
func (s *Stage) WithFreeSpace(fn func(path string) (total uint64, free uint64, err error)) {
	s.freeSpace = fn
}

// Prepare validates configuration and both staged artifacts.
func (s *Stage) Prepare(ctx context.Context, hearing *hearings.Hearing) error {
	if s == nil || s.cfg == nil || strings.TrimSpace(s.cfg.Paths.LibraryDir) == "" {
		return services.Wrap(services.ErrConfiguration, "publish", "prepare", "library directory is not configured", nil)
	}
	if hearing == nil {
		return services.Wrap(services.ErrValidation, "publish", "prepare", "hearing is nil", nil)
	}
	if strings.TrimSpace(hearing.AudioPath) == "" {
		return services.Wrap(services.ErrValidation, "publish", "prepare", "hearing has no audio artifact; capture must run first", nil)
	}
	if strings.TrimSpace(hearing.TranscriptPath) == "" {
		return services.Wrap(services.ErrValidation, "publish", "prepare", "hearing has no transcript; transcription must run first", nil)
	}
	if _, err := os.Stat(hearing.AudioPath); err != nil {
		return services.Wrap(services.ErrValidation, "publish", "prepare", "audio artifact is missing", err)
	}
	if _, err := os.Stat(hearing.TranscriptPath); err != nil {
		return services.Wrap(services.ErrValidation, "publish", "prepare", "transcript artifact is missing", err)
	}
	return nil
}

// Execute moves both artifacts into the library, repoints the hearing at the
// published paths, and records publish metadata. The caller persists the
// final mutation and advances the stage.
func (s *Stage) Execute(ctx context.Context, hearing *hearings.Hearing) error {
	if err := s.Prepare(ctx, hearing); err != nil {
		return err
	}
	logger := logging.WithContext(ctx, s.logger)

	audioInfo, err := os.Stat(hearing.AudioPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "publish", "inspect artifacts", "audio artifact is missing", err)
	}
	transcriptInfo, err := os.Stat(hearing.TranscriptPath)
	if err != nil {
		return services.Wrap(services.ErrValidation, "publish", "inspect artifacts", "transcript artifact is missing", err)
	}

	needed := uint64(audioInfo.Size()) + uint64(transcriptInfo.Size()) + freeSpaceHeadroom
	_, free, err := s.freeSpace(s.cfg.Paths.LibraryDir)
	if err != nil {
		return services.Wrap(services.ErrTransient, "publish", "check free space", "library filesystem is unavailable", err)
	}
	if free < needed {
		return services.Wrap(services.ErrTransient, "publish", "check free space",
			fmt.Sprintf("library filesystem has %d bytes free; publishing needs %d", free, needed), nil)
	}

	base := s.baseName(hearing)
	destDir := filepath.Join(s.cfg.Paths.LibraryDir, textutil.SanitizeFileName(hearing.CommitteeCode), base)

	ext := filepath.Ext(hearing.AudioPath)
	if ext == "" {
		ext = ".ogg"
	}
	audioTarget := filepath.Join(destDir, base+ext)
	transcriptTarget := filepath.Join(destDir, base+".json")

	if !s.cfg.Library.OverwriteExisting {
		for _, target := range []string{audioTarget, transcriptTarget} {
			if target == hearing.AudioPath || target == hearing.TranscriptPath {
				continue
			}
			if _, err := os.Stat(target); err == nil {
				return services.Wrap(services.ErrValidation, "publish", "check destination",
					fmt.Sprintf("library already contains %s; enable library.overwrite_existing to replace it", filepath.Base(target)), nil)
			}
		}
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "create library directory", "library directory is unavailable", err)
	}

	if err := fileutil.MoveVerified(hearing.AudioPath, audioTarget); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "move audio", "move audio into library", err)
	}
	hearing.AudioPath = audioTarget
	// Persist after each move so a failed attempt resumes against the
	// artifact's real location.
	if s.store != nil {
		if err := s.store.Update(ctx, hearing); err != nil {
			logger.Warn("failed to persist published audio path", logging.Error(err))
		}
	}

	if err := fileutil.MoveVerified(hearing.TranscriptPath, transcriptTarget); err != nil {
		return services.Wrap(services.ErrTransient, "publish", "move transcript", "move transcript into library", err)
	}
	hearing.TranscriptPath = transcriptTarget

	publishedAt := time.Now().UTC().Format(time.RFC3339)
	hearing.UpdateMetadata(func(meta *hearings.Metadata) {
		meta.Publish = &hearings.PublishMetadata{
			Directory:   destDir,
			PublishedAt: publishedAt,
		}
	})

	logger.Info("hearing published",
		logging.String(logging.FieldEventType, "hearing_published"),
		logging.String("directory", destDir),
		logging.String("audio_file", filepath.Base(audioTarget)),
		logging.String("transcript_file", filepath.Base(transcriptTarget)),
	)

	if s.notifier != nil {
		err := s.notifier.Publish(ctx, notifications.EventHearingPublished, notifications.Payload{
			"title":     strings.TrimSpace(hearing.Title),
			"committee": hearing.CommitteeCode,
			"directory": destDir,
		})
		if err != nil {
			logger.Warn("publish notification failed", logging.Error(err))
		}
	}
	return nil
}

// HealthCheck verifies the library destination is configured.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	const name = "publish"
	if s == nil || s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(s.cfg.Paths.LibraryDir) == "" {
		return stage.Unhealthy(name, "library directory not configured")
	}
	return stage.Healthy(name)
}

// baseName derives the shared directory and file stem from the hearing date
// and sanitized title.
func (s *Stage) baseName(hearing *hearings.Hearing) string {
	title := textutil.TruncateRunes(textutil.SanitizeFileName(hearing.Title), maxTitleRunes)
	if title == "" {
		title = fmt.Sprintf("hearing-%d", hearing.ID)
	}
	return fmt.Sprintf("%s - %s", hearing.HearingDate, title)
}
