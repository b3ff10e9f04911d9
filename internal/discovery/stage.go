package discovery

import (
	"context"
	"log/slog"
	"strings"

	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/services"
	"gavel/internal/stage"
)

// Stage advances hearings from discovered to analyzed by locating a stream
// manifest on the recorded source page.
type Stage struct {
	store   *hearings.Store
	locator *Locator
	logger  *slog.Logger
}

// NewStage constructs the discovery stage handler.
func NewStage(store *hearings.Store, locator *Locator, logger *slog.Logger) *Stage {
	return &Stage{
		store:   store,
		locator: locator,
		logger:  logging.NewComponentLogger(logger, "discovery-stage"),
	}
}

// SetLogger replaces the logger, typically with a hearing-scoped one.
func (s *Stage) SetLogger(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.logger = logging.NewComponentLogger(logger, "discovery-stage")
}

// Prepare validates that the hearing carries enough context to scan.
func (s *Stage) Prepare(ctx context.Context, hearing *hearings.Hearing) error {
	if s == nil || s.locator == nil {
		return services.Wrap(services.ErrConfiguration, "discovery", "prepare", "stream locator is not configured", nil)
	}
	if hearing == nil {
		return services.Wrap(services.ErrValidation, "discovery", "prepare", "hearing is nil", nil)
	}
	if strings.TrimSpace(hearing.SourceURL) == "" {
		return services.Wrap(services.ErrValidation, "discovery", "prepare", "hearing has no source URL", nil)
	}
	return nil
}

// Execute scans the source page and records the winning manifest on the
// hearing. The caller persists the mutation and advances the stage.
func (s *Stage) Execute(ctx context.Context, hearing *hearings.Hearing) error {
	if s == nil || s.locator == nil {
		return services.Wrap(services.ErrConfiguration, "discovery", "locate streams", "stream locator is not configured", nil)
	}
	if hearing == nil {
		return services.Wrap(services.ErrValidation, "discovery", "locate streams", "hearing is nil", nil)
	}

	candidates, err := s.locator.Locate(ctx, hearing.SourceURL)
	if err != nil {
		return services.Wrap(services.ErrDiscovery, "discovery", "locate streams", "scan hearing page for manifests", err)
	}
	if len(candidates) == 0 {
		return services.Wrap(services.ErrDiscovery, "discovery", "locate streams", "no stream manifests found on hearing page", nil)
	}

	chosen := candidates[0]
	hearing.ManifestURL = chosen.URL
	hearing.ManifestKind = chosen.Kind
	hearing.UpdateMetadata(func(meta *hearings.Metadata) {
		meta.Discovery = &hearings.DiscoveryMetadata{
			CandidatesFound: len(candidates),
			Confidence:      chosen.Confidence,
			PlayerURL:       chosen.PlayerURL,
		}
	})

	if s.logger != nil {
		logging.WithContext(ctx, s.logger).Info("stream manifest selected",
			logging.String(logging.FieldEventType, "manifest_selected"),
			logging.String("manifest_kind", chosen.Kind),
			logging.Int("candidate_count", len(candidates)),
			logging.Float64("confidence", chosen.Confidence),
		)
	}
	return nil
}

// HealthCheck reports whether the stage can run.
func (s *Stage) HealthCheck(ctx context.Context) stage.Health {
	const name = "discovery"
	if s == nil || s.locator == nil {
		return stage.Unhealthy(name, "stream locator not configured")
	}
	return stage.Healthy(name)
}
