package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gavel/internal/capture"
	"gavel/internal/config"
	"gavel/internal/daemon"
	"gavel/internal/deps"
	"gavel/internal/discovery"
	"gavel/internal/hearings"
	"gavel/internal/ipc"
	"gavel/internal/labeling"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/pipeline"
	"gavel/internal/preflight"
	"gavel/internal/publish"
	"gavel/internal/review"
	"gavel/internal/roster"
	"gavel/internal/transcribe"
	"gavel/internal/trim"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the gavel daemon runtime loop and blocks until the context is
// cancelled or a termination signal arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("gavel-%s.log", runID))

	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update gavel.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "gavel-*.log", Exclude: []string{logPath}},
	)
	pidPath := filepath.Join(cfg.Paths.LogDir, "gaveld.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := hearings.Open(cfg)
	if err != nil {
		logger.Error("open hearing store", logging.Error(err))
		return err
	}
	defer store.Close()

	recoverInterruptedWork(signalCtx, store, logger)
	logPreflightFailures(signalCtx, cfg, logger)

	notifier := notifications.NewService(cfg)
	manager := pipeline.NewManagerWithNotifier(cfg, store, logger, notifier)
	if err := registerStages(manager, cfg, store, logger, notifier); err != nil {
		return fmt.Errorf("configure stages: %w", err)
	}

	d, err := daemon.New(cfg, store, logger, manager, logPath)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := filepath.Join(cfg.Paths.LogDir, "gaveld.sock")
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		// The admin socket stays up so the operator can inspect and fix
		// whatever blocked the pipeline, then issue a start over IPC.
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldImpact, "hearings are not processed until a start succeeds"),
		)
	}

	<-signalCtx.Done()
	logger.Info("gavel daemon shutting down")
	return nil
}

func registerStages(mgr *pipeline.Manager, cfg *config.Config, store *hearings.Store, logger *slog.Logger, notifier notifications.Service) error {
	if mgr == nil || cfg == nil {
		return fmt.Errorf("pipeline manager and config are required")
	}

	var trimmer *trim.Trimmer
	if cfg.Trim.Enabled {
		trimmer = trim.New(cfg)
	}

	return mgr.ConfigureStages(pipeline.StageSet{
		Discover:   discovery.NewStage(store, discovery.NewLocator(cfg), logger),
		Capture:    capture.NewStage(cfg, store, capture.New(cfg), logger),
		Transcribe: transcribe.NewStage(cfg, store, transcribe.New(cfg), trimmer, buildLabeler(cfg, logger), logger),
		Review:     review.NewStage(cfg, store, logger),
		Publish:    publish.NewStage(cfg, store, notifier, logger),
	})
}

// buildLabeler loads the speaker roster when labeling is enabled. A roster
// that fails to load degrades to unknown speakers instead of blocking the
// daemon; the transcribe stage records a warning on each affected hearing.
func buildLabeler(cfg *config.Config, logger *slog.Logger) *labeling.Labeler {
	if !cfg.Labeling.Enabled {
		return nil
	}
	catalog, err := roster.Load(cfg.Paths.RosterPath)
	if err != nil {
		logger.Warn("speaker roster unavailable; speakers will be labeled unknown",
			logging.Error(err),
			logging.String(logging.FieldEventType, "roster_unavailable"),
			logging.String("roster_path", cfg.Paths.RosterPath),
		)
		return nil
	}
	return labeling.New(catalog, cfg.Labeling.MinConfidence)
}

// recoverInterruptedWork finalizes state a previous daemon process left
// behind. Open attempt rows become interrupted failures and expired leases
// are released immediately instead of waiting out a sweep interval.
func recoverInterruptedWork(ctx context.Context, store *hearings.Store, logger *slog.Logger) {
	closed, err := store.CloseInterruptedAttempts(ctx)
	if err != nil {
		logger.Warn("close interrupted attempts", logging.Error(err))
	} else if closed > 0 {
		logger.Info("closed interrupted attempts",
			logging.String(logging.FieldEventType, "attempts_recovered"),
			logging.Int64("count", closed),
		)
	}

	cleared, err := store.ExpireAbandonedLeases(ctx)
	if err != nil {
		logger.Warn("expire abandoned leases", logging.Error(err))
	} else if cleared > 0 {
		logger.Info("cleared abandoned leases",
			logging.String(logging.FieldEventType, "lease_sweep"),
			logging.Int64("count", cleared),
		)
	}
}

func logPreflightFailures(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			continue
		}
		logger.Warn("preflight check failed",
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
		)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "gavel.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.Bool("transcription_token_present", strings.TrimSpace(cfg.Transcription.APIToken) != ""),
		logging.Bool("labeling_enabled", cfg.Labeling.Enabled),
		logging.Bool("trim_enabled", cfg.Trim.Enabled),
		logging.Bool("ntfy_topic_present", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	}
	for _, status := range deps.CheckBinaries(deps.Required(cfg)) {
		key := strings.ToLower(status.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_binary", status.Command),
		)
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
