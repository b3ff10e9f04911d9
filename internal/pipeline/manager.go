package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gavel/internal/config"
	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/notifications"
	"gavel/internal/stage"
)

// StageSet bundles the concrete stage handlers the manager orchestrates.
// Each handler is keyed by the stage it advances hearings from.
type StageSet struct {
	Discover   stage.Handler
	Capture    stage.Handler
	Transcribe stage.Handler
	Review     stage.Handler
	Publish    stage.Handler
}

type boundStage struct {
	from    hearings.Stage
	name    string
	handler stage.Handler
}

// loggerAware lets the manager hand handlers a hearing-scoped logger before
// each attempt.
type loggerAware interface {
	SetLogger(*slog.Logger)
}

// Manager coordinates hearing processing using registered stage handlers.
type Manager struct {
	cfg      *config.Config
	store    *hearings.Store
	logger   *slog.Logger
	notifier notifications.Service
	instance string

	pollInterval  time.Duration
	leaseTTL      time.Duration
	renewInterval time.Duration

	dispatch chan int64

	mu        sync.RWMutex
	handlers  map[hearings.Stage]boundStage
	scanOrder []hearings.Stage
	running   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	pending   map[int64]struct{}
	inflight  map[int64]context.CancelFunc
}

// NewManager constructs a pipeline manager with the default notifier.
func NewManager(cfg *config.Config, store *hearings.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a pipeline manager with a custom
// notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *hearings.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	pollInterval := time.Duration(cfg.Pipeline.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	leaseTTL := time.Duration(cfg.Pipeline.LeaseTTL) * time.Second
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}
	renewInterval := time.Duration(cfg.Pipeline.LeaseRenewalInterval) * time.Second
	if renewInterval <= 0 || renewInterval >= leaseTTL {
		renewInterval = leaseTTL / 4
	}
	return &Manager{
		cfg:           cfg,
		store:         store,
		logger:        logging.NewComponentLogger(logger, "pipeline"),
		notifier:      notifier,
		instance:      uuid.NewString(),
		pollInterval:  pollInterval,
		leaseTTL:      leaseTTL,
		renewInterval: renewInterval,
		handlers:      make(map[hearings.Stage]boundStage),
		pending:       make(map[int64]struct{}),
		inflight:      make(map[int64]context.CancelFunc),
	}
}

// Instance returns the identifier this manager uses as its lease owner
// prefix.
func (m *Manager) Instance() string {
	return m.instance
}

// ConfigureStages binds the stage handlers. Nil handlers leave their stage
// unbound. With manual review configured, the transcribed stage is excluded
// from the automatic scan; RequestStage can still reach its handler.
func (m *Manager) ConfigureStages(set StageSet) error {
	bindings := []boundStage{
		{from: hearings.StageDiscovered, name: "discover", handler: set.Discover},
		{from: hearings.StageAnalyzed, name: "capture", handler: set.Capture},
		{from: hearings.StageCaptured, name: "transcribe", handler: set.Transcribe},
		{from: hearings.StageTranscribed, name: "review", handler: set.Review},
		{from: hearings.StageReviewed, name: "publish", handler: set.Publish},
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("cannot configure stages while running")
	}
	m.handlers = make(map[hearings.Stage]boundStage, len(bindings))
	m.scanOrder = nil
	for _, bound := range bindings {
		if bound.handler == nil {
			continue
		}
		m.handlers[bound.from] = bound
		if bound.from == hearings.StageTranscribed && !m.cfg.Review.AutoApprove {
			continue
		}
		m.scanOrder = append(m.scanOrder, bound.from)
	}
	if len(m.handlers) == 0 {
		return errors.New("no stage handlers configured")
	}
	return nil
}

// Start launches the poll loop, lease sweep, and worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("no stage handlers configured")
	}
	workers := m.cfg.Pipeline.Workers
	if workers < 1 {
		workers = 1
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.dispatch = make(chan int64)
	m.wg.Add(workers + 2)
	m.mu.Unlock()

	go m.pollLoop(runCtx)
	go m.leaseSweepLoop(runCtx)
	for i := 0; i < workers; i++ {
		go m.workerLoop(runCtx, fmt.Sprintf("worker-%d", i+1))
	}

	m.logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_started"),
		logging.Int("workers", workers),
		logging.Duration("poll_interval", m.pollInterval),
		logging.String("instance", m.instance),
	)
	return nil
}

// Stop cancels processing and waits for in-flight stage actions to unwind.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("pipeline stopped", logging.String(logging.FieldEventType, "pipeline_stopped"))
}

func (m *Manager) handlerFor(from hearings.Stage) (boundStage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bound, ok := m.handlers[from]
	return bound, ok
}

func (m *Manager) scanStages() []hearings.Stage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]hearings.Stage, len(m.scanOrder))
	copy(out, m.scanOrder)
	return out
}

// claimPending marks a hearing as handed to a worker. It returns false when
// the hearing is already in a worker's hands, so the poll loop never
// double-dispatches the window between dispatch and lease acquisition.
func (m *Manager) claimPending(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pending[id]; exists {
		return false
	}
	m.pending[id] = struct{}{}
	return true
}

func (m *Manager) clearPending(id int64) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *Manager) trackInflight(id int64, cancel context.CancelFunc) {
	m.mu.Lock()
	m.inflight[id] = cancel
	m.mu.Unlock()
}

func (m *Manager) untrackInflight(id int64) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
