package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"squeeze/internal/config"
	"squeeze/internal/events"
	"squeeze/internal/logging"
	"squeeze/internal/metrics"
	"squeeze/internal/queue"
	"squeeze/internal/services"
	"squeeze/internal/stage"
	"squeeze/internal/worker"
)

// Notifier receives pipeline outcomes worth pushing to an operator. The noop
// implementation in internal/notifications satisfies it when no topic is
// configured.
type Notifier interface {
	ItemEncoded(ctx context.Context, item *queue.Item)
	ItemFailed(ctx context.Context, item *queue.Item, stageName, message string)
	WorkerReset(ctx context.Context, stageName string, consecutiveProbes int)
}

// StageSet carries the three stage handlers the pipeline runs.
type StageSet struct {
	Analysis      stage.Handler
	QualitySearch stage.Handler
	Encoding      stage.Handler
}

// Manager owns the per-stage workers and dispatchers and routes operator
// commands to them. Item and result persistence stays in the store; the
// manager holds only ephemeral runtime state, rebuilt on every start.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	events   *events.Hub
	notifier Notifier

	mu          sync.Mutex
	running     bool
	stoppedOnce bool
	cancel      context.CancelFunc
	dispatchers []*dispatcher
	byName      map[string]*dispatcher
	hosts       []*worker.Host
	handlers    map[string]stage.Handler
}

// NewManager wires a pipeline manager. The notifier may be nil.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, hub *events.Hub, notifier Notifier) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "pipeline")),
		events:   hub,
		notifier: notifier,
		byName:   make(map[string]*dispatcher),
		handlers: make(map[string]stage.Handler),
	}
}

// ConfigureStages builds one worker host and one dispatcher per stage, in
// pipeline order, and chains completion nudges downstream. All three handlers
// are required.
func (m *Manager) ConfigureStages(set StageSet) error {
	if set.Analysis == nil || set.QualitySearch == nil || set.Encoding == nil {
		return services.Wrap(services.ErrConfiguration, "pipeline", "configure stages", "all stage handlers are required", nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("pipeline is running; stages cannot be reconfigured")
	}

	pollInterval := time.Duration(m.cfg.Pipeline.PollInterval) * time.Second
	probeTimeout := time.Duration(m.cfg.Pipeline.ProbeTimeout) * time.Second
	threshold := m.cfg.Pipeline.RecoveryThreshold

	stages := []struct {
		policy  policy
		handler stage.Handler
	}{
		{analysisPolicy(), set.Analysis},
		{qualitySearchPolicy(), set.QualitySearch},
		{encodingPolicy(), set.Encoding},
	}

	m.dispatchers = m.dispatchers[:0]
	m.hosts = m.hosts[:0]
	m.byName = make(map[string]*dispatcher, len(stages))
	m.handlers = make(map[string]stage.Handler, len(stages))

	for _, entry := range stages {
		host := worker.NewHost(entry.policy.name, entry.handler, m.logger, probeTimeout)
		d := newDispatcher(entry.policy, m.store, host, m.logger, m.events, pollInterval, threshold)
		d.hooks = dispatcherHooks{
			onSuccess: m.handleSuccess,
			onFailure: m.handleFailure,
			onReset:   m.handleReset,
		}
		m.dispatchers = append(m.dispatchers, d)
		m.hosts = append(m.hosts, host)
		m.byName[entry.policy.name] = d
		m.handlers[entry.policy.name] = entry.handler
	}

	for i, d := range m.dispatchers {
		if i+1 < len(m.dispatchers) {
			next := m.dispatchers[i+1]
			d.hooks.nudgeNext = func() { next.post(message{kind: msgNudge}) }
		}
	}
	return nil
}

// Start reclaims interrupted claims, launches the hosts and dispatchers, and
// seeds each stage with initial demand. A manager starts once; build a new
// one to restart a stopped pipeline.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("pipeline already running")
	}
	if m.stoppedOnce {
		return fmt.Errorf("pipeline cannot be restarted after stop")
	}
	if len(m.dispatchers) == 0 {
		return services.Wrap(services.ErrConfiguration, "pipeline", "start", "stages not configured", nil)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	reclaimed, err := m.store.Reclaim(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("reclaim interrupted items: %w", err)
	}
	if reclaimed > 0 {
		m.logger.Info("reclaimed interrupted items",
			logging.Int64("count", reclaimed),
		)
	}

	if stats, err := m.store.Stats(runCtx); err == nil {
		for status, count := range stats {
			metrics.SetQueueDepth(string(status), count)
		}
	}

	for _, host := range m.hosts {
		host.Start(runCtx)
	}
	for _, d := range m.dispatchers {
		go d.run(runCtx)
	}
	for _, d := range m.dispatchers {
		d.post(message{kind: msgDemand})
	}

	m.running = true
	m.logger.Info("pipeline started",
		logging.Int("stages", len(m.dispatchers)),
	)
	return nil
}

// Stop cancels the run context and waits for dispatchers and hosts to exit.
// In-flight external work is cancelled through its context; interrupted
// claims are rolled back by Reclaim on the next start.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.stoppedOnce = true
	m.mu.Unlock()

	cancel()
	for _, d := range m.dispatchers {
		<-d.done
	}
	for _, host := range m.hosts {
		host.Wait()
	}
	m.logger.Info("pipeline stopped")
}

// Running reports whether the pipeline has been started and not yet stopped.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Pause requests a cooperative pause. An empty stage name fans out to every
// stage. Stages with work in flight finish their current item first.
func (m *Manager) Pause(stageName string) error {
	return m.broadcast(stageName, message{kind: msgPause})
}

// Resume re-arms dispatch for paused stages. An empty stage name fans out.
func (m *Manager) Resume(stageName string) error {
	return m.broadcast(stageName, message{kind: msgResume})
}

// Nudge wakes a stage's dispatcher so newly eligible items are noticed
// without waiting for the next poll.
func (m *Manager) Nudge(stageName string) {
	m.mu.Lock()
	d := m.byName[stageName]
	running := m.running
	m.mu.Unlock()
	if d == nil || !running {
		return
	}
	d.post(message{kind: msgNudge})
}

// EnqueueManual pushes an item to the front of a stage's queue, ahead of the
// store's priority order. The item must currently be eligible for the stage.
func (m *Manager) EnqueueManual(ctx context.Context, stageName string, itemID int64) error {
	m.mu.Lock()
	d := m.byName[stageName]
	running := m.running
	m.mu.Unlock()
	if d == nil {
		return services.Wrap(services.ErrValidation, "pipeline", "enqueue", fmt.Sprintf("unknown stage %q", stageName), nil)
	}
	if !running {
		return services.Wrap(services.ErrUnavailable, "pipeline", "enqueue", "pipeline is not running", nil)
	}

	item, err := m.store.ItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return services.Wrap(services.ErrNotFound, "pipeline", "enqueue", fmt.Sprintf("item %d", itemID), nil)
	}
	if item.Status != d.policy.source {
		return services.Wrap(services.ErrValidation, "pipeline", "enqueue",
			fmt.Sprintf("item %d is %s, not %s", itemID, item.Status, d.policy.source), nil)
	}

	d.post(message{kind: msgManual, itemID: itemID})
	return nil
}

// StatusSummary is the operator-facing view of the pipeline.
type StatusSummary struct {
	Running bool                    `json:"running"`
	Stages  []StageSnapshot         `json:"stages"`
	Queue   map[queue.Status]int    `json:"queue"`
	Health  map[string]stage.Health `json:"health"`
}

// Status gathers stage snapshots, queue counts, and handler health.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.Lock()
	running := m.running
	dispatchers := append([]*dispatcher(nil), m.dispatchers...)
	handlers := make(map[string]stage.Handler, len(m.handlers))
	for name, handler := range m.handlers {
		handlers[name] = handler
	}
	m.mu.Unlock()

	summary := StatusSummary{
		Running: running,
		Queue:   make(map[queue.Status]int),
		Health:  make(map[string]stage.Health, len(handlers)),
	}

	if stats, err := m.store.Stats(ctx); err == nil {
		summary.Queue = stats
	} else {
		m.logger.Warn("queue stats unavailable", logging.Error(err))
	}

	for _, d := range dispatchers {
		if !running {
			summary.Stages = append(summary.Stages, StageSnapshot{
				Stage:  d.policy.name,
				Status: StatusStopped,
			})
			continue
		}
		snap, err := d.snapshot(ctx)
		if err != nil {
			snap = StageSnapshot{Stage: d.policy.name, Status: StatusStopped, LastError: err.Error()}
		}
		summary.Stages = append(summary.Stages, snap)
	}

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	for name, handler := range handlers {
		summary.Health[name] = handler.HealthCheck(healthCtx)
	}
	return summary
}

func (m *Manager) broadcast(stageName string, msg message) error {
	m.mu.Lock()
	running := m.running
	var targets []*dispatcher
	if stageName == "" {
		targets = append(targets, m.dispatchers...)
	} else if d := m.byName[stageName]; d != nil {
		targets = append(targets, d)
	}
	m.mu.Unlock()

	if len(targets) == 0 {
		return services.Wrap(services.ErrValidation, "pipeline", "control", fmt.Sprintf("unknown stage %q", stageName), nil)
	}
	if !running {
		return services.Wrap(services.ErrUnavailable, "pipeline", "control", "pipeline is not running", nil)
	}
	for _, d := range targets {
		d.post(msg)
	}
	return nil
}

func (m *Manager) handleSuccess(ctx context.Context, itemID int64, stageName string) {
	if stageName != StageEncoding || m.notifier == nil {
		return
	}
	notifyCtx := context.WithoutCancel(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(notifyCtx, 10*time.Second)
		defer cancel()
		item, err := m.store.ItemByID(nctx, itemID)
		if err != nil || item == nil {
			return
		}
		m.notifier.ItemEncoded(nctx, item)
	}()
}

func (m *Manager) handleFailure(ctx context.Context, itemID int64, stageName string, category queue.FailureCategory, message string) {
	if m.notifier == nil {
		return
	}
	notifyCtx := context.WithoutCancel(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(notifyCtx, 10*time.Second)
		defer cancel()
		item, err := m.store.ItemByID(nctx, itemID)
		if err != nil || item == nil {
			return
		}
		m.notifier.ItemFailed(nctx, item, stageName, message)
	}()
}

func (m *Manager) handleReset(stageName string, consecutive int) {
	if m.notifier == nil {
		return
	}
	go func() {
		nctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		m.notifier.WorkerReset(nctx, stageName, consecutive)
	}()
}
