// Package tasks implements the Task Manager (C10): a cooperative ticker
// per scheduled job, skip-on-miss rather than catch-up, and per-task
// metrics aggregated and logged on a fixed interval.
//
// The one-ticker-goroutine-per-job shape, ctx.Done()-first select, and
// log-on-cadence style are grounded on
// theRebelliousNerd-codenerd/internal/autopoiesis's
// Orchestrator.StartKernelListener. Skip-on-miss falls out of
// time.Ticker itself: its channel holds at most one pending tick, so a
// slow Run on cycle N never causes cycle N+1 to fire twice once it's
// free again — there is no queue to catch up from.
package tasks

import (
	"context"
	"sync"
	"time"

	"mira/internal/config"
	"mira/internal/logging"
)

// Task is one independently scheduled unit of background work. Run
// reports how many items it processed, for the metrics aggregate.
type Task interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) (processed int, err error)
}

// Metrics accumulates per-task run counters. All fields are guarded by
// the owning Manager's mutex; read a snapshot via Manager.Snapshot.
type Metrics struct {
	Invocations int
	Errors      int
	Processed   int
	TotalTime   time.Duration
	LastRun     time.Time
	LastError   string
}

// Manager runs every registered Task on its own ticker and reports
// aggregate metrics on config.Tasks.MetricsReportInterval.
type Manager struct {
	cfg   config.TasksConfig
	tasks []Task

	mu      sync.Mutex
	metrics map[string]*Metrics

	wg sync.WaitGroup
}

func NewManager(cfg config.TasksConfig, tasks ...Task) *Manager {
	m := &Manager{
		cfg:     cfg,
		tasks:   tasks,
		metrics: make(map[string]*Metrics),
	}
	for _, t := range tasks {
		m.metrics[t.Name()] = &Metrics{}
	}
	return m
}

// Start launches one goroutine per registered task plus the metrics
// reporter, and returns immediately. The goroutines return once ctx is
// cancelled; Wait blocks until they all have.
func (m *Manager) Start(ctx context.Context) {
	for _, t := range m.tasks {
		t := t
		m.wg.Add(1)
		go m.runLoop(ctx, t)
	}
	if m.cfg.MetricsReportInterval > 0 {
		m.wg.Add(1)
		go m.reportLoop(ctx)
	}
}

// Wait blocks until every task goroutine started by Start has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) runLoop(ctx context.Context, t Task) {
	defer m.wg.Done()

	ticker := time.NewTicker(t.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx, t)
		}
	}
}

func (m *Manager) runOnce(ctx context.Context, t Task) {
	start := time.Now()
	processed, err := t.Run(ctx)
	elapsed := time.Since(start)

	m.mu.Lock()
	mt := m.metrics[t.Name()]
	mt.Invocations++
	mt.Processed += processed
	mt.TotalTime += elapsed
	mt.LastRun = start
	if err != nil {
		mt.Errors++
		mt.LastError = err.Error()
	}
	m.mu.Unlock()

	if err != nil {
		logging.Get(logging.CategoryTasks).Warnw("task run failed", "task", t.Name(), "error", err, "duration_ms", elapsed.Milliseconds())
		return
	}
	logging.Get(logging.CategoryTasks).Debugw("task run completed", "task", t.Name(), "processed", processed, "duration_ms", elapsed.Milliseconds())
}

func (m *Manager) reportLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MetricsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.logSnapshot()
		}
	}
}

func (m *Manager) logSnapshot() {
	for name, snap := range m.Snapshot() {
		logging.Get(logging.CategoryTasks).Infow("task metrics", "task", name,
			"invocations", snap.Invocations, "errors", snap.Errors, "processed", snap.Processed,
			"total_time_ms", snap.TotalTime.Milliseconds())
	}
}

// Snapshot returns a copy of every task's current metrics, keyed by name.
func (m *Manager) Snapshot() map[string]Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Metrics, len(m.metrics))
	for name, mt := range m.metrics {
		out[name] = *mt
	}
	return out
}
