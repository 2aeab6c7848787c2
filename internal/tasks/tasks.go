package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/datactx"
	"github.com/vikasavnish/stockmemo/internal/logger"
)

// Manager handles the execution of scheduled tasks
type Manager struct {
	registry    *datactx.Registry
	interval    time.Duration
	sessionIdle time.Duration
	log         *zap.SugaredLogger
	tasks    []Task
}

// Task represents a scheduled task that needs to be executed
type Task interface {
	Start()
	Stop()
}

// NewManager creates a new task manager. A zero interval disables the price
// refresh; a zero sessionIdle keeps sessions until shutdown.
func NewManager(registry *datactx.Registry, interval, sessionIdle time.Duration, log *zap.SugaredLogger) *Manager {
	return &Manager{
		registry:    registry,
		interval:    interval,
		sessionIdle: sessionIdle,
		log:         logger.OrNop(log),
		tasks:       make([]Task, 0),
	}
}

// RegisterTask registers a task with the manager
func (m *Manager) RegisterTask(task Task) {
	m.tasks = append(m.tasks, task)
}

// StartScheduledTasks starts all registered tasks
func (m *Manager) StartScheduledTasks() {
	if m.interval > 0 {
		m.RegisterTask(NewPriceRefreshTask(m.registry.Sessions, m.interval, m.log))
	}
	if m.sessionIdle > 0 {
		m.RegisterTask(NewSessionSweepTask(m.registry.Sweep, m.sessionIdle, m.log))
	}

	for _, task := range m.tasks {
		task.Start()
	}

	m.log.Infof("Started %d scheduled tasks", len(m.tasks))
}

// StopAllTasks stops all running tasks
func (m *Manager) StopAllTasks() {
	for _, task := range m.tasks {
		task.Stop()
	}
	m.log.Info("Stopped all scheduled tasks")
}

// PriceRefreshTask refreshes prices for every signed-in session on a schedule
type PriceRefreshTask struct {
	sessions func() []*datactx.Context
	interval time.Duration
	log      *zap.SugaredLogger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewPriceRefreshTask creates a new price refresh task
func NewPriceRefreshTask(sessions func() []*datactx.Context, interval time.Duration, log *zap.SugaredLogger) *PriceRefreshTask {
	return &PriceRefreshTask{
		sessions: sessions,
		interval: interval,
		log:      logger.OrNop(log),
	}
}

// Start begins the price refresh task
func (t *PriceRefreshTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.done = make(chan struct{})
	t.running = true

	go func(done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.RunOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}(t.done)

	t.log.Infof("Price refresh task started, every %s", t.interval)
}

// Stop terminates the price refresh task and waits for a running pass to end
func (t *PriceRefreshTask) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	cancel, done := t.cancel, t.done
	t.mu.Unlock()

	cancel()
	<-done
	t.log.Info("Price refresh task stopped")
}

// RunOnce refreshes every session one after another and returns the number
// of updated stocks
func (t *PriceRefreshTask) RunOnce(ctx context.Context) int {
	total := 0
	for _, s := range t.sessions() {
		n, err := s.UpdateAllStockPrices(ctx)
		switch {
		case errors.Is(err, datactx.ErrSyncInProgress), errors.Is(err, datactx.ErrUnauthenticated):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return total
			}
			t.log.Warnf("Scheduled price refresh for %s failed: %v", s.UserID(), err)
		}
		total += n
	}
	return total
}
