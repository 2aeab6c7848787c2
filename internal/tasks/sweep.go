package tasks

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/logger"
)

// SessionSweepTask signs out sessions that have been idle for too long
type SessionSweepTask struct {
	sweep func(maxIdle time.Duration) int
	idle  time.Duration
	every time.Duration
	log   *zap.SugaredLogger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewSessionSweepTask sweeps with maxIdle = idle, checking every idle/2 but
// at least once a minute
func NewSessionSweepTask(sweep func(maxIdle time.Duration) int, idle time.Duration, log *zap.SugaredLogger) *SessionSweepTask {
	every := idle / 2
	if every > time.Minute {
		every = time.Minute
	}
	if every <= 0 {
		every = idle
	}
	return &SessionSweepTask{sweep: sweep, idle: idle, every: every, log: logger.OrNop(log)}
}

func (t *SessionSweepTask) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	t.running = true

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(t.every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.sweep(t.idle)
			case <-stop:
				return
			}
		}
	}(t.stop, t.done)

	t.log.Infof("Session sweep started, idle limit %s", t.idle)
}

func (t *SessionSweepTask) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	stop, done := t.stop, t.done
	t.mu.Unlock()

	close(stop)
	<-done
}
