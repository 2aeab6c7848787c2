package datactx

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/monitoring"
)

type session struct {
	ctx      *Context
	ready    chan struct{}
	lastSeen time.Time
}

// Registry holds one Context per signed-in user
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	factory  func() *Context
	metrics  *monitoring.Metrics
	log      *zap.SugaredLogger
	now      func() time.Time
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

func WithRegistryLogger(l *zap.SugaredLogger) RegistryOption {
	return func(r *Registry) { r.log = logger.OrNop(l) }
}

// WithRegistryClock replaces time.Now for idle tracking
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates sessions on demand with factory
func NewRegistry(factory func() *Context, metrics *monitoring.Metrics, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*session),
		factory:  factory,
		metrics:  metrics,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the session of userID, signing it in the first time. A failed
// first load keeps the session with Err set; the next Data call retries.
func (r *Registry) Get(ctx context.Context, userID string) (*Context, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	r.mu.Lock()
	if s, ok := r.sessions[userID]; ok {
		s.lastSeen = r.now()
		r.mu.Unlock()
		select {
		case <-s.ready:
			return s.ctx, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s := &session{ctx: r.factory(), ready: make(chan struct{}), lastSeen: r.now()}
	r.sessions[userID] = s
	r.metrics.SetActiveSessions(len(r.sessions))
	r.mu.Unlock()

	// the session outlives the request that created it
	if err := s.ctx.SignIn(context.WithoutCancel(ctx), userID); err != nil {
		r.log.Warnf("initial load for %s failed: %v", userID, err)
	}
	close(s.ready)
	return s.ctx, nil
}

// Remove signs the session out and forgets it
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.metrics.SetActiveSessions(len(r.sessions))
	r.mu.Unlock()
	if ok {
		<-s.ready
		s.ctx.SignOut()
	}
}

// Sweep signs out every ready session not requested for longer than maxIdle
// and returns how many were removed
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*session
	for userID, s := range r.sessions {
		select {
		case <-s.ready:
		default:
			continue
		}
		if s.lastSeen.Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, userID)
		}
	}
	r.metrics.SetActiveSessions(len(r.sessions))
	r.mu.Unlock()

	for _, s := range idle {
		s.ctx.SignOut()
	}
	if len(idle) > 0 {
		r.log.Infof("signed out %d idle sessions", len(idle))
	}
	return len(idle)
}

// Sessions returns a snapshot of every ready session
func (r *Registry) Sessions() []*Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Context, 0, len(r.sessions))
	for _, s := range r.sessions {
		select {
		case <-s.ready:
			out = append(out, s.ctx)
		default:
		}
	}
	return out
}

// Close signs every session out
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*session)
	r.metrics.SetActiveSessions(0)
	r.mu.Unlock()
	for _, s := range sessions {
		<-s.ready
		s.ctx.SignOut()
	}
}
