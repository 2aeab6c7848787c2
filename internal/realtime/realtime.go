// Package realtime carries row-change notifications for a user so that every
// open session can refetch after a write made elsewhere.
package realtime

import (
	"context"
	"sync"
)

// ChangeType is the kind of row change
type ChangeType string

const (
	Insert ChangeType = "INSERT"
	Update ChangeType = "UPDATE"
	Delete ChangeType = "DELETE"
)

// Change describes one row change in a user's dataset
type Change struct {
	Table    string     `json:"table"`
	Type     ChangeType `json:"type"`
	UserID   string     `json:"userId"`
	RecordID string     `json:"recordId"`
	At       int64      `json:"at"`
	// Origin identifies the session that made the write, when known
	Origin string `json:"origin,omitempty"`
}

type originKey struct{}

// WithOrigin tags writes issued under ctx with the id of the session making them
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originKey{}, origin)
}

// OriginFrom returns the origin set by WithOrigin, or ""
func OriginFrom(ctx context.Context) string {
	origin, _ := ctx.Value(originKey{}).(string)
	return origin
}

// Publisher announces changes
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Subscriber delivers the changes of one user
type Subscriber interface {
	Subscribe(ctx context.Context, userID string) (Subscription, error)
}

// Subscription is a live change feed. Changes is closed after Close.
type Subscription interface {
	Changes() <-chan Change
	Close() error
}

// Broker is both ends of a change feed
type Broker interface {
	Publisher
	Subscriber
}

const bufferSize = 64

// Bus is an in-process Broker. Slow subscribers drop changes instead of
// blocking publishers; a dropped change is harmless since any change leads to
// a full refetch.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[*busSub]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[*busSub]struct{})}
}

func (b *Bus) Publish(_ context.Context, c Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs[c.UserID] {
		select {
		case s.ch <- c:
		default:
		}
	}
	return nil
}

func (b *Bus) Subscribe(_ context.Context, userID string) (Subscription, error) {
	s := &busSub{bus: b, userID: userID, ch: make(chan Change, bufferSize)}
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[*busSub]struct{})
	}
	b.subs[userID][s] = struct{}{}
	b.mu.Unlock()
	return s, nil
}

// Subscribers returns the number of open subscriptions of userID
func (b *Bus) Subscribers(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[userID])
}

type busSub struct {
	bus    *Bus
	userID string
	ch     chan Change
	once   sync.Once
}

func (s *busSub) Changes() <-chan Change {
	return s.ch
}

func (s *busSub) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.userID], s)
		if len(s.bus.subs[s.userID]) == 0 {
			delete(s.bus.subs, s.userID)
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
	return nil
}

// Nop is a Publisher that discards every change
type Nop struct{}

func (Nop) Publish(context.Context, Change) error { return nil }
