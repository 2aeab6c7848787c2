package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/logger"
)

// ChannelPrefix namespaces the per-user pub/sub channels
const ChannelPrefix = "stockmemo:changes:"

// Channel returns the pub/sub channel of a user
func Channel(userID string) string {
	return ChannelPrefix + userID
}

// RedisBroker fans changes out across processes using Redis pub/sub
type RedisBroker struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

func NewRedisBroker(client *redis.Client, log *zap.SugaredLogger) *RedisBroker {
	return &RedisBroker{client: client, log: logger.OrNop(log)}
}

func (b *RedisBroker) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel(c.UserID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, userID string) (Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(userID))
	// wait for the subscription to be confirmed
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, err
	}

	s := &redisSub{ps: ps, ch: make(chan Change, bufferSize), done: make(chan struct{})}
	go s.pump(b.log)
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan Change
	done chan struct{}
	once sync.Once
}

func (s *redisSub) pump(log *zap.SugaredLogger) {
	defer close(s.ch)
	for {
		select {
		case msg, ok := <-s.ps.Channel():
			if !ok {
				return
			}
			var c Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				log.Warnf("dropping malformed change on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case s.ch <- c:
			default:
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) Changes() <-chan Change {
	return s.ch
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
