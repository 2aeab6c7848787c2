package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/stockmemo/internal/datactx"
	"github.com/vikasavnish/stockmemo/internal/models"
	"github.com/vikasavnish/stockmemo/internal/storage"
)

type memRemote struct {
	stocks []models.Stock
}

func (m *memRemote) GetAllData(context.Context, string) (models.Dataset, error) {
	d := models.EmptyDataset()
	d.Stocks = append(d.Stocks, m.stocks...)
	return d, nil
}

func (m *memRemote) SaveStock(_ context.Context, _ string, s models.Stock) error {
	for i := range m.stocks {
		if m.stocks[i].ID == s.ID {
			m.stocks[i] = s
		}
	}
	return nil
}

func (m *memRemote) SaveAccount(context.Context, string, models.Account) error       { return nil }
func (m *memRemote) DeleteAccount(context.Context, string, string) error             { return nil }
func (m *memRemote) DeleteStock(context.Context, string, string) error               { return nil }
func (m *memRemote) SaveMemo(context.Context, string, models.Memo) error             { return nil }
func (m *memRemote) DeleteMemo(context.Context, string, string) error                { return nil }
func (m *memRemote) SaveAttachment(context.Context, string, models.Attachment) error { return nil }
func (m *memRemote) DeleteAttachment(context.Context, string, string) error          { return nil }
func (m *memRemote) UploadImage(context.Context, string, storage.Upload) (string, error) {
	return "", nil
}

type fixedPrice float64

func (p fixedPrice) Lookup(context.Context, string) *float64 {
	v := float64(p)
	return &v
}

func TestRunOnceRefreshesEverySession(t *testing.T) {
	ctx := context.Background()
	remotes := map[string]*memRemote{
		"u1": {stocks: []models.Stock{{ID: "a", Symbol: models.StringPtr("AAPL"), Name: "Apple", Quantity: 1, Status: models.StatusHolding}}},
		"u2": {stocks: []models.Stock{{ID: "b", Symbol: models.StringPtr("005930"), Name: "Samsung", Status: models.StatusWatchlist}}},
	}

	var sessions []*datactx.Context
	for user, r := range remotes {
		c := datactx.New(r, fixedPrice(100), datactx.WithRefreshDelay(0))
		require.NoError(t, c.SignIn(ctx, user))
		sessions = append(sessions, c)
	}
	// signed-out sessions are skipped
	sessions = append(sessions, datactx.New(&memRemote{}, fixedPrice(1)))

	task := NewPriceRefreshTask(func() []*datactx.Context { return sessions }, time.Hour, nil)
	assert.Equal(t, 2, task.RunOnce(ctx))
	assert.Equal(t, 100.0, *remotes["u1"].stocks[0].CurrentPrice)
	assert.Equal(t, 100.0, *remotes["u2"].stocks[0].CurrentPrice)
}

func TestStartStop(t *testing.T) {
	task := NewPriceRefreshTask(func() []*datactx.Context { return nil }, time.Millisecond, nil)
	task.Start()
	task.Start()
	time.Sleep(5 * time.Millisecond)
	task.Stop()
	task.Stop()
}

func TestManagerSkipsDisabledRefresh(t *testing.T) {
	m := NewManager(datactx.NewRegistry(func() *datactx.Context { return nil }, nil), 0, 0, nil)
	m.StartScheduledTasks()
	assert.Empty(t, m.tasks)
	m.StopAllTasks()
}

func TestManagerSweepsIdleSessions(t *testing.T) {
	ctx := context.Background()
	r := &memRemote{}
	registry := datactx.NewRegistry(func() *datactx.Context { return datactx.New(r, fixedPrice(1)) }, nil)
	defer registry.Close()
	c, err := registry.Get(ctx, "u1")
	require.NoError(t, err)

	m := NewManager(registry, 0, 20*time.Millisecond, nil)
	m.StartScheduledTasks()
	defer m.StopAllTasks()
	require.Len(t, m.tasks, 1)

	require.Eventually(t, func() bool { return len(registry.Sessions()) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, datactx.Anonymous, c.State())
}

func TestSessionSweepTaskInterval(t *testing.T) {
	assert.Equal(t, time.Minute, NewSessionSweepTask(nil, time.Hour, nil).every)
	assert.Equal(t, 5*time.Second, NewSessionSweepTask(nil, 10*time.Second, nil).every)

	calls := make(chan time.Duration, 8)
	task := NewSessionSweepTask(func(d time.Duration) int { calls <- d; return 0 }, 2*time.Millisecond, nil)
	task.Start()
	task.Start()
	assert.Equal(t, 2*time.Millisecond, <-calls)
	task.Stop()
	task.Stop()
}
