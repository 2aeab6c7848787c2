// Package datactx is the per-session facade over the remote backend: it owns
// the cached dataset, the loading and syncing flags and every mutation.
// Mutations never patch the cache; they invalidate it and refetch.
package datactx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/models"
	"github.com/vikasavnish/stockmemo/internal/monitoring"
	"github.com/vikasavnish/stockmemo/internal/prices"
	"github.com/vikasavnish/stockmemo/internal/realtime"
	"github.com/vikasavnish/stockmemo/internal/storage"
)

var (
	// ErrUnauthenticated is returned by mutations issued without a session
	ErrUnauthenticated = errors.New("datactx: not signed in")
	// ErrSyncInProgress is returned when a bulk price refresh is already running
	ErrSyncInProgress = errors.New("datactx: price refresh already running")
	// ErrStockNotFound is returned when a price update names an unknown stock
	ErrStockNotFound = errors.New("datactx: stock not found")
)

// Remote is the backend the context reads from and writes to
type Remote interface {
	GetAllData(ctx context.Context, userID string) (models.Dataset, error)
	SaveAccount(ctx context.Context, userID string, a models.Account) error
	DeleteAccount(ctx context.Context, userID, id string) error
	SaveStock(ctx context.Context, userID string, s models.Stock) error
	DeleteStock(ctx context.Context, userID, id string) error
	SaveMemo(ctx context.Context, userID string, m models.Memo) error
	DeleteMemo(ctx context.Context, userID, id string) error
	SaveAttachment(ctx context.Context, userID string, a models.Attachment) error
	DeleteAttachment(ctx context.Context, userID, id string) error
	UploadImage(ctx context.Context, userID string, u storage.Upload) (string, error)
}

// PriceLookup resolves a ticker to a price, or nil
type PriceLookup interface {
	Lookup(ctx context.Context, ticker string) *float64
}

// State is the session state
type State string

const (
	Anonymous     State = "anonymous"
	Loading       State = "loading"
	Ready         State = "ready"
	SyncingPrices State = "syncing-prices"
)

// DefaultRefreshDelay is the pause before each lookup of a bulk refresh
const DefaultRefreshDelay = 800 * time.Millisecond

// Context is one user session
type Context struct {
	remote  Remote
	prices  PriceLookup
	feed    realtime.Subscriber
	metrics *monitoring.Metrics
	log     *zap.SugaredLogger
	delay   time.Duration
	wait    func(ctx context.Context, d time.Duration) error
	newID   func() string
	// origin tags this session's writes on the change feed
	origin string

	mu      sync.RWMutex
	userID  string
	data    models.Dataset
	stale   bool
	loading bool
	err     error
	sub     realtime.Subscription
	stop    context.CancelFunc
	done    chan struct{}

	// one refetch at a time
	fetchMu sync.Mutex
	syncing atomic.Bool
}

// Option configures a Context
type Option func(*Context)

// WithRealtime refetches whenever the feed reports a change for the user
func WithRealtime(sub realtime.Subscriber) Option {
	return func(c *Context) { c.feed = sub }
}

// WithRefreshDelay sets the pause before each lookup of a bulk refresh
func WithRefreshDelay(d time.Duration) Option {
	return func(c *Context) { c.delay = d }
}

func WithMetrics(m *monitoring.Metrics) Option {
	return func(c *Context) { c.metrics = m }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Context) { c.log = logger.OrNop(l) }
}

// WithIDGenerator overrides how ids of new records are minted
func WithIDGenerator(fn func() string) Option {
	return func(c *Context) { c.newID = fn }
}

func New(remote Remote, lookup PriceLookup, opts ...Option) *Context {
	c := &Context{
		remote: remote,
		prices: lookup,
		log:    logger.Nop(),
		delay:  DefaultRefreshDelay,
		wait:   prices.Wait,
		newID:  uuid.NewString,
		origin: uuid.NewString(),
		data:   models.EmptyDataset(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserID returns the signed-in user, or "" when anonymous
func (c *Context) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.userID == "":
		return Anonymous
	case c.syncing.Load():
		return SyncingPrices
	case c.loading:
		return Loading
	default:
		return Ready
	}
}

func (c *Context) IsLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

func (c *Context) IsSyncing() bool {
	return c.syncing.Load()
}

// Err returns the error of the last failed fetch, if any
func (c *Context) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// SignIn starts a session for userID and loads its dataset
func (c *Context) SignIn(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if c.UserID() == userID {
		return nil
	}
	c.SignOut()

	c.mu.Lock()
	c.userID = userID
	c.data = models.EmptyDataset()
	c.stale = true
	c.loading = true
	c.err = nil
	c.mu.Unlock()

	if c.feed != nil {
		if err := c.watch(ctx, userID); err != nil {
			c.log.Warnf("realtime subscription for %s failed, changes from other sessions will not refresh: %v", userID, err)
		}
	}
	return c.refetch(ctx)
}

// SignOut drops the session and its subscription and returns to the empty dataset
func (c *Context) SignOut() {
	c.mu.Lock()
	sub, stop, done := c.sub, c.stop, c.done
	c.userID = ""
	c.data = models.EmptyDataset()
	c.stale = false
	c.loading = false
	c.err = nil
	c.sub, c.stop, c.done = nil, nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
	}
	if sub != nil {
		sub.Close()
	}
	if done != nil {
		<-done
	}
}

func (c *Context) watch(ctx context.Context, userID string) error {
	sub, err := c.feed.Subscribe(ctx, userID)
	if err != nil {
		return err
	}
	watchCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.sub, c.stop, c.done = sub, stop, done
	c.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-watchCtx.Done():
				return
			case change, ok := <-sub.Changes():
				if !ok {
					return
				}
				if change.Origin == c.origin {
					continue
				}
				c.log.Debugf("%s %s %s, refetching", change.Table, change.Type, change.RecordID)
				c.Invalidate()
				if err := c.refetch(watchCtx); err != nil && watchCtx.Err() == nil {
					c.log.Warnf("refetch after change failed: %v", err)
				}
			}
		}
	}()
	return nil
}

// Invalidate marks the cached dataset stale
func (c *Context) Invalidate() {
	c.mu.Lock()
	if c.userID != "" {
		c.stale = true
	}
	c.mu.Unlock()
}

func (c *Context) refetch(ctx context.Context) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	c.mu.Lock()
	userID := c.userID
	if userID == "" {
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	c.mu.Unlock()

	d, err := c.remote.GetAllData(ctx, userID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != userID {
		return nil
	}
	c.loading = false
	if err != nil {
		c.err = err
		return err
	}
	c.data = d
	c.stale = false
	c.err = nil
	return nil
}

// Data returns the cached dataset, refetching first when it was invalidated.
// Anonymous sessions always see the empty dataset.
func (c *Context) Data(ctx context.Context) (models.Dataset, error) {
	c.mu.RLock()
	anonymous, stale := c.userID == "", c.stale
	c.mu.RUnlock()

	if anonymous {
		return models.EmptyDataset(), nil
	}
	var err error
	if stale {
		err = c.refetch(ctx)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, err
}

// mutate runs one remote write and then invalidates and refetches. A failed
// refetch is kept in Err and does not fail the write. The write carries the
// session origin so the change it publishes is not refetched a second time.
func (c *Context) mutate(ctx context.Context, write func(ctx context.Context, userID string) error) error {
	userID := c.UserID()
	if userID == "" {
		return ErrUnauthenticated
	}
	if err := write(realtime.WithOrigin(ctx, c.origin), userID); err != nil {
		return err
	}
	c.Invalidate()
	if err := c.refetch(ctx); err != nil {
		c.log.Warnf("refetch after write failed: %v", err)
	}
	return nil
}

func (c *Context) SaveAccount(ctx context.Context, a models.Account) error {
	if a.ID == "" {
		a.ID = c.newID()
	}
	return c.mutate(ctx, func(ctx context.Context, userID string) error {
		return c.remote.SaveAccount(ctx, userID, a)
	})
}

func (c *Context) DeleteAccount(ctx context.Context, id string) error {
	return c.mutate(ctx, func(ctx context.Context, userID string) error {
		return c.remote.DeleteAccount(ctx, userID, id)
	})
}

func (c *Context) SaveStock(ctx context.Context, s models.Stock) error {
	if s.ID == "" {
		s.ID = c.newID()
	}
	s.Normalize()
	return c.mutate(ctx, func(ctx context.Context, userID string) error {
		return c.remote.SaveStock(ctx, userID, s)
	})
}

func (c *Context) DeleteStock(ctx context.Context, id string) error {
	return c.mutate(ctx, func(ctx context.Context, userID string) error {
		return c.remote.DeleteStock(ctx, userID, id)
	})
}

func (c *Context) SaveMemo(ctx context.Context, m models.Memo) error {
	if m.ID == "" {
		m.ID = c.newID()
	}
	return c.mutate(ctx, func(ctx context.Context, userID string) error {
		return c.remote.SaveMemo(ctx, userID, m)
	})
}

func (c *Context) DeleteMemo(ctx context.Context, id string) error {
	return c.mutate(ctx, func(ctx context.Context, userID string) error {
		return c.remote.DeleteMemo(ctx, userID, id)
	})
}

func (c *Context) SaveAttachment(ctx context.Context, a models.Attachment) error {
	if a.ID == "" {
		a.ID = c.newID()
	}
	return c.mutate(ctx, func(ctx context.Context, userID string) error {
		return c.remote.SaveAttachment(ctx, userID, a)
	})
}

func (c *Context) DeleteAttachment(ctx context.Context, id string) error {
	return c.mutate(ctx, func(ctx context.Context, userID string) error {
		return c.remote.DeleteAttachment(ctx, userID, id)
	})
}

// UploadImage stores the file and returns its public URL. It does not touch the dataset.
func (c *Context) UploadImage(ctx context.Context, u storage.Upload) (string, error) {
	userID := c.UserID()
	if userID == "" {
		return "", ErrUnauthenticated
	}
	return c.remote.UploadImage(ctx, userID, u)
}

// UpdateStockPrice fetches the price of one stock and saves it when it
// changed. It reports whether the stock was updated.
func (c *Context) UpdateStockPrice(ctx context.Context, stockID string) (bool, error) {
	if c.UserID() == "" {
		return false, ErrUnauthenticated
	}
	d, err := c.Data(ctx)
	if err != nil {
		return false, err
	}
	st, ok := d.FindStock(stockID)
	if !ok {
		return false, ErrStockNotFound
	}
	ticker := st.Ticker()
	if ticker == "" {
		return false, nil
	}

	price := c.prices.Lookup(ctx, ticker)
	if price == nil {
		return false, nil
	}
	if st.CurrentPrice != nil && *st.CurrentPrice == *price {
		return false, nil
	}

	st.CurrentPrice = price
	if err := c.SaveStock(ctx, st); err != nil {
		return false, err
	}
	return true, nil
}

func refreshable(s models.Stock) bool {
	switch s.Status {
	case models.StatusHolding, models.StatusPartialSold, models.StatusWatchlist:
		return s.Ticker() != ""
	}
	return false
}

// UpdateAllStockPrices refreshes every held, partially sold or watched stock
// with a ticker, one at a time with a fixed pause before each lookup. A failure
// on one stock is logged and the loop moves on. It returns how many stocks
// were updated.
func (c *Context) UpdateAllStockPrices(ctx context.Context) (int, error) {
	if c.UserID() == "" {
		return 0, ErrUnauthenticated
	}
	if !c.syncing.CompareAndSwap(false, true) {
		c.metrics.ObservePriceRefresh("rejected")
		return 0, ErrSyncInProgress
	}
	defer c.syncing.Store(false)

	d, err := c.Data(ctx)
	if err != nil {
		c.metrics.ObservePriceRefresh("failed")
		return 0, err
	}

	var targets []string
	for _, s := range d.Stocks {
		if refreshable(s) {
			targets = append(targets, s.ID)
		}
	}
	if len(targets) == 0 {
		c.metrics.ObservePriceRefresh("empty")
		return 0, nil
	}

	updated := 0
	for _, id := range targets {
		if err := c.wait(ctx, c.delay); err != nil {
			c.metrics.ObservePriceRefresh("canceled")
			return updated, err
		}
		ok, err := c.UpdateStockPrice(ctx, id)
		if err != nil {
			c.log.Warnf("price refresh for stock %s failed: %v", id, err)
			continue
		}
		if ok {
			updated++
		}
	}
	c.log.Infof("price refresh for %s updated %d of %d stocks", c.UserID(), updated, len(targets))
	c.metrics.ObservePriceRefresh("completed")
	return updated, nil
}
