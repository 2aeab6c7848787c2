// Package localstore keeps the whole offline dataset as one JSON document
// in a key-value backend. Every helper reads the full document, mutates it in
// memory and writes it back.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/models"
)

// DocumentKey is the fixed key the dataset document lives under
const DocumentKey = "stock-memo-data"

// QuotaWarning is the message handed to the warning hook when a save does not fit
const QuotaWarning = "Local storage is full. Recent changes may not have been saved; sign in to keep your data in the cloud."

// Store is the local dataset repository
type Store struct {
	backend Backend
	log     *zap.SugaredLogger
	warn    func(msg string)
	now     func() int64

	// serializes read-modify-write cycles within this process
	mu sync.Mutex
}

// Option configures a Store
type Option func(*Store)

// WithWarningHandler sets the hook that surfaces user-facing storage warnings
func WithWarningHandler(fn func(msg string)) Option {
	return func(s *Store) { s.warn = fn }
}

// WithClock overrides the epoch-millisecond clock used for timestamps
func WithClock(now func() int64) Option {
	return func(s *Store) { s.now = now }
}

func New(backend Backend, log *zap.SugaredLogger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		log:     logger.OrNop(log),
		now:     models.NowMillis,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.warn == nil {
		s.warn = func(msg string) { s.log.Warn(msg) }
	}
	return s
}

// Load returns the stored dataset. A missing or unreadable document yields
// the empty dataset; failures are logged, never returned.
func (s *Store) Load(ctx context.Context) models.Dataset {
	raw, err := s.backend.Get(ctx, DocumentKey)
	if errors.Is(err, ErrNotFound) {
		return models.EmptyDataset()
	}
	if err != nil {
		s.log.Warnf("local store read failed: %v", err)
		return models.EmptyDataset()
	}

	var d models.Dataset
	if err := json.Unmarshal(raw, &d); err != nil {
		s.log.Warnf("local store document is malformed, using empty dataset: %v", err)
		return models.EmptyDataset()
	}
	d.Fill()
	return d
}

// Save writes the whole dataset. Running out of capacity raises a warning
// through the warning hook instead of an error.
func (s *Store) Save(ctx context.Context, d models.Dataset) error {
	d.Fill()
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	err = s.backend.Set(ctx, DocumentKey, raw)
	if errors.Is(err, ErrQuotaExceeded) {
		s.log.Errorf("local store save dropped: %v", err)
		s.warn(QuotaWarning)
		return nil
	}
	return err
}

// Exists reports whether a document is stored at all
func (s *Store) Exists(ctx context.Context) bool {
	_, err := s.backend.Get(ctx, DocumentKey)
	return err == nil
}

// Clear removes the stored document
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Delete(ctx, DocumentKey)
}

func (s *Store) update(ctx context.Context, fn func(d *models.Dataset)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.Load(ctx)
	fn(&d)
	return s.Save(ctx, d)
}

func upsert[T any](items []T, item T, id func(T) string) []T {
	for i := range items {
		if id(items[i]) == id(item) {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func remove[T any](items []T, drop func(T) bool) []T {
	out := items[:0]
	for _, it := range items {
		if !drop(it) {
			out = append(out, it)
		}
	}
	return out
}

func (s *Store) SaveAccount(ctx context.Context, a models.Account) error {
	now := s.now()
	if a.CreatedAt == 0 {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return s.update(ctx, func(d *models.Dataset) {
		d.Accounts = upsert(d.Accounts, a, func(x models.Account) string { return x.ID })
	})
}

// DeleteAccount removes the account and moves its stocks to the watchlist
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	now := s.now()
	return s.update(ctx, func(d *models.Dataset) {
		d.Accounts = remove(d.Accounts, func(x models.Account) bool { return x.ID == id })
		for i := range d.Stocks {
			st := &d.Stocks[i]
			if st.AccountID != nil && *st.AccountID == id {
				st.AccountID = nil
				st.Status = models.StatusWatchlist
				st.Normalize()
				st.UpdatedAt = now
			}
		}
	})
}

func (s *Store) SaveStock(ctx context.Context, st models.Stock) error {
	st.Normalize()
	now := s.now()
	if st.CreatedAt == 0 {
		st.CreatedAt = now
	}
	st.UpdatedAt = now
	return s.update(ctx, func(d *models.Dataset) {
		d.Stocks = upsert(d.Stocks, st, func(x models.Stock) string { return x.ID })
	})
}

// DeleteStock removes the stock with its memos and their attachments
func (s *Store) DeleteStock(ctx context.Context, id string) error {
	return s.update(ctx, func(d *models.Dataset) {
		d.Stocks = remove(d.Stocks, func(x models.Stock) bool { return x.ID == id })
		memoIDs := make(map[string]bool)
		for _, m := range d.Memos {
			if m.StockID == id {
				memoIDs[m.ID] = true
			}
		}
		d.Memos = remove(d.Memos, func(x models.Memo) bool { return memoIDs[x.ID] })
		d.Attachments = remove(d.Attachments, func(x models.Attachment) bool { return memoIDs[x.MemoID] })
	})
}

func (s *Store) SaveMemo(ctx context.Context, m models.Memo) error {
	now := s.now()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	return s.update(ctx, func(d *models.Dataset) {
		d.Memos = upsert(d.Memos, m, func(x models.Memo) string { return x.ID })
	})
}

// DeleteMemo removes the memo and its attachments
func (s *Store) DeleteMemo(ctx context.Context, id string) error {
	return s.update(ctx, func(d *models.Dataset) {
		d.Memos = remove(d.Memos, func(x models.Memo) bool { return x.ID == id })
		d.Attachments = remove(d.Attachments, func(x models.Attachment) bool { return x.MemoID == id })
	})
}

func (s *Store) SaveAttachment(ctx context.Context, a models.Attachment) error {
	if a.CreatedAt == 0 {
		a.CreatedAt = s.now()
	}
	return s.update(ctx, func(d *models.Dataset) {
		d.Attachments = upsert(d.Attachments, a, func(x models.Attachment) string { return x.ID })
	})
}

func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	return s.update(ctx, func(d *models.Dataset) {
		d.Attachments = remove(d.Attachments, func(x models.Attachment) bool { return x.ID == id })
	})
}
