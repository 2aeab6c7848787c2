// Package remote is the adapter for the hosted relational backend and its
// object storage. Every call is scoped to one user id.
package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/models"
	"github.com/vikasavnish/stockmemo/internal/realtime"
	"github.com/vikasavnish/stockmemo/internal/storage"
)

// ErrNotOwner is returned when an upsert targets an id owned by another user
var ErrNotOwner = errors.New("remote: record belongs to another user")

const (
	tableAccounts    = "accounts"
	tableStocks      = "stocks"
	tableMemos       = "memos"
	tableAttachments = "attachments"
)

var (
	accountUpdateColumns = []string{"broker_name", "cash_balance", "memo", "updated_at"}
	stockUpdateColumns   = []string{"account_id", "symbol", "name", "quantity", "avg_price", "current_price", "status", "category", "updated_at"}
	memoUpdateColumns    = []string{"stock_id", "type", "buy_reason", "expected_scenario", "risks", "current_thought", "sell_review", "updated_at"}
)

// Migrate creates or updates the remote schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&accountRow{}, &stockRow{}, &memoRow{}, &attachmentRow{})
}

// Store talks to the hosted backend
type Store struct {
	db        *gorm.DB
	bucket    storage.Bucket
	publisher realtime.Publisher
	log       *zap.SugaredLogger
	now       func() time.Time

	stampMu   sync.Mutex
	lastStamp int64
}

// Option configures a Store
type Option func(*Store)

// WithPublisher announces every successful write on p
func WithPublisher(p realtime.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithClock overrides the server clock
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(db *gorm.DB, bucket storage.Bucket, log *zap.SugaredLogger, opts ...Option) *Store {
	s := &Store{
		db:        db,
		bucket:    bucket,
		publisher: realtime.Nop{},
		log:       logger.OrNop(log),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) notify(ctx context.Context, userID, table, recordID string, typ realtime.ChangeType) {
	c := realtime.Change{
		Table:    table,
		Type:     typ,
		UserID:   userID,
		RecordID: recordID,
		At:       s.now().UnixMilli(),
		Origin:   realtime.OriginFrom(ctx),
	}
	if err := s.publisher.Publish(ctx, c); err != nil {
		s.log.Warnf("publish %s change for %s failed: %v", table, recordID, err)
	}
}

// upsert inserts row or, when id already exists for this user, overwrites the
// listed columns. Ownership is checked inside the same transaction.
func (s *Store) upsert(ctx context.Context, userID, table, id string, row any, updateColumns []string) (realtime.ChangeType, error) {
	typ := realtime.Insert
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owners []string
		if err := tx.Table(table).Where("id = ?", id).Pluck("user_id", &owners).Error; err != nil {
			return err
		}
		if len(owners) > 0 {
			if owners[0] != userID {
				return ErrNotOwner
			}
			typ = realtime.Update
		}

		onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}}
		if len(updateColumns) == 0 {
			onConflict.DoNothing = true
		} else {
			onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
		}
		return tx.Clauses(onConflict).Create(row).Error
	})
	return typ, err
}

/* ---- accounts ---- */

func (s *Store) GetAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	var rows []accountRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}
	out := make([]models.Account, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromAccountRow(r))
	}
	return out, nil
}

// SaveAccount upserts a complete account. The server clock sets created_at on
// insert and updated_at on every write, so timestamps sent by the caller are
// not preserved.
func (s *Store) SaveAccount(ctx context.Context, userID string, a models.Account) error {
	now := s.now().UTC()
	row := toAccountRow(userID, a)
	row.CreatedAt, row.UpdatedAt = now, now

	typ, err := s.upsert(ctx, userID, tableAccounts, a.ID, &row, accountUpdateColumns)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.ID, err)
	}
	s.notify(ctx, userID, tableAccounts, a.ID, typ)
	return nil
}

// DeleteAccount removes the account and moves its stocks to the watchlist
func (s *Store) DeleteAccount(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&stockRow{}).
			Where("account_id = ? AND user_id = ?", id, userID).
			Updates(map[string]any{
				"account_id": nil,
				"status":     string(models.StatusWatchlist),
				"quantity":   0,
				"avg_price":  0,
				"updated_at": s.now().UTC(),
			}).Error
		if err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&accountRow{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	s.notify(ctx, userID, tableAccounts, id, realtime.Delete)
	return nil
}

/* ---- stocks ---- */

func (s *Store) GetStocks(ctx context.Context, userID string) ([]models.Stock, error) {
	var rows []stockRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get stocks: %w", err)
	}
	out := make([]models.Stock, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromStockRow(r))
	}
	return out, nil
}

func (s *Store) SaveStock(ctx context.Context, userID string, st models.Stock) error {
	st.Normalize()
	now := s.now().UTC()
	row := toStockRow(userID, st)
	row.CreatedAt, row.UpdatedAt = now, now

	typ, err := s.upsert(ctx, userID, tableStocks, st.ID, &row, stockUpdateColumns)
	if err != nil {
		return fmt.Errorf("save stock %s: %w", st.ID, err)
	}
	s.notify(ctx, userID, tableStocks, st.ID, typ)
	return nil
}

// DeleteStock removes the stock, its memos and their attachments
func (s *Store) DeleteStock(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		memoIDs := tx.Model(&memoRow{}).Select("id").Where("stock_id = ? AND user_id = ?", id, userID)
		if err := tx.Where("memo_id IN (?) AND user_id = ?", memoIDs, userID).Delete(&attachmentRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("stock_id = ? AND user_id = ?", id, userID).Delete(&memoRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&stockRow{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete stock %s: %w", id, err)
	}
	s.notify(ctx, userID, tableStocks, id, realtime.Delete)
	return nil
}

/* ---- memos ---- */

func (s *Store) GetMemos(ctx context.Context, userID string) ([]models.Memo, error) {
	var rows []memoRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get memos: %w", err)
	}
	out := make([]models.Memo, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromMemoRow(r))
	}
	return out, nil
}

func (s *Store) SaveMemo(ctx context.Context, userID string, m models.Memo) error {
	now := s.now().UTC()
	row := toMemoRow(userID, m)
	row.CreatedAt, row.UpdatedAt = now, now

	typ, err := s.upsert(ctx, userID, tableMemos, m.ID, &row, memoUpdateColumns)
	if err != nil {
		return fmt.Errorf("save memo %s: %w", m.ID, err)
	}
	s.notify(ctx, userID, tableMemos, m.ID, typ)
	return nil
}

// DeleteMemo removes the memo and its attachments
func (s *Store) DeleteMemo(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("memo_id = ? AND user_id = ?", id, userID).Delete(&attachmentRow{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&memoRow{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete memo %s: %w", id, err)
	}
	s.notify(ctx, userID, tableMemos, id, realtime.Delete)
	return nil
}

/* ---- attachments ---- */

// GetAttachments returns every attachment of the user, not only those of a given memo
func (s *Store) GetAttachments(ctx context.Context, userID string) ([]models.Attachment, error) {
	var rows []attachmentRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get attachments: %w", err)
	}
	out := make([]models.Attachment, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromAttachmentRow(r))
	}
	return out, nil
}

// SaveAttachment inserts an attachment. Attachments are immutable, so saving
// an existing id leaves the stored row untouched.
func (s *Store) SaveAttachment(ctx context.Context, userID string, a models.Attachment) error {
	row := toAttachmentRow(userID, a)
	row.CreatedAt = s.now().UTC()

	typ, err := s.upsert(ctx, userID, tableAttachments, a.ID, &row, nil)
	if err != nil {
		return fmt.Errorf("save attachment %s: %w", a.ID, err)
	}
	if typ == realtime.Insert {
		s.notify(ctx, userID, tableAttachments, a.ID, typ)
	}
	return nil
}

func (s *Store) DeleteAttachment(ctx context.Context, userID, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&attachmentRow{}).Error; err != nil {
		return fmt.Errorf("delete attachment %s: %w", id, err)
	}
	s.notify(ctx, userID, tableAttachments, id, realtime.Delete)
	return nil
}

/* ---- aggregate ---- */

// GetAllData fetches the four collections concurrently. Any failure fails the whole call.
func (s *Store) GetAllData(ctx context.Context, userID string) (models.Dataset, error) {
	var d models.Dataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.Accounts, err = s.GetAccounts(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		d.Stocks, err = s.GetStocks(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		d.Memos, err = s.GetMemos(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		d.Attachments, err = s.GetAttachments(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Dataset{}, err
	}
	d.Fill()
	return d, nil
}

// stamp returns a millisecond timestamp strictly greater than the previous one
func (s *Store) stamp() int64 {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()
	ts := s.now().UnixMilli()
	if ts <= s.lastStamp {
		ts = s.lastStamp + 1
	}
	s.lastStamp = ts
	return ts
}

// UploadImage stores the file at {userID}/{unixMillis}.{ext} and returns its public URL
func (s *Store) UploadImage(ctx context.Context, userID string, u storage.Upload) (string, error) {
	objectPath := fmt.Sprintf("%s/%d.%s", userID, s.stamp(), u.Extension())
	url, err := s.bucket.Put(ctx, objectPath, u.ContentType, u.Data)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	return url, nil
}
