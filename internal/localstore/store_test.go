package localstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vikasavnish/stockmemo/internal/models"
)

func newFileStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, 0)
	require.NoError(t, err)
	return New(backend, nil, opts...), dir
}

func TestLoadMissingDocument(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	assert.False(t, store.Exists(ctx))
	assert.Equal(t, models.EmptyDataset(), store.Load(ctx))
}

func TestLoadMalformedDocument(t *testing.T) {
	store, dir := newFileStore(t)
	ctx := context.Background()

	path := filepath.Join(dir, DocumentKey+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	assert.Equal(t, models.EmptyDataset(), store.Load(ctx))
}

func TestLoadIsIdempotent(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, models.Account{ID: "a1", BrokerName: "Kiwoom", CashBalance: 1000}))
	require.NoError(t, store.SaveStock(ctx, models.Stock{ID: "s1", Name: "Samsung", Status: models.StatusHolding, Quantity: 1, AvgPrice: 70000}))

	first := store.Load(ctx)
	second := store.Load(ctx)
	assert.Equal(t, first, second)
}

func TestSaveStockWatchlistInvariant(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveStock(ctx, models.Stock{
		ID:        "s1",
		AccountID: models.StringPtr("a1"),
		Name:      "Apple",
		Quantity:  5,
		AvgPrice:  190,
		Status:    models.StatusWatchlist,
	}))

	got, ok := store.Load(ctx).FindStock("s1")
	require.True(t, ok)
	assert.Zero(t, got.Quantity)
	assert.Zero(t, got.AvgPrice)
	assert.Nil(t, got.AccountID)
}

func TestSaveIsUpsertByID(t *testing.T) {
	store, _ := newFileStore(t, WithClock(func() int64 { return 42 }))
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, models.Account{ID: "a1", BrokerName: "Kiwoom"}))
	require.NoError(t, store.SaveAccount(ctx, models.Account{ID: "a1", BrokerName: "Toss", CreatedAt: 7}))

	d := store.Load(ctx)
	require.Len(t, d.Accounts, 1)
	assert.Equal(t, "Toss", d.Accounts[0].BrokerName)
	assert.Equal(t, int64(7), d.Accounts[0].CreatedAt)
	assert.Equal(t, int64(42), d.Accounts[0].UpdatedAt)
}

func TestDeleteStockCascades(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveStock(ctx, models.Stock{ID: "s1", Name: "Samsung", Status: models.StatusHolding, Quantity: 1}))
	require.NoError(t, store.SaveStock(ctx, models.Stock{ID: "s2", Name: "Kakao", Status: models.StatusHolding, Quantity: 1}))
	for _, m := range []string{"m1", "m2"} {
		require.NoError(t, store.SaveMemo(ctx, models.Memo{ID: m, StockID: "s1", Type: models.MemoPurchase}))
		require.NoError(t, store.SaveAttachment(ctx, models.Attachment{ID: "att-" + m, MemoID: m, Type: models.AttachmentText, Data: "data:text/plain;base64,aGk="}))
	}
	require.NoError(t, store.SaveMemo(ctx, models.Memo{ID: "m3", StockID: "s2", Type: models.MemoGeneral}))

	require.NoError(t, store.DeleteStock(ctx, "s1"))

	d := store.Load(ctx)
	require.Len(t, d.Stocks, 1)
	assert.Equal(t, "s2", d.Stocks[0].ID)
	require.Len(t, d.Memos, 1)
	assert.Equal(t, "m3", d.Memos[0].ID)
	assert.Empty(t, d.Attachments)
}

func TestDeleteAccountMovesStocksToWatchlist(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, models.Account{ID: "a1", BrokerName: "Kiwoom"}))
	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, store.SaveStock(ctx, models.Stock{
			ID:        id,
			AccountID: models.StringPtr("a1"),
			Name:      id,
			Quantity:  10,
			AvgPrice:  100,
			Status:    models.StatusHolding,
		}))
	}

	require.NoError(t, store.DeleteAccount(ctx, "a1"))

	d := store.Load(ctx)
	assert.Empty(t, d.Accounts)
	require.Len(t, d.Stocks, 3)
	for _, s := range d.Stocks {
		assert.Nil(t, s.AccountID)
		assert.Equal(t, models.StatusWatchlist, s.Status)
	}
}

func TestDeleteMemoRemovesAttachments(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMemo(ctx, models.Memo{ID: "m1", StockID: "s1", Type: models.MemoSell}))
	require.NoError(t, store.SaveAttachment(ctx, models.Attachment{ID: "x1", MemoID: "m1"}))
	require.NoError(t, store.SaveAttachment(ctx, models.Attachment{ID: "x2", MemoID: "other"}))

	require.NoError(t, store.DeleteMemo(ctx, "m1"))
	require.NoError(t, store.DeleteAttachment(ctx, "x2"))

	d := store.Load(ctx)
	assert.Empty(t, d.Memos)
	assert.Empty(t, d.Attachments)
}

func TestQuotaExceededWarnsInsteadOfFailing(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), 64)
	require.NoError(t, err)

	var warnings []string
	store := New(backend, nil, WithWarningHandler(func(msg string) { warnings = append(warnings, msg) }))
	ctx := context.Background()

	err = store.SaveAccount(ctx, models.Account{ID: "a1", BrokerName: "a broker name that does not fit in sixty-four bytes"})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, QuotaWarning, warnings[0])
	assert.False(t, store.Exists(ctx))
}

func TestExistsAndClear(t *testing.T) {
	store, _ := newFileStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMemo(ctx, models.Memo{ID: "m1", StockID: "s1"}))
	assert.True(t, store.Exists(ctx))

	require.NoError(t, store.Clear(ctx))
	assert.False(t, store.Exists(ctx))
	assert.True(t, store.Load(ctx).IsEmpty())
}

func TestSQLBackendRoundTrip(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "local.db")), &gorm.Config{})
	require.NoError(t, err)
	backend, err := NewSQLBackend(db)
	require.NoError(t, err)

	store := New(backend, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveAccount(ctx, models.Account{ID: "a1", BrokerName: "Kiwoom"}))
	require.NoError(t, store.SaveAccount(ctx, models.Account{ID: "a2", BrokerName: "Toss"}))
	assert.Len(t, store.Load(ctx).Accounts, 2)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, store.Exists(ctx))
}
