package migration

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vikasavnish/stockmemo/internal/localstore"
	"github.com/vikasavnish/stockmemo/internal/models"
	"github.com/vikasavnish/stockmemo/internal/remote"
	"github.com/vikasavnish/stockmemo/internal/storage"
)

func newLocal(t *testing.T) *localstore.Store {
	t.Helper()
	backend, err := localstore.NewFileBackend(t.TempDir(), 0)
	require.NoError(t, err)
	return localstore.New(backend, nil)
}

func seed(t *testing.T, local *localstore.Store, d models.Dataset) {
	t.Helper()
	require.NoError(t, local.Save(context.Background(), d))
}

func sampleDataset() models.Dataset {
	return models.Dataset{
		Accounts: []models.Account{
			{ID: "a1", BrokerName: "Kiwoom", CashBalance: 100},
			{ID: "a2", BrokerName: "Toss", CashBalance: 200},
		},
		Stocks: []models.Stock{
			{ID: "s1", AccountID: models.StringPtr("a1"), Symbol: models.StringPtr("005930"), Name: "Samsung", Quantity: 10, AvgPrice: 70000, Status: models.StatusHolding},
			{ID: "s2", AccountID: models.StringPtr("a2"), Symbol: models.StringPtr("AAPL"), Name: "Apple", Quantity: 2, AvgPrice: 180, Status: models.StatusPartialSold},
			{ID: "s3", Name: "Kakao", Status: models.StatusWatchlist},
		},
		Memos: []models.Memo{
			{ID: "m1", StockID: "s1", Type: models.MemoPurchase, BuyReason: models.StringPtr("memory cycle")},
		},
		Attachments: []models.Attachment{
			{ID: "x1", MemoID: "m1", Type: models.AttachmentImage, FileName: "chart.png", FileSize: 5, MimeType: "image/png", Data: "data:image/png;base64,aGVsbG8="},
		},
	}
}

func TestMigrateToRemote(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	seed(t, local, sampleDataset())

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "remote.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, remote.Migrate(db))
	bucket, err := storage.NewDiskBucket(t.TempDir(), "https://files.example.com/storage")
	require.NoError(t, err)
	store := remote.NewStore(db, bucket, nil)

	svc := NewService(local, store, nil, nil)
	require.True(t, svc.HasLocalData(ctx))

	res := svc.MigrateToRemote(ctx, "u1")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, Count{Accounts: 2, Stocks: 3, Memos: 1, Attachments: 1}, res.Count)

	d, err := store.GetAllData(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, d.Accounts, 2)
	assert.Len(t, d.Stocks, 3)
	assert.Len(t, d.Memos, 1)
	require.Len(t, d.Attachments, 1)
	assert.False(t, d.Attachments[0].IsInline())
	assert.True(t, strings.HasPrefix(d.Attachments[0].Data, "https://files.example.com/storage/u1/"))
	assert.True(t, strings.HasSuffix(d.Attachments[0].Data, ".png"))

	// migration never clears the local store on its own
	assert.True(t, svc.HasLocalData(ctx))
	require.NoError(t, svc.ClearLocalData(ctx))
	assert.False(t, svc.HasLocalData(ctx))
}

type fakeRemote struct {
	failOn   map[string]error
	uploads  int
	accounts []string
	stocks   []string
	memos    []string
	saved    []models.Attachment
}

func (f *fakeRemote) check(id string) error {
	return f.failOn[id]
}

func (f *fakeRemote) SaveAccount(_ context.Context, _ string, a models.Account) error {
	if err := f.check(a.ID); err != nil {
		return err
	}
	f.accounts = append(f.accounts, a.ID)
	return nil
}

func (f *fakeRemote) SaveStock(_ context.Context, _ string, s models.Stock) error {
	if err := f.check(s.ID); err != nil {
		return err
	}
	f.stocks = append(f.stocks, s.ID)
	return nil
}

func (f *fakeRemote) SaveMemo(_ context.Context, _ string, m models.Memo) error {
	if err := f.check(m.ID); err != nil {
		return err
	}
	f.memos = append(f.memos, m.ID)
	return nil
}

func (f *fakeRemote) SaveAttachment(_ context.Context, _ string, a models.Attachment) error {
	if err := f.check(a.ID); err != nil {
		return err
	}
	f.saved = append(f.saved, a)
	return nil
}

func (f *fakeRemote) UploadImage(_ context.Context, userID string, u storage.Upload) (string, error) {
	if err := f.check("upload:" + u.FileName); err != nil {
		return "", err
	}
	f.uploads++
	return "https://cdn/" + userID + "/" + u.FileName, nil
}

func TestMigrationAbortsOnStockFailure(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	seed(t, local, sampleDataset())

	fr := &fakeRemote{failOn: map[string]error{"s2": errors.New("permission denied")}}
	res := NewService(local, fr, nil, nil).MigrateToRemote(ctx, "u1")

	assert.False(t, res.Success)
	assert.Equal(t, Count{Accounts: 2, Stocks: 1}, res.Count)
	assert.Contains(t, res.Error, "permission denied")
	assert.Empty(t, fr.memos)
	assert.Zero(t, fr.uploads)
}

func TestMigrationSkipsBadAttachments(t *testing.T) {
	ctx := context.Background()
	local := newLocal(t)
	d := sampleDataset()
	d.Attachments = []models.Attachment{
		{ID: "corrupt", MemoID: "m1", Type: models.AttachmentImage, FileName: "bad.png", Data: "data:image/png;base64,!!!"},
		{ID: "upload-fails", MemoID: "m1", Type: models.AttachmentImage, FileName: "down.png", Data: "data:image/png;base64,aGk="},
		{ID: "already-remote", MemoID: "m1", Type: models.AttachmentImage, FileName: "done.png", Data: "https://cdn/u1/done.png"},
		{ID: "text", MemoID: "m1", Type: models.AttachmentText, FileName: "note.txt", MimeType: "text/plain", Data: "data:text/plain;base64,aGk="},
	}
	seed(t, local, d)

	fr := &fakeRemote{failOn: map[string]error{"upload:down.png": errors.New("bucket offline")}}
	res := NewService(local, fr, nil, nil).MigrateToRemote(ctx, "u1")

	require.True(t, res.Success)
	assert.Equal(t, 2, res.Count.Attachments)
	assert.Equal(t, 1, fr.uploads)
	require.Len(t, fr.saved, 2)
	assert.Equal(t, "https://cdn/u1/done.png", fr.saved[0].Data)
	assert.Equal(t, "https://cdn/u1/note.txt", fr.saved[1].Data)
}

func TestResultJSON(t *testing.T) {
	raw, err := json.Marshal(Result{Success: true, Count: Count{Accounts: 2, Stocks: 3, Memos: 1, Attachments: 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"count":{"accounts":2,"stocks":3,"memos":1,"attachments":1}}`, string(raw))

	raw, err = json.Marshal(Result{Error: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":false,"count":{"accounts":0,"stocks":0,"memos":0,"attachments":0},"error":"boom"}`, string(raw))
}

func TestHasLocalDataEmpty(t *testing.T) {
	svc := NewService(newLocal(t), &fakeRemote{}, nil, nil)
	assert.False(t, svc.HasLocalData(context.Background()))

	res := svc.MigrateToRemote(context.Background(), "u1")
	assert.True(t, res.Success)
	assert.Equal(t, Count{}, res.Count)
}

func TestSnapshotLocal(t *testing.T) {
	ctx := context.Background()
	snap := NewSnapshot(models.Dataset{Accounts: []models.Account{{ID: "a1"}}})

	svc := NewService(snap, nil, nil, nil)
	assert.True(t, svc.HasLocalData(ctx))
	assert.NotNil(t, snap.Load(ctx).Stocks)

	require.NoError(t, svc.ClearLocalData(ctx))
	assert.False(t, svc.HasLocalData(ctx))
}
