package localstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned by a Backend when the key holds no value
	ErrNotFound = errors.New("localstore: key not found")
	// ErrQuotaExceeded is returned by a Backend that ran out of capacity
	ErrQuotaExceeded = errors.New("localstore: storage quota exceeded")
)

// Backend is the persistent key-value layer under the local document
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

/* ---- file backend ---- */

// FileBackend keeps one file per key and rewrites it atomically
type FileBackend struct {
	dir      string
	maxBytes int64
}

// NewFileBackend creates dir if needed. maxBytes <= 0 disables the quota.
func NewFileBackend(dir string, maxBytes int64) (*FileBackend, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileBackend{dir: dir, maxBytes: maxBytes}, nil
}

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, url.PathEscape(key)+".json")
}

func (b *FileBackend) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *FileBackend) Set(_ context.Context, key string, value []byte) error {
	if b.maxBytes > 0 && int64(len(value)) > b.maxBytes {
		return fmt.Errorf("%w: %d bytes over a %d byte limit", ErrQuotaExceeded, len(value), b.maxBytes)
	}
	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, b.path(key))
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

/* ---- sqlite backend ---- */

type localDocument struct {
	Key       string `gorm:"primaryKey;column:doc_key"`
	Value     []byte `gorm:"column:value"`
	UpdatedAt time.Time
}

func (localDocument) TableName() string {
	return "local_documents"
}

// SQLBackend stores documents in a single table of an embedded database
type SQLBackend struct {
	db *gorm.DB
}

// NewSQLBackend migrates the document table and returns the backend
func NewSQLBackend(db *gorm.DB) (*SQLBackend, error) {
	if err := db.AutoMigrate(&localDocument{}); err != nil {
		return nil, err
	}
	return &SQLBackend{db: db}, nil
}

func (b *SQLBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var doc localDocument
	err := b.db.WithContext(ctx).Where("doc_key = ?", key).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.Value, nil
}

func (b *SQLBackend) Set(ctx context.Context, key string, value []byte) error {
	doc := localDocument{Key: key, Value: value, UpdatedAt: time.Now()}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doc_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&doc).Error
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "database or disk is full") {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func (b *SQLBackend) Delete(ctx context.Context, key string) error {
	return b.db.WithContext(ctx).Where("doc_key = ?", key).Delete(&localDocument{}).Error
}

/* ---- redis backend ---- */

// RedisBackend stores documents as plain Redis strings
type RedisBackend struct {
	client *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	err := b.client.Set(ctx, key, value, 0).Err()
	if err != nil && strings.HasPrefix(err.Error(), "OOM") {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}
