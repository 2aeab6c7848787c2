// Package migration copies the local offline dataset into the remote backend
// once a user signs in.
package migration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/models"
	"github.com/vikasavnish/stockmemo/internal/monitoring"
	"github.com/vikasavnish/stockmemo/internal/storage"
)

// Local is the offline side of a migration
type Local interface {
	Load(ctx context.Context) models.Dataset
	Clear(ctx context.Context) error
}

// Remote is the hosted side of a migration
type Remote interface {
	SaveAccount(ctx context.Context, userID string, a models.Account) error
	SaveStock(ctx context.Context, userID string, s models.Stock) error
	SaveMemo(ctx context.Context, userID string, m models.Memo) error
	SaveAttachment(ctx context.Context, userID string, a models.Attachment) error
	UploadImage(ctx context.Context, userID string, u storage.Upload) (string, error)
}

// Count holds the number of migrated entities per collection
type Count struct {
	Accounts    int `json:"accounts"`
	Stocks      int `json:"stocks"`
	Memos       int `json:"memos"`
	Attachments int `json:"attachments"`
}

// Result is the outcome of one migration run
type Result struct {
	Success bool   `json:"success"`
	Count   Count  `json:"count"`
	Error   string `json:"error,omitempty"`
}

// Service drains Local into Remote
type Service struct {
	local   Local
	remote  Remote
	metrics *monitoring.Metrics
	log     *zap.SugaredLogger
}

func NewService(local Local, remote Remote, metrics *monitoring.Metrics, log *zap.SugaredLogger) *Service {
	return &Service{local: local, remote: remote, metrics: metrics, log: logger.OrNop(log)}
}

// HasLocalData reports whether any local collection is non-empty
func (s *Service) HasLocalData(ctx context.Context) bool {
	return !s.local.Load(ctx).IsEmpty()
}

// ClearLocalData wipes the local store. Call it only after the migrated data
// is confirmed visible remotely.
func (s *Service) ClearLocalData(ctx context.Context) error {
	return s.local.Clear(ctx)
}

// MigrateToRemote copies accounts, stocks, memos and attachments, in that
// order. The first account, stock or memo failure ends the run; attachment
// failures are logged and skipped. Running it twice for the same user
// concurrently is not supported.
func (s *Service) MigrateToRemote(ctx context.Context, userID string) Result {
	res := s.migrate(ctx, userID, s.local.Load(ctx))
	s.metrics.ObserveMigration(res.Success, map[string]int{
		"accounts":    res.Count.Accounts,
		"stocks":      res.Count.Stocks,
		"memos":       res.Count.Memos,
		"attachments": res.Count.Attachments,
	})
	if res.Success {
		s.log.Infof("migrated local data for %s: %+v", userID, res.Count)
	} else {
		s.log.Errorf("migration for %s failed after %+v: %s", userID, res.Count, res.Error)
	}
	return res
}

func (s *Service) migrate(ctx context.Context, userID string, d models.Dataset) Result {
	var res Result
	fail := func(err error) Result {
		res.Error = err.Error()
		return res
	}

	for _, a := range d.Accounts {
		if err := s.remote.SaveAccount(ctx, userID, a); err != nil {
			return fail(fmt.Errorf("account %s: %w", a.ID, err))
		}
		res.Count.Accounts++
	}
	for _, st := range d.Stocks {
		if err := s.remote.SaveStock(ctx, userID, st); err != nil {
			return fail(fmt.Errorf("stock %s: %w", st.ID, err))
		}
		res.Count.Stocks++
	}
	for _, m := range d.Memos {
		if err := s.remote.SaveMemo(ctx, userID, m); err != nil {
			return fail(fmt.Errorf("memo %s: %w", m.ID, err))
		}
		res.Count.Memos++
	}
	for _, att := range d.Attachments {
		if err := s.migrateAttachment(ctx, userID, att); err != nil {
			s.log.Warnf("skipping attachment %s: %v", att.ID, err)
			continue
		}
		res.Count.Attachments++
	}

	res.Success = true
	return res
}

// migrateAttachment uploads inline payloads and saves the attachment with the
// resulting URL. A payload that is already a URL is saved as is.
func (s *Service) migrateAttachment(ctx context.Context, userID string, att models.Attachment) error {
	if att.IsInline() {
		contentType, data, err := storage.DecodeDataURI(att.Data)
		if err != nil {
			return err
		}
		if att.MimeType != "" {
			contentType = att.MimeType
		}
		url, err := s.remote.UploadImage(ctx, userID, storage.Upload{
			FileName:    att.FileName,
			ContentType: contentType,
			Data:        data,
		})
		if err != nil {
			return err
		}
		att.Data = url
	}
	return s.remote.SaveAttachment(ctx, userID, att)
}
