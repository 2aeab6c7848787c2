package remote

import (
	"time"

	"github.com/vikasavnish/stockmemo/internal/models"
)

// Row types mirror the hosted schema. Every table carries user_id and all
// queries filter on it.

type accountRow struct {
	ID          string    `gorm:"primaryKey;column:id"`
	UserID      string    `gorm:"column:user_id;not null;index"`
	BrokerName  string    `gorm:"column:broker_name;not null"`
	CashBalance float64   `gorm:"column:cash_balance;not null"`
	Memo        *string   `gorm:"column:memo"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (accountRow) TableName() string {
	return "accounts"
}

type stockRow struct {
	ID           string    `gorm:"primaryKey;column:id"`
	UserID       string    `gorm:"column:user_id;not null;index"`
	AccountID    *string   `gorm:"column:account_id;index"`
	Symbol       *string   `gorm:"column:symbol"`
	Name         string    `gorm:"column:name;not null"`
	Quantity     float64   `gorm:"column:quantity;not null"`
	AvgPrice     float64   `gorm:"column:avg_price;not null"`
	CurrentPrice *float64  `gorm:"column:current_price"`
	Status       string    `gorm:"column:status;not null"`
	Category     *string   `gorm:"column:category"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (stockRow) TableName() string {
	return "stocks"
}

type memoRow struct {
	ID               string    `gorm:"primaryKey;column:id"`
	UserID           string    `gorm:"column:user_id;not null;index"`
	StockID          string    `gorm:"column:stock_id;not null;index"`
	Type             string    `gorm:"column:type;not null"`
	BuyReason        *string   `gorm:"column:buy_reason"`
	ExpectedScenario *string   `gorm:"column:expected_scenario"`
	Risks            *string   `gorm:"column:risks"`
	CurrentThought   *string   `gorm:"column:current_thought"`
	SellReview       *string   `gorm:"column:sell_review"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

func (memoRow) TableName() string {
	return "memos"
}

type attachmentRow struct {
	ID         string    `gorm:"primaryKey;column:id"`
	UserID     string    `gorm:"column:user_id;not null;index"`
	MemoID     string    `gorm:"column:memo_id;not null;index"`
	Type       string    `gorm:"column:type;not null"`
	FileName   string    `gorm:"column:file_name"`
	FileSize   int64     `gorm:"column:file_size"`
	MimeType   string    `gorm:"column:mime_type"`
	StorageURL string    `gorm:"column:storage_url"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (attachmentRow) TableName() string {
	return "attachments"
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toAccountRow(userID string, a models.Account) accountRow {
	return accountRow{
		ID:          a.ID,
		UserID:      userID,
		BrokerName:  a.BrokerName,
		CashBalance: a.CashBalance,
		Memo:        a.Memo,
		CreatedAt:   millis(a.CreatedAt),
		UpdatedAt:   millis(a.UpdatedAt),
	}
}

func fromAccountRow(r accountRow) models.Account {
	return models.Account{
		ID:          r.ID,
		BrokerName:  r.BrokerName,
		CashBalance: r.CashBalance,
		Memo:        r.Memo,
		CreatedAt:   r.CreatedAt.UnixMilli(),
		UpdatedAt:   r.UpdatedAt.UnixMilli(),
	}
}

func toStockRow(userID string, s models.Stock) stockRow {
	return stockRow{
		ID:           s.ID,
		UserID:       userID,
		AccountID:    s.AccountID,
		Symbol:       s.Symbol,
		Name:         s.Name,
		Quantity:     s.Quantity,
		AvgPrice:     s.AvgPrice,
		CurrentPrice: s.CurrentPrice,
		Status:       string(s.Status),
		Category:     s.Category,
		CreatedAt:    millis(s.CreatedAt),
		UpdatedAt:    millis(s.UpdatedAt),
	}
}

func fromStockRow(r stockRow) models.Stock {
	return models.Stock{
		ID:           r.ID,
		AccountID:    r.AccountID,
		Symbol:       r.Symbol,
		Name:         r.Name,
		Quantity:     r.Quantity,
		AvgPrice:     r.AvgPrice,
		CurrentPrice: r.CurrentPrice,
		Status:       models.StockStatus(r.Status),
		Category:     r.Category,
		CreatedAt:    r.CreatedAt.UnixMilli(),
		UpdatedAt:    r.UpdatedAt.UnixMilli(),
	}
}

func toMemoRow(userID string, m models.Memo) memoRow {
	return memoRow{
		ID:               m.ID,
		UserID:           userID,
		StockID:          m.StockID,
		Type:             string(m.Type),
		BuyReason:        m.BuyReason,
		ExpectedScenario: m.ExpectedScenario,
		Risks:            m.Risks,
		CurrentThought:   m.CurrentThought,
		SellReview:       m.SellReview,
		CreatedAt:        millis(m.CreatedAt),
		UpdatedAt:        millis(m.UpdatedAt),
	}
}

func fromMemoRow(r memoRow) models.Memo {
	return models.Memo{
		ID:               r.ID,
		StockID:          r.StockID,
		Type:             models.MemoType(r.Type),
		BuyReason:        r.BuyReason,
		ExpectedScenario: r.ExpectedScenario,
		Risks:            r.Risks,
		CurrentThought:   r.CurrentThought,
		SellReview:       r.SellReview,
		CreatedAt:        r.CreatedAt.UnixMilli(),
		UpdatedAt:        r.UpdatedAt.UnixMilli(),
	}
}

func toAttachmentRow(userID string, a models.Attachment) attachmentRow {
	return attachmentRow{
		ID:         a.ID,
		UserID:     userID,
		MemoID:     a.MemoID,
		Type:       string(a.Type),
		FileName:   a.FileName,
		FileSize:   a.FileSize,
		MimeType:   a.MimeType,
		StorageURL: a.Data,
		CreatedAt:  millis(a.CreatedAt),
	}
}

func fromAttachmentRow(r attachmentRow) models.Attachment {
	return models.Attachment{
		ID:        r.ID,
		MemoID:    r.MemoID,
		Type:      models.AttachmentType(r.Type),
		FileName:  r.FileName,
		FileSize:  r.FileSize,
		MimeType:  r.MimeType,
		Data:      r.StorageURL,
		CreatedAt: r.CreatedAt.UnixMilli(),
	}
}
