package models

import (
	"strings"
	"time"
)

// StockStatus is the lifecycle state of a tracked stock
type StockStatus string

const (
	StatusWatchlist   StockStatus = "WATCHLIST"
	StatusHolding     StockStatus = "HOLDING"
	StatusPartialSold StockStatus = "PARTIAL_SOLD"
	StatusSold        StockStatus = "SOLD"
)

// Valid reports whether s is one of the known statuses
func (s StockStatus) Valid() bool {
	switch s {
	case StatusWatchlist, StatusHolding, StatusPartialSold, StatusSold:
		return true
	}
	return false
}

// MemoType classifies an investment memo
type MemoType string

const (
	MemoPurchase MemoType = "PURCHASE"
	MemoSell     MemoType = "SELL"
	MemoGeneral  MemoType = "GENERAL"
)

// AttachmentType classifies a memo attachment
type AttachmentType string

const (
	AttachmentImage AttachmentType = "IMAGE"
	AttachmentText  AttachmentType = "TEXT"
)

// Account is a brokerage account holding a cash balance
type Account struct {
	ID          string  `json:"id"`
	BrokerName  string  `json:"brokerName"`
	CashBalance float64 `json:"cashBalance"`
	Memo        *string `json:"memo,omitempty"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt"`
}

// Stock is a tracked position or watchlist entry
type Stock struct {
	ID           string      `json:"id"`
	AccountID    *string     `json:"accountId"`
	Symbol       *string     `json:"symbol,omitempty"`
	Name         string      `json:"name"`
	Quantity     float64     `json:"quantity"`
	AvgPrice     float64     `json:"avgPrice"`
	CurrentPrice *float64    `json:"currentPrice,omitempty"`
	Status       StockStatus `json:"status"`
	Category     *string     `json:"category,omitempty"`
	CreatedAt    int64       `json:"createdAt"`
	UpdatedAt    int64       `json:"updatedAt"`
}

// Normalize enforces the watchlist invariant: a WATCHLIST stock has no
// account, no quantity and no cost basis.
func (s *Stock) Normalize() {
	if s.Status == StatusWatchlist {
		s.Quantity = 0
		s.AvgPrice = 0
		s.AccountID = nil
	}
}

// Ticker returns the trimmed symbol, or "" when the stock has none
func (s Stock) Ticker() string {
	if s.Symbol == nil {
		return ""
	}
	return strings.TrimSpace(*s.Symbol)
}

// Memo is a free-text investment note attached to a stock
type Memo struct {
	ID               string   `json:"id"`
	StockID          string   `json:"stockId"`
	Type             MemoType `json:"type"`
	BuyReason        *string  `json:"buyReason,omitempty"`
	ExpectedScenario *string  `json:"expectedScenario,omitempty"`
	Risks            *string  `json:"risks,omitempty"`
	CurrentThought   *string  `json:"currentThought,omitempty"`
	SellReview       *string  `json:"sellReview,omitempty"`
	CreatedAt        int64    `json:"createdAt"`
	UpdatedAt        int64    `json:"updatedAt"`
}

// Attachment is a file attached to a memo. Data holds either an inline
// base64 data URI or the URL of an uploaded object.
type Attachment struct {
	ID        string         `json:"id"`
	MemoID    string         `json:"memoId"`
	Type      AttachmentType `json:"type"`
	FileName  string         `json:"fileName"`
	FileSize  int64          `json:"fileSize"`
	MimeType  string         `json:"mimeType"`
	Data      string         `json:"data"`
	CreatedAt int64          `json:"createdAt"`
}

// IsInline reports whether the payload is still an embedded data URI
func (a Attachment) IsInline() bool {
	return IsInlineData(a.Data)
}

// IsInlineData reports whether payload is a data URI rather than a URL.
// The prefix is the only discriminator between the two representations.
func IsInlineData(payload string) bool {
	return strings.HasPrefix(payload, "data:")
}

// Dataset is the whole application state for one user
type Dataset struct {
	Accounts    []Account    `json:"accounts"`
	Stocks      []Stock      `json:"stocks"`
	Memos       []Memo       `json:"memos"`
	Attachments []Attachment `json:"attachments"`
}

// EmptyDataset returns a valid dataset with no entities
func EmptyDataset() Dataset {
	return Dataset{
		Accounts:    []Account{},
		Stocks:      []Stock{},
		Memos:       []Memo{},
		Attachments: []Attachment{},
	}
}

// IsEmpty reports whether all four collections are empty
func (d Dataset) IsEmpty() bool {
	return len(d.Accounts) == 0 && len(d.Stocks) == 0 && len(d.Memos) == 0 && len(d.Attachments) == 0
}

// Fill replaces nil collections with empty ones so the JSON shape is stable
func (d *Dataset) Fill() {
	if d.Accounts == nil {
		d.Accounts = []Account{}
	}
	if d.Stocks == nil {
		d.Stocks = []Stock{}
	}
	if d.Memos == nil {
		d.Memos = []Memo{}
	}
	if d.Attachments == nil {
		d.Attachments = []Attachment{}
	}
}

// FindStock returns the stock with the given id
func (d Dataset) FindStock(id string) (Stock, bool) {
	for _, s := range d.Stocks {
		if s.ID == id {
			return s, true
		}
	}
	return Stock{}, false
}

// NowMillis returns the current time as epoch milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// StringPtr returns a pointer to a copy of s
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr returns a pointer to a copy of f
func Float64Ptr(f float64) *float64 {
	return &f
}
