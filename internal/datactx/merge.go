package datactx

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vikasavnish/stockmemo/internal/models"
)

// StockInput is an "add stock" request: a purchase of Quantity at Price, or
// a watchlist entry
type StockInput struct {
	AccountID *string            `json:"accountId"`
	Symbol    *string            `json:"symbol,omitempty"`
	Name      string             `json:"name"`
	Quantity  float64            `json:"quantity"`
	Price     float64            `json:"avgPrice"`
	Status    models.StockStatus `json:"status"`
	Category  *string            `json:"category,omitempty"`
}

// WeightedAverage returns round((q1*a1 + q2*a2) / (q1+q2)), or 0 when the
// combined quantity is 0. Rounding is to the nearest integer, half away from zero.
func WeightedAverage(q1, a1, q2, a2 float64) float64 {
	dq1, dq2 := decimal.NewFromFloat(q1), decimal.NewFromFloat(q2)
	total := dq1.Add(dq2)
	if total.IsZero() {
		return 0
	}
	cost := dq1.Mul(decimal.NewFromFloat(a1)).Add(dq2.Mul(decimal.NewFromFloat(a2)))
	avg, _ := cost.Div(total).Round(0).Float64()
	return avg
}

func sameAccount(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// sameSecurity compares tickers when both sides have one, and names otherwise
func sameSecurity(s models.Stock, in StockInput) bool {
	a, b := trimmed(s.Symbol), trimmed(in.Symbol)
	if a != "" && b != "" {
		return a == b
	}
	name := strings.TrimSpace(in.Name)
	return name != "" && strings.TrimSpace(s.Name) == name
}

// FindMergeTarget returns the stock an input should be merged into: the same
// security (by ticker, or by name when either side has no ticker), the same
// account and the same status.
func FindMergeTarget(stocks []models.Stock, in StockInput) (models.Stock, bool) {
	for _, s := range stocks {
		if sameSecurity(s, in) && sameAccount(s.AccountID, in.AccountID) && s.Status == in.Status {
			return s, true
		}
	}
	return models.Stock{}, false
}

// Merge folds a purchase into an existing stock
func Merge(existing models.Stock, in StockInput) models.Stock {
	merged := existing
	merged.AvgPrice = WeightedAverage(existing.Quantity, existing.AvgPrice, in.Quantity, in.Price)
	merged.Quantity = existing.Quantity + in.Quantity
	if in.Category != nil {
		merged.Category = in.Category
	}
	merged.Normalize()
	return merged
}

// AddStock merges the input into a matching stock or creates a new one, and
// returns the stock that was saved
func (c *Context) AddStock(ctx context.Context, in StockInput) (models.Stock, error) {
	if c.UserID() == "" {
		return models.Stock{}, ErrUnauthenticated
	}
	if in.Status == "" {
		in.Status = models.StatusHolding
	}
	if in.Status == models.StatusWatchlist {
		in.AccountID, in.Quantity, in.Price = nil, 0, 0
	}
	d, err := c.Data(ctx)
	if err != nil {
		return models.Stock{}, err
	}

	var st models.Stock
	if existing, ok := FindMergeTarget(d.Stocks, in); ok {
		st = Merge(existing, in)
	} else {
		st = models.Stock{
			ID:        c.newID(),
			AccountID: in.AccountID,
			Symbol:    in.Symbol,
			Name:      in.Name,
			Quantity:  in.Quantity,
			AvgPrice:  in.Price,
			Status:    in.Status,
			Category:  in.Category,
		}
		st.Normalize()
	}

	if err := c.SaveStock(ctx, st); err != nil {
		return models.Stock{}, err
	}
	return st, nil
}
