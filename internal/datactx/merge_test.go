package datactx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/stockmemo/internal/models"
)

func TestWeightedAverage(t *testing.T) {
	tests := []struct {
		name           string
		q1, a1, q2, a2 float64
		want           float64
	}{
		{"equal lots", 10, 100, 10, 200, 150},
		{"rounds half up", 1, 100, 1, 101, 101},
		{"rounds down", 2, 100, 1, 101, 100},
		{"fractional quantities", 0.5, 1000, 1.5, 2000, 1750},
		{"first purchase", 0, 0, 5, 70000, 70000},
		{"zero total", 0, 100, 0, 200, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeightedAverage(tt.q1, tt.a1, tt.q2, tt.a2))
		})
	}
}

func TestFindMergeTarget(t *testing.T) {
	stocks := []models.Stock{
		{ID: "s1", AccountID: models.StringPtr("a1"), Symbol: models.StringPtr("005930"), Name: "Samsung", Status: models.StatusHolding},
		{ID: "s2", AccountID: models.StringPtr("a2"), Symbol: models.StringPtr("005930"), Name: "Samsung", Status: models.StatusHolding},
		{ID: "s3", Name: "Unlisted Co", Status: models.StatusWatchlist},
	}

	got, ok := FindMergeTarget(stocks, StockInput{AccountID: models.StringPtr("a2"), Symbol: models.StringPtr("005930"), Status: models.StatusHolding})
	require.True(t, ok)
	assert.Equal(t, "s2", got.ID)

	got, ok = FindMergeTarget(stocks, StockInput{Name: "Unlisted Co", Status: models.StatusWatchlist})
	require.True(t, ok)
	assert.Equal(t, "s3", got.ID)

	_, ok = FindMergeTarget(stocks, StockInput{AccountID: models.StringPtr("a1"), Symbol: models.StringPtr("005930"), Status: models.StatusPartialSold})
	assert.False(t, ok)

	_, ok = FindMergeTarget(stocks, StockInput{Symbol: models.StringPtr("005930"), Status: models.StatusHolding})
	assert.False(t, ok)

	// a purchase typed without a ticker still finds the listed holding by name
	got, ok = FindMergeTarget(stocks, StockInput{AccountID: models.StringPtr("a1"), Name: " Samsung ", Status: models.StatusHolding})
	require.True(t, ok)
	assert.Equal(t, "s1", got.ID)

	// differing tickers never merge, even under the same name
	_, ok = FindMergeTarget(stocks, StockInput{AccountID: models.StringPtr("a1"), Symbol: models.StringPtr("005935"), Name: "Samsung", Status: models.StatusHolding})
	assert.False(t, ok)

	_, ok = FindMergeTarget(stocks, StockInput{Status: models.StatusWatchlist})
	assert.False(t, ok)
}

func TestAddStockMergesPurchase(t *testing.T) {
	r := newFakeRemote()
	r.data.Stocks = []models.Stock{
		{ID: "s1", AccountID: models.StringPtr("a1"), Symbol: models.StringPtr("AAPL"), Name: "Apple", Quantity: 10, AvgPrice: 100, Status: models.StatusHolding},
	}
	c := newTestContext(r, &fakeLookup{})
	ctx := context.Background()
	require.NoError(t, c.SignIn(ctx, "u1"))

	st, err := c.AddStock(ctx, StockInput{AccountID: models.StringPtr("a1"), Symbol: models.StringPtr("AAPL"), Name: "Apple Inc.", Quantity: 10, Price: 200, Status: models.StatusHolding})
	require.NoError(t, err)
	assert.Equal(t, "s1", st.ID)
	assert.Equal(t, 20.0, st.Quantity)
	assert.Equal(t, 150.0, st.AvgPrice)

	d, err := c.Data(ctx)
	require.NoError(t, err)
	require.Len(t, d.Stocks, 1)
	assert.Equal(t, 150.0, d.Stocks[0].AvgPrice)
}

func TestAddStockCreatesNew(t *testing.T) {
	r := newFakeRemote()
	ids := []string{"new-1", "new-2"}
	c := newTestContext(r, &fakeLookup{}, WithIDGenerator(func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}))
	ctx := context.Background()
	require.NoError(t, c.SignIn(ctx, "u1"))

	st, err := c.AddStock(ctx, StockInput{AccountID: models.StringPtr("a1"), Symbol: models.StringPtr("005930"), Name: "Samsung", Quantity: 5, Price: 70000})
	require.NoError(t, err)
	assert.Equal(t, "new-1", st.ID)
	assert.Equal(t, models.StatusHolding, st.Status)

	watch, err := c.AddStock(ctx, StockInput{AccountID: models.StringPtr("a1"), Name: "Kakao", Quantity: 5, Price: 50000, Status: models.StatusWatchlist})
	require.NoError(t, err)
	assert.Nil(t, watch.AccountID)
	assert.Zero(t, watch.Quantity)
	assert.Zero(t, watch.AvgPrice)

	d, err := c.Data(ctx)
	require.NoError(t, err)
	assert.Len(t, d.Stocks, 2)
}
