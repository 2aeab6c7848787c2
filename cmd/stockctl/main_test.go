package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/stockmemo/internal/config"
	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/models"
)

func TestCurrencyFor(t *testing.T) {
	assert.Equal(t, "KRW", currencyFor("005930"))
	assert.Equal(t, "KRW", currencyFor("035720.KQ"))
	assert.Equal(t, "KRW", currencyFor("005930.KS"))
	assert.Equal(t, "USD", currencyFor("AAPL"))
	assert.Equal(t, "USD", currencyFor("BRK.B"))
}

func TestOpenLocal(t *testing.T) {
	sugar = logger.Nop()
	dir := t.TempDir()

	store, err := openLocal(config.LocalConfig{Backend: "file", Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.SaveAccount(ctx, models.Account{ID: "a1", BrokerName: "Kiwoom"}))

	reopened, err := openLocal(config.LocalConfig{Backend: "file", Dir: dir})
	require.NoError(t, err)
	assert.Len(t, reopened.Load(ctx).Accounts, 1)

	_, err = openLocal(config.LocalConfig{Backend: "floppy"})
	assert.Error(t, err)
}

func TestRoutesCommand(t *testing.T) {
	var buf bytes.Buffer
	routesCmd.SetOut(&buf)
	routesCmd.Run(routesCmd, nil)
	assert.Contains(t, buf.String(), "/api/stocks/add")
}

func TestFormatPrice(t *testing.T) {
	assert.Contains(t, formatPrice("005930", 71000), "71,000")
	assert.Contains(t, formatPrice("AAPL", 190.5), "190.50")
}
