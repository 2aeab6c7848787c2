package main

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/vikasavnish/stockmemo/internal/prices"
)

// currencyFor guesses the quote currency from the ticker
func currencyFor(ticker string) string {
	if prices.IsValidTickerFormat(ticker) && len(ticker) == 6 && strings.Trim(ticker, "0123456789") == "" {
		return money.KRW
	}
	if strings.HasSuffix(ticker, prices.SuffixKOSPI) || strings.HasSuffix(ticker, prices.SuffixKOSDAQ) {
		return money.KRW
	}
	return money.USD
}

// formatPrice renders price in the ticker's currency, e.g. ₩71,000 or $190.50
func formatPrice(ticker string, price float64) string {
	code := currencyFor(ticker)
	minor := decimal.NewFromFloat(price).Shift(int32(money.GetCurrency(code).Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

var priceCmd = &cobra.Command{
	Use:   "price <ticker>",
	Short: "Look up the latest price of a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker := strings.TrimSpace(args[0])
		if msg := prices.ValidateTicker(ticker); msg != "" {
			return fmt.Errorf("%s", msg)
		}

		client := prices.NewClient(cfg.Prices, nil, sugar.Named("prices"))
		price := client.Lookup(cmd.Context(), ticker)

		out := cmd.OutOrStdout()
		if jsonOutput {
			return writeJSON(out, map[string]interface{}{"ticker": ticker, "price": price})
		}
		if price == nil {
			return fmt.Errorf("no price found for %s", ticker)
		}
		fmt.Fprintf(out, "%s\t%s\n", ticker, formatPrice(ticker, *price))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(priceCmd)
}
