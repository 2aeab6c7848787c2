package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"go.uber.org/zap"

	"github.com/vikasavnish/stockmemo/internal/config"
	"github.com/vikasavnish/stockmemo/internal/logger"
	"github.com/vikasavnish/stockmemo/internal/monitoring"
)

const (
	// SuffixKOSPI marks a Korea Exchange listing
	SuffixKOSPI = ".KS"
	// SuffixKOSDAQ marks a KOSDAQ listing
	SuffixKOSDAQ = ".KQ"

	pricePath = "$.chart.result[0].meta.regularMarketPrice"
	userAgent = "stockmemo/1.0"
)

var (
	koreanCode = regexp.MustCompile(`^\d{6}$`)
	usTicker   = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z]{1,2})?$`)
	hasLower   = regexp.MustCompile(`[a-z]`)
	digitsOnly = regexp.MustCompile(`^\d+$`)
)

// IsValidTickerFormat reports whether t is a 6-digit Korean code or an
// uppercase ticker with an optional exchange suffix
func IsValidTickerFormat(t string) bool {
	return koreanCode.MatchString(t) || usTicker.MatchString(t)
}

// ValidateTicker returns a guidance message for a malformed ticker, or ""
// when the ticker is valid or empty
func ValidateTicker(t string) string {
	t = strings.TrimSpace(t)
	if t == "" || IsValidTickerFormat(t) {
		return ""
	}
	switch {
	case hasLower.MatchString(t):
		return "Ticker must be written in uppercase letters (e.g. AAPL)."
	case digitsOnly.MatchString(t):
		return "Korean stock codes must be exactly 6 digits (e.g. 005930)."
	default:
		return "Enter a 6-digit Korean code (005930) or a 1-5 letter ticker (AAPL, BRK.B)."
	}
}

// Client fetches quotes from the Yahoo chart endpoint
type Client struct {
	baseURL  string
	relayURL string
	http     *http.Client
	metrics  *monitoring.Metrics
	log      *zap.SugaredLogger
}

func NewClient(cfg config.PriceConfig, metrics *monitoring.Metrics, log *zap.SugaredLogger) *Client {
	return &Client{
		baseURL:  cfg.BaseURL,
		relayURL: cfg.RelayURL,
		http:     &http.Client{Timeout: cfg.Timeout},
		metrics:  metrics,
		log:      logger.OrNop(log),
	}
}

// Lookup returns the current price of ticker rounded to an integer, or nil.
// It never fails: every error is logged and mapped to nil.
func (c *Client) Lookup(ctx context.Context, ticker string) *float64 {
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return nil
	}

	symbol := ticker
	if koreanCode.MatchString(ticker) {
		symbol = ticker + SuffixKOSPI
	}

	price, err := c.fetch(ctx, symbol)
	if err == nil {
		c.metrics.ObservePriceLookup("hit")
		return &price
	}
	c.log.Debugf("price lookup %s failed: %v", symbol, err)

	if strings.HasSuffix(symbol, SuffixKOSPI) {
		fallback := strings.TrimSuffix(symbol, SuffixKOSPI) + SuffixKOSDAQ
		price, err = c.fetch(ctx, fallback)
		if err == nil {
			c.metrics.ObservePriceLookup("fallback")
			return &price
		}
		c.log.Debugf("price lookup %s failed: %v", fallback, err)
	}

	c.metrics.ObservePriceLookup("miss")
	c.log.Infof("no price found for %s", ticker)
	return nil
}

func (c *Client) quoteURL(symbol string) string {
	target := c.baseURL + url.PathEscape(symbol) + "?interval=1d&range=1d"
	if c.relayURL == "" {
		return target
	}
	return c.relayURL + url.QueryEscape(target)
}

func (c *Client) fetch(ctx context.Context, symbol string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteURL(symbol), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("quote http %d", resp.StatusCode)
	}

	var body any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	return extractPrice(body)
}

func extractPrice(body any) (float64, error) {
	v, err := jsonpath.Get(pricePath, body)
	if err != nil {
		return 0, fmt.Errorf("error parsing %q: %w", pricePath, err)
	}
	if list, ok := v.([]any); ok && len(list) > 0 {
		v = list[0]
	}
	price, ok := v.(float64)
	if !ok || math.IsNaN(price) || price <= 0 {
		return 0, fmt.Errorf("no usable price at %q: %v", pricePath, v)
	}
	return math.Round(price), nil
}

// Wait blocks for delay or until ctx is done, whichever comes first
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
