// Package exchangerate fetches the display exchange rate printed on budgets.
// Failures are never fatal: callers get ok=false and carry on without a rate.
package exchangerate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
)

const (
	defaultTimeout = 3 * time.Second
	maxBodyBytes   = 1 << 20
)

// Rate is a USD quote for Currency at FetchedAt. It is never persisted.
type Rate struct {
	Base      string          `json:"base"`
	Currency  string          `json:"currency"`
	Value     decimal.Decimal `json:"value"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Convert expresses amount (in Base) in Currency.
func (r Rate) Convert(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(r.Value).Round(2)
}

// Fetcher is the consumer-side contract.
type Fetcher interface {
	Fetch(ctx context.Context) (Rate, bool)
}

type Client struct {
	url      string
	currency string
	timeout  time.Duration
	http     *http.Client
	logg     *logger.Logger
	now      func() time.Time
}

func New(cfg config.ExchangeRateConfig, logg *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		url:      strings.TrimSpace(cfg.URL),
		currency: strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
		logg:     logg,
		now:      time.Now,
	}
}

type ratesResponse struct {
	Result   string                     `json:"result"`
	BaseCode string                     `json:"base_code"`
	Rates    map[string]decimal.Decimal `json:"rates"`
}

// Fetch returns the current rate or ok=false on any failure.
func (c *Client) Fetch(ctx context.Context) (Rate, bool) {
	rate, err := c.fetch(ctx)
	if err != nil {
		if c.logg != nil {
			logCtx := c.logg.WithFields(ctx, map[string]any{"currency": c.currency, "url": c.url})
			c.logg.WarnErr(logCtx, "exchange rate unavailable", err)
		}
		return Rate{}, false
	}
	return rate, true
}

func (c *Client) fetch(ctx context.Context) (Rate, error) {
	if c.url == "" || c.currency == "" {
		return Rate{}, fmt.Errorf("exchange rate source not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Rate{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Rate{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Rate{}, fmt.Errorf("exchange rate http %d", resp.StatusCode)
	}

	var body ratesResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return Rate{}, fmt.Errorf("decode exchange rate: %w", err)
	}
	if body.Result != "" && !strings.EqualFold(body.Result, "success") {
		return Rate{}, fmt.Errorf("exchange rate result %q", body.Result)
	}
	value, ok := body.Rates[c.currency]
	if !ok || !value.IsPositive() {
		return Rate{}, fmt.Errorf("exchange rate for %s missing", c.currency)
	}

	base := body.BaseCode
	if base == "" {
		base = "USD"
	}
	return Rate{
		Base:      base,
		Currency:  c.currency,
		Value:     value,
		FetchedAt: c.now().UTC(),
	}, nil
}
