// Package pricefeed fetches historical pair prices from a DexScreener-style
// REST API and turns them into time-ordered price samples.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"

	"memetrader/internal/model"
)

// ErrNotFound is returned when the upstream API does not know the pair.
var ErrNotFound = errors.New("pair not found")

// Config configures the price API client.
type Config struct {
	BaseURL    string        // e.g. "https://api.dexscreener.com/latest"
	APIKey     string        // optional, sent as X-API-Key
	Timeout    time.Duration // per request; default 10s
	MaxRetries uint64        // retries after the first attempt on transient errors

	// RetryInitialInterval is the first backoff delay; default 200ms.
	RetryInitialInterval time.Duration
}

// Client talks to the upstream price API. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries uint64
	initial    time.Duration
	now        func() time.Time
}

// NewClient creates a price API client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 200 * time.Millisecond
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		initial:    cfg.RetryInitialInterval,
		now:        time.Now,
	}
}

type pricesResponse struct {
	Data struct {
		Prices []struct {
			Timestamp int64           `json:"timestamp"` // epoch millis
			PriceUsd  decimal.Decimal `json:"priceUsd"`
		} `json:"prices"`
	} `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HistoricalPrices returns the pair's prices for the timeframe window ending
// now, sorted ascending by timestamp. Transient failures (network errors,
// 429, 5xx) are retried with exponential backoff until ctx is done.
func (c *Client) HistoricalPrices(ctx context.Context, pair string, tf model.Timeframe) ([]model.PriceSample, error) {
	if pair == "" {
		return nil, fmt.Errorf("pricefeed: empty pair address")
	}
	from := tf.From(c.now()).UnixMilli()
	endpoint := c.baseURL + "/dex/pairs/" + url.PathEscape(pair) + "/prices?from=" + strconv.FormatInt(from, 10)

	var samples []model.PriceSample
	attempt := 0
	op := func() error {
		attempt++
		var err error
		samples, err = c.fetch(ctx, endpoint)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	notify := func(err error, wait time.Duration) {
		slog.Warn("[pricefeed] fetch failed, retrying",
			"pair", pair, "timeframe", tf, "attempt", attempt, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx), notify); err != nil {
		return nil, fmt.Errorf("pricefeed %s/%s: %w", pair, tf, err)
	}
	return samples, nil
}

// fetch performs one request. Errors wrapped in backoff.Permanent are not retried.
func (c *Client) fetch(ctx context.Context, endpoint string) ([]model.PriceSample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, backoff.Permanent(ErrNotFound)
	}
	if resp.StatusCode >= 400 {
		apiErr := statusError(resp)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apiErr
		}
		return nil, backoff.Permanent(apiErr)
	}

	var body pricesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode prices: %w", err))
	}

	samples := make([]model.PriceSample, len(body.Data.Prices))
	for i, p := range body.Data.Prices {
		samples[i] = model.PriceSample{
			TS:    time.UnixMilli(p.Timestamp).UTC(),
			Price: p.PriceUsd.InexactFloat64(),
		}
	}
	// The indicator engine trusts its input order, so enforce it here.
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].TS.Before(samples[j].TS) })
	return samples, nil
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil && er.Error != "" {
		return fmt.Errorf("api error (status %d): %s", resp.StatusCode, er.Error)
	}
	return fmt.Errorf("http status %d", resp.StatusCode)
}
