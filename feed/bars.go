package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sentitrade/market"
)

// BarDataURL is the historical bar endpoint.
const BarDataURL = "https://data.alpaca.markets"

// BarStore is the slice of the store bar ingestion writes to.
type BarStore interface {
	UpsertBars(bars []market.Bar) (int, error)
	LatestBarTime(symbol string) (time.Time, bool, error)
}

// BarClient pulls historical bars. Requests go through a token bucket sized
// to the provider's per-minute quota.
type BarClient struct {
	baseURL    string
	key        string
	secret     string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

// NewBarClient creates a bar client. ratePerMinute caps outgoing requests.
func NewBarClient(key, secret string, ratePerMinute int, log *zap.Logger) *BarClient {
	return &BarClient{
		baseURL: BarDataURL,
		key:     key,
		secret:  secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(float64(ratePerMinute)/60), 1),
		log:     log,
	}
}

type apiBar struct {
	Time       string  `json:"t"`
	Open       float64 `json:"o"`
	High       float64 `json:"h"`
	Low        float64 `json:"l"`
	Close      float64 `json:"c"`
	Volume     float64 `json:"v"`
	TradeCount int64   `json:"n"`
}

type barsResponse struct {
	Bars          []apiBar `json:"bars"`
	NextPageToken *string  `json:"next_page_token"`
}

// GetBars fetches bars for symbol in [start, end] at the given timeframe
// (e.g. "15Min"), following pagination.
func (c *BarClient) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time) ([]market.Bar, error) {
	var out []market.Bar
	var pageToken string

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		params := url.Values{}
		params.Set("timeframe", timeframe)
		params.Set("start", start.UTC().Format(time.RFC3339))
		params.Set("end", end.UTC().Format(time.RFC3339))
		params.Set("limit", "10000")
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		apiURL := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.baseURL, symbol, params.Encode())

		var resp barsResponse
		err := withRetry(ctx, c.log, "get bars "+symbol, func() error {
			return c.getJSON(ctx, apiURL, &resp)
		})
		if err != nil {
			return nil, err
		}

		for _, b := range resp.Bars {
			t, err := time.Parse(time.RFC3339, b.Time)
			if err != nil {
				// Malformed record: skip it, keep the batch.
				c.log.Warn("skipping bar with bad timestamp",
					zap.String("symbol", symbol),
					zap.String("timestamp", b.Time),
					zap.Error(err))
				continue
			}
			out = append(out, market.Bar{
				Symbol:     symbol,
				Time:       t.UTC(),
				Open:       b.Open,
				High:       b.High,
				Low:        b.Low,
				Close:      b.Close,
				Volume:     b.Volume,
				TradeCount: b.TradeCount,
			})
		}

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = *resp.NextPageToken
	}
}

// Backfill pulls bars for each symbol from its newest stored timestamp (or
// start, when the store has none) up to now, and upserts them. A symbol that
// fails after retries is reported and the rest continue.
func (c *BarClient) Backfill(ctx context.Context, dst BarStore, symbols []string, timeframe string, start time.Time) error {
	now := time.Now().UTC()
	var failed int

	for _, symbol := range symbols {
		since := start
		if last, ok, err := dst.LatestBarTime(symbol); err != nil {
			return fmt.Errorf("backfill %s: %w", symbol, err)
		} else if ok {
			since = last
		}

		bars, err := c.GetBars(ctx, symbol, timeframe, since, now)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("bar backfill abandoned for symbol",
				zap.String("symbol", symbol),
				zap.Error(err))
			failed++
			continue
		}
		if len(bars) == 0 {
			continue
		}

		n, err := dst.UpsertBars(bars)
		if err != nil {
			return fmt.Errorf("backfill %s: %w", symbol, err)
		}
		c.log.Info("backfilled bars",
			zap.String("symbol", symbol),
			zap.Int("bars", n),
			zap.Time("since", since))
	}

	if failed > 0 {
		return fmt.Errorf("backfill: %d of %d symbols failed", failed, len(symbols))
	}
	return nil
}

func (c *BarClient) getJSON(ctx context.Context, apiURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.key)
	req.Header.Set("APCA-API-SECRET-KEY", c.secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
