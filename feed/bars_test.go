package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentitrade/market"
)

type fakeBarStore struct {
	mu       sync.Mutex
	latest   map[string]time.Time
	upserted []market.Bar
}

func (f *fakeBarStore) UpsertBars(bars []market.Bar) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, bars...)
	return len(bars), nil
}

func (f *fakeBarStore) LatestBarTime(symbol string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts, ok := f.latest[symbol]
	return ts, ok, nil
}

func (f *fakeBarStore) stored() []market.Bar {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]market.Bar(nil), f.upserted...)
}

func newTestBarClient(t *testing.T, srv *httptest.Server) *BarClient {
	t.Helper()
	c := NewBarClient("key", "secret", 6000, zap.NewNop())
	c.baseURL = srv.URL
	return c
}

func TestGetBarsFollowsPagination(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		assert.Equal(t, "key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "secret", r.Header.Get("APCA-API-SECRET-KEY"))
		assert.Equal(t, "/v2/stocks/AAPL/bars", r.URL.Path)
		assert.Equal(t, "15Min", r.URL.Query().Get("timeframe"))

		if r.URL.Query().Get("page_token") == "" {
			fmt.Fprint(w, `{
				"bars": [{"t": "2025-03-03T14:30:00Z", "o": 100, "h": 101, "l": 99.5, "c": 100.5, "v": 12000, "n": 340}],
				"next_page_token": "page2"
			}`)
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("page_token"))
		fmt.Fprint(w, `{
			"bars": [{"t": "2025-03-03T14:45:00Z", "o": 100.5, "h": 102, "l": 100, "c": 101.8, "v": 9000, "n": 221}],
			"next_page_token": null
		}`)
	}))
	defer srv.Close()

	c := newTestBarClient(t, srv)
	bars, err := c.GetBars(context.Background(), "AAPL", "15Min",
		time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, requests)

	require.Len(t, bars, 2)
	assert.Equal(t, "AAPL", bars[0].Symbol)
	assert.Equal(t, time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC), bars[0].Time)
	assert.Equal(t, 100.5, bars[0].Close)
	assert.Equal(t, int64(340), bars[0].TradeCount)
	assert.Equal(t, 101.8, bars[1].Close)
}

func TestGetBarsSkipsMalformedTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"bars": [
				{"t": "not-a-time", "o": 1, "h": 1, "l": 1, "c": 1, "v": 1, "n": 1},
				{"t": "2025-03-03T14:30:00Z", "o": 100, "h": 101, "l": 99, "c": 100.5, "v": 12000, "n": 340}
			],
			"next_page_token": null
		}`)
	}))
	defer srv.Close()

	c := newTestBarClient(t, srv)
	bars, err := c.GetBars(context.Background(), "AAPL", "15Min", time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 100.5, bars[0].Close)
}

func TestBackfillResumesFromStoredWatermark(t *testing.T) {
	last := time.Date(2025, 3, 3, 14, 30, 0, 0, time.UTC)
	var gotStart string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStart = r.URL.Query().Get("start")
		fmt.Fprint(w, `{
			"bars": [{"t": "2025-03-03T14:45:00Z", "o": 100, "h": 101, "l": 99, "c": 100.5, "v": 1000, "n": 10}],
			"next_page_token": null
		}`)
	}))
	defer srv.Close()

	c := newTestBarClient(t, srv)
	dst := &fakeBarStore{latest: map[string]time.Time{"AAPL": last}}

	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Backfill(context.Background(), dst, []string{"AAPL"}, "15Min", start))

	// The stored watermark wins over the configured start date.
	assert.Equal(t, last.Format(time.RFC3339), gotStart)
	require.Len(t, dst.upserted, 1)
	assert.Equal(t, "AAPL", dst.upserted[0].Symbol)
}

func TestBackfillReportsPartialFailure(t *testing.T) {
	shrinkBackoff(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/stocks/BAD/bars" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{
			"bars": [{"t": "2025-03-03T14:45:00Z", "o": 100, "h": 101, "l": 99, "c": 100.5, "v": 1000, "n": 10}],
			"next_page_token": null
		}`)
	}))
	defer srv.Close()

	c := newTestBarClient(t, srv)
	dst := &fakeBarStore{}

	err := c.Backfill(context.Background(), dst, []string{"BAD", "AAPL"}, "15Min", time.Now().Add(-time.Hour))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 symbols failed")

	// The healthy symbol still made it into the store.
	require.Len(t, dst.upserted, 1)
	assert.Equal(t, "AAPL", dst.upserted[0].Symbol)
}
