package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentitrade/market"
	"sentitrade/sentiment"
)

type fakePostStore struct {
	latest   map[string]time.Time
	inserted []market.Post
}

func (f *fakePostStore) InsertPosts(posts []market.Post) (int, int, error) {
	f.inserted = append(f.inserted, posts...)
	return len(posts), 0, nil
}

func (f *fakePostStore) LatestPostTime(keyword string) (time.Time, bool, error) {
	ts, ok := f.latest[keyword]
	return ts, ok, nil
}

func newTestPostClient(t *testing.T, srv *httptest.Server, scorer sentiment.Scorer) *PostClient {
	t.Helper()
	if scorer == nil {
		scorer = sentiment.NewLexicon()
	}
	c := NewPostClient(scorer, zap.NewNop())
	c.baseURL = srv.URL
	return c
}

func TestSearchPostsScoresAndKeysBySymbol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Apple OR iPhone", q.Get("q"))
		assert.Equal(t, "latest", q.Get("sort"))
		assert.Equal(t, "en", q.Get("lang"))
		assert.Equal(t, "100", q.Get("limit"))

		fmt.Fprint(w, `{
			"posts": [{
				"author": {"handle": "alice.bsky.social"},
				"record": {"createdAt": "2025-03-03T14:31:00Z", "text": "AAPL beats earnings,` + "\\n" + `shares rally"},
				"likeCount": 42, "repostCount": 7, "quoteCount": 1, "replyCount": 3
			}],
			"cursor": ""
		}`)
	}))
	defer srv.Close()

	c := newTestPostClient(t, srv, nil)
	posts, err := c.SearchPosts(context.Background(), "AAPL", []string{"Apple", "iPhone"},
		time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)

	require.Len(t, posts, 1)
	p := posts[0]
	assert.Equal(t, "AAPL", p.Keyword)
	assert.Equal(t, "alice.bsky.social", p.Author)
	assert.Equal(t, int64(42), p.Likes)
	assert.Equal(t, int64(7), p.Shares)
	assert.NotContains(t, p.Text, "\n")
	assert.Greater(t, p.Sentiment, 0.0)
}

func TestSearchPostsSkipsMalformedTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"posts": [
				{"author": {"handle": "x"}, "record": {"createdAt": "whenever", "text": "meh"}},
				{"author": {"handle": "y"}, "record": {"createdAt": "2025-03-03T15:00:00Z", "text": "ok"}}
			]
		}`)
	}))
	defer srv.Close()

	c := newTestPostClient(t, srv, nil)
	posts, err := c.SearchPosts(context.Background(), "AAPL", []string{"Apple"},
		time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "y", posts[0].Author)
}

func TestPostBackfillResumesFromWatermark(t *testing.T) {
	last := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	var gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("since")
		fmt.Fprint(w, `{
			"posts": [{"author": {"handle": "a"}, "record": {"createdAt": "2025-03-03T13:00:00Z", "text": "bullish"}, "likeCount": 5}]
		}`)
	}))
	defer srv.Close()

	c := newTestPostClient(t, srv, nil)
	dst := &fakePostStore{latest: map[string]time.Time{"AAPL": last}}

	watchlist := map[string][]string{"AAPL": {"Apple"}}
	start := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Backfill(context.Background(), dst, watchlist, start))

	assert.Equal(t, last.Format(time.RFC3339), gotSince)
	require.Len(t, dst.inserted, 1)
	assert.Equal(t, "AAPL", dst.inserted[0].Keyword)
	assert.Greater(t, dst.inserted[0].Sentiment, 0.0)
}
