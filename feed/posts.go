package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"sentitrade/market"
	"sentitrade/sentiment"
)

// PostSearchURL is the public post search endpoint.
const PostSearchURL = "https://public.api.bsky.app/xrpc/app.bsky.feed.searchPosts"

// PostStore is the slice of the store post ingestion writes to.
type PostStore interface {
	InsertPosts(posts []market.Post) (inserted, skipped int, err error)
	LatestPostTime(keyword string) (time.Time, bool, error)
}

// PostClient searches the public social feed for posts mentioning the
// watchlist keywords, scores them, and stores them keyed by symbol.
type PostClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	scorer     sentiment.Scorer
	log        *zap.Logger
}

// NewPostClient creates a post client. The limiter mirrors the feed's
// documented quota of 3000 requests per 5 minutes.
func NewPostClient(scorer sentiment.Scorer, log *zap.Logger) *PostClient {
	return &PostClient{
		baseURL: PostSearchURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(3000.0/300.0), 10),
		scorer:  scorer,
		log:     log,
	}
}

type apiPost struct {
	Author struct {
		Handle string `json:"handle"`
	} `json:"author"`
	Record struct {
		CreatedAt string `json:"createdAt"`
		Text      string `json:"text"`
	} `json:"record"`
	LikeCount   int64 `json:"likeCount"`
	RepostCount int64 `json:"repostCount"`
	QuoteCount  int64 `json:"quoteCount"`
	ReplyCount  int64 `json:"replyCount"`
}

type searchResponse struct {
	Posts  []apiPost `json:"posts"`
	Cursor string    `json:"cursor"`
}

// SearchPosts fetches posts matching any of the keywords in [since, until].
// Sentiment is scored before the posts are returned; the symbol becomes the
// stored keyword key.
func (c *PostClient) SearchPosts(ctx context.Context, symbol string, keywords []string, since, until time.Time) ([]market.Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("q", strings.Join(keywords, " OR "))
	params.Set("since", since.UTC().Format(time.RFC3339))
	params.Set("until", until.UTC().Format(time.RFC3339))
	params.Set("sort", "latest")
	params.Set("lang", "en")
	params.Set("limit", "100")

	var resp searchResponse
	err := withRetry(ctx, c.log, "search posts "+symbol, func() error {
		return c.getJSON(ctx, c.baseURL+"?"+params.Encode(), &resp)
	})
	if err != nil {
		return nil, err
	}

	posts := make([]market.Post, 0, len(resp.Posts))
	for _, p := range resp.Posts {
		t, err := time.Parse(time.RFC3339, p.Record.CreatedAt)
		if err != nil {
			c.log.Warn("skipping post with bad timestamp",
				zap.String("symbol", symbol),
				zap.String("author", p.Author.Handle),
				zap.String("created_at", p.Record.CreatedAt),
				zap.Error(err))
			continue
		}

		text := strings.ReplaceAll(p.Record.Text, "\n", " ")
		posts = append(posts, market.Post{
			Keyword:   symbol,
			Author:    p.Author.Handle,
			Time:      t.UTC(),
			Likes:     p.LikeCount,
			Shares:    p.RepostCount,
			Quotes:    p.QuoteCount,
			Replies:   p.ReplyCount,
			Text:      text,
			Sentiment: c.scorer.Score(text),
		})
	}
	return posts, nil
}

// Backfill fetches posts for every watchlist entry from its newest stored
// timestamp (or start) up to now and inserts them, skipping duplicates.
func (c *PostClient) Backfill(ctx context.Context, dst PostStore, watchlist map[string][]string, start time.Time) error {
	now := time.Now().UTC()
	var failed int

	for symbol, keywords := range watchlist {
		since := start
		if last, ok, err := dst.LatestPostTime(symbol); err != nil {
			return fmt.Errorf("post backfill %s: %w", symbol, err)
		} else if ok {
			since = last
		}

		posts, err := c.SearchPosts(ctx, symbol, keywords, since, now)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Error("post backfill abandoned for symbol",
				zap.String("symbol", symbol),
				zap.Error(err))
			failed++
			continue
		}
		if len(posts) == 0 {
			continue
		}

		inserted, skipped, err := dst.InsertPosts(posts)
		if err != nil {
			return fmt.Errorf("post backfill %s: %w", symbol, err)
		}
		c.log.Info("backfilled posts",
			zap.String("symbol", symbol),
			zap.Int("inserted", inserted),
			zap.Int("duplicates_skipped", skipped))
	}

	if failed > 0 {
		return fmt.Errorf("post backfill: %d of %d symbols failed", failed, len(watchlist))
	}
	return nil
}

func (c *PostClient) getJSON(ctx context.Context, apiURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

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
