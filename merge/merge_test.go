package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sentitrade/market"
)

var t0 = time.Date(2025, 3, 3, 14, 0, 0, 0, time.UTC)

type fakeSource struct {
	features  []market.FeatureRow
	posts     []market.Post
	watermark time.Time
	hasWM     bool

	replaced     []market.MergedRow
	replaceSince time.Time
	replaceUntil time.Time
}

func (f *fakeSource) FeaturesBetween(since, until time.Time) ([]market.FeatureRow, error) {
	var out []market.FeatureRow
	for _, r := range f.features {
		if r.Time.After(since) && !r.Time.After(until) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) Posts(keyword string, since, until time.Time) ([]market.Post, error) {
	var out []market.Post
	for _, p := range f.posts {
		if p.Keyword == keyword && !p.Time.Before(since) && !p.Time.After(until) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeSource) MergedWatermark() (time.Time, bool, error) {
	return f.watermark, f.hasWM, nil
}

func (f *fakeSource) ReplaceMerged(since, until time.Time, rows []market.MergedRow) error {
	f.replaceSince, f.replaceUntil = since, until
	f.replaced = rows
	return nil
}

func TestAggregateLikesWeighted(t *testing.T) {
	t.Parallel()

	posts := []market.Post{
		{Keyword: "AAPL", Time: t0.Add(-time.Hour), Likes: 10, Sentiment: 0.5},
		{Keyword: "AAPL", Time: t0.Add(time.Hour), Likes: 30, Sentiment: -0.1},
	}

	sentiment, likes := Aggregate(posts, t0)
	assert.InDelta(t, -0.025, sentiment, 1e-9)
	assert.Equal(t, int64(40), likes)
}

func TestAggregateNoPostsIsZero(t *testing.T) {
	t.Parallel()

	sentiment, likes := Aggregate(nil, t0)
	assert.Zero(t, sentiment)
	assert.Zero(t, likes)
}

func TestAggregateExcludesOutsideWindow(t *testing.T) {
	t.Parallel()

	posts := []market.Post{
		{Time: t0.Add(-Window - time.Second), Likes: 100, Sentiment: 1},
		{Time: t0.Add(Window), Likes: 5, Sentiment: 0.2},
	}

	sentiment, likes := Aggregate(posts, t0)
	assert.InDelta(t, 0.2, sentiment, 1e-9)
	assert.Equal(t, int64(5), likes)
}

func TestAggregateZeroLikesPosts(t *testing.T) {
	t.Parallel()

	posts := []market.Post{
		{Time: t0, Likes: 0, Sentiment: 0.9},
	}

	sentiment, likes := Aggregate(posts, t0)
	assert.Zero(t, sentiment)
	assert.Zero(t, likes)
}

func TestRunMergesFromWatermark(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		features: []market.FeatureRow{
			{Symbol: "AAPL", Time: t0, Close: 100},
			{Symbol: "AAPL", Time: t0.Add(15 * time.Minute), Close: 101},
		},
		posts: []market.Post{
			{Keyword: "AAPL", Time: t0.Add(-30 * time.Minute), Likes: 10, Sentiment: 0.5},
		},
		watermark: t0,
		hasWM:     true,
	}

	eng := NewEngine(src, zap.NewNop())
	rows, err := eng.Run(t0.Add(time.Hour))
	require.NoError(t, err)

	// Only the row past the watermark is merged.
	require.Len(t, rows, 1)
	assert.Equal(t, t0.Add(15*time.Minute), rows[0].Time)
	assert.InDelta(t, 0.5, rows[0].Sentiment, 1e-9)
	assert.Equal(t, int64(10), rows[0].Likes)

	assert.Equal(t, t0, src.replaceSince)
	assert.Equal(t, t0.Add(time.Hour), src.replaceUntil)
}

func TestRunEmptyTableMergesEverything(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		features: []market.FeatureRow{
			{Symbol: "AAPL", Time: t0, Close: 100},
			{Symbol: "TSLA", Time: t0, Close: 250},
		},
	}

	eng := NewEngine(src, zap.NewNop())
	rows, err := eng.Run(t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRunFromNoFeaturesIsNoop(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	eng := NewEngine(src, zap.NewNop())

	rows, err := eng.RunFrom(t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Nil(t, rows)
	assert.Nil(t, src.replaced)
}
