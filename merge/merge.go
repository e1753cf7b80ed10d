// Package merge joins computed feature rows with the aggregated social
// sentiment signal, producing one merged row per (symbol, timestamp).
package merge

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"sentitrade/market"
)

// Window is the canonical half-width of the symmetric sentiment window: a post
// matches a feature row when |post.Time − row.Time| ≤ Window. Earlier
// experiments ran anywhere from 1h to 12h; 2h is the fixed policy.
const Window = 2 * time.Hour

// Source is the slice of the store the merge engine reads from and writes to.
type Source interface {
	FeaturesBetween(since, until time.Time) ([]market.FeatureRow, error)
	Posts(keyword string, since, until time.Time) ([]market.Post, error)
	MergedWatermark() (time.Time, bool, error)
	ReplaceMerged(since, until time.Time, rows []market.MergedRow) error
}

// Engine merges feature rows with sentiment incrementally: each run processes
// only rows newer than the last successfully merged timestamp.
type Engine struct {
	src Source
	log *zap.Logger
}

func NewEngine(src Source, log *zap.Logger) *Engine {
	return &Engine{src: src, log: log}
}

// Run merges every feature row with timestamp in (watermark, until] and
// atomically replaces the merged rows for that range. Returns the rows
// written. A second run over the same data is a no-op because the watermark
// has advanced; an explicit recompute via RunFrom replaces rather than
// accumulates.
func (e *Engine) Run(until time.Time) ([]market.MergedRow, error) {
	since, ok, err := e.src.MergedWatermark()
	if err != nil {
		return nil, fmt.Errorf("merge: read watermark: %w", err)
	}
	if !ok {
		since = time.Time{} // empty table, merge everything
	}
	return e.RunFrom(since, until)
}

// RunFrom merges feature rows in (since, until], replacing any merged rows
// already present in that range.
func (e *Engine) RunFrom(since, until time.Time) ([]market.MergedRow, error) {
	feats, err := e.src.FeaturesBetween(since, until)
	if err != nil {
		return nil, fmt.Errorf("merge: load features: %w", err)
	}
	if len(feats) == 0 {
		return nil, nil
	}

	// One post query per symbol covering the whole range plus the window
	// overhang on both ends.
	postsBySymbol := map[string][]market.Post{}
	for _, f := range feats {
		if _, done := postsBySymbol[f.Symbol]; done {
			continue
		}
		posts, err := e.src.Posts(f.Symbol, since.Add(-Window), until.Add(Window))
		if err != nil {
			return nil, fmt.Errorf("merge: load posts for %s: %w", f.Symbol, err)
		}
		postsBySymbol[f.Symbol] = posts
	}

	rows := make([]market.MergedRow, 0, len(feats))
	for _, f := range feats {
		sentiment, likes := Aggregate(postsBySymbol[f.Symbol], f.Time)
		rows = append(rows, market.MergedRow{
			FeatureRow: f,
			Sentiment:  sentiment,
			Likes:      likes,
		})
	}

	if err := e.src.ReplaceMerged(since, until, rows); err != nil {
		return nil, fmt.Errorf("merge: store rows: %w", err)
	}

	e.log.Info("merged sentiment",
		zap.Int("rows", len(rows)),
		zap.Time("since", since), zap.Time("until", until))
	return rows, nil
}

// Aggregate reduces the posts within Window of ts to a likes-weighted average
// sentiment and total like count. With no matching posts, or when every match
// has zero likes, both results are zero.
func Aggregate(posts []market.Post, ts time.Time) (sentiment float64, likes int64) {
	lo, hi := ts.Add(-Window), ts.Add(Window)

	weighted := 0.0
	for _, p := range posts {
		if p.Time.Before(lo) || p.Time.After(hi) {
			continue
		}
		weighted += p.Sentiment * float64(p.Likes)
		likes += p.Likes
	}

	if likes > 0 {
		sentiment = weighted / float64(likes)
	}
	return sentiment, likes
}
