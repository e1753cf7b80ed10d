package market

import "time"

// Post is a social media post matched to a tracked symbol through its search
// keyword. The (Keyword, Author, Time) triple identifies a post; duplicate
// inserts are silently ignored by the store.
type Post struct {
	Keyword   string
	Author    string
	Time      time.Time
	Likes     int64
	Shares    int64
	Quotes    int64
	Replies   int64
	Text      string
	Sentiment float64 // scored in [-1, 1] before storage
}
