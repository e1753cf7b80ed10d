package store

import (
	"database/sql"
	"time"

	"sentitrade/market"
)

// InsertPosts stores posts keyed by (keyword, author, timestamp). A post whose
// key already exists is skipped, not overwritten. Returns inserted and skipped
// counts so callers can log what was dropped.
func (s *Store) InsertPosts(posts []market.Post) (inserted, skipped int, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO posts
		(keyword, author, timestamp, likes, shares, quotes, replies, text, sentiment)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	for _, p := range posts {
		res, err := stmt.Exec(
			p.Keyword, p.Author, p.Time.UTC(), p.Likes, p.Shares, p.Quotes, p.Replies,
			p.Text, p.Sentiment,
		)
		if err != nil {
			return inserted, skipped, err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			skipped++
		} else {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, skipped, err
	}
	return inserted, skipped, nil
}

// Posts returns all posts for keyword with timestamp in [since, until], oldest
// first.
func (s *Store) Posts(keyword string, since, until time.Time) ([]market.Post, error) {
	rows, err := s.db.Query(`
		SELECT keyword, author, timestamp, likes, shares, quotes, replies, text, sentiment
		FROM posts
		WHERE keyword = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`, keyword, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Post
	for rows.Next() {
		var p market.Post
		if err := rows.Scan(
			&p.Keyword, &p.Author, &p.Time, &p.Likes, &p.Shares, &p.Quotes, &p.Replies,
			&p.Text, &p.Sentiment,
		); err != nil {
			return nil, err
		}
		p.Time = p.Time.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// LatestPostTime returns the newest post timestamp stored for keyword, used to
// resume incremental fetching. The second return value is false when no posts
// exist.
func (s *Store) LatestPostTime(keyword string) (time.Time, bool, error) {
	var ts sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(timestamp) FROM posts WHERE keyword = ?`, keyword).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time.UTC(), true, nil
}
