package store

import (
	"database/sql"
	"fmt"
	"time"

	"sentitrade/market"
)

// UpsertBars writes bars keyed by (symbol, timestamp). Replaying the same bars
// overwrites in place, so ingestion is idempotent. Returns the number of bars
// written.
func (s *Store) UpsertBars(bars []market.Bar) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("upsert bars: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO bars
		(symbol, timestamp, open, high, low, close, volume, trade_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("upsert bars: %w", err)
	}
	defer stmt.Close()

	n := 0
	for _, b := range bars {
		if _, err := stmt.Exec(
			b.Symbol, b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume, b.TradeCount,
		); err != nil {
			return n, fmt.Errorf("upsert bar %s@%s: %w", b.Symbol, b.Time.Format(time.RFC3339), err)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return n, fmt.Errorf("upsert bars: %w", err)
	}
	return n, nil
}

// Bars returns all bars for symbol with timestamp in [since, until], oldest
// first.
func (s *Store) Bars(symbol string, since, until time.Time) ([]market.Bar, error) {
	rows, err := s.db.Query(`
		SELECT symbol, timestamp, open, high, low, close, volume, trade_count
		FROM bars
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`, symbol, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

// BarsWithLookback returns the bars for symbol in [since, until] preceded by up
// to lookback bars before since, oldest first. The extra bars give the
// indicator windows their trailing context.
func (s *Store) BarsWithLookback(symbol string, since, until time.Time, lookback int) ([]market.Bar, error) {
	rows, err := s.db.Query(`
		SELECT symbol, timestamp, open, high, low, close, volume, trade_count FROM (
			SELECT symbol, timestamp, open, high, low, close, volume, trade_count
			FROM bars
			WHERE symbol = ? AND timestamp < ?
			ORDER BY timestamp DESC
			LIMIT ?
		)
		UNION ALL
		SELECT symbol, timestamp, open, high, low, close, volume, trade_count
		FROM bars
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`,
		symbol, since.UTC(), lookback, symbol, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanBars(rows)
}

// LatestBarTime returns the newest bar timestamp stored for symbol. The second
// return value is false when no bars exist.
func (s *Store) LatestBarTime(symbol string) (time.Time, bool, error) {
	var ts sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(timestamp) FROM bars WHERE symbol = ?`, symbol).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time.UTC(), true, nil
}

// Symbols returns the distinct symbols present in the bars table.
func (s *Store) Symbols() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT symbol FROM bars ORDER BY symbol ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func scanBars(rows *sql.Rows) ([]market.Bar, error) {
	var out []market.Bar
	for rows.Next() {
		var b market.Bar
		if err := rows.Scan(
			&b.Symbol, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TradeCount,
		); err != nil {
			return nil, err
		}
		b.Time = b.Time.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}
