package store

import (
	"database/sql"
	"fmt"
	"time"

	"sentitrade/market"
)

// ReplaceMerged atomically replaces the merged rows (all symbols) in
// (since, until] with rows. Same transactional contract as ReplaceFeatures.
func (s *Store) ReplaceMerged(since, until time.Time, rows []market.MergedRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace merged: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM merged
		WHERE timestamp > ? AND timestamp <= ?`,
		since.UTC(), until.UTC()); err != nil {
		return fmt.Errorf("replace merged: delete: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO merged
		(symbol, timestamp, open, high, low, close, volume,
		 sma_20, sma_50, sma_100, volatility, bollinger_upper, bollinger_lower, momentum_5,
		 sentiment, likes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("replace merged: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(
			r.Symbol, r.Time.UTC(), r.Open, r.High, r.Low, r.Close, r.Volume,
			r.SMA20, r.SMA50, r.SMA100, r.Volatility, r.BollingerUpper, r.BollingerLower,
			nullFloat(r.Momentum5), r.Sentiment, r.Likes,
		); err != nil {
			return fmt.Errorf("replace merged: insert %s@%s: %w",
				r.Symbol, r.Time.Format(time.RFC3339), err)
		}
	}

	return tx.Commit()
}

// MergedWatermark returns the newest timestamp in the merged table across all
// symbols. Incremental merge resumes strictly after it. The second return
// value is false when the table is empty.
func (s *Store) MergedWatermark() (time.Time, bool, error) {
	var ts sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(timestamp) FROM merged`).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time.UTC(), true, nil
}

// LatestMerged returns the most recent merged row for symbol.
func (s *Store) LatestMerged(symbol string) (market.MergedRow, error) {
	row := s.db.QueryRow(mergedSelect+`
		WHERE symbol = ?
		ORDER BY timestamp DESC
		LIMIT 1`, symbol)

	r, err := scanMerged(row)
	if err == sql.ErrNoRows {
		return market.MergedRow{}, fmt.Errorf("no merged rows for %q", symbol)
	}
	return r, err
}

// Merged returns merged rows in [since, until], oldest first. An empty symbol
// matches all symbols.
func (s *Store) Merged(symbol string, since, until time.Time) ([]market.MergedRow, error) {
	q := mergedSelect + `
		WHERE timestamp >= ? AND timestamp <= ?`
	args := []any{since.UTC(), until.UTC()}
	if symbol != "" {
		q += ` AND symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY timestamp ASC, symbol ASC`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.MergedRow
	for rows.Next() {
		r, err := scanMerged(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const mergedSelect = `
	SELECT symbol, timestamp, open, high, low, close, volume,
	       sma_20, sma_50, sma_100, volatility, bollinger_upper, bollinger_lower, momentum_5,
	       sentiment, likes
	FROM merged`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMerged(sc rowScanner) (market.MergedRow, error) {
	var r market.MergedRow
	var mom sql.NullFloat64
	if err := sc.Scan(
		&r.Symbol, &r.Time, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume,
		&r.SMA20, &r.SMA50, &r.SMA100, &r.Volatility, &r.BollingerUpper, &r.BollingerLower,
		&mom, &r.Sentiment, &r.Likes,
	); err != nil {
		return market.MergedRow{}, err
	}
	r.Time = r.Time.UTC()
	if mom.Valid {
		v := mom.Float64
		r.Momentum5 = &v
	}
	return r, nil
}
