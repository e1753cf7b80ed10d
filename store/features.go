package store

import (
	"database/sql"
	"fmt"
	"time"

	"sentitrade/market"
)

// ReplaceFeatures atomically replaces the feature rows for symbol in
// [since, until] with rows. Delete and insert run in one transaction, so a
// reader never observes a partial mix of old and new rows and reruns never
// accumulate duplicates.
func (s *Store) ReplaceFeatures(symbol string, since, until time.Time, rows []market.FeatureRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("replace features: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM features
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?`,
		symbol, since.UTC(), until.UTC()); err != nil {
		return fmt.Errorf("replace features: delete: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO features
		(symbol, timestamp, open, high, low, close, volume,
		 sma_20, sma_50, sma_100, volatility, bollinger_upper, bollinger_lower, momentum_5)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("replace features: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(
			r.Symbol, r.Time.UTC(), r.Open, r.High, r.Low, r.Close, r.Volume,
			r.SMA20, r.SMA50, r.SMA100, r.Volatility, r.BollingerUpper, r.BollingerLower,
			nullFloat(r.Momentum5),
		); err != nil {
			return fmt.Errorf("replace features: insert %s@%s: %w",
				r.Symbol, r.Time.Format(time.RFC3339), err)
		}
	}

	return tx.Commit()
}

// Features returns the feature rows for symbol in [since, until], oldest first.
func (s *Store) Features(symbol string, since, until time.Time) ([]market.FeatureRow, error) {
	rows, err := s.db.Query(featureSelect+`
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`, symbol, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFeatures(rows)
}

// FeaturesBetween returns feature rows for all symbols in (since, until],
// ordered by timestamp then symbol. The half-open lower bound lets the merge
// engine resume strictly after its watermark.
func (s *Store) FeaturesBetween(since, until time.Time) ([]market.FeatureRow, error) {
	rows, err := s.db.Query(featureSelect+`
		WHERE timestamp > ? AND timestamp <= ?
		ORDER BY timestamp ASC, symbol ASC`, since.UTC(), until.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFeatures(rows)
}

const featureSelect = `
	SELECT symbol, timestamp, open, high, low, close, volume,
	       sma_20, sma_50, sma_100, volatility, bollinger_upper, bollinger_lower, momentum_5
	FROM features`

func scanFeatures(rows *sql.Rows) ([]market.FeatureRow, error) {
	var out []market.FeatureRow
	for rows.Next() {
		var r market.FeatureRow
		var mom sql.NullFloat64
		if err := rows.Scan(
			&r.Symbol, &r.Time, &r.Open, &r.High, &r.Low, &r.Close, &r.Volume,
			&r.SMA20, &r.SMA50, &r.SMA100, &r.Volatility, &r.BollingerUpper, &r.BollingerLower,
			&mom,
		); err != nil {
			return nil, err
		}
		r.Time = r.Time.UTC()
		if mom.Valid {
			v := mom.Float64
			r.Momentum5 = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
