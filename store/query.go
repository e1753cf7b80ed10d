package store

import (
	"fmt"
	"time"
)

// Tables lists the queryable table names, in the order the CLI reports them.
var Tables = []string{"bars", "posts", "features", "merged"}

func validTable(name string) error {
	for _, t := range Tables {
		if t == name {
			return nil
		}
	}
	return fmt.Errorf("unknown table %q (want one of %v)", name, Tables)
}

// tickerColumn maps a table to the column holding its symbol-ish key. Posts
// are keyed by search keyword rather than ticker.
func tickerColumn(table string) string {
	if table == "posts" {
		return "keyword"
	}
	return "symbol"
}

// DeleteRange removes rows from table with timestamp in [since, until],
// optionally restricted to one ticker. Returns the number of rows deleted.
// The table name is validated against the schema; everything else is bound as
// a parameter.
func (s *Store) DeleteRange(table, ticker string, since, until time.Time) (int64, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE timestamp >= ? AND timestamp <= ?`, table)
	args := []any{since.UTC(), until.UTC()}
	if ticker != "" {
		q += fmt.Sprintf(` AND %s = ?`, tickerColumn(table))
		args = append(args, ticker)
	}

	res, err := s.db.Exec(q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

// CountRange counts rows in table with timestamp in [since, until], optionally
// restricted to one ticker.
func (s *Store) CountRange(table, ticker string, since, until time.Time) (int64, error) {
	if err := validTable(table); err != nil {
		return 0, err
	}

	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE timestamp >= ? AND timestamp <= ?`, table)
	args := []any{since.UTC(), until.UTC()}
	if ticker != "" {
		q += fmt.Sprintf(` AND %s = ?`, tickerColumn(table))
		args = append(args, ticker)
	}

	var n int64
	if err := s.db.QueryRow(q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// UniqueKeys returns the distinct symbols (or keywords, for posts) present in
// table.
func (s *Store) UniqueKeys(table string) ([]string, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}

	col := tickerColumn(table)
	rows, err := s.db.Query(fmt.Sprintf(`SELECT DISTINCT %s FROM %s ORDER BY %s ASC`, col, table, col))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
