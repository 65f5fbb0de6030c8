package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// BalanceSnapshot is one equity sample for one venue key.
type BalanceSnapshot struct {
	Timestamp int64   `json:"timestamp"`
	Equity    float64 `json:"equity"`
	Exchange  string  `json:"exchange"`
}

// LogBalanceSnapshot appends an equity sample unless it duplicates the
// previous one for the same venue: a sample arriving under 50 seconds after
// the last AND within ±0.01 equity is dropped. A big move is recorded even
// when it arrives quickly. Returns whether the row was written.
func (s *Store) LogBalanceSnapshot(exchange string, equity float64, ts time.Time) (bool, error) {
	last, ok, err := s.LastBalanceSnapshot(exchange)
	if err != nil {
		return false, err
	}
	tsMs := ts.UnixMilli()
	if ok {
		dt := tsMs - last.Timestamp
		if dt < 50_000 && math.Abs(equity-last.Equity) <= 0.01 {
			return false, nil
		}
	}

	_, err = s.db.Exec(`
		INSERT INTO balance_history(timestamp, equity, exchange)
		VALUES (?, ?, ?)`, tsMs, equity, exchange)
	if err != nil {
		return false, fmt.Errorf("log balance snapshot: %w", err)
	}
	return true, nil
}

// LastBalanceSnapshot returns the newest sample for a venue key.
func (s *Store) LastBalanceSnapshot(exchange string) (BalanceSnapshot, bool, error) {
	var snap BalanceSnapshot
	err := s.db.QueryRow(`
		SELECT timestamp, equity, exchange FROM balance_history
		WHERE exchange = ?
		ORDER BY timestamp DESC LIMIT 1`, exchange).
		Scan(&snap.Timestamp, &snap.Equity, &snap.Exchange)
	if err == sql.ErrNoRows {
		return BalanceSnapshot{}, false, nil
	}
	if err != nil {
		return BalanceSnapshot{}, false, fmt.Errorf("last balance snapshot: %w", err)
	}
	return snap, true, nil
}

// BalanceHistory returns samples at or after fromTS (Unix ms), oldest first.
// An empty exchange returns all venues.
func (s *Store) BalanceHistory(fromTS int64, exchange string) ([]BalanceSnapshot, error) {
	query := `SELECT timestamp, equity, exchange FROM balance_history WHERE timestamp >= ?`
	args := []any{fromTS}
	if exchange != "" {
		query += ` AND exchange = ?`
		args = append(args, exchange)
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("balance history: %w", err)
	}
	defer rows.Close()

	var out []BalanceSnapshot
	for rows.Next() {
		var snap BalanceSnapshot
		if err := rows.Scan(&snap.Timestamp, &snap.Equity, &snap.Exchange); err != nil {
			return nil, fmt.Errorf("scan balance snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// ClearBalanceHistory deletes samples for one venue key, or all when
// exchange is empty.
func (s *Store) ClearBalanceHistory(exchange string) error {
	var err error
	if exchange == "" {
		_, err = s.db.Exec(`DELETE FROM balance_history`)
	} else {
		_, err = s.db.Exec(`DELETE FROM balance_history WHERE exchange = ?`, exchange)
	}
	if err != nil {
		return fmt.Errorf("clear balance history: %w", err)
	}
	return nil
}
