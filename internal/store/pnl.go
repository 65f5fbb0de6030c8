package store

import (
	"fmt"
	"time"
)

// PnLRow is one symbol's realized result for a session.
type PnLRow struct {
	Symbol string  `json:"symbol"`
	PnL    float64 `json:"pnl"`
	Trades int     `json:"trades"`
}

// UpdatePnLBackup overwrites the live-session PnL rows. The backup is the
// crash-recovery copy of the current session; ArchiveSessionStats moves it
// to pnl_history at the next launch.
func (s *Store) UpdatePnLBackup(rows []PnLRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin pnl backup: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	for _, r := range rows {
		_, err := tx.Exec(`
			INSERT INTO pnl_backup(symbol, pnl, trades, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET
				pnl = excluded.pnl,
				trades = excluded.trades,
				updated_at = excluded.updated_at`,
			r.Symbol, r.PnL, r.Trades, now)
		if err != nil {
			return fmt.Errorf("upsert pnl backup %s: %w", r.Symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pnl backup: %w", err)
	}
	return nil
}

// PnLBackup returns the live-session rows.
func (s *Store) PnLBackup() ([]PnLRow, error) {
	rows, err := s.db.Query(`SELECT symbol, pnl, trades FROM pnl_backup`)
	if err != nil {
		return nil, fmt.Errorf("read pnl backup: %w", err)
	}
	defer rows.Close()

	var out []PnLRow
	for rows.Next() {
		var r PnLRow
		if err := rows.Scan(&r.Symbol, &r.PnL, &r.Trades); err != nil {
			return nil, fmt.Errorf("scan pnl backup: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ArchiveSessionStats moves the previous session's backup rows into
// pnl_history and truncates the backup. Rows with zero PnL and zero trades
// are dropped instead of archived. Returns whether any row was archived.
func (s *Store) ArchiveSessionStats(sessionTS int64) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin archive: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	res, err := tx.Exec(`
		INSERT INTO pnl_history(symbol, pnl, trades, session_ts, created_at)
		SELECT symbol, pnl, trades, ?, ?
		FROM pnl_backup
		WHERE pnl != 0 OR trades != 0`, sessionTS, now)
	if err != nil {
		return false, fmt.Errorf("archive pnl backup: %w", err)
	}
	moved, _ := res.RowsAffected()

	if _, err := tx.Exec(`DELETE FROM pnl_backup`); err != nil {
		return false, fmt.Errorf("truncate pnl backup: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit archive: %w", err)
	}
	return moved > 0, nil
}

// AccumulatedPnL sums archived PnL per symbol across all past sessions.
func (s *Store) AccumulatedPnL() (map[string]PnLRow, error) {
	rows, err := s.db.Query(`
		SELECT symbol, SUM(pnl), SUM(trades)
		FROM pnl_history GROUP BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("accumulated pnl: %w", err)
	}
	defer rows.Close()

	out := make(map[string]PnLRow)
	for rows.Next() {
		var r PnLRow
		if err := rows.Scan(&r.Symbol, &r.PnL, &r.Trades); err != nil {
			return nil, fmt.Errorf("scan accumulated pnl: %w", err)
		}
		out[r.Symbol] = r
	}
	return out, rows.Err()
}

// ResetGlobalPnL wipes all archived history and the live backup.
func (s *Store) ResetGlobalPnL() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin pnl reset: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM pnl_history`); err != nil {
		return fmt.Errorf("clear pnl history: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM pnl_backup`); err != nil {
		return fmt.Errorf("clear pnl backup: %w", err)
	}
	return tx.Commit()
}

// ResetPnLForSymbol wipes one symbol's archived history and backup row.
func (s *Store) ResetPnLForSymbol(symbol string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin symbol pnl reset: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM pnl_history WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("clear pnl history for %s: %w", symbol, err)
	}
	if _, err := tx.Exec(`DELETE FROM pnl_backup WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("clear pnl backup for %s: %w", symbol, err)
	}
	return tx.Commit()
}
