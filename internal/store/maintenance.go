package store

import (
	"fmt"
	"time"
)

// PruneOldData deletes trades and balance samples older than daysKeep days,
// then compacts the file. VACUUM cannot run inside a transaction, so the
// deletes commit first and the compaction follows on its own.
func (s *Store) PruneOldData(daysKeep int) error {
	cutoff := time.Now().AddDate(0, 0, -daysKeep).UnixMilli()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM trade_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("prune trades: %w", err)
	}
	trades, _ := res.RowsAffected()

	res, err = tx.Exec(`DELETE FROM balance_history WHERE timestamp < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("prune balance history: %w", err)
	}
	balances, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit prune: %w", err)
	}

	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	if trades > 0 || balances > 0 {
		s.logger.Info("pruned old data",
			"trades", trades, "balance_rows", balances, "days_keep", daysKeep)
	}
	return nil
}

// ClearTrades deletes all trade history.
func (s *Store) ClearTrades() error {
	_, err := s.db.Exec(`DELETE FROM trade_history`)
	if err != nil {
		return fmt.Errorf("clear trades: %w", err)
	}
	return nil
}

// DeleteTradesForSymbol deletes one symbol's trade history.
func (s *Store) DeleteTradesForSymbol(symbol string) error {
	_, err := s.db.Exec(`DELETE FROM trade_history WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("delete trades for %s: %w", symbol, err)
	}
	return nil
}

// ResetAllStatistics wipes everything except venue credentials and the
// first-run timestamp: trades, balance history, PnL, grids, market cache
// and all session bookkeeping.
func (s *Store) ResetAllStatistics() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin full reset: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM trade_history`,
		`DELETE FROM balance_history`,
		`DELETE FROM pnl_history`,
		`DELETE FROM pnl_backup`,
		`DELETE FROM grid_status`,
		`DELETE FROM market_data`,
		`DELETE FROM bot_info WHERE key != 'first_run_ts'`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("full reset: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit full reset: %w", err)
	}
	s.logger.Info("all statistics reset")
	return nil
}
