package store

import (
	"database/sql"
	"fmt"
	"math"

	"gridbot/pkg/types"
)

// SaveTrades persists fills idempotently: the venue trade id is the primary
// key and duplicates are ignored, so re-reading the same my-trades page is
// harmless. Fees are normalized to the quote asset on the way in (a fee
// charged in the base asset is valued at the fill price). Returns how many
// rows were actually new.
func (s *Store) SaveTrades(trades []types.Trade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin save trades: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO trade_history
			(trade_id, symbol, side, price, amount, cost, fee, timestamp, buy_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare save trades: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, t := range trades {
		fee := t.FeeCost
		if t.FeeCurrency != "" && t.FeeCurrency != types.QuoteAsset(t.Symbol) {
			fee = t.FeeCost * t.Price
		}
		res, err := stmt.Exec(t.ID, t.Symbol, string(t.Side), t.Price, t.Amount,
			t.Cost, fee, t.Timestamp, t.BuyID)
		if err != nil {
			return 0, fmt.Errorf("insert trade %s: %w", t.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save trades: %w", err)
	}
	return inserted, nil
}

// TradeByID loads one stored trade.
func (s *Store) TradeByID(tradeID string) (types.Trade, bool, error) {
	row := s.db.QueryRow(`
		SELECT trade_id, symbol, side, price, amount, cost, fee, timestamp, buy_id
		FROM trade_history WHERE trade_id = ?`, tradeID)
	t, err := scanTrade(row)
	if err == sql.ErrNoRows {
		return types.Trade{}, false, nil
	}
	if err != nil {
		return types.Trade{}, false, fmt.Errorf("load trade %s: %w", tradeID, err)
	}
	return t, true, nil
}

// RecentTrades returns up to limit trades for a symbol, newest first.
func (s *Store) RecentTrades(symbol string, limit int) ([]types.Trade, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT trade_id, symbol, side, price, amount, cost, fee, timestamp, buy_id
		FROM trade_history WHERE symbol = ?
		ORDER BY timestamp DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

type rowScanner interface{ Scan(dest ...any) error }

func scanTrade(r rowScanner) (types.Trade, error) {
	var t types.Trade
	var side string
	var buyID sql.NullInt64
	err := r.Scan(&t.ID, &t.Symbol, &side, &t.Price, &t.Amount, &t.Cost,
		&t.FeeCost, &t.Timestamp, &buyID)
	if err != nil {
		return types.Trade{}, err
	}
	t.Side = types.Side(side)
	t.FeeCurrency = types.QuoteAsset(t.Symbol) // normalized on insert
	if buyID.Valid {
		id := int(buyID.Int64)
		t.BuyID = &id
	}
	return t, nil
}

func collectTrades(rows *sql.Rows) ([]types.Trade, error) {
	var out []types.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SymbolStats aggregates a symbol's fills since some timestamp.
type SymbolStats struct {
	Symbol   string
	CashFlow float64 // +sell proceeds, -buy cost, fees subtracted
	QtyDelta float64 // base units bought minus sold
	Trades   int
	FirstTS  int64 // earliest fill in the window, for tie-breaking
}

// Stats aggregates per-symbol cash flow, quantity delta and trade count for
// fills at or after fromTS (Unix ms).
func (s *Store) Stats(fromTS int64) (map[string]SymbolStats, error) {
	rows, err := s.db.Query(`
		SELECT symbol,
		       SUM(CASE WHEN side = 'sell' THEN cost ELSE -cost END - fee),
		       SUM(CASE WHEN side = 'buy' THEN amount ELSE -amount END),
		       COUNT(*),
		       MIN(timestamp)
		FROM trade_history
		WHERE timestamp >= ?
		GROUP BY symbol`, fromTS)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]SymbolStats)
	for rows.Next() {
		var st SymbolStats
		if err := rows.Scan(&st.Symbol, &st.CashFlow, &st.QtyDelta, &st.Trades, &st.FirstTS); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		out[st.Symbol] = st
	}
	return out, rows.Err()
}

// StatsForSymbol aggregates one symbol's fills at or after fromTS. Returns
// false when the symbol has no fills in the window.
func (s *Store) StatsForSymbol(symbol string, fromTS int64) (SymbolStats, bool, error) {
	var st SymbolStats
	var cashFlow, qtyDelta sql.NullFloat64
	var firstTS sql.NullInt64
	err := s.db.QueryRow(`
		SELECT SUM(CASE WHEN side = 'sell' THEN cost ELSE -cost END - fee),
		       SUM(CASE WHEN side = 'buy' THEN amount ELSE -amount END),
		       COUNT(*),
		       MIN(timestamp)
		FROM trade_history
		WHERE symbol = ? AND timestamp >= ?`, symbol, fromTS).
		Scan(&cashFlow, &qtyDelta, &st.Trades, &firstTS)
	if err != nil {
		return SymbolStats{}, false, fmt.Errorf("stats for %s: %w", symbol, err)
	}
	if st.Trades == 0 {
		return SymbolStats{}, false, nil
	}
	st.Symbol = symbol
	st.CashFlow = cashFlow.Float64
	st.QtyDelta = qtyDelta.Float64
	st.FirstTS = firstTS.Int64
	return st, true, nil
}

// LastBuyPrice returns the price of the most recent buy fill for a symbol,
// or false when the symbol has no buys.
func (s *Store) LastBuyPrice(symbol string) (float64, bool, error) {
	var price float64
	err := s.db.QueryRow(`
		SELECT price FROM trade_history
		WHERE symbol = ? AND side = 'buy'
		ORDER BY timestamp DESC LIMIT 1`, symbol).Scan(&price)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("last buy price: %w", err)
	}
	return price, true, nil
}

// AssignBuyID allocates the next buy id and stamps it on a stored buy trade.
func (s *Store) AssignBuyID(tradeID string) (int, error) {
	id, err := s.NextBuyID()
	if err != nil {
		return 0, err
	}
	if err := s.SetTradeBuyID(tradeID, id); err != nil {
		return 0, err
	}
	return id, nil
}

// SetTradeBuyID stamps an explicit buy id on a stored trade.
func (s *Store) SetTradeBuyID(tradeID string, buyID int) error {
	_, err := s.db.Exec(`UPDATE trade_history SET buy_id = ? WHERE trade_id = ?`, buyID, tradeID)
	if err != nil {
		return fmt.Errorf("set buy id: %w", err)
	}
	return nil
}

// FindLinkedBuyID finds the buy a sell closes out: the most recent buy whose
// price is within ±1% of the sell's grid-implied entry price
// sellPrice/(1+spread/100). Returns false when no buy matches.
func (s *Store) FindLinkedBuyID(symbol string, sellPrice, spreadPct float64) (int, bool, error) {
	entry := sellPrice / (1 + spreadPct/100)
	lo := entry * 0.99
	hi := entry * 1.01

	var buyID sql.NullInt64
	err := s.db.QueryRow(`
		SELECT buy_id FROM trade_history
		WHERE symbol = ? AND side = 'buy' AND price BETWEEN ? AND ?
		ORDER BY timestamp DESC LIMIT 1`,
		symbol, math.Min(lo, hi), math.Max(lo, hi)).Scan(&buyID)
	if err == sql.ErrNoRows || (err == nil && !buyID.Valid) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find linked buy: %w", err)
	}
	return int(buyID.Int64), true, nil
}
