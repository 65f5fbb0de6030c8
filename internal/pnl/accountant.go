// Package pnl turns stored fills into session and all-time profit figures.
//
// Realized-plus-marked PnL for a symbol is its cash flow (sells minus buys
// minus fees) plus the open quantity delta marked at the current price.
// The math is pure; the Accountant only stitches store reads together.
package pnl

import (
	"fmt"

	"gridbot/internal/store"
)

// CoinPnL is one symbol's result over some window.
type CoinPnL struct {
	Symbol   string  `json:"symbol"`
	PnL      float64 `json:"pnl"`
	CashFlow float64 `json:"cash_flow"`
	QtyDelta float64 `json:"qty_delta"`
	Trades   int     `json:"trades"`
}

// Report is a full PnL view over one window.
type Report struct {
	Total    float64   `json:"total"`
	Coins    []CoinPnL `json:"coins"`
	BestCoin string    `json:"best_coin"`
}

// Compute marks per-symbol stats at current prices. A symbol with no price
// yet counts cash flow only. Best coin is the largest cash flow; ties go to
// the symbol that traded first.
func Compute(stats map[string]store.SymbolStats, prices map[string]float64) Report {
	var rep Report
	bestFlow := 0.0
	var bestFirstTS int64

	for _, st := range stats {
		coin := CoinPnL{
			Symbol:   st.Symbol,
			CashFlow: st.CashFlow,
			QtyDelta: st.QtyDelta,
			Trades:   st.Trades,
		}
		coin.PnL = st.CashFlow + st.QtyDelta*prices[st.Symbol]
		rep.Coins = append(rep.Coins, coin)
		rep.Total += coin.PnL

		if rep.BestCoin == "" || st.CashFlow > bestFlow ||
			(st.CashFlow == bestFlow && st.FirstTS < bestFirstTS) {
			rep.BestCoin = st.Symbol
			bestFlow = st.CashFlow
			bestFirstTS = st.FirstTS
		}
	}
	return rep
}

// SellProfitEstimate approximates the realized profit of one grid sell:
// the spread captured against the grid-implied entry price, minus a fee on
// each leg. Informational only; never negative.
func SellProfitEstimate(sellPrice, amount, spreadPct, fee float64) float64 {
	entry := sellPrice / (1 + spreadPct/100)
	profit := (sellPrice-entry)*amount - 2*fee
	if profit < 0 {
		return 0
	}
	return profit
}

// Accountant reads the store and produces reports for the HTTP surface and
// the daily summary.
type Accountant struct {
	store *store.Store
}

// New returns an accountant over the given store.
func New(s *store.Store) *Accountant {
	return &Accountant{store: s}
}

// Session reports PnL for fills since fromTS, marked at the given prices.
// A per-coin session anchor later than fromTS narrows that coin's window,
// so the coin-session reset takes effect without moving the global window.
func (a *Accountant) Session(fromTS int64, prices map[string]float64) (Report, error) {
	stats, err := a.store.Stats(fromTS)
	if err != nil {
		return Report{}, fmt.Errorf("session stats: %w", err)
	}
	anchors, err := a.store.CoinSessionAnchors()
	if err != nil {
		return Report{}, fmt.Errorf("session anchors: %w", err)
	}
	for symbol, anchorTS := range anchors {
		if anchorTS <= fromTS {
			continue
		}
		st, ok, err := a.store.StatsForSymbol(symbol, anchorTS)
		if err != nil {
			return Report{}, fmt.Errorf("anchored stats: %w", err)
		}
		if ok {
			stats[symbol] = st
		} else {
			delete(stats, symbol)
		}
	}
	return Compute(stats, prices), nil
}

// Global reports all-time PnL: archived session history plus the live
// session since fromTS.
func (a *Accountant) Global(sessionFromTS int64, prices map[string]float64) (Report, error) {
	session, err := a.Session(sessionFromTS, prices)
	if err != nil {
		return Report{}, err
	}
	archived, err := a.store.AccumulatedPnL()
	if err != nil {
		return Report{}, fmt.Errorf("archived pnl: %w", err)
	}

	merged := make(map[string]CoinPnL, len(session.Coins)+len(archived))
	for _, c := range session.Coins {
		merged[c.Symbol] = c
	}
	for sym, row := range archived {
		c := merged[sym]
		c.Symbol = sym
		c.PnL += row.PnL
		c.Trades += row.Trades
		merged[sym] = c
	}

	out := Report{BestCoin: session.BestCoin}
	for _, c := range merged {
		out.Coins = append(out.Coins, c)
		out.Total += c.PnL
	}
	return out, nil
}

// BackupRows converts a report into the store's crash-recovery rows.
func BackupRows(rep Report) []store.PnLRow {
	rows := make([]store.PnLRow, 0, len(rep.Coins))
	for _, c := range rep.Coins {
		rows = append(rows, store.PnLRow{Symbol: c.Symbol, PnL: c.PnL, Trades: c.Trades})
	}
	return rows
}
