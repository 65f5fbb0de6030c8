package engine

import (
	"context"
	"fmt"
	"time"

	"gridbot/internal/config"
	"gridbot/internal/pnl"
	"gridbot/pkg/types"
)

const (
	pnlBackupInterval  = 30 * time.Second
	equitySnapInterval = 60 * time.Second
	pruneInterval      = 24 * time.Hour
	dailyReportHour    = 8
	candleLimit        = 500
	myTradesLimit      = 10
)

// collectSymbol refreshes one symbol's stored view: price and candles, the
// open-order mirror and the latest fills.
func (e *Engine) collectSymbol(ctx context.Context, symbol string, cfg *config.Config) {
	price, err := e.venue.FetchTicker(ctx, symbol)
	if err != nil {
		e.handleCycleError(symbol, err)
		return
	}

	candles, err := e.venue.FetchCandles(ctx, symbol, "15m", candleLimit)
	if err != nil {
		e.handleCycleError(symbol, err)
		candles = nil
	}
	orders, err := e.venue.FetchOpenOrders(ctx, symbol)
	if err != nil {
		e.handleCycleError(symbol, err)
		orders = nil
	}
	if err := e.store.UpdateMarketSnapshot(symbol, price, candles, orders); err != nil {
		e.logger.Error("persist market snapshot", "symbol", symbol, "error", err)
	}

	trades, err := e.venue.FetchMyTrades(ctx, symbol, myTradesLimit)
	if err != nil {
		e.handleCycleError(symbol, err)
		return
	}
	e.ingestTrades(symbol, trades, cfg.StrategyFor(symbol))
}

// collectPeriodic runs the slower cadences after the per-symbol pass: PnL
// backup, equity snapshots, retention pruning and the daily report.
func (e *Engine) collectPeriodic(ctx context.Context, cfg *config.Config) {
	now := time.Now()

	e.mu.Lock()
	doPnL := now.Sub(e.lastPnLBackup) >= pnlBackupInterval
	if doPnL {
		e.lastPnLBackup = now
	}
	doEquity := now.Sub(e.lastEquitySnap) >= equitySnapInterval
	if doEquity {
		e.lastEquitySnap = now
	}
	doPrune := now.Sub(e.lastPrune) >= pruneInterval
	if doPrune {
		e.lastPrune = now
	}
	e.mu.Unlock()

	if doPnL && e.State() != StateStopped {
		e.refreshPnLBackup()
	}
	if doEquity {
		e.snapshotEquity(ctx)
	}
	if doPrune {
		if err := e.store.PruneOldData(cfg.System.DaysKeep); err != nil {
			e.logger.Error("prune failed", "error", err)
		}
	}
	e.maybeSendDailyReport(now)
}

// refreshPnLBackup recomputes the live session's per-symbol PnL and
// overwrites the crash-recovery copy.
func (e *Engine) refreshPnLBackup() {
	sessionStart, err := e.store.SessionStart()
	if err != nil {
		e.logger.Error("session start for backup", "error", err)
		return
	}
	prices, err := e.store.AllPrices()
	if err != nil {
		e.logger.Error("prices for backup", "error", err)
		return
	}
	rep, err := e.acct.Session(sessionStart, prices)
	if err != nil {
		e.logger.Error("session pnl for backup", "error", err)
		return
	}
	if err := e.store.UpdatePnLBackup(pnl.BackupRows(rep)); err != nil {
		e.logger.Error("write pnl backup", "error", err)
	}
}

// snapshotEquity samples the connected venue's total equity into the
// balance history under the venue's composite key.
func (e *Engine) snapshotEquity(ctx context.Context) {
	if !e.venue.Connected() {
		return
	}
	equity, err := e.TotalEquity(ctx)
	if err != nil {
		e.logger.Warn("equity snapshot failed", "error", err)
		return
	}
	key := types.VenueKey(e.venue.Name(), e.venue.Testnet())
	if _, err := e.store.LogBalanceSnapshot(key, equity, time.Now()); err != nil {
		e.logger.Error("write equity snapshot", "error", err)
	}
}

// maybeSendDailyReport emits the daily summary once per calendar day at the
// report hour.
func (e *Engine) maybeSendDailyReport(now time.Time) {
	if now.Hour() != dailyReportHour {
		return
	}
	today := now.Format("2006-01-02")
	last, err := e.store.LastReportDate()
	if err != nil {
		e.logger.Error("read last report date", "error", err)
		return
	}
	if last == today {
		return
	}

	prices, err := e.store.AllPrices()
	if err != nil {
		e.logger.Error("prices for daily report", "error", err)
		return
	}
	rep, err := e.acct.Session(now.Add(-24*time.Hour).UnixMilli(), prices)
	if err != nil {
		e.logger.Error("daily report stats", "error", err)
		return
	}

	text := fmt.Sprintf("📊 <b>Daily report %s</b>\n24h PnL: %.2f", today, rep.Total)
	for _, coin := range rep.Coins {
		text += fmt.Sprintf("\n%s: %.2f (%d trades)", coin.Symbol, coin.PnL, coin.Trades)
	}
	if rep.BestCoin != "" {
		text += fmt.Sprintf("\nBest coin: <b>%s</b>", rep.BestCoin)
	}
	e.notifier.Send(text)

	if err := e.store.SetLastReportDate(today); err != nil {
		e.logger.Error("record report date", "error", err)
	}
}
