package engine

import (
	"context"
	"time"
)

// applyReload reacts to a config change observed at a cycle boundary.
//
// A testnet flip is a different account entirely: cancel everything, drop
// all in-memory grid state, reset session statistics and re-anchor the
// session as if freshly launched. PnL history is left alone.
//
// Any other change reduces to a symbol diff: removed pairs get their orders
// cancelled and ladders dropped; added pairs materialize on the next cycle
// with no action needed here.
func (e *Engine) applyReload() {
	cfg := e.provider.Current()
	ctx, cancel := context.WithTimeout(e.ctx, 30*time.Second)
	defer cancel()

	e.mu.RLock()
	oldTestnet := e.lastTestnet
	oldSymbols := e.lastSymbols
	e.mu.RUnlock()

	if cfg.System.UseTestnet != oldTestnet {
		e.logger.Info("testnet flag changed, resetting session",
			"testnet", cfg.System.UseTestnet)

		for _, symbol := range oldSymbols {
			if err := e.venue.CancelAll(ctx, symbol); err != nil {
				e.logger.Warn("reload cancel-all failed", "symbol", symbol, "error", err)
			}
		}

		// The flag selects a different account: reconnect so orders and
		// snapshots hit the right endpoint under the right venue key.
		if e.venue.Connected() {
			name := e.venue.Name()
			creds, err := e.store.ExchangeCredentials(name)
			if err != nil {
				e.logger.Error("reload credentials unavailable", "venue", name, "error", err)
			} else if err := e.venue.Connect(name, creds, cfg.System.UseTestnet); err != nil {
				e.logger.Error("reconnect after testnet flip", "venue", name, "error", err)
			}
		}

		e.mu.Lock()
		e.ladders = make(map[string]Ladder)
		e.reserved = make(map[string]float64)
		e.processed = make(map[string]struct{})
		e.sessionStart = time.Now()
		e.lastTestnet = cfg.System.UseTestnet
		e.lastSymbols = cfg.EnabledSymbols()
		e.mu.Unlock()

		if equity, err := e.TotalEquity(ctx); err == nil {
			if err := e.store.SetSessionStartBalance(equity); err != nil {
				e.logger.Error("persist session start balance", "error", err)
			}
			if err := e.store.EnsureGlobalStartBalance(equity); err != nil {
				e.logger.Error("persist global start balance", "error", err)
			}
		}
		e.captureInitialSnapshots(ctx, cfg)
		if err := e.store.SetSessionStart(time.Now().UnixMilli()); err != nil {
			e.logger.Error("persist session start", "error", err)
		}
		e.emit(Event{Type: "reload", Message: "testnet flip"})
		return
	}

	newSymbols := cfg.EnabledSymbols()
	newSet := make(map[string]bool, len(newSymbols))
	for _, s := range newSymbols {
		newSet[s] = true
	}

	for _, symbol := range oldSymbols {
		if newSet[symbol] {
			continue
		}
		e.logger.Info("pair removed from config", "symbol", symbol)
		if err := e.venue.CancelAll(ctx, symbol); err != nil {
			e.logger.Warn("cancel removed pair", "symbol", symbol, "error", err)
		}
		e.mu.Lock()
		delete(e.ladders, symbol)
		delete(e.reserved, symbol)
		e.mu.Unlock()
		if err := e.store.DropGrid(symbol); err != nil {
			e.logger.Error("drop grid", "symbol", symbol, "error", err)
		}
	}

	e.mu.Lock()
	e.lastSymbols = newSymbols
	e.mu.Unlock()
	e.emit(Event{Type: "reload", Message: "config applied"})
}
