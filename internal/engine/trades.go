package engine

import (
	"fmt"

	"gridbot/internal/config"
	"gridbot/internal/pnl"
	"gridbot/pkg/types"
)

// ingestTrades persists newly-seen fills, links sells to their buys, emits
// alerts and forces a PnL backup refresh. The processed-id set keeps alerts
// from repeating within a session; across restarts the ledger's unique
// trade-id constraint makes re-ingestion harmless.
func (e *Engine) ingestTrades(symbol string, trades []types.Trade, strat config.Strategy) {
	e.mu.RLock()
	start := e.sessionStart
	e.mu.RUnlock()
	// Before the first Launch there is no session window: everything the
	// collector sees is history, persisted but never alerted.
	launched := !start.IsZero()
	sessionStart := start.UnixMilli()

	var fresh []types.Trade
	for _, t := range trades {
		e.mu.RLock()
		_, seen := e.processed[t.ID]
		e.mu.RUnlock()
		if !seen {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) == 0 {
		return
	}

	if _, err := e.store.SaveTrades(fresh); err != nil {
		e.logger.Error("persist trades", "symbol", symbol, "error", err)
		return
	}

	alerted := false
	for _, t := range fresh {
		e.mu.Lock()
		e.processed[t.ID] = struct{}{}
		e.mu.Unlock()

		// Pre-session fills belong to an earlier run: persisted above but
		// never alerted.
		if !launched || t.Timestamp < sessionStart {
			continue
		}

		switch t.Side {
		case types.Buy:
			stored, ok, err := e.store.TradeByID(t.ID)
			if err != nil {
				e.logger.Error("read stored trade", "trade", t.ID, "error", err)
				continue
			}
			buyID := 0
			if ok && stored.BuyID != nil {
				buyID = *stored.BuyID
			} else {
				buyID, err = e.store.AssignBuyID(t.ID)
				if err != nil {
					e.logger.Error("assign buy id", "trade", t.ID, "error", err)
				}
			}
			e.alertBuy(t, buyID)
		case types.Sell:
			linked, ok, err := e.store.FindLinkedBuyID(symbol, t.Price, strat.GridSpread)
			if err != nil {
				e.logger.Error("link sell to buy", "trade", t.ID, "error", err)
			} else if ok {
				if err := e.store.SetTradeBuyID(t.ID, linked); err != nil {
					e.logger.Error("persist sell link", "trade", t.ID, "error", err)
				}
			}
			e.alertSell(t, strat, linked, ok)
		}
		alerted = true
	}

	if alerted {
		e.refreshPnLBackup()
	}
}

func (e *Engine) alertBuy(t types.Trade, buyID int) {
	text := fmt.Sprintf("🟢 <b>BUY</b> %s\nPrice: %.8g\nAmount: %.8g\nCost: %.2f %s",
		t.Symbol, t.Price, t.Amount, t.Cost, types.QuoteAsset(t.Symbol))
	if buyID > 0 {
		text += fmt.Sprintf("\nEntry #%d", buyID)
	}
	e.notifier.Send(text)
	e.emit(Event{Type: "trade", Symbol: t.Symbol, Message: "buy", Data: t})
	e.logger.Info("buy filled",
		"symbol", t.Symbol, "price", t.Price, "amount", t.Amount, "buy_id", buyID)
}

func (e *Engine) alertSell(t types.Trade, strat config.Strategy, linkedBuyID int, linked bool) {
	fee := t.FeeCost
	if t.FeeCurrency != "" && t.FeeCurrency != types.QuoteAsset(t.Symbol) {
		fee = t.FeeCost * t.Price
	}
	profit := pnl.SellProfitEstimate(t.Price, t.Amount, strat.GridSpread, fee)

	text := fmt.Sprintf("🔴 <b>SELL</b> %s\nPrice: %.8g\nAmount: %.8g\nProceeds: %.2f %s\nEst. profit: %.2f",
		t.Symbol, t.Price, t.Amount, t.Cost, types.QuoteAsset(t.Symbol), profit)
	if linked {
		text += fmt.Sprintf("\nCloses entry #%d", linkedBuyID)
	}
	e.notifier.Send(text)
	e.emit(Event{Type: "trade", Symbol: t.Symbol, Message: "sell", Data: t})
	e.logger.Info("sell filled",
		"symbol", t.Symbol, "price", t.Price, "amount", t.Amount,
		"est_profit", profit, "linked_buy", linkedBuyID)
}
