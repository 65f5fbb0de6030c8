package engine

import (
	"context"
	"fmt"

	"gridbot/pkg/types"
)

// Manual operations invoked from the HTTP surface. They talk to the venue
// directly; the reconciliation loop observes the result on its next pass.

// ManualCloseOrder closes one resting order by id. A buy is simply
// cancelled; a sell is cancelled and its amount market-sold immediately, so
// the operator exits the position instead of leaving inventory behind.
func (e *Engine) ManualCloseOrder(ctx context.Context, symbol, orderID string) error {
	orders, err := e.venue.FetchOpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch orders: %w", err)
	}
	var target *types.Order
	for i := range orders {
		if orders[i].ID == orderID {
			target = &orders[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("order %s not found on %s", orderID, symbol)
	}

	if err := e.venue.Cancel(ctx, symbol, orderID); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if target.Side == types.Sell {
		amount := e.venue.AmountToPrecision(symbol, target.Amount)
		if _, err := e.venue.PlaceMarketSell(ctx, symbol, amount); err != nil {
			return fmt.Errorf("market sell after cancel: %w", err)
		}
	}
	e.logger.Info("order closed manually",
		"symbol", symbol, "order", orderID, "side", target.Side)
	return nil
}

// PanicCancelAll cancels every resting order on every enabled symbol.
func (e *Engine) PanicCancelAll(ctx context.Context) error {
	var firstErr error
	for _, symbol := range e.provider.Current().EnabledSymbols() {
		if err := e.venue.CancelAll(ctx, symbol); err != nil {
			e.logger.Error("panic cancel failed", "symbol", symbol, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	e.logger.Warn("panic cancel-all executed")
	e.notifier.Send("⚠️ <b>All orders cancelled</b>")
	return firstErr
}

// liquidationFloor is the smallest holding (in quote units) worth market-
// selling during a panic liquidation.
const liquidationFloor = 2.0

// PanicSellAll cancels everything and liquidates every enabled symbol's
// base holding back to quote.
func (e *Engine) PanicSellAll(ctx context.Context) error {
	if err := e.PanicCancelAll(ctx); err != nil {
		e.logger.Warn("continuing liquidation despite cancel errors", "error", err)
	}

	balances, err := e.venue.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("liquidation balances: %w", err)
	}

	var firstErr error
	for _, symbol := range e.provider.Current().EnabledSymbols() {
		base := balances[types.BaseAsset(symbol)]
		if base.Free <= 0 {
			continue
		}
		price, err := e.venue.FetchTicker(ctx, symbol)
		if err != nil || base.Free*price < liquidationFloor {
			continue
		}
		amount := e.venue.AmountToPrecision(symbol, base.Free)
		if amount <= 0 {
			continue
		}
		if _, err := e.venue.PlaceMarketSell(ctx, symbol, amount); err != nil {
			e.logger.Error("liquidation sell failed", "symbol", symbol, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.logger.Warn("position liquidated", "symbol", symbol, "amount", amount)
	}
	e.notifier.Send("🆘 <b>All positions liquidated</b>")
	return firstErr
}
