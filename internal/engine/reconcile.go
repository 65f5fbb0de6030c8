package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridbot/internal/config"
	"gridbot/internal/exchange"
	"gridbot/pkg/types"
)

// dustThreshold is the minimum base-asset value (in quote units) the grid
// needs before sells can exist; below it the engine seeds inventory with a
// single market buy.
const dustThreshold = 5.0

// rateLimitCooldown is the mandatory pause after the venue signals weight
// exhaustion.
const rateLimitCooldown = 120 * time.Second

// reconcileSymbol runs one full pass for one symbol: first-time setup, dust
// guard, ladder materialization, trailing, per-level placement and orphan
// cleanup, in that order. Steps that change the ladder return early so the
// next cycle places against settled state.
func (e *Engine) reconcileSymbol(ctx context.Context, symbol string, cfg *config.Config) error {
	strat := cfg.StrategyFor(symbol)

	price, err := e.venue.FetchTicker(ctx, symbol)
	if err != nil {
		return fmt.Errorf("ticker %s: %w", symbol, err)
	}
	if price <= 0 {
		return nil
	}

	// Step 1: first-time setup.
	_, setupDone, err := e.store.GridStatus(symbol)
	if err != nil {
		e.logger.Error("read grid status", "symbol", symbol, "error", err)
		setupDone = false
	}
	if !setupDone {
		return e.firstTimeSetup(ctx, symbol, strat)
	}

	balances, err := e.venue.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("balance: %w", err)
	}
	base := balances[types.BaseAsset(symbol)]
	quote := balances[types.QuoteAsset(symbol)]

	// Step 2: dust guard. Without base inventory the sell half of the grid
	// can never fill, so seed it and come back next cycle.
	if base.Total*price < dustThreshold {
		if quote.Free >= strat.AmountPerGrid {
			if _, err := e.venue.PlaceMarketBuyQuote(ctx, symbol, strat.AmountPerGrid); err != nil {
				return fmt.Errorf("dust buy %s: %w", symbol, err)
			}
			e.logger.Info("seeded dust inventory", "symbol", symbol, "quote_spent", strat.AmountPerGrid)
		}
		return nil
	}

	// Step 3: materialize the ladder on first sight of this symbol.
	e.mu.Lock()
	ladder := e.ladders[symbol]
	e.mu.Unlock()
	if ladder.Empty() {
		ladder = Materialize(price, strat.GridsQuantity, strat.GridSpread,
			func(v float64) float64 { return e.venue.PriceToPrecision(symbol, v) })
		e.setLadder(symbol, ladder)
		e.logger.Info("ladder materialized",
			"symbol", symbol, "ref_price", price, "levels", len(ladder.Levels))
		e.emit(Event{Type: "grid", Symbol: symbol, Data: ladder.Levels})
	}

	orders, err := e.venue.FetchOpenOrders(ctx, symbol)
	if err != nil {
		return fmt.Errorf("open orders %s: %w", symbol, err)
	}

	// Step 4: trailing up. Ladder shifts return early; placement resumes
	// next cycle against the settled ladder.
	if strat.TrailingEnabled {
		next, dropped, ok := ladder.TrailUp(price, strat.GridSpread,
			func(v float64) float64 { return e.venue.PriceToPrecision(symbol, v) })
		if ok {
			for _, o := range AtLevel(orders, dropped) {
				if err := e.venue.Cancel(ctx, symbol, o.ID); err != nil {
					e.logger.Warn("cancel trailed order", "symbol", symbol, "order", o.ID, "error", err)
				}
			}
			e.setLadder(symbol, next)
			e.logger.Info("trailed up",
				"symbol", symbol, "dropped", dropped, "new_top", next.Max())
			e.emit(Event{Type: "grid", Symbol: symbol, Data: next.Levels})
			return nil
		}
	}

	// Step 5: per-level placement.
	limits, _ := e.venue.Market(symbol)
	lastBuy, haveLastBuy, err := e.store.LastBuyPrice(symbol)
	if err != nil {
		e.logger.Error("last buy price", "symbol", symbol, "error", err)
	}
	reserved := restingSellBase(orders)
	e.mu.Lock()
	e.reserved[symbol] = reserved
	e.mu.Unlock()

	freeQuote := quote.Free
	for _, level := range ladder.Levels {
		side, place := LevelSide(level, price, strat.GridSpread)
		if !place {
			continue
		}
		if side == types.Sell && !SellAllowed(level, lastBuy, strat.GridSpread, haveLastBuy) {
			continue
		}

		existing := AtLevel(orders, level)
		occupied := false
		for _, o := range existing {
			// Opposite side on this level is stale after trailing or a
			// config change.
			if o.Side == side.Opposite() {
				if err := e.venue.Cancel(ctx, symbol, o.ID); err != nil {
					e.logger.Warn("cancel stale order", "symbol", symbol, "order", o.ID, "error", err)
				}
				continue
			}
			occupied = true
		}
		if occupied {
			continue
		}

		amount, ok := OrderAmount(level, strat.AmountPerGrid, limits,
			func(v float64) float64 { return e.venue.AmountToPrecision(symbol, v) })
		if !ok {
			continue
		}

		switch side {
		case types.Buy:
			funded, ok := FundedBuyAmount(amount, level, freeQuote)
			if !ok {
				continue
			}
			if _, err := e.placeLevel(ctx, symbol, types.Buy, funded, level); err != nil {
				continue
			}
			freeQuote -= funded * level
		case types.Sell:
			funded, ok := FundedSellAmount(amount, base.Free, reserved,
				func(v float64) float64 { return e.venue.AmountToPrecision(symbol, v) })
			if !ok {
				continue
			}
			if _, err := e.placeLevel(ctx, symbol, types.Sell, funded, level); err != nil {
				continue
			}
			reserved += funded
			e.mu.Lock()
			e.reserved[symbol] = reserved
			e.mu.Unlock()
		}
	}

	// Step 6: orphan cleanup.
	for _, o := range Orphans(orders, ladder) {
		if err := e.venue.Cancel(ctx, symbol, o.ID); err != nil {
			e.logger.Warn("cancel orphan", "symbol", symbol, "order", o.ID, "error", err)
		} else {
			e.logger.Info("cancelled orphan order",
				"symbol", symbol, "price", o.Price, "side", o.Side)
		}
	}
	return nil
}

func (e *Engine) firstTimeSetup(ctx context.Context, symbol string, strat config.Strategy) error {
	switch strat.StartMode {
	case types.StartBuy1:
		if _, err := e.venue.PlaceMarketBuyQuote(ctx, symbol, strat.AmountPerGrid); err != nil {
			return fmt.Errorf("start buy %s: %w", symbol, err)
		}
	case types.StartBuy2:
		if _, err := e.venue.PlaceMarketBuyQuote(ctx, symbol, 2*strat.AmountPerGrid); err != nil {
			return fmt.Errorf("start buy %s: %w", symbol, err)
		}
	}
	if err := e.store.SetSetupDone(symbol, true); err != nil {
		return fmt.Errorf("flag setup done %s: %w", symbol, err)
	}
	e.logger.Info("first-time setup complete", "symbol", symbol, "start_mode", strat.StartMode)
	return nil
}

// placeLevel places one limit order and surfaces definitive failures.
// Insufficient-funds skips the level without aborting the pass.
func (e *Engine) placeLevel(ctx context.Context, symbol string, side types.Side, amount, level float64) (types.Order, error) {
	order, err := e.venue.PlaceLimit(ctx, symbol, side, amount, level)
	if err != nil {
		if errors.Is(err, exchange.ErrInsufficientFunds) {
			e.logger.Warn("level skipped, insufficient funds",
				"symbol", symbol, "side", side, "level", level)
			return types.Order{}, err
		}
		e.handleCycleError(symbol, err)
		return types.Order{}, err
	}
	e.logger.Info("order placed",
		"symbol", symbol, "side", side, "price", level, "amount", amount)
	return order, nil
}

func (e *Engine) setLadder(symbol string, l Ladder) {
	e.mu.Lock()
	e.ladders[symbol] = l
	e.mu.Unlock()
	if err := e.store.UpdateGridStatus(symbol, l.Levels); err != nil {
		e.logger.Error("persist ladder", "symbol", symbol, "error", err)
	}
}

// restingSellBase sums the base units already committed to resting sells.
func restingSellBase(orders []types.Order) float64 {
	total := 0.0
	for _, o := range orders {
		if o.Side == types.Sell {
			total += o.Amount
		}
	}
	return total
}

// handleCycleError applies the venue error policy: rate limits impose the
// cool-down, transient noise is swallowed quietly, everything else is logged
// and the cycle moves on.
func (e *Engine) handleCycleError(symbol string, err error) {
	switch {
	case errors.Is(err, exchange.ErrRateLimited):
		e.mu.Lock()
		e.cooldownUntil = time.Now().Add(rateLimitCooldown)
		e.mu.Unlock()
		e.logger.Warn("rate limited, cooling down",
			"symbol", symbol, "until", time.Now().Add(rateLimitCooldown).Format(time.TimeOnly))
	case errors.Is(err, exchange.ErrTransient):
		e.logger.Debug("transient venue error", "symbol", symbol, "error", err)
	case errors.Is(err, exchange.ErrInsufficientFunds):
		e.logger.Warn("insufficient funds", "symbol", symbol)
	default:
		e.logger.Error("cycle error", "symbol", symbol, "error", err)
	}
}

// TotalEquity values every holding on the connected venue in stable-quote
// terms.
func (e *Engine) TotalEquity(ctx context.Context) (float64, error) {
	balances, err := e.venue.FetchBalance(ctx)
	if err != nil {
		return 0, fmt.Errorf("equity balances: %w", err)
	}
	tickers, err := e.venue.FetchTickers(ctx)
	if err != nil {
		return 0, fmt.Errorf("equity tickers: %w", err)
	}

	total := 0.0
	for asset, bal := range balances {
		switch asset {
		case "USDC", "USDT", "FDUSD", "DAI":
			total += bal.Total
			continue
		}
		if p, ok := tickers[asset+"USDC"]; ok {
			total += bal.Total * p
		} else if p, ok := tickers[asset+"USDT"]; ok {
			total += bal.Total * p
		}
	}
	return total, nil
}

// captureInitialSnapshots records each enabled symbol's base holding value
// at launch, the baseline for per-coin charts.
func (e *Engine) captureInitialSnapshots(ctx context.Context, cfg *config.Config) {
	balances, err := e.venue.FetchBalance(ctx)
	if err != nil {
		e.logger.Warn("initial snapshot balances", "error", err)
		return
	}

	equity := make(map[string]float64)
	for _, symbol := range cfg.EnabledSymbols() {
		price, err := e.venue.FetchTicker(ctx, symbol)
		if err != nil {
			continue
		}
		base := balances[types.BaseAsset(symbol)]
		equity[symbol] = base.Total * price
	}
	if err := e.store.SetCoinInitialEquity(equity); err != nil {
		e.logger.Error("persist coin initial equity", "error", err)
	}
}
