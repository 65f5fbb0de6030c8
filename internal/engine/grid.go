package engine

import (
	"math"
	"sort"

	"gridbot/pkg/types"
)

// Ladder is one symbol's grid: level prices in ascending order. Ladders are
// immutable values; every mutation returns a fresh slice and the engine
// swaps the whole thing at once.
type Ladder struct {
	Levels []float64
}

// priceEqual compares a resting order's price against a ladder level at a
// relative tolerance of 1e-5, absorbing venue rounding.
func priceEqual(a, b float64) bool {
	if a == b {
		return true
	}
	scale := math.Max(math.Abs(a), math.Abs(b))
	if scale == 0 {
		return false
	}
	return math.Abs(a-b) <= 1e-5*scale
}

// Materialize builds a fresh ladder of n levels around the reference price:
// n/2 below at ref·(1−s·i) and n/2 above at ref·(1+s·i), each rounded by
// the venue's price precision and sorted ascending.
func Materialize(ref float64, n int, spreadPct float64, round func(float64) float64) Ladder {
	s := spreadPct / 100
	levels := make([]float64, 0, n)
	for i := 1; i <= n/2; i++ {
		levels = append(levels,
			round(ref*(1-s*float64(i))),
			round(ref*(1+s*float64(i))))
	}
	sort.Float64s(levels)
	return Ladder{Levels: levels}
}

// Empty reports whether the ladder has no levels.
func (l Ladder) Empty() bool { return len(l.Levels) == 0 }

// Max returns the highest level (0 for an empty ladder).
func (l Ladder) Max() float64 {
	if l.Empty() {
		return 0
	}
	return l.Levels[len(l.Levels)-1]
}

// Min returns the lowest level (0 for an empty ladder).
func (l Ladder) Min() float64 {
	if l.Empty() {
		return 0
	}
	return l.Levels[0]
}

// Contains reports whether a price matches some level at the standard
// tolerance.
func (l Ladder) Contains(price float64) bool {
	for _, lv := range l.Levels {
		if priceEqual(price, lv) {
			return true
		}
	}
	return false
}

// TrailUp shifts the ladder one step when price breaks above the top level
// by 20% of one grid step. The lowest level is dropped (returned so its
// resting order can be cancelled) and a new top is appended at max·(1+s).
// Returns ok=false when the price has not broken out.
func (l Ladder) TrailUp(price, spreadPct float64, round func(float64) float64) (next Ladder, dropped float64, ok bool) {
	if l.Empty() {
		return l, 0, false
	}
	s := spreadPct / 100
	if price <= l.Max()*(1+0.2*s) {
		return l, 0, false
	}

	dropped = l.Levels[0]
	levels := make([]float64, 0, len(l.Levels))
	levels = append(levels, l.Levels[1:]...)
	levels = append(levels, round(l.Max()*(1+s)))
	sort.Float64s(levels)
	return Ladder{Levels: levels}, dropped, true
}

// LevelSide classifies a level against the current price. Levels inside the
// margin band price·s·0.1 around the price get no order this cycle; above
// it they are sells, below it buys.
func LevelSide(level, price, spreadPct float64) (types.Side, bool) {
	band := price * (spreadPct / 100) * 0.1
	switch {
	case level > price+band:
		return types.Sell, true
	case level < price-band:
		return types.Buy, true
	default:
		return "", false
	}
}

// SellAllowed enforces the anti-wash floor: a sell may only rest at or above
// the last buy price plus half a grid step. With no prior buy every sell is
// allowed.
func SellAllowed(level, lastBuyPrice, spreadPct float64, haveLastBuy bool) bool {
	if !haveLastBuy {
		return true
	}
	return level >= lastBuyPrice*(1+0.5*spreadPct/100)
}

// OrderAmount sizes a level's order: amountPerGrid quote units at the level
// price, truncated to venue precision. Returns ok=false when the rounded
// amount falls below the venue minimum or the level is zero.
func OrderAmount(level, amountPerGrid float64, limits types.MarketLimits, truncate func(float64) float64) (float64, bool) {
	if level <= 0 {
		return 0, false
	}
	amount := truncate(amountPerGrid / level)
	if amount <= 0 || amount < limits.MinAmount {
		return 0, false
	}
	if limits.MinNotional > 0 && amount*level < limits.MinNotional {
		return 0, false
	}
	return amount, true
}

// FundedBuyAmount checks quote funding for a buy of amount at price: the
// free quote balance must cover the full notional. No truncation on buys;
// either it fits or it is skipped.
func FundedBuyAmount(amount, price, freeQuote float64) (float64, bool) {
	if freeQuote >= amount*price {
		return amount, true
	}
	return 0, false
}

// FundedSellAmount checks base funding for a sell. The available inventory
// is the free base minus what other resting sells already reserve. A sell
// goes through when availability covers 99% of the target; when it covers
// between 90% and 100%, the order is truncated to what is actually there.
func FundedSellAmount(amount, freeBase, reserved float64, truncate func(float64) float64) (float64, bool) {
	avail := freeBase - reserved
	if avail >= amount*0.99 {
		if avail >= amount {
			return amount, true
		}
		return truncate(avail), true
	}
	if avail > amount*0.9 {
		truncated := truncate(avail)
		if truncated > 0 {
			return truncated, true
		}
	}
	return 0, false
}

// Orphans returns the resting orders whose price matches no ladder level.
func Orphans(orders []types.Order, ladder Ladder) []types.Order {
	var out []types.Order
	for _, o := range orders {
		if !ladder.Contains(o.Price) {
			out = append(out, o)
		}
	}
	return out
}

// AtLevel returns the resting orders sitting on one level.
func AtLevel(orders []types.Order, level float64) []types.Order {
	var out []types.Order
	for _, o := range orders {
		if priceEqual(o.Price, level) {
			out = append(out, o)
		}
	}
	return out
}
