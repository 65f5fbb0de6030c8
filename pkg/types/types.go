// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — sides, trades, orders,
// candles, balances, and venue metadata. It has no dependencies on internal
// packages, so it can be imported by any layer.
package types

import "strings"

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: buy or sell.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// VenueType identifies which exchange implementation backs a credential set.
type VenueType string

const (
	VenueBinance VenueType = "binance"
	VenueBitget  VenueType = "bitget"
)

// StartMode controls the engine's behavior on the very first reconciliation
// of a symbol (before setup_done is flagged).
type StartMode string

const (
	StartWait StartMode = "wait"  // place no initial market order
	StartBuy1 StartMode = "buy_1" // market-buy one grid amount of quote
	StartBuy2 StartMode = "buy_2" // market-buy two grid amounts of quote
)

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// Candle is one OHLCV row. Timestamp is Unix milliseconds, matching the
// venue's kline feed.
type Candle struct {
	Timestamp int64   `json:"ts"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Balance is the free/used/total holding of a single asset.
type Balance struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

// MarketLimits carries the venue's per-symbol constraints used when sizing
// orders. MinNotional is denominated in the quote asset.
type MarketLimits struct {
	Symbol          string  `json:"symbol"`
	PricePrecision  int     `json:"price_precision"`
	AmountPrecision int     `json:"amount_precision"`
	MinAmount       float64 `json:"min_amount"`
	MinNotional     float64 `json:"min_notional"`
}

// ————————————————————————————————————————————————————————————————————————
// Orders and trades
// ————————————————————————————————————————————————————————————————————————

// Order is a resting or historical order as seen at the venue.
type Order struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Status string  `json:"status"`
}

// Trade is one executed fill from the venue's my-trades feed.
// FeeInQuote is the fee normalized to the quote asset; the store performs
// the normalization (fee × price when the fee currency is not the quote).
type Trade struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	Price       float64 `json:"price"`
	Amount      float64 `json:"amount"`
	Cost        float64 `json:"cost"`
	FeeCost     float64 `json:"fee_cost"`
	FeeCurrency string  `json:"fee_currency"`
	Timestamp   int64   `json:"timestamp"` // Unix milliseconds
	BuyID       *int    `json:"buy_id,omitempty"`
}

// ————————————————————————————————————————————————————————————————————————
// Credentials
// ————————————————————————————————————————————————————————————————————————

// Credentials holds decrypted venue API credentials. Plaintext secrets live
// only here and inside the venue client built from them.
type Credentials struct {
	APIKey     string
	Secret     string
	Passphrase string
}

// ————————————————————————————————————————————————————————————————————————
// Symbol helpers
// ————————————————————————————————————————————————————————————————————————

// BaseAsset returns the base of a "BASE/QUOTE" symbol, e.g. "BTC" for "BTC/USDC".
func BaseAsset(symbol string) string {
	base, _, _ := strings.Cut(symbol, "/")
	return base
}

// QuoteAsset returns the quote of a "BASE/QUOTE" symbol, defaulting to USDC
// when the symbol carries no separator.
func QuoteAsset(symbol string) string {
	_, quote, ok := strings.Cut(symbol, "/")
	if !ok || quote == "" {
		return "USDC"
	}
	return quote
}

// VenueKey builds the balance-history key for a venue: "name" or
// "name-testnet".
func VenueKey(name string, testnet bool) string {
	if testnet {
		return name + "-testnet"
	}
	return name
}
