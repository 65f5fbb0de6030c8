package exchange

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"

	"gridbot/pkg/types"
)

// SnapshotEquity values an account's holdings in stable-quote terms using a
// throwaway client built from the given credentials. No adapter state is
// touched, so the background scheduler can snapshot venues the engine does
// not own.
func SnapshotEquity(ctx context.Context, venue types.VenueType, creds types.Credentials, testnet bool) (float64, error) {
	switch venue {
	case types.VenueBinance:
		return binanceSnapshot(ctx, creds, testnet)
	case types.VenueBitget:
		if testnet {
			return 0, fmt.Errorf("bitget snapshot: no sandbox support")
		}
		return bitgetSnapshot(ctx, creds)
	default:
		return 0, fmt.Errorf("unknown venue type %q", venue)
	}
}

func binanceSnapshot(ctx context.Context, creds types.Credentials, testnet bool) (float64, error) {
	binance.UseTestnet = testnet
	client := binance.NewClient(creds.APIKey, creds.Secret)

	acct, err := client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	prices, err := client.NewListPricesService().Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	tickers := make(map[string]float64, len(prices))
	for _, p := range prices {
		if v, err := strconv.ParseFloat(p.Price, 64); err == nil {
			tickers[p.Symbol] = v
		}
	}

	total := 0.0
	for _, b := range acct.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		total += valueAsset(b.Asset, free+locked, tickers)
	}
	return total, nil
}

func bitgetSnapshot(ctx context.Context, creds types.Credentials) (float64, error) {
	client := newBitgetClient(creds)

	balances, err := client.balances(ctx)
	if err != nil {
		return 0, err
	}
	tickers, err := client.tickers(ctx)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for coin, bal := range balances {
		total += valueAsset(coin, bal.Total, tickers)
	}
	return total, nil
}

// valueAsset converts an asset holding to stable-quote value. Stables count
// at face value; others use the USDC pair, falling back to USDT. Assets with
// no stable pair are skipped rather than mispriced.
func valueAsset(asset string, qty float64, tickers map[string]float64) float64 {
	if qty == 0 {
		return 0
	}
	switch asset {
	case "USDC", "USDT", "FDUSD", "DAI":
		return qty
	}
	if p, ok := tickers[asset+"USDC"]; ok {
		return qty * p
	}
	if p, ok := tickers[asset+"USDT"]; ok {
		return qty * p
	}
	return 0
}
