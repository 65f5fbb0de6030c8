package types

import "testing"

func TestSideOpposite(t *testing.T) {
	t.Parallel()

	if got := Buy.Opposite(); got != Sell {
		t.Errorf("Buy.Opposite() = %q, want %q", got, Sell)
	}
	if got := Sell.Opposite(); got != Buy {
		t.Errorf("Sell.Opposite() = %q, want %q", got, Buy)
	}
}

func TestSymbolAssets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		symbol    string
		wantBase  string
		wantQuote string
	}{
		{"BTC/USDC", "BTC", "USDC"},
		{"ETH/USDT", "ETH", "USDT"},
		{"SOL/", "SOL", "USDC"}, // empty quote falls back
		{"DOGE", "DOGE", "USDC"},
	}

	for _, tt := range tests {
		if got := BaseAsset(tt.symbol); got != tt.wantBase {
			t.Errorf("BaseAsset(%q) = %q, want %q", tt.symbol, got, tt.wantBase)
		}
		if got := QuoteAsset(tt.symbol); got != tt.wantQuote {
			t.Errorf("QuoteAsset(%q) = %q, want %q", tt.symbol, got, tt.wantQuote)
		}
	}
}

func TestVenueKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		testnet bool
		want    string
	}{
		{"binance", false, "binance"},
		{"binance", true, "binance-testnet"},
		{"bitget", false, "bitget"},
	}

	for _, tt := range tests {
		if got := VenueKey(tt.name, tt.testnet); got != tt.want {
			t.Errorf("VenueKey(%q, %v) = %q, want %q", tt.name, tt.testnet, got, tt.want)
		}
	}
}
