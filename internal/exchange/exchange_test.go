package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/adshao/go-binance/v2/common"

	"gridbot/pkg/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func marketLimits(symbol string, pricePrec, amountPrec int) types.MarketLimits {
	return types.MarketLimits{
		Symbol:          symbol,
		PricePrecision:  pricePrec,
		AmountPrecision: amountPrec,
		MinAmount:       0.00001,
		MinNotional:     5,
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil", nil, nil},
		{"rate limit code", &common.APIError{Code: -1003, Message: "Too many requests"}, ErrRateLimited},
		{"insufficient funds", &common.APIError{Code: -2010, Message: "Account has insufficient balance"}, ErrInsufficientFunds},
		{"order not found", &common.APIError{Code: -2011, Message: "Unknown order sent"}, ErrOrderNotFound},
		{"filter failure", &common.APIError{Code: -1013, Message: "Filter failure: NOTIONAL"}, ErrMinNotional},
		{"teapot status text", errors.New("<APIError> rsp=418 I'm a teapot"), ErrRateLimited},
		{"truncated body", errors.New("http: ContentLength=312 with Body length 57: unexpected EOF"), ErrTransient},
		{"json decode", errors.New("invalid character '<' looking for beginning of value"), ErrTransient},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classify(tt.in)
			if tt.want == nil {
				if got != nil {
					t.Fatalf("classify(nil) = %v", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want wrapped %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassifyKeepsUnknownErrors(t *testing.T) {
	t.Parallel()

	in := fmt.Errorf("place order: %w", &common.APIError{Code: -1121, Message: "Invalid symbol"})
	got := classify(in)
	for _, sentinel := range []error{ErrRateLimited, ErrInsufficientFunds, ErrOrderNotFound, ErrTransient, ErrMinNotional} {
		if errors.Is(got, sentinel) {
			t.Errorf("unknown code misclassified as %v", sentinel)
		}
	}
	var apiErr *common.APIError
	if !errors.As(got, &apiErr) || apiErr.Code != -1121 {
		t.Error("original APIError lost in classification")
	}
}

func TestStepPrecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		step string
		want int
	}{
		{"0.00100000", 3},
		{"0.01000000", 2},
		{"1.00000000", 0},
		{"0.00000001", 8},
		{"0.1", 1},
		{"", 8},
		{"0", 8},
	}
	for _, tt := range tests {
		if got := stepPrecision(tt.step); got != tt.want {
			t.Errorf("stepPrecision(%q) = %d, want %d", tt.step, got, tt.want)
		}
	}
}

func TestPrecisionRounding(t *testing.T) {
	t.Parallel()

	a := New(discardLogger())
	a.markets["BTC/USDC"] = marketLimits("BTC/USDC", 2, 5)

	if got := a.PriceToPrecision("BTC/USDC", 64123.456789); got != 64123.46 {
		t.Errorf("PriceToPrecision = %v, want 64123.46", got)
	}
	// Amounts truncate toward zero so a rounded order never overspends.
	if got := a.AmountToPrecision("BTC/USDC", 0.0012999); got != 0.00129 {
		t.Errorf("AmountToPrecision = %v, want 0.00129", got)
	}
}

func TestValueAsset(t *testing.T) {
	t.Parallel()

	tickers := map[string]float64{
		"BTCUSDC": 60000,
		"ETHUSDT": 3000,
	}

	tests := []struct {
		asset string
		qty   float64
		want  float64
	}{
		{"USDC", 150, 150},
		{"USDT", 80, 80},
		{"BTC", 0.5, 30000},   // direct USDC pair
		{"ETH", 2, 6000},      // USDT fallback
		{"XYZ", 10, 0},        // no stable pair: skipped
		{"BTC", 0, 0},
	}
	for _, tt := range tests {
		if got := valueAsset(tt.asset, tt.qty, tickers); got != tt.want {
			t.Errorf("valueAsset(%s, %v) = %v, want %v", tt.asset, tt.qty, got, tt.want)
		}
	}
}

func TestVenueSymbol(t *testing.T) {
	t.Parallel()

	if got := venueSymbol("BTC/USDC"); got != "BTCUSDC" {
		t.Errorf("venueSymbol = %q", got)
	}
	if got := venueSymbol("BTCUSDC"); got != "BTCUSDC" {
		t.Errorf("venueSymbol without separator = %q", got)
	}
}

func TestAdapterDisconnected(t *testing.T) {
	t.Parallel()

	a := New(discardLogger())
	if a.Connected() {
		t.Fatal("fresh adapter reports connected")
	}
	if _, err := a.FetchBalance(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("FetchBalance on disconnected adapter: %v", err)
	}
	if err := a.CancelAll(context.Background(), "BTC/USDC"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("CancelAll on disconnected adapter: %v", err)
	}
}
