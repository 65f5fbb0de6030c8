// Package exchange wraps venue REST APIs behind one adapter interface.
//
// The primary venue is Binance spot (adshao/go-binance); a minimal Bitget
// client exists for equity snapshots only. Symbols are passed around in
// "BASE/QUOTE" form and translated to venue notation at the edge.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"gridbot/pkg/types"
)

// Adapter is the live venue connection. It starts disconnected; every
// call before a successful Connect returns ErrNotConnected.
type Adapter struct {
	logger  *slog.Logger
	limiter *rate.Limiter

	mu        sync.RWMutex
	client    *binance.Client
	connected bool
	name      string
	testnet   bool
	markets   map[string]types.MarketLimits
}

// New returns a disconnected adapter.
func New(logger *slog.Logger) *Adapter {
	return &Adapter{
		logger: logger.With("component", "exchange"),
		// Binance spot allows ~1200 request weight/min; stay well under.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		markets: make(map[string]types.MarketLimits),
	}
}

// Connect builds a client from credentials and verifies reachability with a
// server-time call under a 3s deadline. A failed verification is logged but
// not fatal: the client stays usable and later calls surface real errors.
// Market metadata loads in the background.
func (a *Adapter) Connect(name string, creds types.Credentials, testnet bool) error {
	binance.UseTestnet = testnet
	client := binance.NewClient(creds.APIKey, creds.Secret)

	a.mu.Lock()
	a.client = client
	a.connected = true
	a.name = name
	a.testnet = testnet
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.NewServerTimeService().Do(ctx); err != nil {
		a.logger.Warn("venue time check failed, continuing anyway",
			"venue", name, "testnet", testnet, "error", err)
	} else {
		a.logger.Info("venue connected", "venue", name, "testnet", testnet)
	}

	go a.loadMarkets(context.Background())
	return nil
}

// Connected reports whether Connect has been called successfully.
func (a *Adapter) Connected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.connected
}

// Name returns the connected venue name ("" when disconnected).
func (a *Adapter) Name() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.name
}

// Testnet reports whether the connection targets the venue sandbox.
func (a *Adapter) Testnet() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.testnet
}

// Disconnect drops the client. In-flight calls finish against the old client.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	a.client = nil
	a.connected = false
	a.name = ""
	a.mu.Unlock()
}

func (a *Adapter) getClient() (*binance.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.connected || a.client == nil {
		return nil, ErrNotConnected
	}
	return a.client, nil
}

func (a *Adapter) loadMarkets(ctx context.Context) {
	client, err := a.getClient()
	if err != nil {
		return
	}
	info, err := client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		a.logger.Warn("exchange info load failed", "error", err)
		return
	}

	loaded := make(map[string]types.MarketLimits, len(info.Symbols))
	for _, s := range info.Symbols {
		limits := types.MarketLimits{Symbol: s.BaseAsset + "/" + s.QuoteAsset}
		if f := s.PriceFilter(); f != nil {
			limits.PricePrecision = stepPrecision(f.TickSize)
		}
		if f := s.LotSizeFilter(); f != nil {
			limits.AmountPrecision = stepPrecision(f.StepSize)
			limits.MinAmount, _ = strconv.ParseFloat(f.MinQuantity, 64)
		}
		if f := s.NotionalFilter(); f != nil {
			limits.MinNotional, _ = strconv.ParseFloat(f.MinNotional, 64)
		}
		loaded[limits.Symbol] = limits
	}

	a.mu.Lock()
	a.markets = loaded
	a.mu.Unlock()
	a.logger.Info("market metadata loaded", "symbols", len(loaded))
}

// Market returns the venue limits for a symbol, or false when metadata has
// not loaded (or the symbol does not exist).
func (a *Adapter) Market(symbol string) (types.MarketLimits, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.markets[symbol]
	return m, ok
}

// venueSymbol converts "BTC/USDC" to Binance's "BTCUSDC".
func venueSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}

// stepPrecision counts the decimals in a venue step like "0.00100000" → 3.
// decimal.String() trims the trailing zeros for us.
func stepPrecision(step string) int {
	d, err := decimal.NewFromString(step)
	if err != nil || d.IsZero() {
		return 8
	}
	s := d.String()
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// PriceToPrecision rounds a price half-up to the symbol's price precision.
func (a *Adapter) PriceToPrecision(symbol string, price float64) float64 {
	prec := int32(8)
	if m, ok := a.Market(symbol); ok {
		prec = int32(m.PricePrecision)
	}
	f, _ := decimal.NewFromFloat(price).Round(prec).Float64()
	return f
}

// AmountToPrecision truncates an amount toward zero at the symbol's amount
// precision, so rounded orders never exceed the available balance.
func (a *Adapter) AmountToPrecision(symbol string, amount float64) float64 {
	prec := int32(8)
	if m, ok := a.Market(symbol); ok {
		prec = int32(m.AmountPrecision)
	}
	f, _ := decimal.NewFromFloat(amount).Truncate(prec).Float64()
	return f
}

// FetchTime returns the venue clock in Unix milliseconds.
func (a *Adapter) FetchTime(ctx context.Context) (int64, error) {
	client, err := a.getClient()
	if err != nil {
		return 0, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	ts, err := client.NewServerTimeService().Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	return ts, nil
}

// FetchBalance returns free/used/total per asset, skipping zero rows.
func (a *Adapter) FetchBalance(ctx context.Context) (map[string]types.Balance, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	acct, err := client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, classify(err)
	}

	out := make(map[string]types.Balance)
	for _, b := range acct.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		used, _ := strconv.ParseFloat(b.Locked, 64)
		if free == 0 && used == 0 {
			continue
		}
		out[b.Asset] = types.Balance{Free: free, Used: used, Total: free + used}
	}
	return out, nil
}

// AccountStatus reports the account's commission rates in basis points.
func (a *Adapter) AccountStatus(ctx context.Context) (makerBps, takerBps int64, err error) {
	client, err := a.getClient()
	if err != nil {
		return 0, 0, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, 0, err
	}
	acct, err := client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, 0, classify(err)
	}
	return acct.MakerCommission, acct.TakerCommission, nil
}

// FetchTicker returns the last price for one symbol.
func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (float64, error) {
	client, err := a.getClient()
	if err != nil {
		return 0, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	prices, err := client.NewListPricesService().Symbol(venueSymbol(symbol)).Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no ticker for %s", symbol)
	}
	p, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price: %w", err)
	}
	return p, nil
}

// FetchTickers returns last prices for every symbol, keyed by venue notation
// ("BTCUSDC"). Used for equity valuation across arbitrary holdings.
func (a *Adapter) FetchTickers(ctx context.Context) (map[string]float64, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	prices, err := client.NewListPricesService().Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	out := make(map[string]float64, len(prices))
	for _, p := range prices {
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			continue
		}
		out[p.Symbol] = v
	}
	return out, nil
}

// FetchCandles returns up to limit OHLCV rows at the given interval
// (default "15m", limit default 500), oldest first.
func (a *Adapter) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}
	if interval == "" {
		interval = "15m"
	}
	if limit <= 0 {
		limit = 500
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	klines, err := client.NewKlinesService().
		Symbol(venueSymbol(symbol)).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]types.Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		cls, _ := strconv.ParseFloat(k.Close, 64)
		vol, _ := strconv.ParseFloat(k.Volume, 64)
		out = append(out, types.Candle{
			Timestamp: k.OpenTime,
			Open:      open, High: high, Low: low, Close: cls, Volume: vol,
		})
	}
	return out, nil
}

// FetchMyTrades returns the account's most recent fills for a symbol,
// newest last, at most limit rows.
func (a *Adapter) FetchMyTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := client.NewListTradesService().
		Symbol(venueSymbol(symbol)).Limit(limit).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]types.Trade, 0, len(rows))
	for _, r := range rows {
		price, _ := strconv.ParseFloat(r.Price, 64)
		amount, _ := strconv.ParseFloat(r.Quantity, 64)
		cost, _ := strconv.ParseFloat(r.QuoteQuantity, 64)
		fee, _ := strconv.ParseFloat(r.Commission, 64)
		side := types.Sell
		if r.IsBuyer {
			side = types.Buy
		}
		out = append(out, types.Trade{
			ID:          strconv.FormatInt(r.ID, 10),
			Symbol:      symbol,
			Side:        side,
			Price:       price,
			Amount:      amount,
			Cost:        cost,
			FeeCost:     fee,
			FeeCurrency: r.CommissionAsset,
			Timestamp:   r.Time,
		})
	}
	return out, nil
}

// FetchOpenOrders returns the resting orders for a symbol.
func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]types.Order, error) {
	client, err := a.getClient()
	if err != nil {
		return nil, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	rows, err := client.NewListOpenOrdersService().Symbol(venueSymbol(symbol)).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}

	out := make([]types.Order, 0, len(rows))
	for _, r := range rows {
		price, _ := strconv.ParseFloat(r.Price, 64)
		amount, _ := strconv.ParseFloat(r.OrigQuantity, 64)
		side := types.Sell
		if r.Side == binance.SideTypeBuy {
			side = types.Buy
		}
		out = append(out, types.Order{
			ID:     strconv.FormatInt(r.OrderID, 10),
			Symbol: symbol,
			Side:   side,
			Price:  price,
			Amount: amount,
			Status: string(r.Status),
		})
	}
	return out, nil
}

// PlaceLimit places a GTC limit order. Price and amount must already be
// rounded to venue precision.
func (a *Adapter) PlaceLimit(ctx context.Context, symbol string, side types.Side, amount, price float64) (types.Order, error) {
	client, err := a.getClient()
	if err != nil {
		return types.Order{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return types.Order{}, err
	}
	st := binance.SideTypeBuy
	if side == types.Sell {
		st = binance.SideTypeSell
	}
	resp, err := client.NewCreateOrderService().
		Symbol(venueSymbol(symbol)).
		Side(st).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(decimal.NewFromFloat(amount).String()).
		Price(decimal.NewFromFloat(price).String()).
		Do(ctx)
	if err != nil {
		return types.Order{}, classify(err)
	}
	return types.Order{
		ID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol: symbol,
		Side:   side,
		Price:  price,
		Amount: amount,
		Status: string(resp.Status),
	}, nil
}

// PlaceMarketBuyQuote market-buys spending quoteAmount of the quote asset.
func (a *Adapter) PlaceMarketBuyQuote(ctx context.Context, symbol string, quoteAmount float64) (types.Order, error) {
	client, err := a.getClient()
	if err != nil {
		return types.Order{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return types.Order{}, err
	}
	resp, err := client.NewCreateOrderService().
		Symbol(venueSymbol(symbol)).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(decimal.NewFromFloat(quoteAmount).Round(2).String()).
		Do(ctx)
	if err != nil {
		return types.Order{}, classify(err)
	}
	filled, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	return types.Order{
		ID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol: symbol,
		Side:   types.Buy,
		Amount: filled,
		Status: string(resp.Status),
	}, nil
}

// PlaceMarketSell market-sells a base-asset amount (already rounded).
func (a *Adapter) PlaceMarketSell(ctx context.Context, symbol string, amount float64) (types.Order, error) {
	client, err := a.getClient()
	if err != nil {
		return types.Order{}, err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return types.Order{}, err
	}
	resp, err := client.NewCreateOrderService().
		Symbol(venueSymbol(symbol)).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(decimal.NewFromFloat(amount).String()).
		Do(ctx)
	if err != nil {
		return types.Order{}, classify(err)
	}
	return types.Order{
		ID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol: symbol,
		Side:   types.Sell,
		Amount: amount,
		Status: string(resp.Status),
	}, nil
}

// Cancel cancels one order. An already-gone order (ErrOrderNotFound) is
// treated as success.
func (a *Adapter) Cancel(ctx context.Context, symbol, orderID string) error {
	client, err := a.getClient()
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad order id %q: %w", orderID, err)
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = client.NewCancelOrderService().
		Symbol(venueSymbol(symbol)).OrderID(id).Do(ctx)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrOrderNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// CancelAll cancels every resting order for a symbol. A venue complaint
// that nothing is open counts as success.
func (a *Adapter) CancelAll(ctx context.Context, symbol string) error {
	client, err := a.getClient()
	if err != nil {
		return err
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = client.NewCancelOpenOrdersService().Symbol(venueSymbol(symbol)).Do(ctx)
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrOrderNotFound) {
			return nil
		}
		return err
	}
	return nil
}
