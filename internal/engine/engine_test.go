package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"gridbot/internal/config"
	"gridbot/internal/store"
	"gridbot/pkg/types"
)

// fakeVenue is an in-memory Venue for reconciliation tests.
type fakeVenue struct {
	mu       sync.Mutex
	prices   map[string]float64
	balances map[string]types.Balance
	orders   []types.Order
	trades   []types.Trade
	limits   types.MarketLimits
	nextID   int

	marketBuys  []float64 // quote amounts
	marketSells []float64
	cancelled   []string
	connects    []bool // testnet flag of each Connect call
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		prices:   map[string]float64{},
		balances: map[string]types.Balance{},
		limits:   types.MarketLimits{MinAmount: 0.0001, MinNotional: 5},
	}
}

func (f *fakeVenue) Connected() bool { return true }
func (f *fakeVenue) Name() string    { return "binance" }
func (f *fakeVenue) Testnet() bool   { return false }

func (f *fakeVenue) Connect(_ string, _ types.Credentials, testnet bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, testnet)
	return nil
}

func (f *fakeVenue) FetchTime(context.Context) (int64, error) {
	return time.Now().UnixMilli(), nil
}

func (f *fakeVenue) FetchBalance(context.Context) (map[string]types.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]types.Balance, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeVenue) FetchTicker(_ context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prices[symbol], nil
}

func (f *fakeVenue) FetchTickers(context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]float64, len(f.prices))
	for sym, p := range f.prices {
		out[types.BaseAsset(sym)+types.QuoteAsset(sym)] = p
	}
	return out, nil
}

func (f *fakeVenue) FetchCandles(context.Context, string, string, int) ([]types.Candle, error) {
	return nil, nil
}

func (f *fakeVenue) FetchMyTrades(_ context.Context, symbol string, _ int) ([]types.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Trade(nil), f.trades...), nil
}

func (f *fakeVenue) FetchOpenOrders(_ context.Context, symbol string) ([]types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Order
	for _, o := range f.orders {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeVenue) PlaceLimit(_ context.Context, symbol string, side types.Side, amount, price float64) (types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	o := types.Order{
		ID:     strconv.Itoa(f.nextID),
		Symbol: symbol,
		Side:   side,
		Price:  price,
		Amount: amount,
		Status: "NEW",
	}
	f.orders = append(f.orders, o)
	return o, nil
}

func (f *fakeVenue) PlaceMarketBuyQuote(_ context.Context, symbol string, quoteAmount float64) (types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketBuys = append(f.marketBuys, quoteAmount)
	return types.Order{Status: "FILLED"}, nil
}

func (f *fakeVenue) PlaceMarketSell(_ context.Context, symbol string, amount float64) (types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketSells = append(f.marketSells, amount)
	return types.Order{Status: "FILLED"}, nil
}

func (f *fakeVenue) Cancel(_ context.Context, _ string, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	for i, o := range f.orders {
		if o.ID == orderID {
			f.orders = append(f.orders[:i], f.orders[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeVenue) CancelAll(_ context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []types.Order
	for _, o := range f.orders {
		if o.Symbol != symbol {
			kept = append(kept, o)
		}
	}
	f.orders = kept
	return nil
}

func (f *fakeVenue) PriceToPrecision(_ string, price float64) float64 {
	return math.Round(price*100) / 100
}

func (f *fakeVenue) AmountToPrecision(_ string, amount float64) float64 {
	return math.Trunc(amount*1e5) / 1e5
}

func (f *fakeVenue) Market(string) (types.MarketLimits, bool) {
	return f.limits, true
}

func (f *fakeVenue) openCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.orders {
		if o.Symbol == symbol {
			n++
		}
	}
	return n
}

// recordingNotifier collects sent texts.
type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingNotifier) Send(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.texts)
}

const testConfigYAML = `
system:
  cycle_delay: 1s
  days_keep: 30
default_strategy:
  grids_quantity: 4
  grid_spread: 1.0
  amount_per_grid: 20
  start_mode: %s
  trailing_enabled: true
pairs:
  - symbol: BTC/USDC
    enabled: true
`

func newTestEngine(t *testing.T, startMode string) (*Engine, *fakeVenue, *recordingNotifier) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf(testConfigYAML, startMode)), 0o644); err != nil {
		t.Fatal(err)
	}
	provider, err := config.NewProvider(cfgPath, logger)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}

	st, err := store.Open(filepath.Join(dir, "data"), logger)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	venue := newFakeVenue()
	venue.prices["BTC/USDC"] = 100.0
	venue.balances["USDC"] = types.Balance{Free: 1000, Total: 1000}
	venue.balances["BTC"] = types.Balance{Free: 1, Total: 1}

	notifier := &recordingNotifier{}
	e := New(provider, st, venue, notifier, logger)
	t.Cleanup(e.Shutdown)
	return e, venue, notifier
}

func TestStateMachine(t *testing.T) {
	e, _, _ := newTestEngine(t, "wait")
	ctx := context.Background()

	if e.State() != StateStopped {
		t.Fatalf("initial state = %s", e.State())
	}
	if err := e.Pause(); err == nil {
		t.Error("paused a stopped engine")
	}

	if err := e.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if e.State() != StateRunning {
		t.Fatalf("state after launch = %s", e.State())
	}
	if err := e.Launch(ctx); err == nil {
		t.Error("double launch succeeded")
	}

	if err := e.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if e.State() != StatePaused {
		t.Fatalf("state after pause = %s", e.State())
	}
	if err := e.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if e.State() != StateRunning {
		t.Fatalf("state after resume = %s", e.State())
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if e.State() != StateStopped {
		t.Fatalf("state after stop = %s", e.State())
	}
}

func TestLaunchAnchorsSession(t *testing.T) {
	e, _, notifier := newTestEngine(t, "wait")

	if err := e.Launch(context.Background()); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if e.SessionStart().IsZero() {
		t.Error("session start not set")
	}
	if notifier.count() == 0 {
		t.Error("launch sent no notification")
	}

	// Equity anchors were persisted.
	if _, ok, _ := e.store.SessionStartBalance(); !ok {
		t.Error("session start balance not persisted")
	}
	if _, ok, _ := e.store.GlobalStartBalance(); !ok {
		t.Error("global start balance not persisted")
	}
}

func TestFirstTimeSetupStartModes(t *testing.T) {
	tests := []struct {
		mode     string
		wantBuys []float64
	}{
		{"wait", nil},
		{"buy_1", []float64{20}},
		{"buy_2", []float64{40}},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			e, venue, _ := newTestEngine(t, tt.mode)
			cfg := e.provider.Current()

			if err := e.reconcileSymbol(context.Background(), "BTC/USDC", cfg); err != nil {
				t.Fatalf("reconcile: %v", err)
			}
			if len(venue.marketBuys) != len(tt.wantBuys) {
				t.Fatalf("market buys = %v, want %v", venue.marketBuys, tt.wantBuys)
			}
			for i := range tt.wantBuys {
				if venue.marketBuys[i] != tt.wantBuys[i] {
					t.Errorf("buy[%d] = %v, want %v", i, venue.marketBuys[i], tt.wantBuys[i])
				}
			}
			if _, done, _ := e.store.GridStatus("BTC/USDC"); !done {
				t.Error("setup_done not flagged")
			}
			// Setup always returns early: no limit orders yet.
			if venue.openCount("BTC/USDC") != 0 {
				t.Error("limit orders placed during first-time setup")
			}
		})
	}
}

func TestDustGuardSeedsInventory(t *testing.T) {
	e, venue, _ := newTestEngine(t, "wait")
	cfg := e.provider.Current()

	if err := e.store.SetSetupDone("BTC/USDC", true); err != nil {
		t.Fatal(err)
	}
	// Base worth 100·0.0001 = 0.01 quote: dust.
	venue.balances["BTC"] = types.Balance{Free: 0.0001, Total: 0.0001}

	if err := e.reconcileSymbol(context.Background(), "BTC/USDC", cfg); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(venue.marketBuys) != 1 || venue.marketBuys[0] != 20 {
		t.Errorf("dust seed buys = %v, want [20]", venue.marketBuys)
	}
	if venue.openCount("BTC/USDC") != 0 {
		t.Error("placement ran in the same cycle as the dust seed")
	}
}

func TestReconcilePlacesFullLadder(t *testing.T) {
	e, venue, _ := newTestEngine(t, "wait")
	cfg := e.provider.Current()
	if err := e.store.SetSetupDone("BTC/USDC", true); err != nil {
		t.Fatal(err)
	}

	if err := e.reconcileSymbol(context.Background(), "BTC/USDC", cfg); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// Price 100, n=4, s=1%: ladder [98, 99, 101, 102], all outside the
	// ±0.10 band: two buys below, two sells above.
	if got := venue.openCount("BTC/USDC"); got != 4 {
		t.Fatalf("open orders = %d, want 4", got)
	}
	buys, sells := 0, 0
	for _, o := range venue.orders {
		if o.Side == types.Buy {
			buys++
			if o.Price >= 100 {
				t.Errorf("buy above price: %v", o.Price)
			}
		} else {
			sells++
			if o.Price <= 100 {
				t.Errorf("sell below price: %v", o.Price)
			}
		}
	}
	if buys != 2 || sells != 2 {
		t.Errorf("buys=%d sells=%d, want 2/2", buys, sells)
	}

	// Idempotence: a second pass with unchanged state places nothing new.
	if err := e.reconcileSymbol(context.Background(), "BTC/USDC", cfg); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if got := venue.openCount("BTC/USDC"); got != 4 {
		t.Errorf("open orders after second pass = %d, want 4", got)
	}
}

func TestReconcileCancelsOrphans(t *testing.T) {
	e, venue, _ := newTestEngine(t, "wait")
	cfg := e.provider.Current()
	if err := e.store.SetSetupDone("BTC/USDC", true); err != nil {
		t.Fatal(err)
	}

	// A stale order far from any ladder level.
	venue.orders = append(venue.orders, types.Order{
		ID: "stale", Symbol: "BTC/USDC", Side: types.Buy, Price: 90.0, Amount: 0.2,
	})

	if err := e.reconcileSymbol(context.Background(), "BTC/USDC", cfg); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	for _, id := range venue.cancelled {
		if id == "stale" {
			return
		}
	}
	t.Error("orphan order was not cancelled")
}

func TestReconcileTrailsUp(t *testing.T) {
	e, venue, _ := newTestEngine(t, "wait")
	cfg := e.provider.Current()
	if err := e.store.SetSetupDone("BTC/USDC", true); err != nil {
		t.Fatal(err)
	}

	// First pass at 100 materializes [98,99,101,102] and places orders.
	if err := e.reconcileSymbol(context.Background(), "BTC/USDC", cfg); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	// Price breaks above 102·1.002.
	venue.mu.Lock()
	venue.prices["BTC/USDC"] = 102.21
	venue.mu.Unlock()

	if err := e.reconcileSymbol(context.Background(), "BTC/USDC", cfg); err != nil {
		t.Fatalf("trailing reconcile: %v", err)
	}

	ladder := e.Ladders()["BTC/USDC"]
	want := []float64{99, 101, 102, 103.02}
	if len(ladder) != len(want) {
		t.Fatalf("ladder = %v, want %v", ladder, want)
	}
	for i := range want {
		if ladder[i] != want[i] {
			t.Fatalf("ladder = %v, want %v", ladder, want)
		}
	}

	// The order resting at the dropped 98 level is gone.
	for _, o := range venue.orders {
		if o.Price == 98.0 {
			t.Error("order at dropped level survived trailing")
		}
	}
}

func TestAntiWashSkipsSellsBelowFloor(t *testing.T) {
	e, venue, _ := newTestEngine(t, "wait")
	cfg := e.provider.Current()
	if err := e.store.SetSetupDone("BTC/USDC", true); err != nil {
		t.Fatal(err)
	}

	// Last buy at 101.00: anti-wash floor 101·1.005 = 101.505. The 101
	// sell level falls below it and must be skipped; 102 stays.
	if _, err := e.store.SaveTrades([]types.Trade{{
		ID: "b1", Symbol: "BTC/USDC", Side: types.Buy,
		Price: 101.0, Amount: 0.2, Cost: 20.2, Timestamp: time.Now().UnixMilli(),
	}}); err != nil {
		t.Fatal(err)
	}

	if err := e.reconcileSymbol(context.Background(), "BTC/USDC", cfg); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	for _, o := range venue.orders {
		if o.Side == types.Sell && o.Price == 101.0 {
			t.Error("sell below the anti-wash floor was placed")
		}
	}
	foundTop := false
	for _, o := range venue.orders {
		if o.Side == types.Sell && o.Price == 102.0 {
			foundTop = true
		}
	}
	if !foundTop {
		t.Error("sell above the anti-wash floor was not placed")
	}
}

func TestIngestTradesLinksAndAlerts(t *testing.T) {
	e, _, notifier := newTestEngine(t, "wait")
	strat := e.provider.Current().StrategyFor("BTC/USDC")

	e.mu.Lock()
	e.sessionStart = time.Now().Add(-time.Hour)
	e.mu.Unlock()
	now := time.Now().UnixMilli()

	buy := types.Trade{
		ID: "b1", Symbol: "BTC/USDC", Side: types.Buy,
		Price: 100.0, Amount: 0.2, Cost: 20, FeeCost: 0.02, FeeCurrency: "USDC",
		Timestamp: now,
	}
	e.ingestTrades("BTC/USDC", []types.Trade{buy}, strat)

	stored, ok, err := e.store.TradeByID("b1")
	if err != nil || !ok {
		t.Fatalf("buy not persisted: ok=%v err=%v", ok, err)
	}
	if stored.BuyID == nil || *stored.BuyID < 1 || *stored.BuyID > 1000 {
		t.Fatalf("buy id = %v, want 1..1000", stored.BuyID)
	}

	// The matching sell one grid step up links back to the buy.
	sell := types.Trade{
		ID: "s1", Symbol: "BTC/USDC", Side: types.Sell,
		Price: 101.0, Amount: 0.2, Cost: 20.2, FeeCost: 0.02, FeeCurrency: "USDC",
		Timestamp: now + 1000,
	}
	e.ingestTrades("BTC/USDC", []types.Trade{sell}, strat)

	storedSell, ok, err := e.store.TradeByID("s1")
	if err != nil || !ok {
		t.Fatalf("sell not persisted: ok=%v err=%v", ok, err)
	}
	if storedSell.BuyID == nil || *storedSell.BuyID != *stored.BuyID {
		t.Errorf("sell link = %v, want %v", storedSell.BuyID, stored.BuyID)
	}

	if notifier.count() != 2 {
		t.Errorf("alerts = %d, want 2", notifier.count())
	}

	// Re-ingestion is a no-op: processed set catches the ids.
	e.ingestTrades("BTC/USDC", []types.Trade{buy, sell}, strat)
	if notifier.count() != 2 {
		t.Errorf("duplicate ingestion re-alerted: %d", notifier.count())
	}
}

func TestIngestSkipsPreSessionTrades(t *testing.T) {
	e, _, notifier := newTestEngine(t, "wait")
	strat := e.provider.Current().StrategyFor("BTC/USDC")

	e.mu.Lock()
	e.sessionStart = time.Now()
	e.mu.Unlock()

	old := types.Trade{
		ID: "old1", Symbol: "BTC/USDC", Side: types.Buy,
		Price: 90, Amount: 0.1, Cost: 9,
		Timestamp: time.Now().Add(-time.Hour).UnixMilli(),
	}
	e.ingestTrades("BTC/USDC", []types.Trade{old}, strat)

	// Persisted for the ledger, but no alert for a pre-session fill.
	if _, ok, _ := e.store.TradeByID("old1"); !ok {
		t.Error("pre-session trade not persisted")
	}
	if notifier.count() != 0 {
		t.Errorf("pre-session trade alerted: %d messages", notifier.count())
	}
}

func TestStopFlushesPnLBackup(t *testing.T) {
	e, _, _ := newTestEngine(t, "wait")
	ctx := context.Background()

	if err := e.Launch(ctx); err != nil {
		t.Fatalf("Launch: %v", err)
	}

	// A round trip inside the session window, price known to the store.
	now := time.Now().UnixMilli() + 10
	if _, err := e.store.SaveTrades([]types.Trade{
		{ID: "b1", Symbol: "BTC/USDC", Side: types.Buy,
			Price: 100, Amount: 0.2, Cost: 20, FeeCost: 0.02, FeeCurrency: "USDC", Timestamp: now},
		{ID: "s1", Symbol: "BTC/USDC", Side: types.Sell,
			Price: 101, Amount: 0.2, Cost: 20.2, FeeCost: 0.02, FeeCurrency: "USDC", Timestamp: now + 1},
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.store.UpdateMarketSnapshot("BTC/USDC", 100, nil, nil); err != nil {
		t.Fatal(err)
	}

	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	rows, err := e.store.PnLBackup()
	if err != nil {
		t.Fatalf("PnLBackup: %v", err)
	}
	if len(rows) != 1 || rows[0].Symbol != "BTC/USDC" {
		t.Fatalf("backup rows = %+v, want one BTC/USDC row", rows)
	}
	if rows[0].Trades != 2 {
		t.Errorf("backup trades = %d, want 2", rows[0].Trades)
	}
	if rows[0].PnL <= 0 {
		t.Errorf("backup pnl = %v, want the round trip's profit", rows[0].PnL)
	}
}

const testnetConfigYAML = `
system:
  use_testnet: true
  cycle_delay: 1s
  days_keep: 30
default_strategy:
  grids_quantity: 4
  grid_spread: 1.0
  amount_per_grid: 20
  start_mode: wait
  trailing_enabled: true
pairs:
  - symbol: BTC/USDC
    enabled: true
`

func TestReloadTestnetFlipReconnects(t *testing.T) {
	e, venue, _ := newTestEngine(t, "wait")

	if err := e.store.SaveExchange("binance", types.VenueBinance,
		types.Credentials{APIKey: "k", Secret: "s"}, false); err != nil {
		t.Fatal(err)
	}

	path := e.provider.Path()
	if err := os.WriteFile(path, []byte(testnetConfigYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
	if !e.provider.CheckReload() {
		t.Fatal("provider did not pick up the config change")
	}

	e.applyReload()

	venue.mu.Lock()
	connects := append([]bool(nil), venue.connects...)
	venue.mu.Unlock()
	if len(connects) != 1 || !connects[0] {
		t.Fatalf("connects = %v, want one testnet reconnect", connects)
	}
	if e.SessionStart().IsZero() {
		t.Error("session not re-anchored after testnet flip")
	}
}

func TestIngestWithoutLaunchDoesNotAlert(t *testing.T) {
	e, _, notifier := newTestEngine(t, "wait")
	strat := e.provider.Current().StrategyFor("BTC/USDC")

	// No Launch: the collector sees only history.
	fill := types.Trade{
		ID: "h1", Symbol: "BTC/USDC", Side: types.Buy,
		Price: 100, Amount: 0.2, Cost: 20, FeeCost: 0.02, FeeCurrency: "USDC",
		Timestamp: time.Now().UnixMilli(),
	}
	e.ingestTrades("BTC/USDC", []types.Trade{fill}, strat)

	if _, ok, _ := e.store.TradeByID("h1"); !ok {
		t.Error("historical fill not persisted")
	}
	if notifier.count() != 0 {
		t.Errorf("stopped engine alerted %d fills", notifier.count())
	}
	rows, err := e.store.PnLBackup()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("stopped engine wrote pnl backup: %+v", rows)
	}
}

func TestManualCloseOrder(t *testing.T) {
	e, venue, _ := newTestEngine(t, "wait")

	venue.orders = []types.Order{
		{ID: "o1", Symbol: "BTC/USDC", Side: types.Buy, Price: 99, Amount: 0.2},
		{ID: "o2", Symbol: "BTC/USDC", Side: types.Sell, Price: 101, Amount: 0.2},
	}

	// Closing a buy only cancels.
	if err := e.ManualCloseOrder(context.Background(), "BTC/USDC", "o1"); err != nil {
		t.Fatalf("close buy: %v", err)
	}
	if len(venue.marketSells) != 0 {
		t.Error("closing a buy market-sold")
	}

	// Closing a sell cancels then market-sells the amount.
	if err := e.ManualCloseOrder(context.Background(), "BTC/USDC", "o2"); err != nil {
		t.Fatalf("close sell: %v", err)
	}
	if len(venue.marketSells) != 1 || venue.marketSells[0] != 0.2 {
		t.Errorf("market sells = %v, want [0.2]", venue.marketSells)
	}

	if err := e.ManualCloseOrder(context.Background(), "BTC/USDC", "nope"); err == nil {
		t.Error("closing an unknown order succeeded")
	}
}

func TestRSI(t *testing.T) {
	t.Parallel()

	// Monotonic rise: RSI pegs at 100.
	var up []types.Candle
	for i := 0; i < 20; i++ {
		up = append(up, types.Candle{Close: 100 + float64(i)})
	}
	v, ok := RSI(up, 14)
	if !ok || v != 100 {
		t.Errorf("rising RSI = %v,%v want 100,true", v, ok)
	}

	// Monotonic fall: RSI near 0.
	var down []types.Candle
	for i := 0; i < 20; i++ {
		down = append(down, types.Candle{Close: 100 - float64(i)})
	}
	v, ok = RSI(down, 14)
	if !ok || v > 1 {
		t.Errorf("falling RSI = %v,%v want ~0,true", v, ok)
	}

	// Not enough candles.
	if _, ok := RSI(up[:10], 14); ok {
		t.Error("RSI computed with insufficient candles")
	}
}
