// Package engine is the central orchestrator of the grid bot.
//
// It wires together all subsystems:
//
//  1. A reconciliation loop makes the venue's resting orders match each
//     symbol's desired ladder (one pass per symbol per cycle).
//  2. A collector refreshes market snapshots, mirrors open orders, ingests
//     fills and keeps the PnL backup and equity history current.
//  3. A state machine (Stopped → Running ⇄ Paused → Stopping → Stopped)
//     gates trading; the loop itself runs for the life of the process.
//  4. Config changes are picked up at cycle boundaries via the provider;
//     a testnet flip triggers a full session reset.
//
// Lifecycle: New() → Start() → Launch()/Pause()/Resume()/Stop() via the
// HTTP surface → Shutdown() on SIGINT.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gridbot/internal/config"
	"gridbot/internal/notify"
	"gridbot/internal/pnl"
	"gridbot/internal/store"
	"gridbot/pkg/types"
)

// State is the engine's trading state.
type State string

const (
	StateStopped  State = "stopped"
	StateRunning  State = "running"
	StatePaused   State = "paused"
	StateStopping State = "stopping"
)

// Venue is the slice of the exchange adapter the engine needs. The concrete
// implementation is *exchange.Adapter; tests use a fake.
type Venue interface {
	Connected() bool
	Name() string
	Testnet() bool
	Connect(name string, creds types.Credentials, testnet bool) error
	FetchTime(ctx context.Context) (int64, error)
	FetchBalance(ctx context.Context) (map[string]types.Balance, error)
	FetchTicker(ctx context.Context, symbol string) (float64, error)
	FetchTickers(ctx context.Context) (map[string]float64, error)
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]types.Candle, error)
	FetchMyTrades(ctx context.Context, symbol string, limit int) ([]types.Trade, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]types.Order, error)
	PlaceLimit(ctx context.Context, symbol string, side types.Side, amount, price float64) (types.Order, error)
	PlaceMarketBuyQuote(ctx context.Context, symbol string, quoteAmount float64) (types.Order, error)
	PlaceMarketSell(ctx context.Context, symbol string, amount float64) (types.Order, error)
	Cancel(ctx context.Context, symbol, orderID string) error
	CancelAll(ctx context.Context, symbol string) error
	PriceToPrecision(symbol string, price float64) float64
	AmountToPrecision(symbol string, amount float64) float64
	Market(symbol string) (types.MarketLimits, bool)
}

// Event is one engine occurrence pushed to the dashboard stream.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol,omitempty"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Engine owns the trading loop and all per-symbol grid state.
type Engine struct {
	provider *config.Provider
	store    *store.Store
	venue    Venue
	acct     *pnl.Accountant
	notifier notify.Notifier
	logger   *slog.Logger

	mu           sync.RWMutex
	state        State
	sessionStart time.Time
	ladders      map[string]Ladder
	reserved     map[string]float64 // base units held back for resting sells, per symbol
	processed    map[string]struct{}
	lastSymbols  []string
	lastTestnet  bool

	// collector cadence bookkeeping
	cooldownUntil  time.Time
	lastPnLBackup  time.Time
	lastEquitySnap time.Time
	lastPrune      time.Time

	events chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires an engine from its dependencies. The loop starts with Start();
// trading starts with Launch().
func New(provider *config.Provider, st *store.Store, venue Venue, notifier notify.Notifier, logger *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := provider.Current()
	return &Engine{
		provider:    provider,
		store:       st,
		venue:       venue,
		acct:        pnl.New(st),
		notifier:    notifier,
		logger:      logger.With("component", "engine"),
		state:       StateStopped,
		ladders:     make(map[string]Ladder),
		reserved:    make(map[string]float64),
		processed:   make(map[string]struct{}),
		lastSymbols: cfg.EnabledSymbols(),
		lastTestnet: cfg.System.UseTestnet,
		events:      make(chan Event, 100),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches the engine loop. The loop idles while Stopped/Paused.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()
}

// Shutdown stops the loop and waits for it. If the engine was trading, the
// session PnL backup stays in place for the next launch to archive.
func (e *Engine) Shutdown() {
	e.cancel()
	e.wg.Wait()
}

// State returns the current trading state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// SessionStart returns the launch time of the current session (zero when
// the engine has not launched).
func (e *Engine) SessionStart() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessionStart
}

// Ladders returns a copy of the current per-symbol ladders.
func (e *Engine) Ladders() map[string][]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string][]float64, len(e.ladders))
	for sym, l := range e.ladders {
		levels := make([]float64, len(l.Levels))
		copy(levels, l.Levels)
		out[sym] = levels
	}
	return out
}

// Events returns the dashboard event stream.
func (e *Engine) Events() <-chan Event {
	return e.events
}

func (e *Engine) emit(evt Event) {
	evt.Timestamp = time.Now()
	select {
	case e.events <- evt:
	default:
		// Dashboard can't keep up, drop the event.
	}
}

// Launch starts a trading session: anchors the session window, archives the
// previous session's PnL and clears per-symbol runtime state.
func (e *Engine) Launch(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	if e.state == StateStopping {
		e.mu.Unlock()
		return fmt.Errorf("engine is stopping")
	}
	e.mu.Unlock()

	if !e.venue.Connected() {
		return fmt.Errorf("no venue connected")
	}

	e.provider.CheckReload()
	cfg := e.provider.Current()

	equity, err := e.TotalEquity(ctx)
	if err != nil {
		e.logger.Warn("launch equity fetch failed", "error", err)
	} else {
		if err := e.store.SetSessionStartBalance(equity); err != nil {
			e.logger.Error("persist session start balance", "error", err)
		}
		if err := e.store.EnsureGlobalStartBalance(equity); err != nil {
			e.logger.Error("persist global start balance", "error", err)
		}
	}
	e.captureInitialSnapshots(ctx, cfg)

	// Move the previous session's results to history before the new window
	// opens; the archive is a no-op after a clean first start.
	prevStart, _ := e.store.SessionStart()
	if moved, err := e.store.ArchiveSessionStats(prevStart); err != nil {
		e.logger.Error("archive previous session", "error", err)
	} else if moved {
		e.logger.Info("previous session archived")
	}

	now := time.Now()
	if err := e.store.SetSessionStart(now.UnixMilli()); err != nil {
		e.logger.Error("persist session start", "error", err)
	}
	if err := e.store.ClearCoinSessionAnchors(); err != nil {
		e.logger.Error("clear coin anchors", "error", err)
	}

	// Start from a clean venue slate; failures are non-fatal, orphan
	// cleanup catches stragglers.
	for _, symbol := range cfg.EnabledSymbols() {
		if err := e.venue.CancelAll(ctx, symbol); err != nil {
			e.logger.Warn("launch cancel-all failed", "symbol", symbol, "error", err)
		}
	}

	e.mu.Lock()
	e.state = StateRunning
	e.sessionStart = now
	e.ladders = make(map[string]Ladder)
	e.reserved = make(map[string]float64)
	e.processed = make(map[string]struct{})
	e.lastSymbols = cfg.EnabledSymbols()
	e.lastTestnet = cfg.System.UseTestnet
	e.mu.Unlock()

	e.logger.Info("engine launched", "symbols", cfg.EnabledSymbols())
	e.emit(Event{Type: "state", Message: string(StateRunning)})
	e.notifier.Send("🚀 <b>Grid bot launched</b>")
	return nil
}

// Pause suspends reconciliation; the collector keeps running.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return fmt.Errorf("engine is %s, not running", e.state)
	}
	e.state = StatePaused
	e.logger.Info("engine paused")
	e.emit(Event{Type: "state", Message: string(StatePaused)})
	return nil
}

// Resume continues a paused session.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StatePaused {
		return fmt.Errorf("engine is %s, not paused", e.state)
	}
	e.state = StateRunning
	e.logger.Info("engine resumed")
	e.emit(Event{Type: "state", Message: string(StateRunning)})
	return nil
}

// Stop ends the trading session. Resting orders stay on the venue so the
// session can be resumed manually; PanicCancelAll removes them.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning && e.state != StatePaused {
		e.mu.Unlock()
		return fmt.Errorf("engine is %s", e.state)
	}
	e.state = StateStopping
	e.mu.Unlock()

	e.emit(Event{Type: "state", Message: string(StateStopping)})

	// Flush the session's PnL so the next launch archives current numbers,
	// not the last 30s-cadence copy.
	e.refreshPnLBackup()

	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()

	e.logger.Info("engine stopped")
	e.emit(Event{Type: "state", Message: string(StateStopped)})
	e.notifier.Send("🛑 <b>Grid bot stopped</b>")
	return nil
}

// run is the process-lifetime loop: config reload, collection and
// reconciliation at every cycle boundary. Each iteration is fully guarded;
// a panic in one cycle is logged and the next cycle proceeds.
func (e *Engine) run() {
	for {
		delay := e.provider.Current().System.CycleDelay
		select {
		case <-e.ctx.Done():
			return
		case <-time.After(delay):
		}

		e.mu.RLock()
		cooling := time.Now().Before(e.cooldownUntil)
		e.mu.RUnlock()
		if cooling {
			continue
		}

		e.safeCycle()
	}
}

func (e *Engine) safeCycle() {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("cycle panic recovered", "panic", r)
		}
	}()

	if e.provider.CheckReload() {
		e.applyReload()
	}

	if !e.venue.Connected() {
		return
	}

	cfg := e.provider.Current()
	trading := e.State() == StateRunning

	for i, symbol := range cfg.EnabledSymbols() {
		if i > 0 {
			select {
			case <-e.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}

		e.collectSymbol(e.ctx, symbol, cfg)
		if trading && e.State() == StateRunning {
			if err := e.reconcileSymbol(e.ctx, symbol, cfg); err != nil {
				e.handleCycleError(symbol, err)
			}
		}
	}

	e.collectPeriodic(e.ctx, cfg)
}
