package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gridbot/internal/config"
	"gridbot/internal/engine"
	"gridbot/internal/pnl"
	"gridbot/internal/store"
	"gridbot/pkg/types"
)

// Handlers holds every HTTP endpoint's dependencies.
type Handlers struct {
	engine   EngineControl
	venue    VenueControl
	store    *store.Store
	acct     *pnl.Accountant
	provider *config.Provider
	hub      *Hub
	logger   *slog.Logger

	equityCache  ttlCache[float64]
	balanceCache ttlCache[map[string]types.Balance]
}

// NewHandlers wires the handler set.
func NewHandlers(eng EngineControl, venue VenueControl, st *store.Store, provider *config.Provider, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		engine:   eng,
		venue:    venue,
		store:    st,
		acct:     pnl.New(st),
		provider: provider,
		hub:      hub,
		logger:   logger.With("component", "api"),
	}
}

func ok(c *gin.Context, message string) {
	c.JSON(http.StatusOK, CommandResponse{Status: "ok", Message: message})
}

func fail(c *gin.Context, code int, err error) {
	c.JSON(code, CommandResponse{Status: "error", Message: err.Error()})
}

// ————————————————————————————————————————————————————————————————————————
// Read endpoints
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UnixMilli()})
}

func (h *Handlers) Account(c *gin.Context) {
	resp := AccountResponse{Connected: h.venue.Connected()}
	if !resp.Connected {
		c.JSON(http.StatusOK, resp)
		return
	}
	resp.Venue = h.venue.Name()
	resp.Testnet = h.venue.Testnet()

	ctx, cancel := contextWithVenueTimeout(c)
	defer cancel()
	if maker, taker, err := h.venue.AccountStatus(ctx); err == nil {
		resp.MakerFee = float64(maker) / 10000
		resp.TakerFee = float64(taker) / 10000
	}
	c.JSON(http.StatusOK, resp)
}

// Status reports engine state plus session and global PnL. The session
// window runs from the engine launch; the global window from first run.
func (h *Handlers) Status(c *gin.Context) {
	sessionStart := h.sessionStartMs()
	prices, err := h.store.AllPrices()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}

	session, err := h.acct.Session(sessionStart, prices)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	global, err := h.acct.Global(sessionStart, prices)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}

	equity, _ := h.equityCache.get(c.Request.Context(), h.engine.TotalEquity)

	c.JSON(http.StatusOK, StatusResponse{
		State:        string(h.engine.State()),
		SessionStart: sessionStart,
		Venue:        h.venue.Name(),
		Testnet:      h.venue.Testnet(),
		Equity:       equity,
		Session:      session,
		Global:       global,
	})
}

func (h *Handlers) sessionStartMs() int64 {
	if start := h.engine.SessionStart(); !start.IsZero() {
		return start.UnixMilli()
	}
	start, err := h.store.SessionStart()
	if err != nil {
		h.logger.Error("read session start", "error", err)
	}
	return start
}

// BalanceHistory returns the global equity series and the slice since
// session start, optionally filtered to one venue key.
func (h *Handlers) BalanceHistory(c *gin.Context) {
	exchangeKey := c.Query("exchange")
	global, err := h.store.BalanceHistory(0, exchangeKey)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	session, err := h.store.BalanceHistory(h.sessionStartMs(), exchangeKey)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, BalanceHistoryResponse{Global: global, Session: session})
}

// Grids returns the engine's in-memory ladders per symbol.
func (h *Handlers) Grids(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Ladders())
}

func (h *Handlers) Orders(c *gin.Context) {
	orders, err := h.store.AllActiveOrders()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

// PairDetails assembles everything the dashboard shows for one symbol.
// Wildcard route: symbols carry a slash ("BTC/USDC").
func (h *Handlers) PairDetails(c *gin.Context) {
	symbol := strings.TrimPrefix(c.Param("symbol"), "/")
	pd, err := h.store.GetPairData(symbol)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}

	trades, err := h.store.RecentTrades(symbol, 50)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}

	prices := map[string]float64{symbol: pd.Price}
	sessionStart := h.sessionStartMs()
	session, _ := h.acct.Session(sessionStart, prices)
	global, _ := h.acct.Global(sessionStart, prices)

	resp := PairDetailsResponse{PairData: pd, RecentTrades: trades}
	for _, coin := range session.Coins {
		if coin.Symbol == symbol {
			resp.SessionPnL = coin.PnL
		}
	}
	for _, coin := range global.Coins {
		if coin.Symbol == symbol {
			resp.GlobalPnL = coin.PnL
		}
	}
	if v, ok := engine.RSI(pd.Candles, 14); ok {
		resp.RSI = &v
	}
	c.JSON(http.StatusOK, resp)
}

// TopStrategies ranks symbols by annualized return on their launch equity.
func (h *Handlers) TopStrategies(c *gin.Context) {
	prices, err := h.store.AllPrices()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	global, err := h.acct.Global(h.sessionStartMs(), prices)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	initial, err := h.store.CoinInitialEquity()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	allStats, err := h.store.Stats(0)
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}

	now := time.Now().UnixMilli()
	var ranks []StrategyRank
	for _, coin := range global.Coins {
		init := initial[coin.Symbol]
		if init <= 0 {
			continue
		}
		days := 0.0
		if st, ok := allStats[coin.Symbol]; ok && st.FirstTS > 0 {
			days = float64(now-st.FirstTS) / float64(24*time.Hour.Milliseconds())
		}
		roi := coin.PnL / init
		annualized := 0.0
		if days > 0 {
			annualized = roi * 365 / days
		}
		ranks = append(ranks, StrategyRank{
			Symbol:        coin.Symbol,
			PnL:           coin.PnL,
			InitialEquity: init,
			ROI:           roi,
			AnnualizedROI: annualized,
			Days:          days,
		})
	}
	sort.Slice(ranks, func(i, j int) bool {
		return ranks[i].AnnualizedROI > ranks[j].AnnualizedROI
	})
	c.JSON(http.StatusOK, ranks)
}

// GetConfig returns the raw configuration file text.
func (h *Handlers) GetConfig(c *gin.Context) {
	data, err := os.ReadFile(h.provider.Path())
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}

// SetConfig validates and writes new configuration text; the engine picks
// it up at the next cycle boundary via the mtime watch.
func (h *Handlers) SetConfig(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	// Validate in a scratch file before touching the live one.
	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("gridbot-cfg-%d.yaml", time.Now().UnixNano()))
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	defer os.Remove(tmp)
	cfg, err := config.Load(tmp)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fail(c, http.StatusBadRequest, fmt.Errorf("invalid config: %w", err))
		return
	}

	if err := os.WriteFile(h.provider.Path(), body, 0o644); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, "configuration saved, applies next cycle")
}

// ————————————————————————————————————————————————————————————————————————
// Engine commands
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) EngineStart(c *gin.Context) {
	if err := h.engine.Launch(c.Request.Context()); err != nil {
		fail(c, http.StatusConflict, err)
		return
	}
	ok(c, "engine launched")
}

func (h *Handlers) EngineStop(c *gin.Context) {
	if err := h.engine.Stop(); err != nil {
		fail(c, http.StatusConflict, err)
		return
	}
	ok(c, "engine stopped")
}

func (h *Handlers) EnginePause(c *gin.Context) {
	if err := h.engine.Pause(); err != nil {
		fail(c, http.StatusConflict, err)
		return
	}
	ok(c, "engine paused")
}

func (h *Handlers) EngineResume(c *gin.Context) {
	if err := h.engine.Resume(); err != nil {
		fail(c, http.StatusConflict, err)
		return
	}
	ok(c, "engine resumed")
}

func (h *Handlers) PanicCancelAll(c *gin.Context) {
	if err := h.engine.PanicCancelAll(c.Request.Context()); err != nil {
		fail(c, http.StatusBadGateway, err)
		return
	}
	ok(c, "all orders cancelled")
}

func (h *Handlers) PanicSellAll(c *gin.Context) {
	if err := h.engine.PanicSellAll(c.Request.Context()); err != nil {
		fail(c, http.StatusBadGateway, err)
		return
	}
	ok(c, "all positions liquidated")
}

func (h *Handlers) CloseOrder(c *gin.Context) {
	var req closeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.engine.ManualCloseOrder(c.Request.Context(), req.Symbol, req.OrderID); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	ok(c, fmt.Sprintf("order %s closed", req.OrderID))
}

// ————————————————————————————————————————————————————————————————————————
// Balance commands
// ————————————————————————————————————————————————————————————————————————

// SnapshotBalance samples equity immediately.
func (h *Handlers) SnapshotBalance(c *gin.Context) {
	if !h.venue.Connected() {
		fail(c, http.StatusConflict, fmt.Errorf("no venue connected"))
		return
	}
	ctx, cancel := contextWithVenueTimeout(c)
	defer cancel()
	equity, err := h.engine.TotalEquity(ctx)
	if err != nil {
		fail(c, http.StatusBadGateway, err)
		return
	}
	key := types.VenueKey(h.venue.Name(), h.venue.Testnet())
	if _, err := h.store.LogBalanceSnapshot(key, equity, time.Now()); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, fmt.Sprintf("equity %.2f recorded", equity))
}

// AdjustBalance shifts the chart baselines after a manual deposit or
// withdrawal so the move does not read as trading PnL.
func (h *Handlers) AdjustBalance(c *gin.Context) {
	var req adjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.store.AdjustStartBalances(req.Amount); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, fmt.Sprintf("baselines adjusted by %+.2f", req.Amount))
}

// Reset dispatches the statistics-reset scopes.
func (h *Handlers) Reset(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	var err error
	switch req.Scope {
	case "full":
		err = h.store.ResetAllStatistics()
	case "chart_global":
		if err = h.store.ClearBalanceHistory(""); err == nil {
			if equity, eerr := h.engine.TotalEquity(c.Request.Context()); eerr == nil {
				err = h.store.ResetGlobalStartBalance(equity)
			}
		}
	case "chart_session":
		if equity, eerr := h.engine.TotalEquity(c.Request.Context()); eerr == nil {
			err = h.store.SetSessionStartBalance(equity)
		} else {
			err = eerr
		}
	case "pnl_global":
		err = h.store.ResetGlobalPnL()
	case "coin_session":
		if req.Symbol == "" {
			fail(c, http.StatusBadRequest, fmt.Errorf("scope coin_session requires symbol"))
			return
		}
		err = h.store.SetCoinSessionAnchor(req.Symbol, time.Now().UnixMilli())
	case "coin_global":
		if req.Symbol == "" {
			fail(c, http.StatusBadRequest, fmt.Errorf("scope coin_global requires symbol"))
			return
		}
		err = h.store.ResetPnLForSymbol(req.Symbol)
	default:
		fail(c, http.StatusBadRequest, fmt.Errorf("unknown reset scope %q", req.Scope))
		return
	}
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, fmt.Sprintf("reset %s done", req.Scope))
}

// ————————————————————————————————————————————————————————————————————————
// Venue credential CRUD
// ————————————————————————————————————————————————————————————————————————

func (h *Handlers) ListExchanges(c *gin.Context) {
	rows, err := h.store.Exchanges()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (h *Handlers) SaveExchange(c *gin.Context) {
	var req saveExchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	venueType := types.VenueType(req.Type)
	if venueType != types.VenueBinance && venueType != types.VenueBitget {
		fail(c, http.StatusBadRequest, fmt.Errorf("unknown venue type %q", req.Type))
		return
	}
	creds := types.Credentials{APIKey: req.APIKey, Secret: req.Secret, Passphrase: req.Passphrase}
	if err := h.store.SaveExchange(req.Name, venueType, creds, req.UseTestnet); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, fmt.Sprintf("exchange %s saved", req.Name))
}

func (h *Handlers) DeleteExchange(c *gin.Context) {
	name := c.Param("name")
	if h.venue.Connected() && h.venue.Name() == name {
		fail(c, http.StatusConflict, fmt.Errorf("exchange %s is connected", name))
		return
	}
	if err := h.store.DeleteExchange(name); err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	ok(c, fmt.Sprintf("exchange %s deleted", name))
}

// ConnectExchange decrypts stored credentials and attaches the adapter.
func (h *Handlers) ConnectExchange(c *gin.Context) {
	name := c.Param("name")
	if h.engine.State() == engine.StateRunning {
		fail(c, http.StatusConflict, fmt.Errorf("stop the engine before switching venues"))
		return
	}

	creds, err := h.store.ExchangeCredentials(name)
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	rows, err := h.store.Exchanges()
	if err != nil {
		fail(c, http.StatusInternalServerError, err)
		return
	}
	var row *store.ExchangeRow
	for i := range rows {
		if rows[i].Name == name {
			row = &rows[i]
			break
		}
	}
	if row == nil {
		fail(c, http.StatusNotFound, fmt.Errorf("exchange %q not found", name))
		return
	}

	if err := h.venue.Connect(name, creds, row.UseTestnet); err != nil {
		fail(c, http.StatusBadGateway, err)
		return
	}
	if err := h.store.SetActiveExchange(name); err != nil {
		h.logger.Error("mark active exchange", "error", err)
	}
	ok(c, fmt.Sprintf("connected to %s", name))
}

func (h *Handlers) DisconnectExchange(c *gin.Context) {
	if h.engine.State() == engine.StateRunning {
		fail(c, http.StatusConflict, fmt.Errorf("stop the engine before disconnecting"))
		return
	}
	h.venue.Disconnect()
	ok(c, "disconnected")
}

// WebSocket upgrades to the dashboard event stream.
func (h *Handlers) WebSocket(c *gin.Context) {
	h.hub.serve(c.Writer, c.Request)
}

// contextWithVenueTimeout bounds a handler's venue call.
func contextWithVenueTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), venueCallTimeout)
}

// Balance returns the connected venue's per-asset balances through the
// last-known-good cache.
func (h *Handlers) Balance(c *gin.Context) {
	if !h.venue.Connected() {
		fail(c, http.StatusConflict, fmt.Errorf("no venue connected"))
		return
	}
	balances, err := h.balanceCache.get(c.Request.Context(), h.venue.FetchBalance)
	if err != nil {
		fail(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, balances)
}
