package api

import (
	"context"
	"time"

	"gridbot/internal/engine"
	"gridbot/internal/pnl"
	"gridbot/internal/store"
	"gridbot/pkg/types"
)

// EngineControl is the command-and-read surface the handlers need from the
// engine. Implemented by *engine.Engine.
type EngineControl interface {
	State() engine.State
	SessionStart() time.Time
	Launch(ctx context.Context) error
	Pause() error
	Resume() error
	Stop() error
	Ladders() map[string][]float64
	ManualCloseOrder(ctx context.Context, symbol, orderID string) error
	PanicCancelAll(ctx context.Context) error
	PanicSellAll(ctx context.Context) error
	TotalEquity(ctx context.Context) (float64, error)
	Events() <-chan engine.Event
}

// VenueControl is the adapter surface the handlers need. Implemented by
// *exchange.Adapter.
type VenueControl interface {
	Connected() bool
	Name() string
	Testnet() bool
	Connect(name string, creds types.Credentials, testnet bool) error
	Disconnect()
	AccountStatus(ctx context.Context) (makerBps, takerBps int64, err error)
	FetchBalance(ctx context.Context) (map[string]types.Balance, error)
}

// CommandResponse is the uniform shape of every command endpoint.
type CommandResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusResponse answers GET /api/status.
type StatusResponse struct {
	State        string     `json:"state"`
	SessionStart int64      `json:"session_start_ts"`
	Venue        string     `json:"venue"`
	Testnet      bool       `json:"testnet"`
	Equity       float64    `json:"equity"`
	Session      pnl.Report `json:"session"`
	Global       pnl.Report `json:"global"`
}

// AccountResponse answers GET /api/account.
type AccountResponse struct {
	Connected bool    `json:"connected"`
	Venue     string  `json:"venue,omitempty"`
	Testnet   bool    `json:"testnet"`
	MakerFee  float64 `json:"maker_fee,omitempty"`
	TakerFee  float64 `json:"taker_fee,omitempty"`
}

// BalanceHistoryResponse answers GET /api/balance/history.
type BalanceHistoryResponse struct {
	Global  []store.BalanceSnapshot `json:"global"`
	Session []store.BalanceSnapshot `json:"session"`
}

// PairDetailsResponse answers GET /api/pairs/:symbol.
type PairDetailsResponse struct {
	store.PairData
	RecentTrades []types.Trade `json:"recent_trades"`
	SessionPnL   float64       `json:"session_pnl"`
	GlobalPnL    float64       `json:"global_pnl"`
	RSI          *float64      `json:"rsi,omitempty"`
}

// StrategyRank is one row of GET /api/top_strategies.
type StrategyRank struct {
	Symbol        string  `json:"symbol"`
	PnL           float64 `json:"pnl"`
	InitialEquity float64 `json:"initial_equity"`
	ROI           float64 `json:"roi"`
	AnnualizedROI float64 `json:"annualized_roi"`
	Days          float64 `json:"days"`
}

// saveExchangeRequest is the body of POST /api/exchanges.
type saveExchangeRequest struct {
	Name       string `json:"name" binding:"required"`
	Type       string `json:"type" binding:"required"`
	APIKey     string `json:"api_key"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
	UseTestnet bool   `json:"use_testnet"`
}

// closeOrderRequest is the body of POST /api/orders/close.
type closeOrderRequest struct {
	Symbol  string `json:"symbol" binding:"required"`
	OrderID string `json:"order_id" binding:"required"`
}

// adjustBalanceRequest is the body of POST /api/balance/adjust. Positive
// amounts record a deposit, negative a withdrawal.
type adjustBalanceRequest struct {
	Amount float64 `json:"amount" binding:"required"`
}

// resetRequest is the body of POST /api/reset.
type resetRequest struct {
	Scope  string `json:"scope" binding:"required"`
	Symbol string `json:"symbol"`
}
