// GridBot — an automated spot grid-trading bot for centralized crypto
// exchanges.
//
// Architecture:
//
//	main.go                  — entry point: wires everything, waits for SIGINT/SIGTERM
//	engine/engine.go         — trading loop: state machine, cycle driver, event stream
//	engine/grid.go           — ladder math: level placement, trailing, funding checks
//	engine/reconcile.go      — per-symbol reconciliation against the venue's open orders
//	engine/trades.go         — fill ingestion, buy/sell linking, operator alerts
//	exchange/adapter.go      — venue adapter over the Binance spot API
//	exchange/snapshot.go     — credential-scoped equity snapshots (Binance + Bitget)
//	pnl/accountant.go        — session/global PnL marked at current prices
//	scheduler/scheduler.go   — background equity sampling for non-engine venues
//	store/store.go           — SQLite persistence: trades, snapshots, encrypted credentials
//	api/server.go            — HTTP command surface + dashboard WebSocket stream
//
// How it makes money:
//
//	The bot keeps a ladder of limit orders around the market price: buys
//	below, sells above, spaced by a fixed percentage. Each filled buy is
//	later closed by the sell one grid level up, capturing the spread
//	between the two minus fees. When the price trends up, the ladder
//	trails it so the bot keeps quoting around the action.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gridbot/internal/api"
	"gridbot/internal/config"
	"gridbot/internal/engine"
	"gridbot/internal/exchange"
	"gridbot/internal/notify"
	"gridbot/internal/scheduler"
	"gridbot/internal/store"
	"gridbot/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("GRIDBOT_CONFIG"); p != "" {
		cfgPath = p
	}

	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	provider, err := config.NewProvider(cfgPath, bootLogger)
	if err != nil {
		bootLogger.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	cfg := provider.Current()

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	st, err := store.Open(cfg.Store.DataDir, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var notifier notify.Notifier = notify.Noop{}
	if cfg.Telegram.Enabled {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.Error("telegram setup failed, notifications disabled", "error", err)
		} else {
			notifier = tg
		}
	}

	venue := exchange.New(logger)

	// Reconnect the venue that was active last run.
	if row, ok, err := st.ActiveExchange(); err != nil {
		logger.Error("read active exchange", "error", err)
	} else if ok {
		creds, err := st.ExchangeCredentials(row.Name)
		if err != nil {
			logger.Error("active exchange credentials unavailable", "venue", row.Name, "error", err)
		} else if err := venue.Connect(row.Name, creds, row.UseTestnet); err != nil {
			logger.Error("reconnect to active exchange failed", "venue", row.Name, "error", err)
		} else {
			logger.Info("reconnected to venue", "venue", row.Name, "testnet", row.UseTestnet)
		}
	}

	eng := engine.New(provider, st, venue, notifier, logger)
	eng.Start()

	sched := scheduler.New(st, engineView{eng, venue}, logger)
	sched.Start()

	hub := api.NewHub(logger)
	handlers := api.NewHandlers(eng, venue, st, provider, hub, logger)
	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	server := api.NewServer(addr, cfg.Web.Token, handlers, hub, logger)
	server.Start()

	logger.Info("gridbot started",
		"pairs", len(cfg.EnabledSymbols()),
		"cycle_delay", cfg.System.CycleDelay,
		"dashboard", fmt.Sprintf("http://%s", addr),
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("failed to stop http server", "error", err)
	}
	sched.Stop()
	eng.Shutdown()
}

// engineView adapts the engine and venue for the scheduler's skip logic.
type engineView struct {
	eng   *engine.Engine
	venue *exchange.Adapter
}

func (v engineView) Running() bool {
	return v.eng.State() == engine.StateRunning
}

func (v engineView) OwnedVenue() string {
	if !v.venue.Connected() {
		return ""
	}
	return types.VenueKey(v.venue.Name(), v.venue.Testnet())
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
