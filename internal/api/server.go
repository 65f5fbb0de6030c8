// Package api exposes the bot's HTTP command surface and the dashboard
// WebSocket stream.
package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Server owns the HTTP listener and the event-fanout goroutine.
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	hub        *Hub
	logger     *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewServer assembles the router. token, when non-empty, gates every
// /api route behind a bearer check.
func NewServer(addr, token string, h *Handlers, hub *Hub, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.Health)
	router.GET("/ws", h.WebSocket)

	api := router.Group("/api")
	if token != "" {
		api.Use(bearerAuth(token))
	}

	api.GET("/account", h.Account)
	api.GET("/status", h.Status)
	api.GET("/balance", h.Balance)
	api.GET("/balance/history", h.BalanceHistory)
	api.GET("/orders", h.Orders)
	api.GET("/grids", h.Grids)
	api.GET("/pairs/*symbol", h.PairDetails)
	api.GET("/top_strategies", h.TopStrategies)
	api.GET("/config", h.GetConfig)
	api.POST("/config", h.SetConfig)

	api.POST("/engine/start", h.EngineStart)
	api.POST("/engine/stop", h.EngineStop)
	api.POST("/engine/pause", h.EnginePause)
	api.POST("/engine/resume", h.EngineResume)
	api.POST("/panic/cancel_all", h.PanicCancelAll)
	api.POST("/panic/sell_all", h.PanicSellAll)
	api.POST("/orders/close", h.CloseOrder)

	api.POST("/balance/snapshot", h.SnapshotBalance)
	api.POST("/balance/adjust", h.AdjustBalance)
	api.POST("/reset", h.Reset)

	api.GET("/exchanges", h.ListExchanges)
	api.POST("/exchanges", h.SaveExchange)
	api.DELETE("/exchanges/:name", h.DeleteExchange)
	api.POST("/exchanges/:name/connect", h.ConnectExchange)
	api.POST("/exchanges/disconnect", h.DisconnectExchange)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		handlers: h,
		hub:      hub,
		logger:   logger.With("component", "api-server"),
	}
}

// bearerAuth rejects requests missing the configured token.
func bearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				CommandResponse{Status: "error", Message: "unauthorized"})
			return
		}
		c.Next()
	}
}

// Start launches the hub, the engine-event consumer and the listener.
// The listener error (other than graceful close) is logged, not returned:
// a dead API does not take down the trading loop.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.consumeEvents(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
}

// consumeEvents pipes engine events into the WebSocket hub.
func (s *Server) consumeEvents(ctx context.Context) {
	events := s.handlers.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(evt)
		}
	}
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		err = fmt.Errorf("shutdown http server: %w", err)
	}
	// hub.Run has no stop channel; it exits with the process.
	return err
}
