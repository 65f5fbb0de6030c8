// Package scheduler samples equity for every configured venue on a fixed
// cadence, independent of the engine's state.
//
// The engine's own collector covers the venue it trades on; this scheduler
// covers everything else (and the active venue too while the engine is not
// running), so balance charts stay continuous across engine restarts. A
// failed sample carries the last known equity forward instead of leaving a
// gap.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gridbot/internal/exchange"
	"gridbot/internal/store"
	"gridbot/pkg/types"
)

const (
	tickInterval     = 60 * time.Second
	inactiveInterval = 180 * time.Second
	snapshotTimeout  = 15 * time.Second
)

// EngineView is the slice of engine state the scheduler consults to avoid
// double-writing the venue the engine already samples.
type EngineView interface {
	Running() bool
	OwnedVenue() string // composite key "name[-testnet]", "" when none
}

// Scheduler drives the background snapshot loop.
type Scheduler struct {
	store  *store.Store
	engine EngineView
	logger *slog.Logger

	mu       sync.Mutex
	lastSlow map[string]time.Time // per-venue last 180s-path sample

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a scheduler over the store and an engine view.
func New(st *store.Store, engine EngineView, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		engine:   engine,
		logger:   logger.With("component", "scheduler"),
		lastSlow: make(map[string]time.Time),
	}
}

// Start launches the loop; Stop ends it.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// tick samples each configured venue. The engine-owned venue is skipped
// entirely (the collector writes it); active venues sample every tick,
// non-active ones only on the slower cadence.
func (s *Scheduler) tick(ctx context.Context) {
	venues, err := s.store.Exchanges()
	if err != nil {
		s.logger.Error("list venues", "error", err)
		return
	}
	owned := ""
	if s.engine.Running() {
		owned = s.engine.OwnedVenue()
	}

	now := time.Now()
	for _, v := range venues {
		key := types.VenueKey(v.Name, v.UseTestnet)
		if key == owned {
			continue
		}
		if !v.IsActive {
			s.mu.Lock()
			due := now.Sub(s.lastSlow[key]) >= inactiveInterval
			if due {
				s.lastSlow[key] = now
			}
			s.mu.Unlock()
			if !due {
				continue
			}
		}
		s.sample(ctx, v, key)
	}
}

func (s *Scheduler) sample(ctx context.Context, v store.ExchangeRow, key string) {
	creds, err := s.store.ExchangeCredentials(v.Name)
	if err != nil {
		s.logger.Warn("venue credentials unavailable", "venue", v.Name, "error", err)
		return
	}

	snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	equity, err := exchange.SnapshotEquity(snapCtx, v.Type, creds, v.UseTestnet)
	if err != nil {
		// Carry the last known equity forward so charts stay continuous.
		last, ok, lerr := s.store.LastBalanceSnapshot(key)
		if lerr != nil || !ok {
			s.logger.Warn("snapshot failed with no history to carry forward",
				"venue", key, "error", err)
			return
		}
		equity = last.Equity
		s.logger.Debug("snapshot failed, carrying forward",
			"venue", key, "equity", equity, "error", err)
	}

	if _, err := s.store.LogBalanceSnapshot(key, equity, time.Now()); err != nil {
		s.logger.Error("write snapshot", "venue", key, "error", err)
	}
}
