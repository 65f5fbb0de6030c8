package store

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// bot_info keys. Everything here is small bookkeeping state: counters,
// session anchors and chart baselines.
const (
	keyFirstRun         = "first_run_ts"
	keyNextBuyID        = "next_buy_id"
	keySessionStart     = "session_start_ts"
	keySessionStartBal  = "session_start_balance"
	keyGlobalStartBal   = "global_start_balance"
	keyCoinInitEquity   = "coin_initial_equity"
	keyCoinSessionStart = "coin_session_anchors"
	keyLastReportDate   = "last_report_date"
)

// NextBuyID returns the next buy identifier and advances the counter.
// IDs run 1..1000 and wrap back to 1; an old trade still holding a reused id
// simply gets overwritten by the next link.
func (s *Store) NextBuyID() (int, error) {
	raw, ok, err := s.getInfo(keyNextBuyID)
	if err != nil {
		return 0, err
	}
	id := 1
	if ok {
		if parsed, perr := strconv.Atoi(raw); perr == nil && parsed >= 1 && parsed <= 1000 {
			id = parsed
		}
	}
	next := id%1000 + 1
	if err := s.setInfo(keyNextBuyID, strconv.Itoa(next)); err != nil {
		return 0, err
	}
	return id, nil
}

// FirstRun returns the Unix-ms timestamp of the very first process start.
func (s *Store) FirstRun() (int64, error) {
	raw, ok, err := s.getInfo(keyFirstRun)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("first run timestamp missing")
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse first run timestamp: %w", err)
	}
	return ts, nil
}

// SetSessionStart records the current session's launch time (Unix ms).
func (s *Store) SetSessionStart(ts int64) error {
	return s.setInfo(keySessionStart, strconv.FormatInt(ts, 10))
}

// SessionStart returns the launch time of the current session, or 0 when
// the engine has never launched.
func (s *Store) SessionStart() (int64, error) {
	raw, ok, err := s.getInfo(keySessionStart)
	if err != nil || !ok {
		return 0, err
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse session start: %w", err)
	}
	return ts, nil
}

// SetSessionStartBalance records the equity at launch (session chart zero).
func (s *Store) SetSessionStartBalance(equity float64) error {
	return s.setInfo(keySessionStartBal, strconv.FormatFloat(equity, 'f', -1, 64))
}

// SessionStartBalance returns the equity at launch.
func (s *Store) SessionStartBalance() (float64, bool, error) {
	return s.getInfoFloat(keySessionStartBal)
}

// EnsureGlobalStartBalance records the all-time equity baseline once; later
// calls leave the existing value alone.
func (s *Store) EnsureGlobalStartBalance(equity float64) error {
	if _, ok, err := s.getInfo(keyGlobalStartBal); err != nil || ok {
		return err
	}
	return s.setInfo(keyGlobalStartBal, strconv.FormatFloat(equity, 'f', -1, 64))
}

// GlobalStartBalance returns the all-time equity baseline.
func (s *Store) GlobalStartBalance() (float64, bool, error) {
	return s.getInfoFloat(keyGlobalStartBal)
}

// ResetGlobalStartBalance re-anchors the global chart to a new baseline.
func (s *Store) ResetGlobalStartBalance(equity float64) error {
	return s.setInfo(keyGlobalStartBal, strconv.FormatFloat(equity, 'f', -1, 64))
}

// AdjustStartBalances shifts both chart baselines by delta so a manual
// deposit or withdrawal does not show up as trading profit or loss.
func (s *Store) AdjustStartBalances(delta float64) error {
	for _, key := range []string{keySessionStartBal, keyGlobalStartBal} {
		raw, ok, err := s.getInfo(key)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		if err := s.setInfo(key, strconv.FormatFloat(v+delta, 'f', -1, 64)); err != nil {
			return err
		}
	}
	return nil
}

// SetCoinInitialEquity stores the per-symbol equity captured at launch.
func (s *Store) SetCoinInitialEquity(equity map[string]float64) error {
	return s.setInfoJSON(keyCoinInitEquity, equity)
}

// CoinInitialEquity returns the per-symbol launch equity map (possibly empty).
func (s *Store) CoinInitialEquity() (map[string]float64, error) {
	out := make(map[string]float64)
	err := s.getInfoJSON(keyCoinInitEquity, &out)
	return out, err
}

// SetCoinSessionAnchor re-anchors one symbol's session window, used by the
// per-coin statistics reset.
func (s *Store) SetCoinSessionAnchor(symbol string, ts int64) error {
	anchors, err := s.CoinSessionAnchors()
	if err != nil {
		return err
	}
	anchors[symbol] = ts
	return s.setInfoJSON(keyCoinSessionStart, anchors)
}

// ClearCoinSessionAnchors drops all per-symbol anchors (new session).
func (s *Store) ClearCoinSessionAnchors() error {
	return s.deleteInfo(keyCoinSessionStart)
}

// CoinSessionAnchors returns the per-symbol session anchors (possibly empty).
func (s *Store) CoinSessionAnchors() (map[string]int64, error) {
	out := make(map[string]int64)
	err := s.getInfoJSON(keyCoinSessionStart, &out)
	return out, err
}

// SetLastReportDate records the calendar date ("2006-01-02") of the last
// daily report, guarding against duplicate sends.
func (s *Store) SetLastReportDate(date string) error {
	return s.setInfo(keyLastReportDate, date)
}

// LastReportDate returns the date of the last daily report ("" when never).
func (s *Store) LastReportDate() (string, error) {
	raw, _, err := s.getInfo(keyLastReportDate)
	return raw, err
}

func (s *Store) getInfoFloat(key string) (float64, bool, error) {
	raw, ok, err := s.getInfo(key)
	if err != nil || !ok {
		return 0, false, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) setInfoJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.setInfo(key, string(data))
}

func (s *Store) getInfoJSON(key string, out any) error {
	raw, ok, err := s.getInfo(key)
	if err != nil || !ok {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}
