package store

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"gridbot/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveTradesIdempotent(t *testing.T) {
	s := openTestStore(t)

	trades := []types.Trade{
		{ID: "t1", Symbol: "BTC/USDC", Side: types.Buy, Price: 60000, Amount: 0.001, Cost: 60, FeeCost: 0.06, FeeCurrency: "USDC", Timestamp: 1000},
		{ID: "t2", Symbol: "BTC/USDC", Side: types.Sell, Price: 60600, Amount: 0.001, Cost: 60.6, FeeCost: 0.06, FeeCurrency: "USDC", Timestamp: 2000},
	}

	n, err := s.SaveTrades(trades)
	if err != nil {
		t.Fatalf("SaveTrades: %v", err)
	}
	if n != 2 {
		t.Errorf("first save inserted %d, want 2", n)
	}

	// Re-reading the same my-trades page must not duplicate rows.
	n, err = s.SaveTrades(trades)
	if err != nil {
		t.Fatalf("SaveTrades repeat: %v", err)
	}
	if n != 0 {
		t.Errorf("repeat save inserted %d, want 0", n)
	}

	stats, err := s.Stats(0)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if got := stats["BTC/USDC"].Trades; got != 2 {
		t.Errorf("trade count = %d, want 2", got)
	}
}

func TestSaveTradesNormalizesBaseFee(t *testing.T) {
	s := openTestStore(t)

	// Fee charged in BTC must be valued at the fill price.
	_, err := s.SaveTrades([]types.Trade{{
		ID: "t1", Symbol: "BTC/USDC", Side: types.Buy,
		Price: 50000, Amount: 0.002, Cost: 100,
		FeeCost: 0.000001, FeeCurrency: "BTC", Timestamp: 1000,
	}})
	if err != nil {
		t.Fatalf("SaveTrades: %v", err)
	}

	tr, ok, err := s.TradeByID("t1")
	if err != nil || !ok {
		t.Fatalf("TradeByID: ok=%v err=%v", ok, err)
	}
	want := 0.000001 * 50000
	if diff := tr.FeeCost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("normalized fee = %v, want %v", tr.FeeCost, want)
	}
}

func TestStatsCashFlowAndQtyDelta(t *testing.T) {
	s := openTestStore(t)

	_, err := s.SaveTrades([]types.Trade{
		{ID: "b1", Symbol: "ETH/USDC", Side: types.Buy, Price: 3000, Amount: 0.01, Cost: 30, FeeCost: 0.03, FeeCurrency: "USDC", Timestamp: 1000},
		{ID: "s1", Symbol: "ETH/USDC", Side: types.Sell, Price: 3030, Amount: 0.005, Cost: 15.15, FeeCost: 0.015, FeeCurrency: "USDC", Timestamp: 2000},
	})
	if err != nil {
		t.Fatalf("SaveTrades: %v", err)
	}

	stats, err := s.Stats(0)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	st := stats["ETH/USDC"]
	wantCash := -30 - 0.03 + 15.15 - 0.015
	if diff := st.CashFlow - wantCash; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("cash flow = %v, want %v", st.CashFlow, wantCash)
	}
	wantQty := 0.01 - 0.005
	if diff := st.QtyDelta - wantQty; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("qty delta = %v, want %v", st.QtyDelta, wantQty)
	}

	// A later window excludes the buy.
	stats, err = s.Stats(1500)
	if err != nil {
		t.Fatalf("Stats from 1500: %v", err)
	}
	if got := stats["ETH/USDC"].Trades; got != 1 {
		t.Errorf("windowed trade count = %d, want 1", got)
	}
}

func TestNextBuyIDWraps(t *testing.T) {
	s := openTestStore(t)

	id, err := s.NextBuyID()
	if err != nil {
		t.Fatalf("NextBuyID: %v", err)
	}
	if id != 1 {
		t.Fatalf("first id = %d, want 1", id)
	}
	id, _ = s.NextBuyID()
	if id != 2 {
		t.Fatalf("second id = %d, want 2", id)
	}

	// Jump the counter to the top of the range and watch it wrap.
	if err := s.setInfo(keyNextBuyID, "1000"); err != nil {
		t.Fatal(err)
	}
	id, _ = s.NextBuyID()
	if id != 1000 {
		t.Fatalf("id at top = %d, want 1000", id)
	}
	id, _ = s.NextBuyID()
	if id != 1 {
		t.Fatalf("wrapped id = %d, want 1", id)
	}
}

func TestFindLinkedBuyID(t *testing.T) {
	s := openTestStore(t)

	buyID := 7
	_, err := s.SaveTrades([]types.Trade{
		{ID: "b1", Symbol: "BTC/USDC", Side: types.Buy, Price: 60000, Amount: 0.001, Cost: 60, Timestamp: 1000, BuyID: &buyID},
		{ID: "b2", Symbol: "BTC/USDC", Side: types.Buy, Price: 50000, Amount: 0.001, Cost: 50, Timestamp: 500},
	})
	if err != nil {
		t.Fatalf("SaveTrades: %v", err)
	}

	// Sell at one 1% grid step above 60000: implied entry 60000, match b1.
	id, ok, err := s.FindLinkedBuyID("BTC/USDC", 60600, 1.0)
	if err != nil {
		t.Fatalf("FindLinkedBuyID: %v", err)
	}
	if !ok || id != 7 {
		t.Errorf("linked buy = %d ok=%v, want 7 true", id, ok)
	}

	// A sell far from any buy matches nothing.
	_, ok, err = s.FindLinkedBuyID("BTC/USDC", 90000, 1.0)
	if err != nil {
		t.Fatalf("FindLinkedBuyID: %v", err)
	}
	if ok {
		t.Error("expected no linked buy for out-of-band sell")
	}
}

func TestBalanceSnapshotDedup(t *testing.T) {
	s := openTestStore(t)
	base := time.Now()

	wrote, err := s.LogBalanceSnapshot("binance", 1000.00, base)
	if err != nil || !wrote {
		t.Fatalf("first snapshot: wrote=%v err=%v", wrote, err)
	}

	// Too soon and unchanged: dropped.
	wrote, _ = s.LogBalanceSnapshot("binance", 1000.005, base.Add(20*time.Second))
	if wrote {
		t.Error("near-duplicate within 50s was written")
	}
	// Too soon but a real move: kept.
	wrote, _ = s.LogBalanceSnapshot("binance", 1003.00, base.Add(20*time.Second))
	if !wrote {
		t.Error("significant move within 50s was dropped")
	}
	// Old enough, even if unchanged: kept.
	wrote, _ = s.LogBalanceSnapshot("binance", 1003.00, base.Add(80*time.Second))
	if !wrote {
		t.Error("snapshot after 50s was dropped")
	}
	// Different venue key never dedups against another venue.
	wrote, _ = s.LogBalanceSnapshot("binance-testnet", 1003.00, base.Add(81*time.Second))
	if !wrote {
		t.Error("other venue snapshot was dropped")
	}
}

func TestArchiveSessionStats(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdatePnLBackup([]PnLRow{
		{Symbol: "BTC/USDC", PnL: 12.5, Trades: 4},
		{Symbol: "ETH/USDC", PnL: 0, Trades: 0}, // dead row: not archived
	})
	if err != nil {
		t.Fatalf("UpdatePnLBackup: %v", err)
	}

	moved, err := s.ArchiveSessionStats(time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("ArchiveSessionStats: %v", err)
	}
	if !moved {
		t.Error("archive reported nothing moved")
	}

	acc, err := s.AccumulatedPnL()
	if err != nil {
		t.Fatalf("AccumulatedPnL: %v", err)
	}
	if got := acc["BTC/USDC"].PnL; got != 12.5 {
		t.Errorf("archived pnl = %v, want 12.5", got)
	}
	if _, ok := acc["ETH/USDC"]; ok {
		t.Error("zero row was archived")
	}

	// Backup must be empty afterwards; a second archive moves nothing.
	rows, err := s.PnLBackup()
	if err != nil {
		t.Fatalf("PnLBackup: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("backup still has %d rows after archive", len(rows))
	}
	moved, err = s.ArchiveSessionStats(time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}
	if moved {
		t.Error("second archive reported rows moved")
	}
}

func TestAdjustStartBalances(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetSessionStartBalance(1000); err != nil {
		t.Fatal(err)
	}
	if err := s.EnsureGlobalStartBalance(900); err != nil {
		t.Fatal(err)
	}
	// Ensure does not overwrite.
	if err := s.EnsureGlobalStartBalance(500); err != nil {
		t.Fatal(err)
	}

	if err := s.AdjustStartBalances(250); err != nil {
		t.Fatalf("AdjustStartBalances: %v", err)
	}
	sess, _, _ := s.SessionStartBalance()
	glob, _, _ := s.GlobalStartBalance()
	if sess != 1250 {
		t.Errorf("session start = %v, want 1250", sess)
	}
	if glob != 1150 {
		t.Errorf("global start = %v, want 1150", glob)
	}
}

func TestGridStatusPreservesSetupDone(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetSetupDone("BTC/USDC", true); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateGridStatus("BTC/USDC", []float64{100, 101, 102}); err != nil {
		t.Fatal(err)
	}

	levels, done, err := s.GridStatus("BTC/USDC")
	if err != nil {
		t.Fatalf("GridStatus: %v", err)
	}
	if !done {
		t.Error("setup_done lost after grid update")
	}
	if len(levels) != 3 {
		t.Errorf("levels = %v", levels)
	}
}

func TestExchangeCredentialRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := types.Credentials{APIKey: "key-123", Secret: "sec-456", Passphrase: "pass"}
	if err := s.SaveExchange("binance", types.VenueBinance, in, true); err != nil {
		t.Fatalf("SaveExchange: %v", err)
	}

	out, err := s.ExchangeCredentials("binance")
	if err != nil {
		t.Fatalf("ExchangeCredentials: %v", err)
	}
	if out != in {
		t.Errorf("credentials round trip: got %+v", out)
	}

	// The listing carries no secret material.
	list, err := s.Exchanges()
	if err != nil {
		t.Fatalf("Exchanges: %v", err)
	}
	if len(list) != 1 || list[0].Name != "binance" || !list[0].UseTestnet {
		t.Errorf("exchange list = %+v", list)
	}

	if err := s.SetActiveExchange("binance"); err != nil {
		t.Fatalf("SetActiveExchange: %v", err)
	}
	active, ok, err := s.ActiveExchange()
	if err != nil || !ok {
		t.Fatalf("ActiveExchange: ok=%v err=%v", ok, err)
	}
	if active.Name != "binance" {
		t.Errorf("active = %+v", active)
	}
}

func TestResetAllStatisticsKeepsCredentialsAndFirstRun(t *testing.T) {
	s := openTestStore(t)

	firstRun, err := s.FirstRun()
	if err != nil {
		t.Fatalf("FirstRun: %v", err)
	}
	if err := s.SaveExchange("binance", types.VenueBinance, types.Credentials{APIKey: "k", Secret: "s"}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveTrades([]types.Trade{{ID: "t1", Symbol: "BTC/USDC", Side: types.Buy, Price: 1, Amount: 1, Cost: 1, Timestamp: 1}}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetSessionStartBalance(500); err != nil {
		t.Fatal(err)
	}

	if err := s.ResetAllStatistics(); err != nil {
		t.Fatalf("ResetAllStatistics: %v", err)
	}

	stats, _ := s.Stats(0)
	if len(stats) != 0 {
		t.Error("trades survived full reset")
	}
	if _, ok, _ := s.SessionStartBalance(); ok {
		t.Error("session start balance survived full reset")
	}
	if got, err := s.FirstRun(); err != nil || got != firstRun {
		t.Errorf("first run changed: %d -> %d (%v)", firstRun, got, err)
	}
	if _, err := s.ExchangeCredentials("binance"); err != nil {
		t.Errorf("credentials lost in full reset: %v", err)
	}
}

func TestPruneOldData(t *testing.T) {
	s := openTestStore(t)

	old := time.Now().AddDate(0, 0, -40).UnixMilli()
	recent := time.Now().UnixMilli()
	_, err := s.SaveTrades([]types.Trade{
		{ID: "old", Symbol: "BTC/USDC", Side: types.Buy, Price: 1, Amount: 1, Cost: 1, Timestamp: old},
		{ID: "new", Symbol: "BTC/USDC", Side: types.Buy, Price: 1, Amount: 1, Cost: 1, Timestamp: recent},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := s.PruneOldData(30); err != nil {
		t.Fatalf("PruneOldData: %v", err)
	}
	if _, ok, _ := s.TradeByID("old"); ok {
		t.Error("40-day-old trade survived a 30-day prune")
	}
	if _, ok, _ := s.TradeByID("new"); !ok {
		t.Error("recent trade was pruned")
	}
}
