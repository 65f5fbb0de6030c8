package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"gridbot/pkg/types"
)

// PairData is the stored dashboard view of one symbol.
type PairData struct {
	Symbol     string         `json:"symbol"`
	Price      float64        `json:"price"`
	Candles    []types.Candle `json:"candles"`
	OpenOrders []types.Order  `json:"open_orders"`
	GridLevels []float64      `json:"grid_levels"`
	SetupDone  bool           `json:"setup_done"`
	UpdatedAt  int64          `json:"updated_at"`
}

// UpdateMarketSnapshot overwrites the cached market view for one symbol:
// last price, recent candles and the open-order mirror.
func (s *Store) UpdateMarketSnapshot(symbol string, price float64, candles []types.Candle, orders []types.Order) error {
	candleJSON, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("marshal candles: %w", err)
	}
	orderJSON, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("marshal orders: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO market_data(symbol, price, candles, open_orders, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			price = excluded.price,
			candles = excluded.candles,
			open_orders = excluded.open_orders,
			updated_at = excluded.updated_at`,
		symbol, price, string(candleJSON), string(orderJSON), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update market snapshot: %w", err)
	}
	return nil
}

// GetPairData assembles the stored view of one symbol: market snapshot plus
// grid status. Missing rows come back zero-valued, not as errors.
func (s *Store) GetPairData(symbol string) (PairData, error) {
	pd := PairData{Symbol: symbol}

	var candleJSON, orderJSON string
	err := s.db.QueryRow(`
		SELECT price, candles, open_orders, updated_at
		FROM market_data WHERE symbol = ?`, symbol).
		Scan(&pd.Price, &candleJSON, &orderJSON, &pd.UpdatedAt)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return pd, fmt.Errorf("read market data: %w", err)
	default:
		if err := json.Unmarshal([]byte(candleJSON), &pd.Candles); err != nil {
			return pd, fmt.Errorf("unmarshal candles: %w", err)
		}
		if err := json.Unmarshal([]byte(orderJSON), &pd.OpenOrders); err != nil {
			return pd, fmt.Errorf("unmarshal orders: %w", err)
		}
	}

	levels, setupDone, err := s.GridStatus(symbol)
	if err != nil {
		return pd, err
	}
	pd.GridLevels = levels
	pd.SetupDone = setupDone
	return pd, nil
}

// UpdateGridStatus overwrites a symbol's ladder levels. The setup_done flag
// is preserved across updates.
func (s *Store) UpdateGridStatus(symbol string, levels []float64) error {
	data, err := json.Marshal(levels)
	if err != nil {
		return fmt.Errorf("marshal grid levels: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO grid_status(symbol, levels, setup_done, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			levels = excluded.levels,
			updated_at = excluded.updated_at`,
		symbol, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("update grid status: %w", err)
	}
	return nil
}

// GridStatus returns a symbol's stored ladder and setup flag. A symbol with
// no row returns an empty ladder.
func (s *Store) GridStatus(symbol string) ([]float64, bool, error) {
	var data string
	var setupDone int
	err := s.db.QueryRow(`
		SELECT levels, setup_done FROM grid_status WHERE symbol = ?`, symbol).
		Scan(&data, &setupDone)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read grid status: %w", err)
	}

	var levels []float64
	if err := json.Unmarshal([]byte(data), &levels); err != nil {
		return nil, false, fmt.Errorf("unmarshal grid levels: %w", err)
	}
	return levels, setupDone != 0, nil
}

// SetSetupDone flags that a symbol's first-time start sequence completed.
func (s *Store) SetSetupDone(symbol string, done bool) error {
	v := 0
	if done {
		v = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO grid_status(symbol, levels, setup_done, updated_at)
		VALUES (?, '[]', ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			setup_done = excluded.setup_done,
			updated_at = excluded.updated_at`,
		symbol, v, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set setup done: %w", err)
	}
	return nil
}

// DropGrid removes a symbol's ladder row entirely (pair removed from config).
func (s *Store) DropGrid(symbol string) error {
	_, err := s.db.Exec(`DELETE FROM grid_status WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("drop grid: %w", err)
	}
	return nil
}

// AllPrices returns the cached last price per symbol.
func (s *Store) AllPrices() (map[string]float64, error) {
	rows, err := s.db.Query(`SELECT symbol, price FROM market_data`)
	if err != nil {
		return nil, fmt.Errorf("all prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var symbol string
		var price float64
		if err := rows.Scan(&symbol, &price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out[symbol] = price
	}
	return out, rows.Err()
}

// AllActiveOrders returns the cached open-order mirror across all symbols.
func (s *Store) AllActiveOrders() (map[string][]types.Order, error) {
	rows, err := s.db.Query(`SELECT symbol, open_orders FROM market_data`)
	if err != nil {
		return nil, fmt.Errorf("all active orders: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]types.Order)
	for rows.Next() {
		var symbol, data string
		if err := rows.Scan(&symbol, &data); err != nil {
			return nil, fmt.Errorf("scan orders: %w", err)
		}
		var orders []types.Order
		if err := json.Unmarshal([]byte(data), &orders); err != nil {
			return nil, fmt.Errorf("unmarshal orders for %s: %w", symbol, err)
		}
		if len(orders) > 0 {
			out[symbol] = orders
		}
	}
	return out, rows.Err()
}

// AllStoredGrids returns the stored ladder per symbol.
func (s *Store) AllStoredGrids() (map[string][]float64, error) {
	rows, err := s.db.Query(`SELECT symbol, levels FROM grid_status`)
	if err != nil {
		return nil, fmt.Errorf("all grids: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float64)
	for rows.Next() {
		var symbol, data string
		if err := rows.Scan(&symbol, &data); err != nil {
			return nil, fmt.Errorf("scan grid: %w", err)
		}
		var levels []float64
		if err := json.Unmarshal([]byte(data), &levels); err != nil {
			return nil, fmt.Errorf("unmarshal grid for %s: %w", symbol, err)
		}
		out[symbol] = levels
	}
	return out, rows.Err()
}
