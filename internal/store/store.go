// Package store persists all bot state in one embedded SQLite database.
//
// The file lives at <data_dir>/gridbot.db in WAL mode with a 30s busy
// timeout. A single *sql.DB pool is shared by the engine, the scheduler and
// the HTTP surface; SQLite serializes the writes. Venue credentials are the
// only encrypted rows (AES-256-GCM, see crypto.go).
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite handle and the credential cipher.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	cipher *credentialCipher
}

// Open creates the data directory if needed, opens (or creates) the
// database, applies pragmas and the schema, and loads the credential key.
func Open(dataDir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	path := filepath.Join(dataDir, "gridbot.db")
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(30000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc.org/sqlite is safest with one writer connection.
	db.SetMaxOpenConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	cipher, err := loadCipher(dataDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load credential key: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.With("component", "store"),
		cipher: cipher,
	}
	if err := s.ensureFirstRun(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func applySchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS market_data (
	symbol      TEXT PRIMARY KEY,
	price       REAL NOT NULL DEFAULT 0,
	candles     TEXT NOT NULL DEFAULT '[]',
	open_orders TEXT NOT NULL DEFAULT '[]',
	updated_at  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS grid_status (
	symbol     TEXT PRIMARY KEY,
	levels     TEXT NOT NULL DEFAULT '[]',
	setup_done INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trade_history (
	trade_id     TEXT PRIMARY KEY,
	symbol       TEXT NOT NULL,
	side         TEXT NOT NULL,
	price        REAL NOT NULL,
	amount       REAL NOT NULL,
	cost         REAL NOT NULL,
	fee          REAL NOT NULL DEFAULT 0,
	timestamp    INTEGER NOT NULL,
	buy_id       INTEGER
);
CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trade_history(symbol, timestamp);

CREATE TABLE IF NOT EXISTS balance_history (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp INTEGER NOT NULL,
	equity    REAL NOT NULL,
	exchange  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_balance_exchange_ts ON balance_history(exchange, timestamp);

CREATE TABLE IF NOT EXISTS bot_info (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pnl_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	symbol     TEXT NOT NULL,
	pnl        REAL NOT NULL,
	trades     INTEGER NOT NULL DEFAULT 0,
	session_ts INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pnl_backup (
	symbol     TEXT PRIMARY KEY,
	pnl        REAL NOT NULL DEFAULT 0,
	trades     INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS exchanges (
	name        TEXT PRIMARY KEY,
	type        TEXT NOT NULL,
	api_key     TEXT NOT NULL,
	secret      TEXT NOT NULL,
	passphrase  TEXT NOT NULL DEFAULT '',
	use_testnet INTEGER NOT NULL DEFAULT 0,
	is_active   INTEGER NOT NULL DEFAULT 0
);
`
	_, err := db.Exec(schema)
	return err
}

// ensureFirstRun records the first process start so global statistics have a
// fixed origin.
func (s *Store) ensureFirstRun() error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO bot_info(key, value) VALUES('first_run_ts', ?)`,
		fmt.Sprint(time.Now().UnixMilli()),
	)
	if err != nil {
		return fmt.Errorf("record first run: %w", err)
	}
	return nil
}

// getInfo reads one bot_info value; ok is false when the key is absent.
func (s *Store) getInfo(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM bot_info WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read bot_info %q: %w", key, err)
	}
	return v, true, nil
}

func (s *Store) setInfo(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO bot_info(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("write bot_info %q: %w", key, err)
	}
	return nil
}

func (s *Store) deleteInfo(key string) error {
	_, err := s.db.Exec(`DELETE FROM bot_info WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete bot_info %q: %w", key, err)
	}
	return nil
}
