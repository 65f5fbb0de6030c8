package store

import (
	"database/sql"
	"fmt"

	"gridbot/pkg/types"
)

// ExchangeRow describes one configured venue without any secret material.
type ExchangeRow struct {
	Name       string          `json:"name"`
	Type       types.VenueType `json:"type"`
	UseTestnet bool            `json:"use_testnet"`
	IsActive   bool            `json:"is_active"`
}

// SaveExchange upserts a venue's credentials, encrypting the key material
// at rest. An empty secret on update keeps the stored one (so the dashboard
// can edit flags without re-entering keys).
func (s *Store) SaveExchange(name string, venue types.VenueType, creds types.Credentials, useTestnet bool) error {
	if creds.Secret == "" {
		existing, err := s.ExchangeCredentials(name)
		if err == nil {
			if creds.APIKey == "" {
				creds.APIKey = existing.APIKey
			}
			creds.Secret = existing.Secret
			if creds.Passphrase == "" {
				creds.Passphrase = existing.Passphrase
			}
		}
	}

	apiKey, err := s.cipher.seal(creds.APIKey)
	if err != nil {
		return fmt.Errorf("encrypt api key: %w", err)
	}
	secret, err := s.cipher.seal(creds.Secret)
	if err != nil {
		return fmt.Errorf("encrypt secret: %w", err)
	}
	passphrase, err := s.cipher.seal(creds.Passphrase)
	if err != nil {
		return fmt.Errorf("encrypt passphrase: %w", err)
	}

	testnet := 0
	if useTestnet {
		testnet = 1
	}
	_, err = s.db.Exec(`
		INSERT INTO exchanges(name, type, api_key, secret, passphrase, use_testnet, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT(name) DO UPDATE SET
			type = excluded.type,
			api_key = excluded.api_key,
			secret = excluded.secret,
			passphrase = excluded.passphrase,
			use_testnet = excluded.use_testnet`,
		name, string(venue), apiKey, secret, passphrase, testnet)
	if err != nil {
		return fmt.Errorf("save exchange %s: %w", name, err)
	}
	return nil
}

// Exchanges lists configured venues; secrets never leave the store here.
func (s *Store) Exchanges() ([]ExchangeRow, error) {
	rows, err := s.db.Query(`
		SELECT name, type, use_testnet, is_active FROM exchanges ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list exchanges: %w", err)
	}
	defer rows.Close()

	var out []ExchangeRow
	for rows.Next() {
		var row ExchangeRow
		var venue string
		var testnet, active int
		if err := rows.Scan(&row.Name, &venue, &testnet, &active); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		row.Type = types.VenueType(venue)
		row.UseTestnet = testnet != 0
		row.IsActive = active != 0
		out = append(out, row)
	}
	return out, rows.Err()
}

// ExchangeCredentials decrypts one venue's key material. Decryption failure
// is surfaced as-is (wrong master key); the ciphertext is never included.
func (s *Store) ExchangeCredentials(name string) (types.Credentials, error) {
	var apiKey, secret, passphrase string
	err := s.db.QueryRow(`
		SELECT api_key, secret, passphrase FROM exchanges WHERE name = ?`, name).
		Scan(&apiKey, &secret, &passphrase)
	if err == sql.ErrNoRows {
		return types.Credentials{}, fmt.Errorf("exchange %q not found", name)
	}
	if err != nil {
		return types.Credentials{}, fmt.Errorf("read exchange %s: %w", name, err)
	}

	var creds types.Credentials
	if creds.APIKey, err = s.cipher.open(apiKey); err != nil {
		return types.Credentials{}, fmt.Errorf("exchange %s: %w", name, err)
	}
	if creds.Secret, err = s.cipher.open(secret); err != nil {
		return types.Credentials{}, fmt.Errorf("exchange %s: %w", name, err)
	}
	if creds.Passphrase, err = s.cipher.open(passphrase); err != nil {
		return types.Credentials{}, fmt.Errorf("exchange %s: %w", name, err)
	}
	return creds, nil
}

// SetActiveExchange marks one venue active and clears the flag elsewhere.
func (s *Store) SetActiveExchange(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin set active: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`UPDATE exchanges SET is_active = 0`); err != nil {
		return fmt.Errorf("clear active flags: %w", err)
	}
	res, err := tx.Exec(`UPDATE exchanges SET is_active = 1 WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("set active %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("exchange %q not found", name)
	}
	return tx.Commit()
}

// ActiveExchange returns the venue marked active, or false when none is.
func (s *Store) ActiveExchange() (ExchangeRow, bool, error) {
	var row ExchangeRow
	var venue string
	var testnet int
	err := s.db.QueryRow(`
		SELECT name, type, use_testnet FROM exchanges WHERE is_active = 1 LIMIT 1`).
		Scan(&row.Name, &venue, &testnet)
	if err == sql.ErrNoRows {
		return ExchangeRow{}, false, nil
	}
	if err != nil {
		return ExchangeRow{}, false, fmt.Errorf("active exchange: %w", err)
	}
	row.Type = types.VenueType(venue)
	row.UseTestnet = testnet != 0
	row.IsActive = true
	return row, true, nil
}

// DeleteExchange removes a venue and its credentials.
func (s *Store) DeleteExchange(name string) error {
	_, err := s.db.Exec(`DELETE FROM exchanges WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete exchange %s: %w", name, err)
	}
	return nil
}
