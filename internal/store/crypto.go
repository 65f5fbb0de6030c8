package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

// Credentials at rest are AES-256-GCM sealed. The key comes from the
// GRIDBOT_MASTER_KEY environment variable (stretched with PBKDF2), or from a
// generated keyfile next to the database when no passphrase is set. Losing
// the key loses the stored credentials; nothing else in the DB depends on it.

const (
	keyFileName  = ".gridbot.key"
	pbkdf2Rounds = 100_000
)

// Fixed application salt. Credentials protect venue API keys on local disk,
// not a multi-user password database.
var keySalt = []byte("gridbot.credential.v1")

type credentialCipher struct {
	aead cipher.AEAD
}

func loadCipher(dataDir string) (*credentialCipher, error) {
	var key []byte
	if pass := os.Getenv("GRIDBOT_MASTER_KEY"); pass != "" {
		key = pbkdf2.Key([]byte(pass), keySalt, pbkdf2Rounds, 32, sha256.New)
	} else {
		var err error
		key, err = loadOrCreateKeyFile(filepath.Join(dataDir, keyFileName))
		if err != nil {
			return nil, err
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &credentialCipher{aead: aead}, nil
}

func loadOrCreateKeyFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		key, derr := base64.StdEncoding.DecodeString(string(raw))
		if derr != nil || len(key) != 32 {
			return nil, fmt.Errorf("keyfile %s is corrupt", path)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read keyfile: %w", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("write keyfile: %w", err)
	}
	return key, nil
}

// seal encrypts a secret to a base64 nonce||ciphertext blob.
func (c *credentialCipher) seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// open decrypts a blob produced by seal. The error never carries the
// ciphertext or the key.
func (c *credentialCipher) open(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("decode credential: %w", err)
	}
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("credential blob too short")
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: wrong key or corrupt data")
	}
	return string(plain), nil
}
