package config

import (
	"log/slog"
	"os"
	"sync"
	"time"
)

// Provider serves the current configuration and re-parses the file when its
// mtime advances. A parse failure keeps the last good config; callers never
// see a half-applied configuration.
type Provider struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Config
	mtime   time.Time
}

// NewProvider loads the initial config and remembers the file mtime.
func NewProvider(path string, logger *slog.Logger) (*Provider, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		path:    path,
		logger:  logger.With("component", "config"),
		current: cfg,
	}
	if fi, err := os.Stat(path); err == nil {
		p.mtime = fi.ModTime()
	}
	return p, nil
}

// Current returns the active configuration.
func (p *Provider) Current() *Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// CheckReload re-parses the file if its mtime changed since the last load.
// Returns true when a new config was applied. Invalid files are logged and
// ignored so the engine keeps running on the last good config.
func (p *Provider) CheckReload() bool {
	fi, err := os.Stat(p.path)
	if err != nil {
		return false
	}

	p.mu.RLock()
	unchanged := !fi.ModTime().After(p.mtime)
	p.mu.RUnlock()
	if unchanged {
		return false
	}

	cfg, err := Load(p.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		p.logger.Error("config reload failed, keeping last good config", "error", err)
		p.mu.Lock()
		p.mtime = fi.ModTime() // don't re-parse a broken file every cycle
		p.mu.Unlock()
		return false
	}

	p.mu.Lock()
	p.current = cfg
	p.mtime = fi.ModTime()
	p.mu.Unlock()
	p.logger.Info("configuration reloaded", "path", p.path)
	return true
}

// Path returns the watched file path.
func (p *Provider) Path() string { return p.path }
