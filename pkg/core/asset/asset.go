// Package asset implements the AssetManager (C2): an immutable-after-load
// catalog mapping an asset id to its storage/display decimal precision.
// Grounded on the original Rust AssetManager
// (src/matchengine/asset/asset_manager.rs) and reshaped into the
// teacher's registry style (pkg/app/core/market/registry.go:
// RWMutex-guarded map, RegisterMarket/Exists/Count shape).
package asset

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Config is a single asset's configuration as loaded at startup.
type Config struct {
	ID        string
	PrecStor  int32 // canonical storage scale, used by BalanceManager
	PrecShow  int32 // UI display scale
}

// Manager is the AssetManager: immutable-after-load, append-only for
// dynamic reload (spec.md §4.2).
type Manager struct {
	mu     sync.RWMutex
	assets map[string]Config
	log    *zap.SugaredLogger
}

// New constructs a Manager from a list of configs. Fails on a duplicate
// id, matching spec.md's "fails if duplicate ids".
func New(configs []Config, log *zap.SugaredLogger) (*Manager, error) {
	m := &Manager{assets: make(map[string]Config, len(configs)), log: log}
	for _, c := range configs {
		if c.PrecShow > c.PrecStor {
			return nil, fmt.Errorf("asset %s: prec_show (%d) > prec_stor (%d)", c.ID, c.PrecShow, c.PrecStor)
		}
		if _, exists := m.assets[c.ID]; exists {
			return nil, fmt.Errorf("duplicate asset id %q in config", c.ID)
		}
		m.assets[c.ID] = c
	}
	return m, nil
}

// Append inserts new asset ids and updates existing ones in place — used
// for dynamic reload. Never removes an asset already known to the core.
func (m *Manager) Append(configs []Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range configs {
		if c.PrecShow > c.PrecStor {
			return fmt.Errorf("asset %s: prec_show (%d) > prec_stor (%d)", c.ID, c.PrecShow, c.PrecStor)
		}
		if _, exists := m.assets[c.ID]; exists {
			if m.log != nil {
				m.log.Warnw("asset config overwritten", "asset", c.ID)
			}
		} else if m.log != nil {
			m.log.Infow("asset config appended", "asset", c.ID)
		}
		m.assets[c.ID] = c
	}
	return nil
}

// Exists reports whether id is a known asset.
func (m *Manager) Exists(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.assets[id]
	return ok
}

// Get returns the full config for id.
func (m *Manager) Get(id string) (Config, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.assets[id]
	return c, ok
}

// PrecStor returns the storage scale for id, or an error if unknown.
func (m *Manager) PrecStor(id string) (int32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.assets[id]
	if !ok {
		return 0, fmt.Errorf("unknown asset %q", id)
	}
	return c.PrecStor, nil
}

// PrecShow returns the display scale for id, or an error if unknown.
func (m *Manager) PrecShow(id string) (int32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.assets[id]
	if !ok {
		return 0, fmt.Errorf("unknown asset %q", id)
	}
	return c.PrecShow, nil
}

// List returns every registered asset config, for the AssetList RPC.
func (m *Manager) List() []Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Config, 0, len(m.assets))
	for _, c := range m.assets {
		out = append(out, c)
	}
	return out
}
