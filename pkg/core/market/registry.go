package market

import (
	"fmt"
	"sync"
)

// Registry holds every market the engine currently trades, keyed by
// name (e.g. "ETH_USDT"). Grounded on the teacher's MarketRegistry
// (pkg/app/core/market/registry.go), trimmed to what a single-authority
// spot core needs: markets are never paused/settled mid-run here,
// unlike the teacher's margin-market lifecycle — trading status is out
// of scope for the CLOB core (an external admin surface owns listing).
type Registry struct {
	mu      sync.RWMutex
	markets map[string]*Market
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{markets: make(map[string]*Market)}
}

// Register adds a market, failing if the name is already registered.
func (r *Registry) Register(m *Market) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.markets[m.Name()]; exists {
		return fmt.Errorf("market %s already registered", m.Name())
	}
	r.markets[m.Name()] = m
	return nil
}

// Get retrieves a market by name.
func (r *Registry) Get(name string) (*Market, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[name]
	return m, ok
}

// List returns every registered market, unordered.
func (r *Registry) List() []*Market {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Market, 0, len(r.markets))
	for _, m := range r.markets {
		out = append(out, m)
	}
	return out
}

// Names returns every registered market name, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.markets))
	for name := range r.markets {
		out = append(out, name)
	}
	return out
}

// Reload replaces the registry's contents with newly built markets. If
// fromScratch is false, markets absent from `built` but present in the
// current registry are kept as-is (their resting books untouched);
// fromScratch tears down everything first, used only by administrative
// ReloadMarkets{from_scratch} (SPEC_FULL.md §5).
func (r *Registry) Reload(built []*Market, fromScratch bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fromScratch {
		r.markets = make(map[string]*Market)
	}
	for _, m := range built {
		r.markets[m.Name()] = m
	}
}

// Count returns the number of registered markets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}
