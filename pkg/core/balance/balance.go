// Package balance implements the BalanceManager (C3): per-user per-asset
// AVAILABLE/FREEZE decimal accounting. Grounded on the original Rust
// BalanceManager (src/matchengine/asset/balance_manager.rs — key struct,
// set/add/sub/frozen/unfrozen primitives) reshaped into the teacher's
// RWMutex-guarded map style (pkg/app/core/account/manager.go).
package balance

import (
	"fmt"
	"sync"

	"github.com/fluidex-clob/matchcore/coreerr"
	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

// Kind distinguishes the two balance buckets a user/asset pair can hold.
type Kind uint8

const (
	Available Kind = iota
	Freeze
)

func (k Kind) String() string {
	if k == Freeze {
		return "FREEZE"
	}
	return "AVAILABLE"
}

type cellKey struct {
	user  uint32
	asset string
	kind  Kind
}

// Manager is the BalanceManager: one map from (user, asset, kind) to a
// non-negative decimal, rounded to the asset's storage precision on
// every mutation.
type Manager struct {
	mu     sync.Mutex
	cells  map[cellKey]types.Decimal
	assets *asset.Manager
}

// New constructs an empty BalanceManager bound to an AssetManager for
// precision lookups.
func New(assets *asset.Manager) *Manager {
	return &Manager{cells: make(map[cellKey]types.Decimal), assets: assets}
}

// Get returns the current balance, defaulting to zero for a cell never
// written.
func (m *Manager) Get(user uint32, kind Kind, assetID string) types.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(user, kind, assetID)
}

func (m *Manager) getLocked(user uint32, kind Kind, assetID string) types.Decimal {
	v, ok := m.cells[cellKey{user: user, asset: assetID, kind: kind}]
	if !ok {
		return types.Zero
	}
	return v
}

func (m *Manager) round(assetID string, amount types.Decimal) (types.Decimal, error) {
	prec, err := m.assets.PrecStor(assetID)
	if err != nil {
		return types.Decimal{}, err
	}
	return amount.RoundToZero(prec), nil
}

// Set overwrites a cell. Precondition: amount >= 0.
func (m *Manager) Set(user uint32, kind Kind, assetID string, amount types.Decimal) error {
	if amount.IsNegative() {
		return coreerr.InvalidArgument("balance amount must be non-negative")
	}
	rounded, err := m.round(assetID, amount)
	if err != nil {
		return coreerr.InvalidArgument(err.Error())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[cellKey{user: user, asset: assetID, kind: kind}] = rounded
	return nil
}

// Add credits a cell and returns the new value. Precondition: amount >= 0.
func (m *Manager) Add(user uint32, kind Kind, assetID string, amount types.Decimal) (types.Decimal, error) {
	if amount.IsNegative() {
		return types.Decimal{}, coreerr.InvalidArgument("add amount must be non-negative")
	}
	rounded, err := m.round(assetID, amount)
	if err != nil {
		return types.Decimal{}, coreerr.InvalidArgument(err.Error())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cellKey{user: user, asset: assetID, kind: kind}
	newVal := m.getLocked(user, kind, assetID).Add(rounded)
	m.cells[key] = newVal
	return newVal, nil
}

// Sub debits a cell and returns the new value. Preconditions: amount >= 0
// and current cell >= amount, else InsufficientBalance.
func (m *Manager) Sub(user uint32, kind Kind, assetID string, amount types.Decimal) (types.Decimal, error) {
	if amount.IsNegative() {
		return types.Decimal{}, coreerr.InvalidArgument("sub amount must be non-negative")
	}
	rounded, err := m.round(assetID, amount)
	if err != nil {
		return types.Decimal{}, coreerr.InvalidArgument(err.Error())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cellKey{user: user, asset: assetID, kind: kind}
	old := m.getLocked(user, kind, assetID)
	if old.LessThan(rounded) {
		return types.Decimal{}, coreerr.InsufficientBalance(
			fmt.Sprintf("user %d asset %s %s: have %s need %s", user, assetID, kind, old, rounded))
	}
	newVal := old.Sub(rounded)
	m.cells[key] = newVal
	return newVal, nil
}

// Freeze moves amount from AVAILABLE to FREEZE as one step.
func (m *Manager) Freeze(user uint32, assetID string, amount types.Decimal) error {
	if _, err := m.Sub(user, Available, assetID, amount); err != nil {
		return err
	}
	if _, err := m.Add(user, Freeze, assetID, amount); err != nil {
		return coreerr.Internal("freeze: credit after debit failed", err)
	}
	return nil
}

// Unfreeze moves amount from FREEZE back to AVAILABLE as one step.
func (m *Manager) Unfreeze(user uint32, assetID string, amount types.Decimal) error {
	if _, err := m.Sub(user, Freeze, assetID, amount); err != nil {
		return err
	}
	if _, err := m.Add(user, Available, assetID, amount); err != nil {
		return coreerr.Internal("unfreeze: credit after debit failed", err)
	}
	return nil
}

// Cell is a single exported balance row, used for slicing and queries.
type Cell struct {
	User    uint32
	Asset   string
	Kind    Kind
	Balance types.Decimal
}

// Snapshot returns every non-default cell, for slicing (C8).
func (m *Manager) Snapshot() []Cell {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Cell, 0, len(m.cells))
	for k, v := range m.cells {
		out = append(out, Cell{User: k.user, Asset: k.asset, Kind: k.kind, Balance: v})
	}
	return out
}

// Restore loads a slice row directly via Set, bypassing precondition
// checks beyond non-negativity — used only during recovery (C8).
func (m *Manager) Restore(cells []Cell) error {
	for _, c := range cells {
		if err := m.Set(c.User, c.Kind, c.Asset, c.Balance); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears every cell. Testing/debug only (debug_reset RPC).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells = make(map[cellKey]types.Decimal)
}
