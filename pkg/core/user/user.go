// Package user implements the UserManager the Controller (C7) owns
// alongside the Sequencer and BalanceManager: it maps a registered
// wallet (l1_address, l2_pubkey) to the u32 user id every other
// component keys balances and orders by. Grounded on the teacher's
// AccountManager registration path (pkg/app/core/account/manager.go)
// generalized from a margin account to a plain identity record.
package user

import "sync"

// Info is one registered user's identity.
type Info struct {
	UserID    uint32
	L1Address string
	L2Pubkey  string
}

// Manager is the UserManager: an in-memory registry keyed by user id,
// with a reverse index on L1 address so re-registering the same wallet
// is idempotent rather than minting a second id.
type Manager struct {
	mu        sync.Mutex
	nextID    uint32
	byID      map[uint32]Info
	byAddress map[string]uint32
}

// New constructs an empty registry.
func New() *Manager {
	return &Manager{byID: make(map[uint32]Info), byAddress: make(map[string]uint32)}
}

// Register returns the existing Info if l1Address is already known
// (idempotent re-registration), otherwise mints the next user id.
func (m *Manager) Register(l1Address, l2Pubkey string) Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byAddress[l1Address]; ok {
		return m.byID[id]
	}
	m.nextID++
	info := Info{UserID: m.nextID, L1Address: l1Address, L2Pubkey: l2Pubkey}
	m.byID[info.UserID] = info
	m.byAddress[l1Address] = info.UserID
	return info
}

// Get looks up a user by id.
func (m *Manager) Get(userID uint32) (Info, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.byID[userID]
	return info, ok
}

// Snapshot returns every registered user, for slicing — the core's
// slice is extended with a user table beyond what spec.md's literal
// slice-contents list names, since UserManager state cannot otherwise
// be reconstructed from a slice-plus-tail replay (see DESIGN.md).
func (m *Manager) Snapshot() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Info, 0, len(m.byID))
	for _, info := range m.byID {
		out = append(out, info)
	}
	return out
}

// Restore seeds the registry from a slice snapshot, preserving ids and
// re-deriving nextID as the greatest restored id, so the next minted id
// is one past it.
func (m *Manager) Restore(infos []Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range infos {
		m.byID[info.UserID] = info
		m.byAddress[info.L1Address] = info.UserID
		if info.UserID > m.nextID {
			m.nextID = info.UserID
		}
	}
}
