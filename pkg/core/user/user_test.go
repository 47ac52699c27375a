package user

import "testing"

func TestRegisterMintsSequentialIDs(t *testing.T) {
	m := New()
	a := m.Register("0xaaa", "pub-a")
	b := m.Register("0xbbb", "pub-b")
	if a.UserID != 1 || b.UserID != 2 {
		t.Errorf("got ids %d, %d, want 1, 2", a.UserID, b.UserID)
	}
}

func TestRegisterIsIdempotentPerAddress(t *testing.T) {
	m := New()
	first := m.Register("0xaaa", "pub-a")
	second := m.Register("0xaaa", "pub-a")
	if first.UserID != second.UserID {
		t.Errorf("re-registering the same address minted a new id: %d vs %d", first.UserID, second.UserID)
	}
}

func TestRegisterSameAddressKeepsOriginalPubkey(t *testing.T) {
	m := New()
	first := m.Register("0xaaa", "pub-a")
	second := m.Register("0xaaa", "pub-b-different")
	if second.L2Pubkey != first.L2Pubkey {
		t.Errorf("re-registration overwrote the stored pubkey: got %s, want original %s", second.L2Pubkey, first.L2Pubkey)
	}
}

func TestGet(t *testing.T) {
	m := New()
	info := m.Register("0xaaa", "pub-a")
	got, ok := m.Get(info.UserID)
	if !ok || got.L1Address != "0xaaa" {
		t.Errorf("Get(%d) = %+v, %v, want the registered info", info.UserID, got, ok)
	}
	if _, ok := m.Get(999); ok {
		t.Error("Get should report ok=false for an unknown user id")
	}
}

func TestSnapshotAndRestoreRoundTrip(t *testing.T) {
	m := New()
	m.Register("0xaaa", "pub-a")
	m.Register("0xbbb", "pub-b")
	snap := m.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Snapshot returned %d users, want 2", len(snap))
	}

	fresh := New()
	fresh.Restore(snap)
	for _, info := range snap {
		got, ok := fresh.Get(info.UserID)
		if !ok || got != info {
			t.Errorf("restored user %d = %+v, want %+v", info.UserID, got, info)
		}
	}
}

func TestRestoreAdvancesNextIDPastRestoredUsers(t *testing.T) {
	m := New()
	m.Restore([]Info{{UserID: 5, L1Address: "0xccc", L2Pubkey: "pub-c"}})
	next := m.Register("0xnew", "pub-new")
	if next.UserID <= 5 {
		t.Errorf("next minted id after restoring user 5 = %d, want > 5", next.UserID)
	}
}
