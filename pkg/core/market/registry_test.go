package market

import (
	"testing"

	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/core/balance"
	"github.com/fluidex-clob/matchcore/pkg/core/sequencer"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

func newTestRegistryMarket(t *testing.T, name string) *Market {
	t.Helper()
	assets, err := asset.New([]asset.Config{
		{ID: "ETH", PrecStor: 8, PrecShow: 8},
		{ID: "USDT", PrecStor: 6, PrecShow: 6},
	}, nil)
	if err != nil {
		t.Fatalf("asset.New: %v", err)
	}
	bm := balance.New(assets)
	m, err := New(Config{
		Name: name, Base: "ETH", Quote: "USDT",
		AmountPrec: 4, PricePrec: 2, FeePrec: 4,
		MinAmount: types.MustParse("0.0001"),
	}, assets, bm, sequencer.New(), true, true, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	m := newTestRegistryMarket(t, "ETH_USDT")
	if err := r.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := r.Get("ETH_USDT")
	if !ok || got != m {
		t.Error("Get should return the registered market")
	}
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestRegistryMarket(t, "ETH_USDT"))
	if err := r.Register(newTestRegistryMarket(t, "ETH_USDT")); err == nil {
		t.Error("Register should reject a duplicate market name")
	}
}

func TestReloadFromScratchDropsUnlisted(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestRegistryMarket(t, "ETH_USDT"))
	r.Register(newTestRegistryMarket(t, "BTC_USDT"))

	r.Reload([]*Market{newTestRegistryMarket(t, "ETH_USDT")}, true)

	if r.Count() != 1 {
		t.Errorf("Count after from_scratch reload = %d, want 1", r.Count())
	}
	if _, ok := r.Get("BTC_USDT"); ok {
		t.Error("BTC_USDT should be gone after a from_scratch reload that didn't include it")
	}
}

func TestReloadWithoutFromScratchKeepsUnlisted(t *testing.T) {
	r := NewRegistry()
	r.Register(newTestRegistryMarket(t, "ETH_USDT"))
	r.Register(newTestRegistryMarket(t, "BTC_USDT"))

	r.Reload([]*Market{newTestRegistryMarket(t, "SOL_USDT")}, false)

	if r.Count() != 3 {
		t.Errorf("Count after incremental reload = %d, want 3", r.Count())
	}
	if _, ok := r.Get("BTC_USDT"); !ok {
		t.Error("BTC_USDT should survive an incremental reload")
	}
	if _, ok := r.Get("SOL_USDT"); !ok {
		t.Error("SOL_USDT should be added by an incremental reload")
	}
}
