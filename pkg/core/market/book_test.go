package market

import (
	"testing"

	"github.com/fluidex-clob/matchcore/coreerr"
	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/core/balance"
	"github.com/fluidex-clob/matchcore/pkg/core/persist"
	"github.com/fluidex-clob/matchcore/pkg/core/sequencer"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

func newTestMarket(t *testing.T, marketOrders, selfTradePrevention bool) (*Market, *balance.Manager) {
	t.Helper()
	assets, err := asset.New([]asset.Config{
		{ID: "ETH", PrecStor: 8, PrecShow: 8},
		{ID: "USDT", PrecStor: 6, PrecShow: 6},
	}, nil)
	if err != nil {
		t.Fatalf("asset.New: %v", err)
	}
	bm := balance.New(assets)
	seq := sequencer.New()
	cfg := Config{
		Name: "ETH_USDT", Base: "ETH", Quote: "USDT",
		AmountPrec: 4, PricePrec: 2, FeePrec: 4,
		MinAmount: types.MustParse("0.0001"),
	}
	m, err := New(cfg, assets, bm, seq, marketOrders, selfTradePrevention, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, bm
}

func fund(t *testing.T, bm *balance.Manager, user uint32, assetID, amount string) {
	t.Helper()
	if _, err := bm.Add(user, balance.Available, assetID, types.MustParse(amount)); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func TestSimpleFullMatch(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")
	fund(t, bm, 2, "USDT", "10000")

	_, err := m.PutOrder(PutOrderInput{
		UserID: 1, Side: Ask, Type: Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 1.0)
	if err != nil {
		t.Fatalf("resting ask: %v", err)
	}

	bidResult, err := m.PutOrder(PutOrderInput{
		UserID: 2, Side: Bid, Type: Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 2.0)
	if err != nil {
		t.Fatalf("crossing bid: %v", err)
	}
	if bidResult.State != StateFinish || !bidResult.Remain.IsZero() {
		t.Errorf("crossing bid should fully fill, got state=%v remain=%s", bidResult.State, bidResult.Remain)
	}

	if got := bm.Get(2, balance.Available, "ETH"); got.String() != "1" {
		t.Errorf("buyer ETH balance = %s, want 1", got)
	}
	if got := bm.Get(1, balance.Available, "USDT"); got.String() != "100" {
		t.Errorf("seller USDT balance = %s, want 100", got)
	}
	if m.Status().AskCount != 0 {
		t.Errorf("ask book should be empty after full match, AskCount=%d", m.Status().AskCount)
	}
}

func TestPostOnlyCancelsOnCross(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")
	fund(t, bm, 2, "USDT", "10000")

	m.PutOrder(PutOrderInput{
		UserID: 1, Side: Ask, Type: Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 1.0)

	result, err := m.PutOrder(PutOrderInput{
		UserID: 2, Side: Bid, Type: Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100"),
		PostOnly: true,
	}, persist.Dummy{}, 2.0)
	if err != nil {
		t.Fatalf("post-only order should be accepted then cancelled, not rejected: %v", err)
	}
	if result.State != StateFinish {
		t.Errorf("post-only order that crosses the book should finish immediately (cancelled), got %v", result.State)
	}
	if result.Remain.String() != "1" {
		t.Errorf("post-only cancelled order should keep its full remain, got %s", result.Remain)
	}
}

func TestSelfTradePreventionCancelsTaker(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")
	fund(t, bm, 1, "USDT", "10000")

	m.PutOrder(PutOrderInput{
		UserID: 1, Side: Ask, Type: Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 1.0)

	result, err := m.PutOrder(PutOrderInput{
		UserID: 1, Side: Bid, Type: Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 2.0)
	if err != nil {
		t.Fatalf("self-trading order should be accepted then cancelled: %v", err)
	}
	if result.State != StateFinish || !result.Remain.Equal(types.MustParse("1")) {
		t.Errorf("self-trade-prevented order should finish cancelled with full remain, got state=%v remain=%s",
			result.State, result.Remain)
	}
	if m.Status().AskCount != 1 {
		t.Errorf("the resting ask should survive a self-trade-prevented taker, AskCount=%d", m.Status().AskCount)
	}
}

func TestBidMarketOrderBoundedByQuoteLimit(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")
	fund(t, bm, 2, "USDT", "10000")

	m.PutOrder(PutOrderInput{
		UserID: 1, Side: Ask, Type: Limit,
		Amount: types.MustParse("5"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 1.0)

	result, err := m.PutOrder(PutOrderInput{
		UserID: 2, Side: Bid, Type: Market,
		Amount: types.MustParse("5"), QuoteLimit: types.MustParse("250"),
	}, persist.Dummy{}, 2.0)
	if err != nil {
		t.Fatalf("market buy: %v", err)
	}
	if result.FinishedBase.String() != "2.5" {
		t.Errorf("market buy bounded by quote_limit=250 at price=100 should fill 2.5 base, got %s", result.FinishedBase)
	}
	if got := bm.Get(2, balance.Available, "ETH"); got.String() != "2.5" {
		t.Errorf("buyer ETH balance = %s, want 2.5", got)
	}
}

func TestMarketOrderRejectedWhenDisabled(t *testing.T) {
	m, bm := newTestMarket(t, false, true)
	fund(t, bm, 1, "ETH", "10")
	fund(t, bm, 2, "USDT", "1000")
	m.PutOrder(PutOrderInput{
		UserID: 1, Side: Ask, Type: Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 1.0)

	_, err := m.PutOrder(PutOrderInput{
		UserID: 2, Side: Bid, Type: Market, Amount: types.MustParse("1"),
	}, persist.Dummy{}, 2.0)
	if !coreerr.Is(err, coreerr.KindInvalidArgument) {
		t.Errorf("market order on a market-orders-disabled book should fail InvalidArgument, got %v", err)
	}
}

func TestInsufficientBalanceRejectsOrder(t *testing.T) {
	m, _ := newTestMarket(t, true, true)
	_, err := m.PutOrder(PutOrderInput{
		UserID: 1, Side: Ask, Type: Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 1.0)
	if !coreerr.Is(err, coreerr.KindInsufficientBalance) {
		t.Errorf("ask with no ETH balance should fail InsufficientBalance, got %v", err)
	}
}

func TestCancelUnfreezesRemainder(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")

	order, err := m.PutOrder(PutOrderInput{
		UserID: 1, Side: Ask, Type: Limit,
		Amount: types.MustParse("2"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 1.0)
	if err != nil {
		t.Fatalf("resting ask: %v", err)
	}
	if got := bm.Get(1, balance.Available, "ETH"); !got.IsZero() {
		t.Errorf("available ETH after resting ask = %s, want 0 (frozen)", got)
	}

	if _, err := m.Cancel(1, order.ID, persist.Dummy{}, 2.0); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := bm.Get(1, balance.Available, "ETH"); got.String() != "10" {
		t.Errorf("available ETH after cancel = %s, want 10 (unfrozen)", got)
	}
	if _, ok := m.Order(order.ID); ok {
		t.Error("cancelled order should no longer be resting")
	}
}

func TestCancelRejectsWrongOwner(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")
	order, _ := m.PutOrder(PutOrderInput{
		UserID: 1, Side: Ask, Type: Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100"),
	}, persist.Dummy{}, 1.0)

	if _, err := m.Cancel(2, order.ID, persist.Dummy{}, 2.0); !coreerr.Is(err, coreerr.KindInvalidArgument) {
		t.Errorf("cancel by a non-owner should fail InvalidArgument, got %v", err)
	}
}

func TestCancelAllCancelsOnlyThatUsersOrders(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")
	fund(t, bm, 2, "ETH", "10")

	m.PutOrder(PutOrderInput{UserID: 1, Side: Ask, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("100")}, persist.Dummy{}, 1.0)
	m.PutOrder(PutOrderInput{UserID: 1, Side: Ask, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("101")}, persist.Dummy{}, 1.0)
	m.PutOrder(PutOrderInput{UserID: 2, Side: Ask, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("102")}, persist.Dummy{}, 1.0)

	n := m.CancelAll(1, persist.Dummy{}, 2.0)
	if n != 2 {
		t.Errorf("CancelAll(user=1) cancelled %d orders, want 2", n)
	}
	if m.Status().AskCount != 1 {
		t.Errorf("user 2's order should survive CancelAll(user=1), AskCount=%d", m.Status().AskCount)
	}
}

func TestDepthBucketsByInterval(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")

	m.PutOrder(PutOrderInput{UserID: 1, Side: Ask, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("100.10")}, persist.Dummy{}, 1.0)
	m.PutOrder(PutOrderInput{UserID: 1, Side: Ask, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("100.40")}, persist.Dummy{}, 1.0)

	asks, _ := m.Depth(10, types.MustParse("1"))
	if len(asks) != 1 {
		t.Fatalf("bucketed asks at interval=1 = %d levels, want 1", len(asks))
	}
	if asks[0].Amount.String() != "2" {
		t.Errorf("bucketed ask amount = %s, want 2", asks[0].Amount)
	}
}

func TestDepthOrdersAsksAscendingBidsDescending(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")
	fund(t, bm, 2, "USDT", "10000")

	m.PutOrder(PutOrderInput{UserID: 1, Side: Ask, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("105")}, persist.Dummy{}, 1.0)
	m.PutOrder(PutOrderInput{UserID: 1, Side: Ask, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("102")}, persist.Dummy{}, 1.0)
	m.PutOrder(PutOrderInput{UserID: 2, Side: Bid, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("90")}, persist.Dummy{}, 1.0)
	m.PutOrder(PutOrderInput{UserID: 2, Side: Bid, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("95")}, persist.Dummy{}, 1.0)

	asks, bids := m.Depth(10, types.Zero)
	if len(asks) != 2 || asks[0].Price.String() != "102" || asks[1].Price.String() != "105" {
		t.Errorf("asks should be price-ascending, got %+v", asks)
	}
	if len(bids) != 2 || bids[0].Price.String() != "95" || bids[1].Price.String() != "90" {
		t.Errorf("bids should be price-descending, got %+v", bids)
	}
}

func TestPriceTimePriorityFIFOAtSamePriceLevel(t *testing.T) {
	m, bm := newTestMarket(t, true, true)
	fund(t, bm, 1, "ETH", "10")
	fund(t, bm, 2, "ETH", "10")
	fund(t, bm, 3, "USDT", "10000")

	first, _ := m.PutOrder(PutOrderInput{UserID: 1, Side: Ask, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("100")}, persist.Dummy{}, 1.0)
	m.PutOrder(PutOrderInput{UserID: 2, Side: Ask, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("100")}, persist.Dummy{}, 2.0)

	m.PutOrder(PutOrderInput{UserID: 3, Side: Bid, Type: Limit, Amount: types.MustParse("1"), Price: types.MustParse("100")}, persist.Dummy{}, 3.0)

	if _, ok := m.Order(first.ID); ok {
		t.Error("the earlier-resting ask at the same price should be matched first (FIFO)")
	}
	if m.Status().AskCount != 1 {
		t.Errorf("the later ask should still be resting, AskCount=%d", m.Status().AskCount)
	}
}
