package controller

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fluidex-clob/matchcore/coreerr"
	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/core/balance"
	"github.com/fluidex-clob/matchcore/pkg/core/market"
	"github.com/fluidex-clob/matchcore/pkg/core/persist"
	"github.com/fluidex-clob/matchcore/pkg/core/sequencer"
	"github.com/fluidex-clob/matchcore/pkg/core/user"
	"github.com/fluidex-clob/matchcore/pkg/storage"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

func newTestControllerComponents(t *testing.T) (seq *sequencer.Sequencer, assets *asset.Manager, balances *balance.Manager, users *user.Manager, markets *market.Registry) {
	t.Helper()
	var err error
	assets, err = asset.New([]asset.Config{
		{ID: "ETH", PrecStor: 8, PrecShow: 8},
		{ID: "USDT", PrecStor: 6, PrecShow: 6},
	}, nil)
	if err != nil {
		t.Fatalf("asset.New: %v", err)
	}
	balances = balance.New(assets)
	seq = sequencer.New()
	users = user.New()
	markets = market.NewRegistry()
	m, err := market.New(market.Config{
		Name: "ETH_USDT", Base: "ETH", Quote: "USDT",
		AmountPrec: 4, PricePrec: 2, FeePrec: 4,
		MinAmount: types.MustParse("0.0001"),
	}, assets, balances, seq, true, true, false)
	if err != nil {
		t.Fatalf("market.New: %v", err)
	}
	if err := markets.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return
}

func newTestController(t *testing.T) *Controller {
	t.Helper()
	seq, assets, balances, users, markets := newTestControllerComponents(t)
	updateCtl := balance.NewUpdateController(balances, 1000, time.Hour)

	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	opLog := storage.NewOpLogWriter(store, 1000, 100, 10*time.Millisecond, nil)
	go opLog.Run()
	t.Cleanup(opLog.Close)

	persistor := persist.New(nil)

	return New(nil, seq, assets, balances, updateCtl, users, markets, persistor, store, opLog, true, true, false, 100, 10)
}

func TestRegisterUserIsIdempotentAcrossCalls(t *testing.T) {
	c := newTestController(t)
	first, err := c.RegisterUser("0xaaa", "pub-a", true, 1.0)
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	second, err := c.RegisterUser("0xaaa", "pub-a", true, 2.0)
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if first.UserID != second.UserID {
		t.Errorf("re-registering the same address minted a new id: %d vs %d", first.UserID, second.UserID)
	}
}

func TestBalanceUpdateUnknownAssetRejected(t *testing.T) {
	c := newTestController(t)
	_, err := c.BalanceUpdate(BalanceUpdateParams{UserID: 1, Asset: "BTC", Business: "deposit", BusinessID: 1, Change: types.MustParse("10")}, true, time.Unix(0, 0))
	if !coreerr.Is(err, coreerr.KindInvalidArgument) {
		t.Errorf("BalanceUpdate on an unknown asset should fail InvalidArgument, got %v", err)
	}
}

func TestBalanceUpdateIdempotentDuplicate(t *testing.T) {
	c := newTestController(t)
	p := BalanceUpdateParams{UserID: 1, Asset: "USDT", Business: "deposit", BusinessID: 55, Change: types.MustParse("100")}
	if _, err := c.BalanceUpdate(p, true, time.Unix(0, 0)); err != nil {
		t.Fatalf("first BalanceUpdate: %v", err)
	}
	_, err := c.BalanceUpdate(p, true, time.Unix(0, 0))
	if !coreerr.Is(err, coreerr.KindDuplicateRequest) {
		t.Errorf("replayed business_id should fail DuplicateRequest, got %v", err)
	}
	rows, err := c.BalanceQuery(1, []string{"USDT"})
	if err != nil {
		t.Fatalf("BalanceQuery: %v", err)
	}
	if rows[0].Available.String() != "100" {
		t.Errorf("balance after rejected duplicate = %s, want unchanged 100", rows[0].Available)
	}
}

func TestOrderPutUnknownMarketRejected(t *testing.T) {
	c := newTestController(t)
	_, err := c.OrderPut(OrderPutRequest{UserID: 1, Market: "BTC_USDT", Side: market.Ask, Type: market.Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100")}, true, 1.0)
	if !coreerr.Is(err, coreerr.KindInvalidArgument) {
		t.Errorf("OrderPut on an unknown market should fail InvalidArgument, got %v", err)
	}
}

func TestOrderPutAndCancelRoundTrip(t *testing.T) {
	c := newTestController(t)
	if _, err := c.BalanceUpdate(BalanceUpdateParams{UserID: 1, Asset: "ETH", Business: "deposit", BusinessID: 1, Change: types.MustParse("5")}, true, time.Unix(0, 0)); err != nil {
		t.Fatalf("fund: %v", err)
	}

	o, err := c.OrderPut(OrderPutRequest{UserID: 1, Market: "ETH_USDT", Side: market.Ask, Type: market.Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100")}, true, 1.0)
	if err != nil {
		t.Fatalf("OrderPut: %v", err)
	}

	result, err := c.OrderQuery(1, "ETH_USDT", 0, 10)
	if err != nil {
		t.Fatalf("OrderQuery: %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("OrderQuery total = %d, want 1", result.Total)
	}

	if _, err := c.OrderCancel(OrderCancelParams{UserID: 1, Market: "ETH_USDT", OrderID: o.ID}, true, 2.0); err != nil {
		t.Fatalf("OrderCancel: %v", err)
	}
	result, err = c.OrderQuery(1, "ETH_USDT", 0, 10)
	if err != nil {
		t.Fatalf("OrderQuery: %v", err)
	}
	if result.Total != 0 {
		t.Errorf("OrderQuery total after cancel = %d, want 0", result.Total)
	}
}

func TestTransferMovesBalanceBetweenUsers(t *testing.T) {
	c := newTestController(t)
	c.BalanceUpdate(BalanceUpdateParams{UserID: 1, Asset: "USDT", Business: "deposit", BusinessID: 1, Change: types.MustParse("100")}, true, time.Unix(0, 0))

	res, err := c.Transfer(1, 2, "USDT", types.MustParse("40"), "rent", true, time.Unix(1, 0))
	if err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if !res.Success || res.BalanceFrom.String() != "60" {
		t.Errorf("Transfer result = %+v, want success with BalanceFrom=60", res)
	}
	rows, _ := c.BalanceQuery(2, []string{"USDT"})
	if rows[0].Available.String() != "40" {
		t.Errorf("recipient balance = %s, want 40", rows[0].Available)
	}
}

func TestTransferRejectsSelfTransfer(t *testing.T) {
	c := newTestController(t)
	_, err := c.Transfer(1, 1, "USDT", types.MustParse("10"), "", true, time.Unix(0, 0))
	if !coreerr.Is(err, coreerr.KindInvalidArgument) {
		t.Errorf("Transfer(1, 1, ...) should fail InvalidArgument, got %v", err)
	}
}

// TestReplayIsDeterministic applies the same sequence of write operations
// live against one controller and via Replay against a second, freshly
// built controller, and asserts both end up in identical observable
// states — the core guarantee C8's recovery mechanism depends on.
func TestReplayIsDeterministic(t *testing.T) {
	live := newTestController(t)
	replayed := newTestController(t)

	depositRow := storage.OpLogRow{ID: 1, Time: 1.0, Method: MethodBalanceUpdate,
		Params: mustJSON(t, BalanceUpdateParams{UserID: 1, Asset: "ETH", Business: "deposit", BusinessID: 1, Change: types.MustParse("5")})}
	orderRow := storage.OpLogRow{ID: 2, Time: 2.0, Method: MethodOrderPut,
		Params: mustJSON(t, OrderPutRequest{UserID: 1, Market: "ETH_USDT", Side: market.Ask, Type: market.Limit,
			Amount: types.MustParse("1"), Price: types.MustParse("100")})}
	cancelRow := storage.OpLogRow{}

	if _, err := live.BalanceUpdate(BalanceUpdateParams{UserID: 1, Asset: "ETH", Business: "deposit", BusinessID: 1, Change: types.MustParse("5")}, true, time.Unix(1, 0)); err != nil {
		t.Fatalf("live BalanceUpdate: %v", err)
	}
	liveOrder, err := live.OrderPut(OrderPutRequest{UserID: 1, Market: "ETH_USDT", Side: market.Ask, Type: market.Limit,
		Amount: types.MustParse("1"), Price: types.MustParse("100")}, true, 2.0)
	if err != nil {
		t.Fatalf("live OrderPut: %v", err)
	}
	cancelRow = storage.OpLogRow{ID: 3, Time: 3.0, Method: MethodOrderCancel,
		Params: mustJSON(t, OrderCancelParams{UserID: 1, Market: "ETH_USDT", OrderID: liveOrder.ID})}
	if _, err := live.OrderCancel(OrderCancelParams{UserID: 1, Market: "ETH_USDT", OrderID: liveOrder.ID}, true, 3.0); err != nil {
		t.Fatalf("live OrderCancel: %v", err)
	}

	if err := replayed.Replay(depositRow); err != nil {
		t.Fatalf("Replay(deposit): %v", err)
	}
	if err := replayed.Replay(orderRow); err != nil {
		t.Fatalf("Replay(order_put): %v", err)
	}
	if err := replayed.Replay(cancelRow); err != nil {
		t.Fatalf("Replay(order_cancel): %v", err)
	}

	liveRows, err := live.BalanceQuery(1, []string{"ETH"})
	if err != nil {
		t.Fatalf("live BalanceQuery: %v", err)
	}
	replayedRows, err := replayed.BalanceQuery(1, []string{"ETH"})
	if err != nil {
		t.Fatalf("replayed BalanceQuery: %v", err)
	}
	if !liveRows[0].Available.Equal(replayedRows[0].Available) {
		t.Errorf("live ETH available = %s, replayed = %s, want equal", liveRows[0].Available, replayedRows[0].Available)
	}

	liveResult, _ := live.OrderQuery(1, "ETH_USDT", 0, 10)
	replayedResult, _ := replayed.OrderQuery(1, "ETH_USDT", 0, 10)
	if liveResult.Total != replayedResult.Total {
		t.Errorf("live resting-order total = %d, replayed = %d, want equal", liveResult.Total, replayedResult.Total)
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}
