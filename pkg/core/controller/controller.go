// Package controller implements the Controller (C7): the single-threaded
// authority that owns the Sequencer, AssetManager, BalanceManager,
// BalanceUpdateController, UserManager and every Market, validates RPC
// requests, dispatches to the right component, and drives the
// persistence/replay pipeline (C8). Grounded on the original Rust
// controller.rs request-dispatch shape and the teacher's single
// `Manager`-owns-everything style (pkg/app/core/account/manager.go),
// generalized from account/position bookkeeping to order matching.
package controller

import (
	"sort"

	"go.uber.org/zap"

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

// Controller is C7. All of its exported methods are the RPC surface
// spec.md §6 names; each mutating one follows the five-step shape from
// spec.md §4.6.
type Controller struct {
	log *zap.SugaredLogger

	seq       *sequencer.Sequencer
	assets    *asset.Manager
	balances  *balance.Manager
	updateCtl *balance.UpdateController
	users     *user.Manager
	markets   *market.Registry

	persistor *persist.Exector
	store     *storage.Store
	opLog     *storage.OpLogWriter

	selfTradePrevention bool
	marketOrdersEnabled bool
	strictFeePrecision  bool
	orderQueryMaxLimit  int
	sliceRetention      int
}

// New wires a Controller over already-constructed components. Building
// those components (loading asset/market configs, opening the store) is
// main's job; the Controller only coordinates them.
func New(
	log *zap.SugaredLogger,
	seq *sequencer.Sequencer,
	assets *asset.Manager,
	balances *balance.Manager,
	updateCtl *balance.UpdateController,
	users *user.Manager,
	markets *market.Registry,
	persistor *persist.Exector,
	store *storage.Store,
	opLog *storage.OpLogWriter,
	selfTradePrevention, marketOrdersEnabled, strictFeePrecision bool,
	orderQueryMaxLimit, sliceRetention int,
) *Controller {
	return &Controller{
		log:                 log,
		seq:                 seq,
		assets:              assets,
		balances:            balances,
		updateCtl:           updateCtl,
		users:               users,
		markets:             markets,
		persistor:           persistor,
		store:               store,
		opLog:               opLog,
		selfTradePrevention: selfTradePrevention,
		marketOrdersEnabled: marketOrdersEnabled,
		strictFeePrecision:  strictFeePrecision,
		orderQueryMaxLimit:  orderQueryMaxLimit,
		sliceRetention:      sliceRetention,
	}
}

// checkServiceAvailable implements spec.md §4.6 write-op step 1: refuse
// admission if the operation-log queue or any persistence sink is
// back-pressured. Never called during replay (real=false), since a
// replayed request already committed once and must re-apply
// unconditionally.
func (c *Controller) checkServiceAvailable() error {
	if c.opLog != nil && c.opLog.IsBlock() {
		return coreerr.Unavailable("operation log queue saturated")
	}
	if c.persistor != nil && !c.persistor.Available() {
		return coreerr.Unavailable("persistence sink saturated")
	}
	return nil
}

// persistorFor implements step 3 ("choose persistor: real or dummy").
func (c *Controller) persistorFor(real bool) persist.Interface {
	if real {
		return c.persistor
	}
	return persist.Dummy{}
}

// --- Read operations (spec.md §4.6: "pure queries over current state") ---

// AssetList implements the AssetList RPC.
func (c *Controller) AssetList() []asset.Config {
	return c.assets.List()
}

// MarketNames implements the MarketList RPC.
func (c *Controller) MarketNames() []string {
	return c.markets.Names()
}

// MarketSummaryRow is one market's aggregate status, supplementing
// spec.md §6's MarketList with the per-market detail the original
// source's `market_summary` op returns (SPEC_FULL.md §5).
type MarketSummaryRow struct {
	Name   string
	Status market.Status
}

// MarketSummary implements the MarketSummary RPC. An empty names list
// means "all markets".
func (c *Controller) MarketSummary(names []string) ([]MarketSummaryRow, error) {
	var targets []*market.Market
	if len(names) == 0 {
		targets = c.markets.List()
	} else {
		for _, n := range names {
			m, ok := c.markets.Get(n)
			if !ok {
				return nil, coreerr.InvalidArgument("unknown market " + n)
			}
			targets = append(targets, m)
		}
	}
	out := make([]MarketSummaryRow, 0, len(targets))
	for _, m := range targets {
		out = append(out, MarketSummaryRow{Name: m.Name(), Status: m.Status()})
	}
	return out, nil
}

// BalanceRow is one asset's available/frozen pair in a BalanceQuery
// response. Available is rounded HalfEven to prec_show for display,
// per Open Question (a): the stored cell itself always stays at
// prec_stor and is never touched by this rounding.
type BalanceRow struct {
	Asset     string
	Available types.Decimal
	Frozen    types.Decimal
}

// BalanceQuery implements the BalanceQuery RPC. An empty assetIDs list
// means "every known asset".
func (c *Controller) BalanceQuery(userID uint32, assetIDs []string) ([]BalanceRow, error) {
	if len(assetIDs) == 0 {
		for _, cfg := range c.assets.List() {
			assetIDs = append(assetIDs, cfg.ID)
		}
	}
	out := make([]BalanceRow, 0, len(assetIDs))
	for _, id := range assetIDs {
		cfg, ok := c.assets.Get(id)
		if !ok {
			return nil, coreerr.InvalidArgument("unknown asset " + id)
		}
		avail := c.balances.Get(userID, balance.Available, id)
		frozen := c.balances.Get(userID, balance.Freeze, id)
		out = append(out, BalanceRow{
			Asset:     id,
			Available: avail.RoundHalfEven(cfg.PrecShow),
			Frozen:    frozen.RoundHalfEven(cfg.PrecShow),
		})
	}
	return out, nil
}

// OrderBookDepth implements the OrderBookDepth RPC.
func (c *Controller) OrderBookDepth(marketName string, limit int, interval types.Decimal) (asks, bids []market.DepthLevel, err error) {
	m, ok := c.markets.Get(marketName)
	if !ok {
		return nil, nil, coreerr.InvalidArgument("unknown market " + marketName)
	}
	asks, bids = m.Depth(limit, interval)
	return asks, bids, nil
}

// OrderDetail implements the OrderDetail RPC.
func (c *Controller) OrderDetail(marketName string, orderID uint64) (market.Order, error) {
	m, ok := c.markets.Get(marketName)
	if !ok {
		return market.Order{}, coreerr.InvalidArgument("unknown market " + marketName)
	}
	o, ok := m.Order(orderID)
	if !ok {
		return market.Order{}, coreerr.InvalidArgument("order not found")
	}
	return o, nil
}

// OrderQueryResult is the OrderQuery RPC's paginated response shape.
type OrderQueryResult struct {
	Orders []market.Order
	Total  int
	Offset int
	Limit  int
}

// OrderQuery implements the OrderQuery RPC: every currently-resting
// order for (user, market), newest first, paginated. Only resting
// orders are queryable here — terminal orders are the downstream
// history writers' concern (spec.md §1 scope).
func (c *Controller) OrderQuery(userID uint32, marketName string, offset, limit int) (OrderQueryResult, error) {
	m, ok := c.markets.Get(marketName)
	if !ok {
		return OrderQueryResult{}, coreerr.InvalidArgument("unknown market " + marketName)
	}
	if limit <= 0 || limit > c.orderQueryMaxLimit {
		return OrderQueryResult{}, coreerr.InvalidArgument("limit out of range")
	}
	orders := m.UserOrders(userID)
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID > orders[j].ID })

	total := len(orders)
	if offset >= total {
		return OrderQueryResult{Orders: nil, Total: total, Offset: offset, Limit: limit}, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return OrderQueryResult{Orders: orders[offset:end], Total: total, Offset: offset, Limit: limit}, nil
}
