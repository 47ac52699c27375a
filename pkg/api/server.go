package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/fluidex-clob/matchcore/coreerr"
	"github.com/fluidex-clob/matchcore/pkg/core/asset"
	"github.com/fluidex-clob/matchcore/pkg/core/controller"
	"github.com/fluidex-clob/matchcore/pkg/core/market"
	"github.com/fluidex-clob/matchcore/pkg/core/persist"
	"github.com/fluidex-clob/matchcore/pkg/types"
)

// Server wraps the Controller's RPC surface in an HTTP+websocket API.
type Server struct {
	ctl    *controller.Controller
	bus    *persist.BusSink
	router *mux.Router
	log    *zap.SugaredLogger
	cors   []string
}

// NewServer builds a Server and wires its route table. bus may be nil if
// no websocket feed is configured.
func NewServer(ctl *controller.Controller, bus *persist.BusSink, corsOrigins []string, log *zap.SugaredLogger) *Server {
	s := &Server{ctl: ctl, bus: bus, router: mux.NewRouter(), log: log, cors: corsOrigins}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	v1.HandleFunc("/assets", s.handleAssetList).Methods("GET")
	v1.HandleFunc("/markets", s.handleMarketList).Methods("GET")
	v1.HandleFunc("/markets/summary", s.handleMarketSummary).Methods("GET")
	v1.HandleFunc("/markets/{market}/depth", s.handleDepth).Methods("GET")
	v1.HandleFunc("/markets/{market}/orders/{orderID}", s.handleOrderDetail).Methods("GET")
	v1.HandleFunc("/markets/{market}/orders", s.handleOrderQuery).Methods("GET")

	v1.HandleFunc("/users/register", s.handleRegisterUser).Methods("POST")
	v1.HandleFunc("/users/{userID}/balances", s.handleBalanceQuery).Methods("GET")

	v1.HandleFunc("/balances/update", s.handleBalanceUpdate).Methods("POST")
	v1.HandleFunc("/transfer", s.handleTransfer).Methods("POST")

	v1.HandleFunc("/orders", s.handleOrderPut).Methods("POST")
	v1.HandleFunc("/orders/cancel", s.handleOrderCancel).Methods("POST")
	v1.HandleFunc("/orders/cancel-all", s.handleOrderCancelAll).Methods("POST")

	v1.HandleFunc("/admin/reload-markets", s.handleReloadMarkets).Methods("POST")
	v1.HandleFunc("/admin/debug-reset", s.handleDebugReset).Methods("POST")
	v1.HandleFunc("/admin/debug-reload", s.handleDebugReload).Methods("POST")
	v1.HandleFunc("/admin/debug-dump", s.handleDebugDump).Methods("POST")

	if s.bus != nil {
		s.router.HandleFunc("/ws", s.bus.ServeWS)
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the bus sink's fan-out loop (if configured) and serves
// the router behind CORS, blocking until the listener fails.
func (s *Server) Start(addr string) error {
	if s.bus != nil {
		go s.bus.Run()
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cors,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	handler := c.Handler(s.router)
	if s.log != nil {
		s.log.Infow("api server starting", "addr", addr)
	}
	return http.ListenAndServe(addr, handler)
}

// Router exposes the mux.Router directly, e.g. for httptest in tests.
func (s *Server) Router() *mux.Router { return s.router }

// ==============================
// Read handlers
// ==============================

func (s *Server) handleAssetList(w http.ResponseWriter, r *http.Request) {
	cfgs := s.ctl.AssetList()
	out := make([]AssetInfo, len(cfgs))
	for i, c := range cfgs {
		out[i] = AssetInfo{ID: c.ID, PrecStor: c.PrecStor, PrecShow: c.PrecShow}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleMarketList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.ctl.MarketNames())
}

func (s *Server) handleMarketSummary(w http.ResponseWriter, r *http.Request) {
	var names []string
	if q := r.URL.Query().Get("markets"); q != "" {
		names = strings.Split(q, ",")
	}
	rows, err := s.ctl.MarketSummary(names)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]MarketSummaryInfo, len(rows))
	for i, row := range rows {
		out[i] = MarketSummaryInfo{
			Name: row.Name, AskCount: row.Status.AskCount, AskAmount: row.Status.AskAmount,
			BidCount: row.Status.BidCount, BidAmount: row.Status.BidAmount, Trades: row.Status.TradeCount,
		}
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	marketName := mux.Vars(r)["market"]
	limit := queryInt(r, "limit", 50)
	interval := types.Zero
	if q := r.URL.Query().Get("interval"); q != "" {
		d, err := types.Parse(q)
		if err != nil {
			respondError(w, coreerr.InvalidArgument("invalid interval"))
			return
		}
		interval = d
	}
	asks, bids, err := s.ctl.OrderBookDepth(marketName, limit, interval)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, DepthInfo{Market: marketName, Asks: toDepthInfo(asks), Bids: toDepthInfo(bids)})
}

func toDepthInfo(levels []market.DepthLevel) []DepthLevelInfo {
	out := make([]DepthLevelInfo, len(levels))
	for i, l := range levels {
		out[i] = DepthLevelInfo{Price: l.Price, Amount: l.Amount}
	}
	return out
}

func (s *Server) handleOrderDetail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orderID, err := strconv.ParseUint(vars["orderID"], 10, 64)
	if err != nil {
		respondError(w, coreerr.InvalidArgument("invalid order id"))
		return
	}
	o, err := s.ctl.OrderDetail(vars["market"], orderID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderInfo(o))
}

func (s *Server) handleOrderQuery(w http.ResponseWriter, r *http.Request) {
	marketName := mux.Vars(r)["market"]
	userID, err := strconv.ParseUint(r.URL.Query().Get("user"), 10, 32)
	if err != nil {
		respondError(w, coreerr.InvalidArgument("invalid or missing user"))
		return
	}
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	res, err := s.ctl.OrderQuery(uint32(userID), marketName, offset, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	orders := make([]OrderInfo, len(res.Orders))
	for i, o := range res.Orders {
		orders[i] = toOrderInfo(o)
	}
	respondJSON(w, http.StatusOK, OrderQueryResponse{Orders: orders, Total: res.Total, Offset: res.Offset, Limit: res.Limit})
}

func (s *Server) handleBalanceQuery(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseUint(mux.Vars(r)["userID"], 10, 32)
	if err != nil {
		respondError(w, coreerr.InvalidArgument("invalid user id"))
		return
	}
	var assetIDs []string
	if q := r.URL.Query().Get("assets"); q != "" {
		assetIDs = strings.Split(q, ",")
	}
	rows, err := s.ctl.BalanceQuery(uint32(userID), assetIDs)
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]BalanceInfo, len(rows))
	for i, row := range rows {
		out[i] = BalanceInfo{Asset: row.Asset, Available: row.Available, Frozen: row.Frozen}
	}
	respondJSON(w, http.StatusOK, out)
}

// ==============================
// Write handlers
// ==============================

func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	info, err := s.ctl.RegisterUser(req.L1Address, req.L2Pubkey, true, nowUnix())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, UserInfo{UserID: info.UserID, L1Address: info.L1Address, L2Pubkey: info.L2Pubkey})
}

func (s *Server) handleBalanceUpdate(w http.ResponseWriter, r *http.Request) {
	var req BalanceUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	bal, err := s.ctl.BalanceUpdate(controller.BalanceUpdateParams{
		UserID: req.UserID, Asset: req.Asset, Business: req.Business,
		BusinessID: req.BusinessID, Change: req.Change, Detail: req.Detail,
	}, true, time.Now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, BalanceUpdateResponse{Balance: bal})
}

func (s *Server) handleOrderPut(w http.ResponseWriter, r *http.Request) {
	var req OrderPutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, err)
		return
	}
	typ, err := parseType(req.Type)
	if err != nil {
		respondError(w, err)
		return
	}
	var sig []byte
	if req.Signature != "" {
		sig, err = hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
		if err != nil {
			respondError(w, coreerr.InvalidArgument("invalid signature hex"))
			return
		}
	}
	o, err := s.ctl.OrderPut(controller.OrderPutRequest{
		UserID: req.UserID, Market: req.Market, Side: side, Type: typ,
		Amount: req.Amount, Price: req.Price, QuoteLimit: req.QuoteLimit,
		TakerFee: req.TakerFee, MakerFee: req.MakerFee, PostOnly: req.PostOnly,
		Nonce: req.Nonce, Signature: sig,
	}, true, nowUnix())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderInfo(o))
}

func (s *Server) handleOrderCancel(w http.ResponseWriter, r *http.Request) {
	var req OrderCancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := s.ctl.OrderCancel(controller.OrderCancelParams{UserID: req.UserID, Market: req.Market, OrderID: req.OrderID}, true, nowUnix())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderInfo(o))
}

func (s *Server) handleOrderCancelAll(w http.ResponseWriter, r *http.Request) {
	var req OrderCancelAllRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := s.ctl.OrderCancelAll(controller.OrderCancelAllParams{UserID: req.UserID, Market: req.Market}, true, nowUnix())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, OrderCancelAllResponse{Cancelled: n})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := s.ctl.Transfer(req.From, req.To, req.Asset, req.Delta, req.Memo, true, time.Now())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, TransferResponse{Success: res.Success, Asset: res.Asset, BalanceFrom: res.BalanceFrom})
}

func (s *Server) handleReloadMarkets(w http.ResponseWriter, r *http.Request) {
	var req ReloadMarketsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.ctl.ReloadMarkets(toReloadParams(req), true, nowUnix()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleDebugReset(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.DebugReset(true, nowUnix()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleDebugReload(w http.ResponseWriter, r *http.Request) {
	var req ReloadMarketsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	params := toReloadParams(req)
	if err := s.ctl.DebugReload(params.Assets, params.Markets, true, nowUnix()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleDebugDump(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.DebugDump(nowUnix()); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "dumped"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func toReloadParams(req ReloadMarketsRequest) controller.ReloadMarketsParams {
	assets := make([]asset.Config, len(req.Assets))
	for i, a := range req.Assets {
		assets[i] = asset.Config{ID: a.ID, PrecStor: a.PrecStor, PrecShow: a.PrecShow}
	}
	markets := make([]market.Config, len(req.Markets))
	for i, m := range req.Markets {
		markets[i] = market.Config{
			Name: m.Name, Base: m.Base, Quote: m.Quote,
			AmountPrec: m.AmountPrec, PricePrec: m.PricePrec, FeePrec: m.FeePrec, MinAmount: m.MinAmount,
		}
	}
	return controller.ReloadMarketsParams{Assets: assets, Markets: markets, FromScratch: req.FromScratch}
}

func toOrderInfo(o market.Order) OrderInfo {
	return OrderInfo{
		ID: o.ID, Market: o.Market, Base: o.Base, Quote: o.Quote,
		Type: o.Type.String(), Side: o.Side.String(), User: o.User,
		CreateTime: o.CreateTime, UpdateTime: o.UpdateTime,
		Price: o.Price, Amount: o.Amount, TakerFee: o.TakerFee, MakerFee: o.MakerFee,
		Remain: o.Remain, Frozen: o.Frozen,
		FinishedBase: o.FinishedBase, FinishedQuote: o.FinishedQuote, FinishedFee: o.FinishedFee,
		PostOnly: o.PostOnly,
	}
}

func parseSide(s string) (market.Side, error) {
	switch strings.ToUpper(s) {
	case "ASK":
		return market.Ask, nil
	case "BID":
		return market.Bid, nil
	default:
		return 0, coreerr.InvalidArgument("side must be ASK or BID")
	}
}

func parseType(s string) (market.Type, error) {
	switch strings.ToUpper(s) {
	case "LIMIT":
		return market.Limit, nil
	case "MARKET":
		return market.Market, nil
	default:
		return 0, coreerr.InvalidArgument("type must be LIMIT or MARKET")
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func nowUnix() float64 { return float64(time.Now().UnixNano()) / 1e9 }

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, coreerr.InvalidArgument("malformed JSON body: "+err.Error()))
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError maps the coreerr taxonomy to a transport status, per
// spec.md §7: the API layer never string-matches error text.
func respondError(w http.ResponseWriter, err error) {
	kind := coreerr.KindInternal
	reason := err.Error()
	var ce *coreerr.Error
	if errors.As(err, &ce) {
		kind = ce.Kind
		reason = ce.Reason
	}
	status := http.StatusInternalServerError
	switch kind {
	case coreerr.KindInvalidArgument:
		status = http.StatusBadRequest
	case coreerr.KindInsufficientBalance:
		status = http.StatusUnprocessableEntity
	case coreerr.KindDuplicateRequest:
		status = http.StatusConflict
	case coreerr.KindUnavailable:
		status = http.StatusServiceUnavailable
	case coreerr.KindInternal:
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, ErrorResponse{Kind: kind.String(), Reason: reason})
}

