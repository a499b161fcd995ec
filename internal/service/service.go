// Package service provides the HTTP surface of the pool engine:
// market administration, maker deposits and withdrawals, taker fills,
// proceeds claims, and the read-only depth, quote and history views.
//
// Ledger amounts are integer base units on the wire; decimal fields are
// display-only companions.
package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/obmx/pool-engine/internal/book"
	"github.com/obmx/pool-engine/internal/enginerr"
	"github.com/obmx/pool-engine/internal/metrics"
	"github.com/obmx/pool-engine/internal/model"
	"github.com/obmx/pool-engine/internal/pool"
	"github.com/obmx/pool-engine/internal/pricing"
	"github.com/obmx/pool-engine/internal/store"
	"github.com/obmx/pool-engine/internal/vault"
)

// MarketAdmin opens and closes markets on the settlement vault. The
// vault is authoritative for trading state; the store only mirrors it.
type MarketAdmin interface {
	OpenMarket(marketID string)
	CloseMarket(marketID string)
}

// Service handles market operations over HTTP. Execution serializes
// inside the book; handlers here stay lock-free.
type Service struct {
	store store.Store
	book  *book.Book
	vault vault.Vault
	admin MarketAdmin
	wsHub *WSHub // optional hub for real-time broadcasts
}

// NewService creates a new engine service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, b *book.Book, v vault.Vault, admin MarketAdmin, hub *WSHub) *Service {
	return &Service{
		store: st,
		book:  b,
		vault: v,
		admin: admin,
		wsHub: hub,
	}
}

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	ID string `json:"id"` // optional; generated when empty
}

// DepositRequest is the JSON body for POST /deposit.
type DepositRequest struct {
	MarketID string `json:"market_id"`
	Side     string `json:"side"`  // "YES" or "NO"
	Kind     string `json:"kind"`  // "ASK" or "BID"
	Price    uint32 `json:"price"` // integer price, 1..9999
	Actor    string `json:"actor"`
	Amount   uint64 `json:"amount"`
}

// DepositResponse is returned from POST /deposit.
type DepositResponse struct {
	Units        uint64          `json:"units"`
	Price        uint32          `json:"price"`
	PriceDecimal decimal.Decimal `json:"price_decimal"`
}

// TakerRequest is the JSON body for POST /buy and POST /sell.
type TakerRequest struct {
	MarketID   string `json:"market_id"`
	Side       string `json:"side"`
	Size       uint64 `json:"size"`
	PriceLimit uint32 `json:"price_limit"` // 0 = fallback only
	Minimum    uint64 `json:"minimum"`     // min fill (buy) or min proceeds (sell)
	Actor      string `json:"actor"`
	Deadline   int64  `json:"deadline"` // unix seconds; 0 = no deadline
}

// TakerResponse is returned from POST /buy and POST /sell.
type TakerResponse struct {
	SizeFilled  uint64          `json:"size_filled"`
	PoolFilled  uint64          `json:"pool_filled"`
	PoolFlow    uint64          `json:"pool_flow"`
	FallbackOut uint64          `json:"fallback_out"`
	Sources     []string        `json:"sources"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
}

// PositionRequest identifies one position for claims and withdrawals.
type PositionRequest struct {
	MarketID string `json:"market_id"`
	Side     string `json:"side"`
	Kind     string `json:"kind"`
	Price    uint32 `json:"price"`
	Actor    string `json:"actor"`
	Amount   uint64 `json:"amount"` // withdraw only; 0 = everything
}

// --- HTTP Handlers ---

// CreateMarket handles POST /api/v1/markets
func (s *Service) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	ctx := r.Context()
	market := &model.Market{
		ID:              id,
		CollateralToken: s.vault.CollateralToken(ctx, id),
		Status:          "open",
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.store.CreateMarket(ctx, market); err != nil {
		writeError(w, err.Error(), http.StatusConflict)
		return
	}
	s.admin.OpenMarket(id)
	metrics.ActiveMarkets.Inc()

	slog.Info("market created", "id", id, "collateral", market.CollateralToken)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(market)
}

// CloseMarket handles POST /api/v1/markets/{marketID}/close
func (s *Service) CloseMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	if err := s.store.SetMarketStatus(r.Context(), marketID, "closed"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, "market not found", http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.admin.CloseMarket(marketID)
	metrics.ActiveMarkets.Dec()

	slog.Info("market closed", "id", marketID)
	w.WriteHeader(http.StatusNoContent)
}

// GetMarket handles GET /api/v1/markets/{marketID}
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	market, err := s.store.GetMarket(r.Context(), marketID)
	if err != nil {
		writeError(w, "market not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(market)
}

// ListMarkets handles GET /api/v1/markets
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(markets)
}

// Deposit handles POST /api/v1/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		writeError(w, "actor is required", http.StatusBadRequest)
		return
	}
	side, err := pool.ParseSide(req.Side)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	kind, err := pool.ParseKind(req.Kind)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	units, err := s.book.Deposit(r.Context(), req.MarketID, side, req.Price, kind, req.Actor, req.Amount)
	if err != nil {
		if enginerr.CodeOf(err) == enginerr.CodeEscrowLimit {
			metrics.EscrowLimitRejections.Inc()
		}
		writeEngineError(w, err)
		return
	}
	metrics.DepositsTotal.WithLabelValues(kind.String()).Inc()

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "deposit",
			MarketID: req.MarketID,
			Side:     req.Side,
			Kind:     req.Kind,
			Price:    pricing.ToDecimal(uint64(req.Price)).String(),
			Amount:   strconv.FormatUint(req.Amount, 10),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(DepositResponse{
		Units:        units,
		Price:        req.Price,
		PriceDecimal: pricing.ToDecimal(uint64(req.Price)),
	})
}

// Buy handles POST /api/v1/buy
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	s.taker(w, r, "buy")
}

// Sell handles POST /api/v1/sell
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	s.taker(w, r, "sell")
}

func (s *Service) taker(w http.ResponseWriter, r *http.Request, direction string) {
	var req TakerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Actor == "" {
		writeError(w, "actor is required", http.StatusBadRequest)
		return
	}
	side, err := pool.ParseSide(req.Side)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	start := time.Now()
	var res book.FillResult
	if direction == "buy" {
		res, err = s.book.TakerBuy(r.Context(), req.MarketID, side, req.Size, req.PriceLimit, req.Minimum, req.Actor, req.Deadline)
	} else {
		res, err = s.book.TakerSell(r.Context(), req.MarketID, side, req.Size, req.PriceLimit, req.Minimum, req.Actor, req.Deadline)
	}
	metrics.FillLatency.WithLabelValues(direction).Observe(time.Since(start).Seconds())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	for _, source := range res.Sources {
		metrics.FillsTotal.WithLabelValues(direction, source).Inc()
	}
	metrics.MarketVolume.WithLabelValues(req.MarketID, req.Side).Add(float64(res.SizeFilled))

	// Average pool execution price for display. Fallback legs price
	// themselves and are reported separately.
	var avg decimal.Decimal
	if res.PoolFilled > 0 {
		avg = decimal.NewFromInt(int64(res.PoolFlow)).
			Div(decimal.NewFromInt(int64(res.PoolFilled))).Round(4)
	}

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:     "fill",
			MarketID: req.MarketID,
			Side:     req.Side,
			Price:    pricing.ToDecimal(uint64(req.PriceLimit)).String(),
			Amount:   strconv.FormatUint(res.SizeFilled, 10),
			Sources:  res.Sources,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(TakerResponse{
		SizeFilled:  res.SizeFilled,
		PoolFilled:  res.PoolFilled,
		PoolFlow:    res.PoolFlow,
		FallbackOut: res.FallbackOut,
		Sources:     res.Sources,
		AvgPrice:    avg,
	})
}

// Claim handles POST /api/v1/claim
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	side, kind, ok := s.decodePosition(w, r, &req)
	if !ok {
		return
	}

	proceeds, err := s.book.Claim(r.Context(), req.MarketID, side, req.Price, kind, req.Actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.ClaimsTotal.Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]uint64{"proceeds": proceeds})
}

// Withdraw handles POST /api/v1/withdraw
func (s *Service) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req PositionRequest
	side, kind, ok := s.decodePosition(w, r, &req)
	if !ok {
		return
	}

	principal, err := s.book.Withdraw(r.Context(), req.MarketID, side, req.Price, kind, req.Actor, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.WithdrawsTotal.Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]uint64{"principal": principal})
}

func (s *Service) decodePosition(w http.ResponseWriter, r *http.Request, req *PositionRequest) (pool.Side, pool.Kind, bool) {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return 0, 0, false
	}
	if req.Actor == "" {
		writeError(w, "actor is required", http.StatusBadRequest)
		return 0, 0, false
	}
	side, err := pool.ParseSide(req.Side)
	if err != nil {
		writeEngineError(w, err)
		return 0, 0, false
	}
	kind, err := pool.ParseKind(req.Kind)
	if err != nil {
		writeEngineError(w, err)
		return 0, 0, false
	}
	return side, kind, true
}

// GetDepth handles GET /api/v1/markets/{marketID}/depth?side=YES&kind=ASK
func (s *Service) GetDepth(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	side, err := pool.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	kind, err := pool.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	levels := s.book.Depth(marketID, side, kind)
	if levels == nil {
		levels = []model.DepthLevel{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(levels)
}

// BookLevel is one side of the top of book.
type BookLevel struct {
	Price        uint32          `json:"price"`
	PriceDecimal decimal.Decimal `json:"price_decimal"`
	Depth        uint64          `json:"depth"`
}

// GetTopOfBook handles GET /api/v1/markets/{marketID}/book?side=YES
func (s *Service) GetTopOfBook(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	side, err := pool.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := make(map[string]*BookLevel, 2)
	if price, depth, ok := s.book.BestAsk(marketID, side); ok {
		resp["best_ask"] = &BookLevel{Price: price, PriceDecimal: pricing.ToDecimal(uint64(price)), Depth: depth}
	}
	if price, depth, ok := s.book.BestBid(marketID, side); ok {
		resp["best_bid"] = &BookLevel{Price: price, PriceDecimal: pricing.ToDecimal(uint64(price)), Depth: depth}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// QuoteResponse is the JSON form of a simulated fill.
type QuoteResponse struct {
	SizeOut       uint64          `json:"size_out"`
	TotalFlow     uint64          `json:"total_flow"`
	AvgPrice      uint64          `json:"avg_price"`
	AvgDecimal    decimal.Decimal `json:"avg_decimal"`
	LevelsTouched int             `json:"levels_touched"`
}

// GetQuote handles GET /api/v1/markets/{marketID}/quote?side=YES&direction=buy&amount=N
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	side, err := pool.ParseSide(r.URL.Query().Get("side"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil {
		writeError(w, "amount must be a positive integer", http.StatusBadRequest)
		return
	}

	var q book.Quote
	switch direction := r.URL.Query().Get("direction"); direction {
	case "buy":
		q, err = s.book.QuoteBuy(marketID, side, amount)
	case "sell":
		q, err = s.book.QuoteSell(marketID, side, amount)
	default:
		writeError(w, "direction must be buy or sell", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(QuoteResponse{
		SizeOut:       q.SizeOut,
		TotalFlow:     q.TotalFlow,
		AvgPrice:      q.AvgPrice,
		AvgDecimal:    pricing.ToDecimal(q.AvgPrice),
		LevelsTouched: q.LevelsTouched,
	})
}

// GetPositions handles GET /api/v1/markets/{marketID}/positions/{actor}
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	actor := chi.URLParam(r, "actor")

	views := s.book.UserPositions(marketID, actor)
	if views == nil {
		views = []model.PositionView{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

// GetMarketHistory handles GET /api/v1/markets/{marketID}/history?limit=N
func (s *Service) GetMarketHistory(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	events, err := s.store.EventsByMarket(r.Context(), marketID, queryLimit(r))
	if err != nil {
		writeError(w, "failed to get market history", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

// GetActorHistory handles GET /api/v1/actors/{actor}/history?limit=N
func (s *Service) GetActorHistory(w http.ResponseWriter, r *http.Request) {
	actor := chi.URLParam(r, "actor")

	events, err := s.store.EventsByActor(r.Context(), actor, queryLimit(r))
	if err != nil {
		writeError(w, "failed to get actor history", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []model.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 0 {
		limit = 0
	}
	return limit
}

// writeEngineError maps engine error kinds onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch enginerr.KindOf(err) {
	case enginerr.KindValidation, enginerr.KindTiming:
		status = http.StatusBadRequest
	case enginerr.KindState, enginerr.KindLiquidity:
		status = http.StatusConflict
	case enginerr.KindTransfer:
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": err.Error(),
		"code":  enginerr.CodeOf(err),
	})
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
