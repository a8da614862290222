package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/engine"
)

// MarketService defines the methods that the market handler requires from the
// service layer. It is declared locally so the handler package does not depend
// on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, p engine.CreateParams) (domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	ListMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	ListMarketsByState(ctx context.Context, state domain.MarketState, opts domain.ListOpts) ([]domain.Market, error)
	Quote(ctx context.Context, id string, side domain.Side, amount uint64) (domain.Quote, error)
	History(ctx context.Context, id string, opts domain.ListOpts) ([]domain.SettlementEntry, error)
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the JSON body for opening a new market. Collateral
// amounts travel as decimal strings; timestamps as RFC 3339.
type createMarketRequest struct {
	Question   string `json:"question"`
	Creator    string `json:"creator"`
	Oracle     string `json:"oracle"`
	EndTime    string `json:"end_time"`
	FeeRateBps uint64 `json:"fee_rate_bps"`
}

// CreateMarket opens a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	creator, ok := parseAddress(req.Creator)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid creator address")
		return
	}
	oracle, ok := parseAddress(req.Oracle)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid oracle address")
		return
	}
	endTime, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_time, want RFC 3339")
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), engine.CreateParams{
		Question:   req.Question,
		Creator:    creator,
		Oracle:     oracle,
		EndTime:    endTime,
		FeeRateBps: req.FeeRateBps,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: create market failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets with pagination, optionally filtered by state.
// GET /api/markets?state=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		markets []domain.Market
		err     error
	)
	if state := r.URL.Query().Get("state"); state != "" {
		markets, err = h.markets.ListMarketsByState(r.Context(), domain.MarketState(state), opts)
	} else {
		markets, err = h.markets.ListMarkets(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	m, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// Quote prices a prospective purchase without executing it.
// GET /api/markets/{id}/quote?side=yes&amount=100
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	side, ok := parseSide(r.URL.Query().Get("side"))
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	amount, ok := parseUint(r.URL.Query().Get("amount"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	q, err := h.markets.Quote(r.Context(), id, side, amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, q)
}

// History returns a market's settlement log in insertion order.
// GET /api/markets/{id}/history
func (h *MarketHandler) History(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	entries, err := h.markets.History(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
