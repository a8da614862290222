package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// TradeService defines what the trade handler needs from the service layer.
type TradeService interface {
	Trade(ctx context.Context, id string, account common.Address, side domain.Side, amount, payment uint64) (domain.TradeReceipt, error)
	Claim(ctx context.Context, id string, account common.Address, side domain.Side, burn uint64) (domain.Payout, error)
}

// TradeHandler serves the trade and claim endpoints.
type TradeHandler struct {
	trades TradeService
	logger *slog.Logger
}

// NewTradeHandler creates a TradeHandler with the given service and logger.
func NewTradeHandler(trades TradeService, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades: trades,
		logger: logger,
	}
}

// tradeRequest is the JSON body for buying shares. Amount and payment are
// decimal strings in the collateral token's smallest unit; payment is the
// maximum the account authorizes, acting as a slippage bound.
type tradeRequest struct {
	Account string `json:"account"`
	Side    string `json:"side"`
	Amount  string `json:"amount"`
	Payment string `json:"payment"`
}

// Trade buys shares on one side of a market.
// POST /api/markets/{id}/trades
func (h *TradeHandler) Trade(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	account, ok := parseAddress(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	amount, ok := parseUint(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	payment, ok := parseUint(req.Payment)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid payment")
		return
	}

	receipt, err := h.trades.Trade(r.Context(), id, account, side, amount, payment)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: trade rejected",
			slog.String("market_id", id),
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// claimRequest is the JSON body for redeeming shares after resolution.
type claimRequest struct {
	Account string `json:"account"`
	Side    string `json:"side"`
	Burn    string `json:"burn"`
}

// Claim burns shares against a terminal market and pays the claimant.
// POST /api/markets/{id}/claims
func (h *TradeHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	account, ok := parseAddress(req.Account)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}
	burn, ok := parseUint(req.Burn)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid burn amount")
		return
	}

	payout, err := h.trades.Claim(r.Context(), id, account, side, burn)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: claim rejected",
			slog.String("market_id", id),
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payout)
}
