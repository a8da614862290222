package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// PositionService defines what the position handler needs from the service
// layer.
type PositionService interface {
	Position(ctx context.Context, id string, account common.Address, side domain.Side) (uint64, error)
	ListPositionsByAccount(ctx context.Context, account common.Address, opts domain.ListOpts) ([]domain.Position, error)
}

// PositionHandler serves share-balance endpoints.
type PositionHandler struct {
	positions PositionService
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler with the given service and
// logger.
func NewPositionHandler(positions PositionService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		logger:    logger,
	}
}

// GetMarketPosition returns one account's live balance on one side of a
// market.
// GET /api/markets/{id}/positions?account=0x..&side=yes
func (h *PositionHandler) GetMarketPosition(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	account, ok := parseAddress(r.URL.Query().Get("account"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}
	side, ok := parseSide(r.URL.Query().Get("side"))
	if !ok {
		writeError(w, http.StatusBadRequest, "side must be yes or no")
		return
	}

	shares, err := h.positions.Position(r.Context(), id, account, side)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"account":   account.Hex(),
		"side":      side,
		"shares":    shares,
	})
}

// ListAccountPositions returns an account's persisted positions across
// markets.
// GET /api/positions?account=0x..&limit=50&offset=0
func (h *PositionHandler) ListAccountPositions(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(r.URL.Query().Get("account"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid account address")
		return
	}

	positions, err := h.positions.ListPositionsByAccount(r.Context(), account, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list positions failed",
			slog.String("account", account.Hex()),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"positions": positions})
}
