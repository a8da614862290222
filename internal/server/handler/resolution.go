package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// ResolutionService defines what the resolution handler needs from the
// service layer.
type ResolutionService interface {
	Report(ctx context.Context, id string, reporter common.Address, side domain.Side, sigHex string) (domain.Market, error)
	ResolveExpired(ctx context.Context, id string) (domain.Market, error)
	EmergencyResolveInvalid(ctx context.Context, id string, caller common.Address) (domain.Market, error)
	Cancel(ctx context.Context, id string, caller common.Address) (domain.Market, error)
}

// ResolutionHandler serves the state-transition endpoints.
type ResolutionHandler struct {
	resolutions ResolutionService
	logger      *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler with the given service and
// logger.
func NewResolutionHandler(resolutions ResolutionService, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		resolutions: resolutions,
		logger:      logger,
	}
}

// reportRequest is the JSON body for an oracle outcome report. Signature is
// required when the service is configured for signed reports.
type reportRequest struct {
	Reporter  string `json:"reporter"`
	Outcome   string `json:"outcome"` // winning side: "yes" or "no"
	Signature string `json:"signature,omitempty"`
}

// Report records the oracle's outcome for a market.
// POST /api/markets/{id}/report
func (h *ResolutionHandler) Report(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	reporter, ok := parseAddress(req.Reporter)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid reporter address")
		return
	}
	side, ok := parseSide(req.Outcome)
	if !ok {
		writeError(w, http.StatusBadRequest, "outcome must be yes or no")
		return
	}

	m, err := h.resolutions.Report(r.Context(), id, reporter, side, req.Signature)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: report rejected",
			slog.String("market_id", id),
			slog.String("reporter", reporter.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// ResolveExpired voids a market whose trading window closed without a report.
// Anyone may call it.
// POST /api/markets/{id}/resolve-expired
func (h *ResolutionHandler) ResolveExpired(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	m, err := h.resolutions.ResolveExpired(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// callerRequest carries the address asserting an administrative action.
type callerRequest struct {
	Caller string `json:"caller"`
}

// EmergencyResolveInvalid voids a market regardless of its trading window.
// Restricted to the engine owner.
// POST /api/markets/{id}/emergency-invalid
func (h *ResolutionHandler) EmergencyResolveInvalid(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	m, err := h.resolutions.EmergencyResolveInvalid(r.Context(), id, caller)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: emergency invalid rejected",
			slog.String("market_id", id),
			slog.String("caller", caller.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// Cancel voids a market with no trading activity. Restricted to the creator.
// POST /api/markets/{id}/cancel
func (h *ResolutionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req callerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid caller address")
		return
	}

	m, err := h.resolutions.Cancel(r.Context(), id, caller)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}
