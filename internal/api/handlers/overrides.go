package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/contribution-reconciler/internal/api/dto"
	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// OverridesHandler applies manual decisions to single results.
type OverridesHandler struct {
	*Base
}

// NewOverridesHandler creates a new overrides handler.
func NewOverridesHandler(svc *service.ReconciliationService, logger *slog.Logger) *OverridesHandler {
	return &OverridesHandler{Base: NewBase(svc, logger)}
}

// Confirm handles POST /api/sessions/{id}/results/{txID}/confirm
func (h *OverridesHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req dto.ConfirmRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	contributor := models.Contributor{Name: req.Contributor.Name, OriginalAmount: req.Contributor.Amount}
	if req.Contributor.Amount != "" {
		amount, err := extraction.ParseAmount(req.Contributor.Amount)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.ValidationError(fmt.Sprintf("invalid amount %q", req.Contributor.Amount)))
			return
		}
		contributor.Amount = amount
	}

	result, err := h.svc.Confirm(service.ConfirmRequest{
		SessionID:     chi.URLParam(r, "id"),
		TransactionID: chi.URLParam(r, "txID"),
		ChurchID:      req.ChurchID,
		Contributor:   contributor,
	})
	h.respond(w, result, err)
}

// ConfirmDivergence handles POST .../divergence/confirm - the fresh match wins.
func (h *OverridesHandler) ConfirmDivergence(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.ConfirmDivergence(chi.URLParam(r, "id"), chi.URLParam(r, "txID"))
	h.respond(w, result, err)
}

// RejectDivergence handles POST .../divergence/reject - the learned match wins.
func (h *OverridesHandler) RejectDivergence(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RejectDivergence(chi.URLParam(r, "id"), chi.URLParam(r, "txID"))
	h.respond(w, result, err)
}

// Reopen handles POST .../reopen
func (h *OverridesHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Reopen(chi.URLParam(r, "id"), chi.URLParam(r, "txID"))
	h.respond(w, result, err)
}

func (h *OverridesHandler) respond(w http.ResponseWriter, result *models.MatchResult, err error) {
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.ResultResponse{Result: *result})
}
