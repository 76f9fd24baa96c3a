package handlers

import (
	"log/slog"
	"net/http"

	"github.com/eshaffer321/contribution-reconciler/internal/api/dto"
	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/storage"
)

// RunsHandler serves run history and learned associations.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(svc *service.ReconciliationService, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{Base: NewBase(svc, logger)}
}

// List handles GET /api/runs?session_id=&limit=
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.Runs(storage.RunFilters{
		SessionID: r.URL.Query().Get("session_id"),
		Limit:     ParseIntParam(r, "limit", 20),
	})
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	if runs == nil {
		runs = []storage.Run{}
	}
	h.WriteJSON(w, http.StatusOK, dto.RunListResponse{Runs: runs, Count: len(runs)})
}

// Associations handles GET /api/associations?owner_id=
func (h *RunsHandler) Associations(w http.ResponseWriter, r *http.Request) {
	list := h.svc.Associations(r.URL.Query().Get("owner_id"))
	if list == nil {
		list = []models.LearnedAssociation{}
	}
	h.WriteJSON(w, http.StatusOK, dto.AssociationListResponse{Associations: list, Count: len(list)})
}
