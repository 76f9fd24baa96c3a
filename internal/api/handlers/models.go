package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/contribution-reconciler/internal/api/dto"
	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/filemodel"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// ModelsHandler manages trained file models.
type ModelsHandler struct {
	*Base
}

// NewModelsHandler creates a new file models handler.
func NewModelsHandler(svc *service.ReconciliationService, logger *slog.Logger) *ModelsHandler {
	return &ModelsHandler{Base: NewBase(svc, logger)}
}

// List handles GET /api/models?owner_id=
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	list := h.svc.Models(r.URL.Query().Get("owner_id"))
	if list == nil {
		list = []models.FileModel{}
	}
	h.WriteJSON(w, http.StatusOK, dto.ModelListResponse{Models: list, Count: len(list)})
}

// Get handles GET /api/models/{id}
func (h *ModelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	model, err := h.svc.Model(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, model)
}

// Create handles POST /api/models - trains a new model version.
func (h *ModelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.TrainModelRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	model, err := h.svc.TrainModel(service.TrainRequest{
		Name:         req.Name,
		OwnerID:      req.OwnerID,
		LineageID:    req.LineageID,
		Global:       req.Global,
		Approve:      req.Approve,
		Sample:       req.Sample,
		Fingerprint:  req.Fingerprint,
		Mapping:      req.Mapping,
		ParsingRules: req.ParsingRules,
	})
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, model)
}

// Update handles PATCH /api/models/{id}
func (h *ModelsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateModelRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	model, err := h.svc.UpdateModel(chi.URLParam(r, "id"), filemodel.Patch{
		Name:         req.Name,
		Status:       req.Status,
		Global:       req.Global,
		IsActive:     req.IsActive,
		Mapping:      req.Mapping,
		ParsingRules: req.ParsingRules,
		Snippet:      req.Snippet,
	})
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, model)
}

// Delete handles DELETE /api/models/{id}
func (h *ModelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteModel(chi.URLParam(r, "id")); err != nil {
		h.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
