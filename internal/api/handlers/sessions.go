package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/contribution-reconciler/internal/adapters/decoders"
	"github.com/eshaffer321/contribution-reconciler/internal/api/dto"
	"github.com/eshaffer321/contribution-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// SessionsHandler runs reconciliations and serves their results.
type SessionsHandler struct {
	*Base
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(svc *service.ReconciliationService, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{Base: NewBase(svc, logger)}
}

// Reconcile handles POST /api/sessions/{id}/reconcile - full run over a new statement.
func (h *SessionsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req dto.ReconcileRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}
	if req.Statement.Name == "" {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError("statement is required"))
		return
	}

	statement, err := decoders.Decode(req.Statement.Name, req.Statement.Bytes())
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	contributors, err := decodeContributors(req.Contributors)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	outcome, err := h.svc.Reconcile(r.Context(), service.RunRequest{
		SessionID:    chi.URLParam(r, "id"),
		OwnerID:      req.OwnerID,
		Churches:     req.Churches,
		Statement:    statement,
		Contributors: contributors,
		Options:      h.options(req.Options),
	})
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, outcome)
}

// AddContributors handles POST /api/sessions/{id}/contributors - additive run.
func (h *SessionsHandler) AddContributors(w http.ResponseWriter, r *http.Request) {
	var req dto.ContributorsRequest
	if !h.DecodeJSON(w, r, &req) {
		return
	}

	contributors, err := decodeContributors(req.Contributors)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	outcome, err := h.svc.AddContributors(r.Context(), service.RunRequest{
		SessionID:    chi.URLParam(r, "id"),
		OwnerID:      req.OwnerID,
		Churches:     req.Churches,
		Contributors: contributors,
		Options:      h.options(req.Options),
	})
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, outcome)
}

// Results handles GET /api/sessions/{id}/results?status=&church_id=
func (h *SessionsHandler) Results(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")

	var filter service.ResultFilter
	if code := r.URL.Query().Get("status"); code != "" {
		status, err := models.ParseStatus(code)
		if err != nil {
			h.WriteError(w, http.StatusBadRequest, dto.BadRequestError(err.Error()))
			return
		}
		filter.Status = &status
	}
	filter.ChurchID = r.URL.Query().Get("church_id")

	results, err := h.svc.Results(sessionID, filter)
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.ResultListResponse{
		SessionID: sessionID,
		Results:   results,
		Count:     len(results),
	})
}

// Summary handles GET /api/sessions/{id}/summary - per-church totals.
func (h *SessionsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Summary(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, summary)
}

// Get handles GET /api/sessions/{id}
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.Session(chi.URLParam(r, "id"))
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.NewSessionInfo(*session))
}

// List handles GET /api/sessions?owner_id=&limit=
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.svc.Sessions(r.URL.Query().Get("owner_id"), ParseIntParam(r, "limit", 20))
	if err != nil {
		h.WriteServiceError(w, err)
		return
	}

	response := dto.SessionListResponse{
		Sessions: make([]dto.SessionInfo, 0, len(sessions)),
		Count:    len(sessions),
	}
	for _, s := range sessions {
		response.Sessions = append(response.Sessions, dto.NewSessionInfo(s))
	}
	h.WriteJSON(w, http.StatusOK, response)
}

func (h *SessionsHandler) options(in *dto.MatchOptions) *matcher.Options {
	if in == nil {
		return nil
	}
	opts := h.svc.MatchOptions()
	if in.SimilarityThreshold != nil {
		opts.SimilarityThreshold = *in.SimilarityThreshold
	}
	if in.DayTolerance != nil {
		opts.DayTolerance = *in.DayTolerance
	}
	return &opts
}

func decodeContributors(uploads []dto.ContributorUpload) ([]reconcile.ContributorFile, error) {
	out := make([]reconcile.ContributorFile, 0, len(uploads))
	for _, u := range uploads {
		if u.Church.ID == "" {
			return nil, fmt.Errorf("%w: contributor list %q has no church", service.ErrInvalidRequest, u.File.Name)
		}
		file, err := decoders.Decode(u.File.Name, u.File.Bytes())
		if err != nil {
			return nil, err
		}
		out = append(out, reconcile.ContributorFile{Church: u.Church, File: file})
	}
	return out, nil
}
