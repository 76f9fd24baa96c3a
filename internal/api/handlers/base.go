package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/eshaffer321/contribution-reconciler/internal/adapters/decoders"
	"github.com/eshaffer321/contribution-reconciler/internal/api/dto"
	"github.com/eshaffer321/contribution-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/contribution-reconciler/internal/application/service"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/filemodel"
)

// Base provides shared functionality for all handlers.
type Base struct {
	svc    *service.ReconciliationService
	logger *slog.Logger
}

// NewBase creates a new base handler around the reconciliation service.
func NewBase(svc *service.ReconciliationService, logger *slog.Logger) *Base {
	if logger == nil {
		logger = slog.Default()
	}
	return &Base{svc: svc, logger: logger}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// WriteServiceError maps a service or domain error onto a status code.
func (b *Base) WriteServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("session"))
	case errors.Is(err, reconcile.ErrResultNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("result"))
	case errors.Is(err, filemodel.ErrModelNotFound):
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("file model"))
	case errors.Is(err, reconcile.ErrInvalidTransition),
		errors.Is(err, filemodel.ErrDuplicateModel),
		errors.Is(err, filemodel.ErrLineageOwnerMismatch):
		b.WriteError(w, http.StatusConflict, dto.ConflictError(err.Error()))
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrUnknownChurch),
		errors.Is(err, filemodel.ErrInvalidFingerprint),
		errors.Is(err, decoders.ErrEmptyFile):
		b.WriteError(w, http.StatusBadRequest, dto.ValidationError(err.Error()))
	default:
		b.logger.Error("request failed", "error", err)
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
	}
}

// DecodeJSON reads the request body into v, writing a 400 on failure.
func (b *Base) DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid request body"))
		return false
	}
	return true
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
