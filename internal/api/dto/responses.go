package dto

import (
	"time"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/storage"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// NewHealthResponse creates a healthy response stamped with the current time.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ResultListResponse is returned when listing a session's results.
type ResultListResponse struct {
	SessionID string               `json:"session_id"`
	Results   []models.MatchResult `json:"results"`
	Count     int                  `json:"count"`
}

// ResultResponse wraps a single changed result.
type ResultResponse struct {
	Result models.MatchResult `json:"result"`
}

// SessionListResponse is returned when listing sessions.
type SessionListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
	Count    int           `json:"count"`
}

// SessionInfo is a session without its result snapshot.
type SessionInfo struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Churches    []models.Church `json:"churches"`
	ResultCount int             `json:"result_count"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

// NewSessionInfo strips the results from a stored session.
func NewSessionInfo(s storage.Session) SessionInfo {
	return SessionInfo{
		ID:          s.ID,
		OwnerID:     s.OwnerID,
		Churches:    s.Churches,
		ResultCount: len(s.Results),
		CreatedAt:   s.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.Format(time.RFC3339),
	}
}

// ModelListResponse is returned when listing file models.
type ModelListResponse struct {
	Models []models.FileModel `json:"models"`
	Count  int                `json:"count"`
}

// AssociationListResponse is returned when listing learned associations.
type AssociationListResponse struct {
	Associations []models.LearnedAssociation `json:"associations"`
	Count        int                         `json:"count"`
}

// RunListResponse is returned when listing reconciliation runs.
type RunListResponse struct {
	Runs  []storage.Run `json:"runs"`
	Count int           `json:"count"`
}
