package storage

import (
	"time"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// Session is a persisted reconciliation workspace: the churches in scope
// and the latest result snapshot.
type Session struct {
	ID        string               `json:"id"`
	OwnerID   string               `json:"owner_id"`
	Churches  []models.Church      `json:"churches"`
	Results   []models.MatchResult `json:"results"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// RunMode names how a run merged its inputs
type RunMode string

const (
	RunFull     RunMode = "full"
	RunAdditive RunMode = "additive"
)

// Run status values
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunStats are the counters recorded when a run completes
type RunStats struct {
	Results       int `json:"results"`
	Identified    int `json:"identified"`
	Unidentified  int `json:"unidentified"`
	Pending       int `json:"pending"`
	Divergent     int `json:"divergent"`
	ModelRequests int `json:"model_requests"`
}

// StatsFor counts results by status
func StatsFor(results []models.MatchResult, modelRequests int) RunStats {
	stats := RunStats{Results: len(results), ModelRequests: modelRequests}
	for _, r := range results {
		switch r.Status {
		case models.StatusIdentified:
			stats.Identified++
		case models.StatusUnidentified:
			stats.Unidentified++
		case models.StatusPending:
			stats.Pending++
		case models.StatusDivergent:
			stats.Divergent++
		}
	}
	return stats
}

// Run represents a reconciliation run record
type Run struct {
	ID           int64   `json:"id"`
	SessionID    string  `json:"session_id"`
	Mode         RunMode `json:"mode"`
	StartedAt    string  `json:"started_at"`
	CompletedAt  string  `json:"completed_at,omitempty"`
	Status       string  `json:"status"`
	ErrorMessage string  `json:"error_message,omitempty"`
	RunStats
}
