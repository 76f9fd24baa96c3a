package storage

import (
	"errors"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// ErrNotFound is returned when a keyed lookup has no row
var ErrNotFound = errors.New("not found")

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory)
// and makes testing with mocks straightforward.
type Repository interface {
	FileModelRepository
	AssociationRepository
	SessionRepository
	RunRepository
	Close() error
}

// FileModelRepository persists trained file models
type FileModelRepository interface {
	// SaveFileModel inserts or replaces a model by ID
	SaveFileModel(model models.FileModel) error

	// DeleteFileModel removes a model. Deleting an unknown ID is not an error.
	DeleteFileModel(id string) error

	// ListFileModels returns every stored model, ordered by lineage and version
	ListFileModels() ([]models.FileModel, error)
}

// AssociationRepository persists learned associations
type AssociationRepository interface {
	// SaveAssociation upserts by (owner, normalized description)
	SaveAssociation(assoc models.LearnedAssociation) error

	// ListAssociations returns an owner's associations; empty owner returns all
	ListAssociations(ownerID string) ([]models.LearnedAssociation, error)
}

// SessionRepository persists reconciliation sessions and their result snapshot
type SessionRepository interface {
	// SaveSession inserts or replaces a session
	SaveSession(session *Session) error

	// GetSession returns ErrNotFound for unknown IDs
	GetSession(id string) (*Session, error)

	// ListSessions returns the most recently updated sessions first
	ListSessions(ownerID string, limit int) ([]Session, error)
}

// RunRepository handles reconciliation run tracking
type RunRepository interface {
	// StartRun records the start of a run and returns the run ID
	StartRun(sessionID string, mode RunMode) (int64, error)

	// CompleteRun records the end of a run. A non-nil runErr marks it failed.
	CompleteRun(runID int64, stats RunStats, runErr error) error

	// ListRuns returns recent runs, newest first
	ListRuns(filters RunFilters) ([]Run, error)

	// GetRun returns ErrNotFound for unknown IDs
	GetRun(runID int64) (*Run, error)
}

// RunFilters defines filters for listing runs
type RunFilters struct {
	SessionID string // empty = all sessions
	Limit     int    // 0 = default 50
}
