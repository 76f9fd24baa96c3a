package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps, making tests fast and isolated.
type MockRepository struct {
	mu           sync.Mutex
	fileModels   map[string]models.FileModel
	associations map[string]models.LearnedAssociation // keyed by owner + "\x00" + description
	sessions     map[string]Session
	runs         map[int64]*Run
	nextRunID    int64

	// Hooks for test assertions
	SaveSessionCalls     int
	SaveAssociationCalls int
	LastSavedSession     *Session

	// Error injection for testing error paths
	SaveSessionErr     error
	SaveFileModelErr   error
	SaveAssociationErr error
	StartRunErr        error
	CompleteRunErr     error
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		fileModels:   make(map[string]models.FileModel),
		associations: make(map[string]models.LearnedAssociation),
		sessions:     make(map[string]Session),
		runs:         make(map[int64]*Run),
		nextRunID:    1,
	}
}

// Close is a no-op
func (m *MockRepository) Close() error {
	return nil
}

// SaveFileModel stores a model by ID
func (m *MockRepository) SaveFileModel(model models.FileModel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveFileModelErr != nil {
		return m.SaveFileModelErr
	}
	m.fileModels[model.ID] = model
	return nil
}

// DeleteFileModel removes a model by ID
func (m *MockRepository) DeleteFileModel(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fileModels, id)
	return nil
}

// ListFileModels returns every model ordered by lineage and version
func (m *MockRepository) ListFileModels() ([]models.FileModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.FileModel, 0, len(m.fileModels))
	for _, fm := range m.fileModels {
		out = append(out, fm)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LineageID != out[j].LineageID {
			return out[i].LineageID < out[j].LineageID
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// SaveAssociation upserts by (owner, description)
func (m *MockRepository) SaveAssociation(a models.LearnedAssociation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveAssociationCalls++
	if m.SaveAssociationErr != nil {
		return m.SaveAssociationErr
	}
	m.associations[a.OwnerID+"\x00"+a.NormalizedDescription] = a
	return nil
}

// ListAssociations returns an owner's associations, or all of them
func (m *MockRepository) ListAssociations(ownerID string) ([]models.LearnedAssociation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LearnedAssociation
	for _, a := range m.associations {
		if ownerID == "" || a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		return out[i].NormalizedDescription < out[j].NormalizedDescription
	})
	return out, nil
}

// SaveSession stores a deep copy of the session
func (m *MockRepository) SaveSession(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveSessionCalls++
	if m.SaveSessionErr != nil {
		return m.SaveSessionErr
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	stored := copySession(*session)
	m.sessions[session.ID] = stored
	m.LastSavedSession = &stored
	return nil
}

// GetSession returns a copy of a stored session
func (m *MockRepository) GetSession(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	out := copySession(s)
	return &out, nil
}

// ListSessions returns sessions, most recently updated first
func (m *MockRepository) ListSessions(ownerID string, limit int) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.sessions {
		if ownerID == "" || s.OwnerID == ownerID {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// StartRun records a running run
func (m *MockRepository) StartRun(sessionID string, mode RunMode) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartRunErr != nil {
		return 0, m.StartRunErr
	}
	id := m.nextRunID
	m.nextRunID++
	m.runs[id] = &Run{
		ID:        id,
		SessionID: sessionID,
		Mode:      mode,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Status:    RunStatusRunning,
	}
	return id, nil
}

// CompleteRun marks a run completed or failed
func (m *MockRepository) CompleteRun(runID int64, stats RunStats, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CompleteRunErr != nil {
		return m.CompleteRunErr
	}
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("%w: run %d", ErrNotFound, runID)
	}
	run.RunStats = stats
	run.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	run.Status = RunStatusCompleted
	run.ErrorMessage = ""
	if runErr != nil {
		run.Status = RunStatusFailed
		run.ErrorMessage = runErr.Error()
	}
	return nil
}

// ListRuns returns runs newest first
func (m *MockRepository) ListRuns(filters RunFilters) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for _, r := range m.runs {
		if filters.SessionID == "" || r.SessionID == filters.SessionID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetRun returns a run by ID
func (m *MockRepository) GetRun(runID int64) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: run %d", ErrNotFound, runID)
	}
	out := *r
	return &out, nil
}

// Reset clears all stored data and hooks
func (m *MockRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fileModels = make(map[string]models.FileModel)
	m.associations = make(map[string]models.LearnedAssociation)
	m.sessions = make(map[string]Session)
	m.runs = make(map[int64]*Run)
	m.nextRunID = 1
	m.SaveSessionCalls = 0
	m.SaveAssociationCalls = 0
	m.LastSavedSession = nil
}

func copySession(s Session) Session {
	out := s
	out.Churches = append([]models.Church(nil), s.Churches...)
	out.Results = models.CloneResults(s.Results)
	return out
}
