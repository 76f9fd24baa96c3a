package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// Storage provides SQLite-backed persistence for sessions, runs, file
// models and learned associations
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Storage{db: db, logger: logger.With("system", "storage"), now: time.Now}
	if err := s.runMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// SaveFileModel inserts or replaces a model by ID
func (s *Storage) SaveFileModel(m models.FileModel) error {
	mapping, err := json.Marshal(m.Mapping)
	if err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	rules, err := json.Marshal(m.ParsingRules)
	if err != nil {
		return fmt.Errorf("encode parsing rules: %w", err)
	}

	_, err = s.db.Exec(`
	INSERT OR REPLACE INTO file_models
	(id, name, version, lineage_id, is_active, status, owner_id, global,
	 fingerprint, mapping_json, parsing_rules_json, snippet, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.Version, m.LineageID, m.IsActive, string(m.Status), m.OwnerID, m.Global,
		m.Fingerprint, string(mapping), string(rules), m.Snippet, m.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save file model %s: %w", m.ID, err)
	}
	return nil
}

// DeleteFileModel removes a model by ID
func (s *Storage) DeleteFileModel(id string) error {
	if _, err := s.db.Exec(`DELETE FROM file_models WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete file model %s: %w", id, err)
	}
	return nil
}

// ListFileModels returns every stored model
func (s *Storage) ListFileModels() ([]models.FileModel, error) {
	rows, err := s.db.Query(`
	SELECT id, name, version, lineage_id, is_active, status, owner_id, global,
	       fingerprint, mapping_json, parsing_rules_json, snippet, created_at
	FROM file_models
	ORDER BY lineage_id, version`)
	if err != nil {
		return nil, fmt.Errorf("list file models: %w", err)
	}
	defer rows.Close()

	var out []models.FileModel
	for rows.Next() {
		var (
			m              models.FileModel
			status         string
			mapping, rules string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Version, &m.LineageID, &m.IsActive, &status, &m.OwnerID, &m.Global,
			&m.Fingerprint, &mapping, &rules, &m.Snippet, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Status = models.FileModelStatus(status)
		if err := json.Unmarshal([]byte(mapping), &m.Mapping); err != nil {
			return nil, fmt.Errorf("decode mapping of %s: %w", m.ID, err)
		}
		if err := json.Unmarshal([]byte(rules), &m.ParsingRules); err != nil {
			return nil, fmt.Errorf("decode parsing rules of %s: %w", m.ID, err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveAssociation upserts by (owner, normalized description)
func (s *Storage) SaveAssociation(a models.LearnedAssociation) error {
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	_, err := s.db.Exec(`
	INSERT INTO learned_associations
	(owner_id, normalized_description, contributor_normalized_name, contributor_name, church_id, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(owner_id, normalized_description) DO UPDATE SET
		contributor_normalized_name = excluded.contributor_normalized_name,
		contributor_name = excluded.contributor_name,
		church_id = excluded.church_id,
		updated_at = excluded.updated_at`,
		a.OwnerID, a.NormalizedDescription, a.ContributorNormalizedName, a.ContributorName, a.ChurchID, updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save association %q: %w", a.NormalizedDescription, err)
	}
	return nil
}

// ListAssociations returns an owner's associations, or all of them
func (s *Storage) ListAssociations(ownerID string) ([]models.LearnedAssociation, error) {
	query := `
	SELECT owner_id, normalized_description, contributor_normalized_name, contributor_name, church_id, updated_at
	FROM learned_associations`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY owner_id, normalized_description`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list associations: %w", err)
	}
	defer rows.Close()

	var out []models.LearnedAssociation
	for rows.Next() {
		var a models.LearnedAssociation
		if err := rows.Scan(&a.OwnerID, &a.NormalizedDescription, &a.ContributorNormalizedName,
			&a.ContributorName, &a.ChurchID, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SaveSession inserts or replaces a session
func (s *Storage) SaveSession(session *Session) error {
	churches, err := json.Marshal(session.Churches)
	if err != nil {
		return fmt.Errorf("encode churches: %w", err)
	}
	results, err := json.Marshal(session.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	now := s.now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	_, err = s.db.Exec(`
	INSERT OR REPLACE INTO sessions (id, owner_id, churches_json, results_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`,
		session.ID, session.OwnerID, string(churches), string(results), session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", session.ID, err)
	}
	return nil
}

// GetSession retrieves a session by ID
func (s *Storage) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(`
	SELECT id, owner_id, churches_json, results_json, created_at, updated_at
	FROM sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return session, err
}

// ListSessions returns the most recently updated sessions first
func (s *Storage) ListSessions(ownerID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
	SELECT id, owner_id, churches_json, results_json, created_at, updated_at
	FROM sessions
	WHERE (? = '' OR owner_id = ?)
	ORDER BY updated_at DESC, id
	LIMIT ?`, ownerID, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *session)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		session           Session
		churches, results string
	)
	if err := row.Scan(&session.ID, &session.OwnerID, &churches, &results, &session.CreatedAt, &session.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(churches), &session.Churches); err != nil {
		return nil, fmt.Errorf("decode churches of %s: %w", session.ID, err)
	}
	if err := json.Unmarshal([]byte(results), &session.Results); err != nil {
		return nil, fmt.Errorf("decode results of %s: %w", session.ID, err)
	}
	return &session, nil
}

// StartRun records the start of a run and returns the run ID
func (s *Storage) StartRun(sessionID string, mode RunMode) (int64, error) {
	result, err := s.db.Exec(`
	INSERT INTO runs (session_id, mode, started_at, status)
	VALUES (?, ?, ?, ?)`,
		sessionID, string(mode), s.now().UTC(), RunStatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("start run: %w", err)
	}
	return result.LastInsertId()
}

// CompleteRun records the completion of a run
func (s *Storage) CompleteRun(runID int64, stats RunStats, runErr error) error {
	status, message := RunStatusCompleted, ""
	if runErr != nil {
		status, message = RunStatusFailed, runErr.Error()
	}
	result, err := s.db.Exec(`
	UPDATE runs SET completed_at = ?, status = ?, error_message = ?,
		results = ?, identified = ?, unidentified = ?, pending = ?, divergent = ?, model_requests = ?
	WHERE id = ?`,
		s.now().UTC(), status, message,
		stats.Results, stats.Identified, stats.Unidentified, stats.Pending, stats.Divergent, stats.ModelRequests,
		runID,
	)
	if err != nil {
		return fmt.Errorf("complete run %d: %w", runID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %d", ErrNotFound, runID)
	}
	return nil
}

const runColumns = `id, session_id, mode, started_at, completed_at, status, error_message,
	results, identified, unidentified, pending, divergent, model_requests`

// ListRuns returns recent runs, newest first
func (s *Storage) ListRuns(filters RunFilters) ([]Run, error) {
	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
	SELECT `+runColumns+`
	FROM runs
	WHERE (? = '' OR session_id = ?)
	ORDER BY id DESC
	LIMIT ?`, filters.SessionID, filters.SessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

// GetRun retrieves a run by ID
func (s *Storage) GetRun(runID int64) (*Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %d", ErrNotFound, runID)
	}
	return run, err
}

func scanRun(row scanner) (*Run, error) {
	var (
		run       Run
		mode      string
		started   time.Time
		completed sql.NullTime
	)
	err := row.Scan(&run.ID, &run.SessionID, &mode, &started, &completed, &run.Status, &run.ErrorMessage,
		&run.Results, &run.Identified, &run.Unidentified, &run.Pending, &run.Divergent, &run.ModelRequests)
	if err != nil {
		return nil, err
	}
	run.Mode = RunMode(mode)
	run.StartedAt = started.Format(time.RFC3339)
	if completed.Valid {
		run.CompletedAt = completed.Time.Format(time.RFC3339)
	}
	return &run, nil
}
