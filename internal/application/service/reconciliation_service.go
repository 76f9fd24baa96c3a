// Package service is the stateful layer around the pure reconciliation
// controller. It owns the file model registry and the association memory,
// persists every session snapshot and run, and serializes work per session.
//
// Example usage:
//
//	svc, err := service.New(cfg, store, extraction.NewSelector(logger), logger)
//	outcome, err := svc.Reconcile(ctx, service.RunRequest{SessionID: "march", OwnerID: "u1", Statement: file})
//	summary, err := svc.Summary("march")
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/eshaffer321/contribution-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/aggregator"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/filemodel"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/learning"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/config"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/storage"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownChurch   = errors.New("unknown church")
	ErrInvalidRequest  = errors.New("invalid request")
)

// RunRequest holds the inputs of a reconciliation run.
type RunRequest struct {
	SessionID    string
	OwnerID      string
	Churches     []models.Church // merged into the session's church list
	Statement    reconcile.File  // ignored by AddContributors
	Contributors []reconcile.ContributorFile

	// Options overrides the configured matching thresholds when set.
	Options *matcher.Options
}

// RunOutcome is what a run returns to callers.
type RunOutcome struct {
	SessionID string `json:"session_id"`
	RunID     int64  `json:"run_id"`
	reconcile.Outcome
	Summary aggregator.Summary `json:"summary"`
}

// ResultFilter narrows Results. Zero values match everything.
type ResultFilter struct {
	Status   *models.Status
	ChurchID string
}

// ReconciliationService manages sessions, runs and learned state.
type ReconciliationService struct {
	cfg        *config.Config
	store      storage.Repository
	controller *reconcile.Controller
	resolver   *reconcile.Resolver
	registry   *filemodel.Registry
	memory     *learning.Memory
	logger     *slog.Logger

	// Session-level locking (one run or override per session at a time)
	sessionLocks map[string]*sync.Mutex
	locksMutex   sync.Mutex
}

// New creates the service and loads persisted file models and associations.
func New(cfg *config.Config, store storage.Repository, extractor reconcile.Extractor, logger *slog.Logger) (*ReconciliationService, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &ReconciliationService{
		cfg:          cfg,
		store:        store,
		registry:     filemodel.NewRegistry(logger.With("system", "filemodel")),
		memory:       learning.NewMemory(),
		logger:       logger.With("system", "service"),
		sessionLocks: make(map[string]*sync.Mutex),
	}
	s.controller = reconcile.NewController(extractor, matcher.NewEngine(logger), logger)
	s.resolver = reconcile.NewResolver(&persistingLearner{memory: s.memory, store: store, logger: s.logger}, logger)

	fileModels, err := store.ListFileModels()
	if err != nil {
		return nil, fmt.Errorf("load file models: %w", err)
	}
	s.registry.Load(fileModels)

	associations, err := store.ListAssociations("")
	if err != nil {
		return nil, fmt.Errorf("load associations: %w", err)
	}
	s.memory.Load(associations)

	s.logger.Info("service ready", "file_models", len(fileModels), "associations", len(associations))
	return s, nil
}

// Reconcile runs a full reconciliation over a new statement. The session is
// created on first use.
func (s *ReconciliationService) Reconcile(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.Statement.Name == "" {
		return nil, fmt.Errorf("%w: statement is required", ErrInvalidRequest)
	}

	unlock := s.lockSession(req.SessionID)
	defer unlock()

	session, err := s.store.GetSession(req.SessionID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		session = &storage.Session{ID: req.SessionID, OwnerID: req.OwnerID}
	case err != nil:
		return nil, err
	}

	return s.run(ctx, session, req, storage.RunFull, func(settings reconcile.Settings) (*reconcile.Outcome, error) {
		return s.controller.Full(ctx, session.Results, reconcile.FullInput{
			Statement:    req.Statement,
			Contributors: req.Contributors,
			Settings:     settings,
		})
	})
}

// AddContributors matches new contributor lists against an existing
// session's unidentified results.
func (s *ReconciliationService) AddContributors(ctx context.Context, req RunRequest) (*RunOutcome, error) {
	if len(req.Contributors) == 0 {
		return nil, fmt.Errorf("%w: at least one contributor list is required", ErrInvalidRequest)
	}

	unlock := s.lockSession(req.SessionID)
	defer unlock()

	session, err := s.getSession(req.SessionID)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, session, req, storage.RunAdditive, func(settings reconcile.Settings) (*reconcile.Outcome, error) {
		return s.controller.Additive(ctx, session.Results, reconcile.AdditiveInput{
			Contributors: req.Contributors,
			Settings:     settings,
		})
	})
}

func (s *ReconciliationService) run(
	ctx context.Context,
	session *storage.Session,
	req RunRequest,
	mode storage.RunMode,
	pass func(reconcile.Settings) (*reconcile.Outcome, error),
) (*RunOutcome, error) {
	if req.OwnerID == "" {
		req.OwnerID = session.OwnerID
	}
	session.Churches = mergeChurches(session.Churches, req.Churches, req.Contributors)

	runID, err := s.store.StartRun(session.ID, mode)
	if err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}

	logger := s.logger.With("session_id", session.ID, "run_id", runID, "mode", string(mode))
	logger.Info("run started", "contributor_lists", len(req.Contributors))

	outcome, err := pass(s.settings(req, session.Churches))
	if err != nil {
		logger.Error("run failed", "error", err)
		if cerr := s.store.CompleteRun(runID, storage.RunStats{}, err); cerr != nil {
			logger.Warn("could not record failed run", "error", cerr)
		}
		return nil, err
	}

	if outcome.Applied {
		session.Results = outcome.Results
	}
	if err := s.store.SaveSession(session); err != nil {
		logger.Error("could not save session", "error", err)
		if cerr := s.store.CompleteRun(runID, storage.RunStats{}, err); cerr != nil {
			logger.Warn("could not record failed run", "error", cerr)
		}
		return nil, fmt.Errorf("save session: %w", err)
	}

	stats := storage.StatsFor(session.Results, len(outcome.ModelRequests))
	if err := s.store.CompleteRun(runID, stats, nil); err != nil {
		logger.Warn("could not record run completion", "error", err)
	}

	logger.Info("run complete",
		"applied", outcome.Applied,
		"identified", stats.Identified,
		"unidentified", stats.Unidentified,
		"pending", stats.Pending,
		"divergent", stats.Divergent,
		"model_requests", stats.ModelRequests)

	return &RunOutcome{
		SessionID: session.ID,
		RunID:     runID,
		Outcome:   *outcome,
		Summary:   aggregator.Summarize(session.Results, session.Churches),
	}, nil
}

func (s *ReconciliationService) settings(req RunRequest, churches []models.Church) reconcile.Settings {
	rc := s.cfg.Reconciliation
	opts := s.MatchOptions()
	if req.Options != nil {
		opts = *req.Options
	}
	return reconcile.Settings{
		Options:              opts,
		IgnoredKeywords:      rc.IgnoredKeywords,
		ContributionKeywords: rc.ContributionKeywords,
		OwnerID:              req.OwnerID,
		KnownModels:          s.registry.ListFor(req.OwnerID),
		Associations:         s.memory.For(req.OwnerID),
		Churches:             churches,
	}
}

// MatchOptions returns the configured matching knobs.
func (s *ReconciliationService) MatchOptions() matcher.Options {
	rc := s.cfg.Reconciliation
	return matcher.Options{SimilarityThreshold: rc.SimilarityThreshold, DayTolerance: rc.DayTolerance}
}

// Results returns a session's results in their stored order.
func (s *ReconciliationService) Results(sessionID string, filter ResultFilter) ([]models.MatchResult, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]models.MatchResult, 0, len(session.Results))
	for _, r := range session.Results {
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.ChurchID != "" && r.Church.ID != filter.ChurchID {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Summary aggregates a session's results per church.
func (s *ReconciliationService) Summary(sessionID string) (aggregator.Summary, error) {
	session, err := s.getSession(sessionID)
	if err != nil {
		return aggregator.Summary{}, err
	}
	return aggregator.Summarize(session.Results, session.Churches), nil
}

// Session returns the stored session.
func (s *ReconciliationService) Session(sessionID string) (*storage.Session, error) {
	return s.getSession(sessionID)
}

// Sessions lists an owner's sessions, newest first.
func (s *ReconciliationService) Sessions(ownerID string, limit int) ([]storage.Session, error) {
	return s.store.ListSessions(ownerID, limit)
}

// Runs lists recorded runs.
func (s *ReconciliationService) Runs(filters storage.RunFilters) ([]storage.Run, error) {
	return s.store.ListRuns(filters)
}

// Associations lists an owner's learned associations.
func (s *ReconciliationService) Associations(ownerID string) []models.LearnedAssociation {
	return s.memory.For(ownerID)
}

func (s *ReconciliationService) getSession(id string) (*storage.Session, error) {
	session, err := s.store.GetSession(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return session, err
}

// lockSession blocks until the session is free and returns its unlock func.
func (s *ReconciliationService) lockSession(id string) func() {
	s.locksMutex.Lock()
	mu, ok := s.sessionLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.sessionLocks[id] = mu
	}
	s.locksMutex.Unlock()

	mu.Lock()
	return mu.Unlock
}

// mergeChurches keeps the existing order and appends churches seen for the
// first time, including those named by contributor files.
func mergeChurches(existing, requested []models.Church, files []reconcile.ContributorFile) []models.Church {
	out := append([]models.Church(nil), existing...)
	index := make(map[string]int, len(out))
	for i, c := range out {
		index[c.ID] = i
	}
	add := func(c models.Church) {
		if c.IsPlaceholder() {
			return
		}
		if i, ok := index[c.ID]; ok {
			if c.Name != "" {
				out[i] = c
			}
			return
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	for _, c := range requested {
		add(c)
	}
	for _, f := range files {
		add(f.Church)
	}
	return out
}

// persistingLearner writes every learned association through to storage.
type persistingLearner struct {
	memory *learning.Memory
	store  storage.AssociationRepository
	logger *slog.Logger
}

func (l *persistingLearner) Upsert(description string, contributor models.Contributor, church models.Church, ownerID string, keywords []string) (models.LearnedAssociation, error) {
	assoc, err := l.memory.Upsert(description, contributor, church, ownerID, keywords)
	if err != nil {
		return assoc, err
	}
	if err := l.store.SaveAssociation(assoc); err != nil {
		return assoc, fmt.Errorf("persist association: %w", err)
	}
	return assoc, nil
}
