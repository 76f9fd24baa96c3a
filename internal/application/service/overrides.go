package service

import (
	"fmt"

	"github.com/eshaffer321/contribution-reconciler/internal/application/reconcile"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
	"github.com/eshaffer321/contribution-reconciler/internal/infrastructure/storage"
)

// ConfirmRequest is a manual assignment of a transaction.
type ConfirmRequest struct {
	SessionID     string
	TransactionID string
	ChurchID      string
	Contributor   models.Contributor
}

// Confirm assigns a contributor and church to a result by hand and learns
// the association.
func (s *ReconciliationService) Confirm(req ConfirmRequest) (*models.MatchResult, error) {
	if req.Contributor.Name == "" {
		return nil, fmt.Errorf("%w: contributor name is required", ErrInvalidRequest)
	}
	contributor := req.Contributor
	if contributor.NormalizedName == "" {
		contributor.NormalizedName = normalizer.Normalize(contributor.Name, nil)
	}

	return s.override(req.SessionID, req.TransactionID, func(session *storage.Session, scope reconcile.Scope) ([]models.MatchResult, error) {
		church, err := findChurch(session.Churches, req.ChurchID)
		if err != nil {
			return nil, err
		}
		return s.resolver.Confirm(session.Results, req.TransactionID, contributor, church, scope)
	})
}

// ConfirmDivergence accepts the fresh assignment of a divergent result.
func (s *ReconciliationService) ConfirmDivergence(sessionID, txID string) (*models.MatchResult, error) {
	return s.override(sessionID, txID, func(session *storage.Session, scope reconcile.Scope) ([]models.MatchResult, error) {
		return s.resolver.ConfirmDivergence(session.Results, txID, scope)
	})
}

// RejectDivergence restores the learned assignment of a divergent result.
func (s *ReconciliationService) RejectDivergence(sessionID, txID string) (*models.MatchResult, error) {
	return s.override(sessionID, txID, func(session *storage.Session, scope reconcile.Scope) ([]models.MatchResult, error) {
		return s.resolver.RejectDivergence(session.Results, txID, scope)
	})
}

// Reopen sends an identified result back to review.
func (s *ReconciliationService) Reopen(sessionID, txID string) (*models.MatchResult, error) {
	return s.override(sessionID, txID, func(session *storage.Session, _ reconcile.Scope) ([]models.MatchResult, error) {
		return s.resolver.Reopen(session.Results, txID)
	})
}

func (s *ReconciliationService) override(
	sessionID, txID string,
	apply func(*storage.Session, reconcile.Scope) ([]models.MatchResult, error),
) (*models.MatchResult, error) {
	unlock := s.lockSession(sessionID)
	defer unlock()

	session, err := s.getSession(sessionID)
	if err != nil {
		return nil, err
	}

	scope := reconcile.Scope{OwnerID: session.OwnerID, Keywords: s.cfg.Reconciliation.IgnoredKeywords}
	results, err := apply(session, scope)
	if err != nil {
		return nil, err
	}

	session.Results = results
	if err := s.store.SaveSession(session); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	for i := range results {
		if results[i].Transaction.ID == txID {
			r := results[i]
			s.logger.Info("result overridden",
				"session_id", sessionID,
				"transaction_id", txID,
				"status", r.Status.String(),
				"church_id", r.Church.ID)
			return &r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", reconcile.ErrResultNotFound, txID)
}

func findChurch(churches []models.Church, id string) (models.Church, error) {
	for _, c := range churches {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Church{}, fmt.Errorf("%w: %s", ErrUnknownChurch, id)
}
