package reconcile

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

var (
	ErrInvalidTransition = errors.New("invalid result transition")
	ErrResultNotFound    = errors.New("result not found")
)

// Learner records human confirmations so later runs resolve the same
// description the same way.
type Learner interface {
	Upsert(description string, contributor models.Contributor, church models.Church, ownerID string, keywords []string) (models.LearnedAssociation, error)
}

// Scope identifies who is deciding and how descriptions are keyed.
type Scope struct {
	OwnerID  string
	Keywords []string
}

// Resolver applies human decisions to a result set. Every method returns a
// new slice; the input is never mutated. Pending ghosts follow the
// decisions: a contributor that gets assigned loses its ghost and a
// contributor that is let go gets one back.
//
// Allowed transitions:
//
//	Confirm:           unidentified | identified (not manual) | divergent -> identified (manual)
//	ConfirmDivergence: divergent -> identified (manual, fresh pick)
//	RejectDivergence:  divergent -> identified (manual, learned pick) | unidentified
//	Reopen:            identified -> unidentified
type Resolver struct {
	learner Learner
	logger  *slog.Logger
}

// NewResolver creates a resolver. learner may be nil.
func NewResolver(learner Learner, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{learner: learner, logger: logger.With("system", "override")}
}

// Confirm assigns contributor and church to a result by hand.
func (r *Resolver) Confirm(
	results []models.MatchResult,
	txID string,
	contributor models.Contributor,
	church models.Church,
	scope Scope,
) ([]models.MatchResult, error) {
	out, idx, err := locate(results, txID)
	if err != nil {
		return nil, err
	}
	cur := out[idx]

	switch {
	case cur.Status == models.StatusUnidentified,
		cur.Status == models.StatusDivergent,
		cur.Status == models.StatusIdentified && cur.MatchMethod != models.MethodManual:
	default:
		return nil, transitionError("confirm", cur)
	}
	if church.IsPlaceholder() {
		return nil, fmt.Errorf("%w: cannot confirm into the placeholder church", ErrInvalidTransition)
	}

	previous, previousChurch := cur.Contributor, cur.Church
	setManual(&out[idx], contributor, church)
	r.learn(out[idx], scope)

	if previous != nil && sameContributor(*previous, previousChurch, contributor, church) {
		return out, nil
	}
	out = claim(out, contributor, church)
	if previous != nil {
		out = release(out, *previous, previousChurch, txID)
	}
	return out, nil
}

// ConfirmDivergence adopts the freshly computed assignment.
func (r *Resolver) ConfirmDivergence(results []models.MatchResult, txID string, scope Scope) ([]models.MatchResult, error) {
	out, idx, err := locate(results, txID)
	if err != nil {
		return nil, err
	}
	cur := out[idx]
	if cur.Status != models.StatusDivergent || cur.Contributor == nil {
		return nil, transitionError("confirm divergence", cur)
	}

	// The fresh contributor is already held by this result, so the ghosts
	// stay as they are.
	setManual(&out[idx], *cur.Contributor, cur.Church)
	r.learn(out[idx], scope)
	return out, nil
}

// RejectDivergence restores what the learned association pointed to and
// lets the fresh contributor go. When the learned contributor is no longer
// in the lists, or another result already holds it, the result falls back
// to unidentified.
func (r *Resolver) RejectDivergence(results []models.MatchResult, txID string, scope Scope) ([]models.MatchResult, error) {
	out, idx, err := locate(results, txID)
	if err != nil {
		return nil, err
	}
	cur := out[idx]
	if cur.Status != models.StatusDivergent || cur.Divergence == nil {
		return nil, transitionError("reject divergence", cur)
	}

	fresh, freshChurch := cur.Contributor, cur.Church
	div := cur.Divergence
	if div.ExpectedContributor != nil && !div.ExpectedChurch.IsPlaceholder() &&
		available(out, idx, *div.ExpectedContributor, div.ExpectedChurch) {
		expected, expectedChurch := *div.ExpectedContributor, div.ExpectedChurch
		setManual(&out[idx], expected, expectedChurch)
		r.learn(out[idx], scope)
		out = claim(out, expected, expectedChurch)
	} else {
		clearAssignment(&out[idx])
		r.logger.Info("divergence rejected without an available learned contributor", "transaction_id", txID)
	}

	if fresh != nil {
		out = release(out, *fresh, freshChurch, txID)
	}
	return out, nil
}

// Reopen sends an identified result back to review. The previous assignment
// is kept as a suggestion. This is the only way out of a manual match.
func (r *Resolver) Reopen(results []models.MatchResult, txID string) ([]models.MatchResult, error) {
	out, idx, err := locate(results, txID)
	if err != nil {
		return nil, err
	}
	cur := out[idx]
	if cur.Status != models.StatusIdentified {
		return nil, transitionError("reopen", cur)
	}

	var previous *models.Suggestion
	if cur.Contributor != nil {
		previous = &models.Suggestion{
			Contributor: *cur.Contributor,
			Church:      cur.Church,
			Similarity:  cur.Similarity,
		}
	}
	clearAssignment(&out[idx])
	out[idx].Suggestion = previous

	if previous != nil {
		out = release(out, previous.Contributor, previous.Church, txID)
	}
	return out, nil
}

func (r *Resolver) learn(result models.MatchResult, scope Scope) {
	if r.learner == nil || result.Contributor == nil {
		return
	}
	assoc, err := r.learner.Upsert(result.Transaction.Description, *result.Contributor, result.Church, scope.OwnerID, scope.Keywords)
	if err != nil {
		r.logger.Warn("could not learn association",
			"transaction_id", result.Transaction.ID,
			"error", err)
		return
	}
	r.logger.Debug("learned association",
		"key", assoc.NormalizedDescription,
		"church_id", assoc.ChurchID)
}

func locate(results []models.MatchResult, txID string) ([]models.MatchResult, int, error) {
	for i, res := range results {
		if res.Transaction.ID == txID {
			return models.CloneResults(results), i, nil
		}
	}
	return nil, -1, fmt.Errorf("%w: %s", ErrResultNotFound, txID)
}

func setManual(r *models.MatchResult, contributor models.Contributor, church models.Church) {
	c := contributor
	r.Contributor = &c
	r.Church = church
	r.Status = models.StatusIdentified
	r.MatchMethod = models.MethodManual
	r.Similarity = 100
	r.Divergence = nil
	r.Suggestion = nil
}

func clearAssignment(r *models.MatchResult) {
	r.Contributor = nil
	r.Church = models.PlaceholderChurch
	r.Status = models.StatusUnidentified
	r.MatchMethod = models.MethodAutomatic
	r.Similarity = 0
	r.Divergence = nil
	r.Suggestion = nil
}

// sameContributor compares list entries by church, normalized name and
// amount.
func sameContributor(a models.Contributor, aChurch models.Church, b models.Contributor, bChurch models.Church) bool {
	return aChurch.ID == bChurch.ID &&
		a.Amount.Equal(b.Amount) &&
		normalizer.Normalize(a.Name, nil) == normalizer.Normalize(b.Name, nil)
}

// ghostOf returns the index of the pending ghost for a contributor, or -1.
// A ghost with the same date wins over one that only shares name and amount.
func ghostOf(results []models.MatchResult, c models.Contributor, church models.Church) int {
	at := -1
	for i, r := range results {
		if !r.IsGhost() || r.Contributor == nil || !sameContributor(*r.Contributor, r.Church, c, church) {
			continue
		}
		if r.Contributor.Date.Equal(c.Date) {
			return i
		}
		if at < 0 {
			at = i
		}
	}
	return at
}

// available reports whether a contributor can be assigned to the result at
// skip: either it still has a ghost or no other result holds it.
func available(results []models.MatchResult, skip int, c models.Contributor, church models.Church) bool {
	if ghostOf(results, c, church) >= 0 {
		return true
	}
	for i, r := range results {
		if i == skip || r.IsGhost() || r.Contributor == nil {
			continue
		}
		if sameContributor(*r.Contributor, r.Church, c, church) {
			return false
		}
	}
	return true
}

// claim drops the ghost of a contributor that a result now holds.
func claim(results []models.MatchResult, c models.Contributor, church models.Church) []models.MatchResult {
	at := ghostOf(results, c, church)
	if at < 0 {
		return results
	}
	return append(results[:at], results[at+1:]...)
}

// release appends a ghost for a contributor no result holds anymore.
func release(results []models.MatchResult, c models.Contributor, church models.Church, txID string) []models.MatchResult {
	if church.IsPlaceholder() {
		return results
	}
	taken := make(map[string]bool, len(results))
	for _, r := range results {
		taken[r.Transaction.ID] = true
	}
	id := uniqueID("pending-"+church.ID+"-"+txID, taken)
	return append(results, ghostFor(c, church, id))
}

func transitionError(action string, cur models.MatchResult) error {
	return fmt.Errorf("%w: cannot %s a %s/%s result", ErrInvalidTransition, action, cur.Status, cur.MatchMethod)
}
