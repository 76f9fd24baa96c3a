// Package matcher pairs bank transactions with expected contributions.
//
// The matcher uses strict eligibility criteria:
//   - Amount must be exactly equal (signed, decimal)
//   - Date must be within DayTolerance calendar days (lists without dates always pass)
//   - Contributor must not be already used by an earlier transaction
//
// Among eligible contributors the best name similarity wins. Learned
// associations from earlier manual confirmations take precedence over
// similarity, and a contradiction between the two is surfaced as a
// divergence instead of being resolved silently. Contributors that no
// transaction claims come back as pending ghost results.
//
// Example usage:
//
//	engine := matcher.NewEngine(logger)
//	results := engine.Match(txs, groups, matcher.DefaultOptions(), associations, churches, keywords)
package matcher

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

// Engine runs matching passes. It holds no state between calls, so distinct
// Match calls may run concurrently.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates a new matching engine
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("system", "matcher")}
}

// Match returns one result per transaction, in input order, followed by one
// pending ghost per contributor no transaction claimed, in group/row order.
// Inputs are never mutated.
func (e *Engine) Match(
	transactions []models.Transaction,
	groups []models.ContributorGroup,
	opts Options,
	associations []models.LearnedAssociation,
	churches []models.Church,
	keywords []string,
) []models.MatchResult {
	pool := buildPool(groups, keywords)
	learned := indexAssociations(associations)
	directory := buildDirectory(churches, groups)

	results := make([]models.MatchResult, 0, len(transactions)+len(pool))
	for _, tx := range transactions {
		results = append(results, e.matchOne(tx, pool, opts, learned, directory, keywords))
	}
	results = append(results, ghosts(pool)...)

	e.logger.Debug("matching pass complete",
		"transactions", len(transactions),
		"contributors", len(pool),
		"results", len(results))

	return results
}

func (e *Engine) matchOne(
	tx models.Transaction,
	pool []candidate,
	opts Options,
	learned map[string]models.LearnedAssociation,
	directory map[string]models.Church,
	keywords []string,
) models.MatchResult {
	result := models.MatchResult{
		Transaction: tx,
		Church:      models.PlaceholderChurch,
		Status:      models.StatusUnidentified,
		MatchMethod: models.MethodAutomatic,
	}
	if !tx.Valid() {
		return result
	}

	key := normalizer.Normalize(tx.Description, keywords)
	fresh, found := bestCandidate(tx, key, pool, opts)
	identifies := found && fresh.score >= opts.SimilarityThreshold

	if assoc, ok := learned[key]; ok {
		if idx := findLearned(tx, assoc, pool, opts); idx >= 0 {
			pool[idx].consumed = true
			identify(&result, pool[idx], 100)
			result.MatchMethod = models.MethodLearned
			return result
		}

		expected := expectedContributor(assoc, pool)
		if identifies {
			pool[fresh.index].consumed = true
			identify(&result, pool[fresh.index], fresh.score)
			result.Status = models.StatusDivergent
			result.Divergence = &models.Divergence{
				ExpectedChurch:      lookupChurch(directory, assoc.ChurchID),
				ExpectedContributor: expected,
				LearnedKey:          key,
			}
			e.logger.Info("learned association diverges from fresh match",
				"transaction_id", tx.ID,
				"expected_church", assoc.ChurchID,
				"fresh_church", pool[fresh.index].church.ID)
			return result
		}

		if expected != nil {
			result.Suggestion = &models.Suggestion{
				Contributor: *expected,
				Church:      lookupChurch(directory, assoc.ChurchID),
				Similarity:  Similarity(key, normalizer.Normalize(expected.Name, keywords)),
			}
			return result
		}
	}

	switch {
	case identifies:
		pool[fresh.index].consumed = true
		identify(&result, pool[fresh.index], fresh.score)
	case found:
		c := pool[fresh.index]
		result.Suggestion = &models.Suggestion{
			Contributor: c.contributor,
			Church:      c.church,
			Similarity:  fresh.score,
		}
	}
	return result
}

// bestCandidate scores every eligible, unconsumed contributor. Ties go to
// the smaller date delta, then to the earlier pool position.
func bestCandidate(tx models.Transaction, key string, pool []candidate, opts Options) (scored, bool) {
	var best scored
	found := false
	for i := range pool {
		c := &pool[i]
		if c.consumed {
			continue
		}
		delta, ok := eligible(tx, c.contributor, opts)
		if !ok {
			continue
		}
		score := Similarity(key, c.key)
		if !found || score > best.score || score == best.score && delta < best.delta {
			best = scored{index: i, score: score, delta: delta}
			found = true
		}
	}
	return best, found
}

// eligible checks the amount and date window and returns the day delta used
// for tie-breaking. Date-agnostic contributors rank after any dated one.
func eligible(tx models.Transaction, c models.Contributor, opts Options) (int, bool) {
	if !tx.Amount.Equal(c.Amount) {
		return 0, false
	}
	if c.Date.IsZero() {
		return opts.DayTolerance + 1, true
	}
	delta := dayDelta(tx.Date, c.Date)
	return delta, delta <= opts.DayTolerance
}

func dayDelta(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(da.Sub(db).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

// findLearned locates the learned contributor in the learned church, still
// eligible for this transaction.
func findLearned(tx models.Transaction, assoc models.LearnedAssociation, pool []candidate, opts Options) int {
	for i := range pool {
		c := &pool[i]
		if c.consumed || c.church.ID != assoc.ChurchID || c.identity != assoc.ContributorNormalizedName {
			continue
		}
		if _, ok := eligible(tx, c.contributor, opts); ok {
			return i
		}
	}
	return -1
}

// expectedContributor finds the unclaimed learned contributor in its church
// regardless of amount or date, for divergence reporting and suggestions.
func expectedContributor(assoc models.LearnedAssociation, pool []candidate) *models.Contributor {
	for i := range pool {
		c := pool[i]
		if c.consumed {
			continue
		}
		if c.church.ID == assoc.ChurchID && c.identity == assoc.ContributorNormalizedName {
			contributor := c.contributor
			return &contributor
		}
	}
	return nil
}

func identify(result *models.MatchResult, c candidate, score float64) {
	contributor := c.contributor
	result.Contributor = &contributor
	result.Church = c.church
	result.Status = models.StatusIdentified
	result.Similarity = score
}

// ghosts synthesizes pending results for unclaimed contributors. Row numbers
// count per church across all of its lists so ids stay unique.
func ghosts(pool []candidate) []models.MatchResult {
	rows := make(map[string]int)
	var out []models.MatchResult
	for _, c := range pool {
		rows[c.church.ID]++
		if c.consumed {
			continue
		}
		contributor := c.contributor
		out = append(out, models.MatchResult{
			Transaction: models.Transaction{
				ID:                 fmt.Sprintf("pending-%s-%d", c.church.ID, rows[c.church.ID]),
				Date:               contributor.Date,
				Description:        contributor.Name,
				CleanedDescription: c.key,
				Amount:             contributor.Amount,
				OriginalAmount:     contributor.OriginalAmount,
				ContributionType:   contributor.ContributionType,
			},
			Contributor: &contributor,
			Church:      c.church,
			Status:      models.StatusPending,
			MatchMethod: models.MethodAutomatic,
		})
	}
	return out
}

func buildPool(groups []models.ContributorGroup, keywords []string) []candidate {
	var pool []candidate
	for _, g := range groups {
		for _, c := range g.Contributors {
			identity := c.NormalizedName
			if identity == "" {
				identity = normalizer.Normalize(c.Name, nil)
			}
			pool = append(pool, candidate{
				contributor: c,
				church:      g.Church,
				key:         normalizer.Normalize(c.Name, keywords),
				identity:    identity,
			})
		}
	}
	return pool
}

func indexAssociations(associations []models.LearnedAssociation) map[string]models.LearnedAssociation {
	out := make(map[string]models.LearnedAssociation, len(associations))
	for _, a := range associations {
		out[a.NormalizedDescription] = a
	}
	return out
}

func buildDirectory(churches []models.Church, groups []models.ContributorGroup) map[string]models.Church {
	out := make(map[string]models.Church, len(churches)+len(groups))
	for _, g := range groups {
		out[g.Church.ID] = g.Church
	}
	for _, c := range churches {
		out[c.ID] = c
	}
	return out
}

func lookupChurch(directory map[string]models.Church, id string) models.Church {
	if c, ok := directory[id]; ok {
		return c
	}
	return models.Church{ID: id}
}
