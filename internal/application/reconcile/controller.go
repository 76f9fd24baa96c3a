// Package reconcile orchestrates extraction, matching and merging.
//
// The controller is a pure function of (prior results, new inputs, mode):
// it performs no persistence and never mutates the prior slice. Two modes
// exist:
//
//   - Full: a new statement replaces the whole result set. Manually
//     confirmed results whose transaction reappears are carried over.
//   - Additive: new contributor lists are matched only against results that
//     are still unidentified. Identified results are never downgraded.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

// Controller runs reconciliation passes
type Controller struct {
	extractor Extractor
	matcher   Matcher
	logger    *slog.Logger
}

// NewController creates a new controller
func NewController(extractor Extractor, m Matcher, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		extractor: extractor,
		matcher:   m,
		logger:    logger.With("system", "reconcile"),
	}
}

// Full re-processes a statement and all contributor lists.
func (c *Controller) Full(ctx context.Context, prior []models.MatchResult, in FullInput) (*Outcome, error) {
	settings := in.Settings
	outcome := &Outcome{}

	stmt, err := c.extract(ctx, in.Statement, extraction.KindStatement, settings)
	if err != nil {
		return nil, err
	}
	outcome.Extraction = append(outcome.Extraction, report(in.Statement.Name, FileStatement, "", stmt))
	if stmt.Status == extraction.StatusModelRequired {
		c.logger.Warn("statement needs a file model, keeping prior results", "file", in.Statement.Name)
		outcome.ModelRequests = append(outcome.ModelRequests, ModelRequest{
			FileName: in.Statement.Name,
			Kind:     FileStatement,
			Context:  stmt.ModelContext,
		})
		outcome.Results = models.CloneResults(prior)
		return outcome, nil
	}

	groups, err := c.extractGroups(ctx, in.Contributors, settings, outcome)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	carried := carryManual(prior, stmt.Transactions)
	groups = withoutCarried(groups, carried)

	var pending []models.Transaction
	for _, tx := range stmt.Transactions {
		if _, ok := carried[identityOf(tx)]; !ok {
			pending = append(pending, tx)
		}
	}

	matched := c.matcher.Match(pending, groups, settings.Options, settings.Associations, settings.Churches, settings.IgnoredKeywords)
	if stmt.Method == extraction.MethodAI {
		markAI(matched)
	}

	results := make([]models.MatchResult, 0, len(matched)+len(carried))
	next := 0
	for _, tx := range stmt.Transactions {
		if manual, ok := carried[identityOf(tx)]; ok {
			results = append(results, manual)
			continue
		}
		results = append(results, matched[next])
		next++
	}
	results = append(results, matched[next:]...)

	outcome.Results = results
	outcome.Applied = true

	c.logger.Info("full reconciliation complete",
		"transactions", len(stmt.Transactions),
		"carried_manual", len(carried),
		"results", len(results),
		"model_requests", len(outcome.ModelRequests))

	return outcome, nil
}

// Additive matches new contributor lists against the prior results that are
// still unidentified.
func (c *Controller) Additive(ctx context.Context, prior []models.MatchResult, in AdditiveInput) (*Outcome, error) {
	settings := in.Settings
	outcome := &Outcome{}

	groups, err := c.extractGroups(ctx, in.Contributors, settings, outcome)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := models.CloneResults(prior)

	var (
		open []int
		txs  []models.Transaction
	)
	for i, r := range merged {
		if r.Status == models.StatusUnidentified && r.MatchMethod != models.MethodManual {
			open = append(open, i)
			txs = append(txs, r.Transaction)
		}
	}

	fresh := c.matcher.Match(txs, groups, settings.Options, settings.Associations, settings.Churches, settings.IgnoredKeywords)

	ids := make(map[string]bool, len(merged))
	for _, r := range merged {
		ids[r.Transaction.ID] = true
	}

	upgraded := 0
	var released []models.MatchResult
	for i, idx := range open {
		candidate := fresh[i]
		switch candidate.Status {
		case models.StatusIdentified:
			merged[idx] = candidate
			upgraded++
		case models.StatusDivergent:
			// Only an identification may change status here, so the
			// divergent pick becomes a suggestion and its contributor stays
			// expected.
			improveSuggestion(&merged[idx], &models.Suggestion{
				Contributor: *candidate.Contributor,
				Church:      candidate.Church,
				Similarity:  candidate.Similarity,
			})
			released = append(released, ghostFor(*candidate.Contributor, candidate.Church, "pending-"+candidate.Church.ID+"-"+candidate.Transaction.ID))
		default:
			improveSuggestion(&merged[idx], candidate.Suggestion)
		}
	}

	ghosts := append(append([]models.MatchResult(nil), fresh[len(open):]...), released...)
	for _, g := range ghosts {
		g.Transaction.ID = uniqueID(g.Transaction.ID, ids)
		merged = append(merged, g)
	}

	outcome.Results = merged
	outcome.Applied = true

	c.logger.Info("additive reconciliation complete",
		"open", len(open),
		"upgraded", upgraded,
		"new_pending", len(ghosts),
		"model_requests", len(outcome.ModelRequests))

	return outcome, nil
}

func (c *Controller) extractGroups(ctx context.Context, files []ContributorFile, settings Settings, outcome *Outcome) ([]models.ContributorGroup, error) {
	var groups []models.ContributorGroup
	for _, cf := range files {
		res, err := c.extract(ctx, cf.File, extraction.KindContributorList, settings)
		if err != nil {
			return nil, err
		}
		outcome.Extraction = append(outcome.Extraction, report(cf.File.Name, FileContributors, cf.Church.ID, res))
		if res.Status == extraction.StatusModelRequired {
			c.logger.Warn("contributor list needs a file model, skipping", "file", cf.File.Name, "church_id", cf.Church.ID)
			outcome.ModelRequests = append(outcome.ModelRequests, ModelRequest{
				FileName: cf.File.Name,
				Kind:     FileContributors,
				ChurchID: cf.Church.ID,
				Context:  res.ModelContext,
			})
			continue
		}
		groups = append(groups, models.ContributorGroup{
			Church:       cf.Church,
			Contributors: extraction.ToContributors(res.Transactions, settings.IgnoredKeywords),
		})
	}
	return groups, nil
}

// extract checks for cancellation before touching each file.
func (c *Controller) extract(ctx context.Context, f File, kind extraction.Kind, settings Settings) (*extraction.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := extraction.Input{
		FileName:             f.Name,
		Text:                 f.Text,
		Rows:                 f.Rows,
		Kind:                 kind,
		KnownModels:          settings.KnownModels,
		CleaningKeywords:     settings.IgnoredKeywords,
		ContributionKeywords: settings.ContributionKeywords,
		OwnerID:              settings.OwnerID,
		RawBinary:            f.RawBinary,
	}

	var (
		res *extraction.Result
		err error
	)
	if len(f.Pages) > 0 {
		pages := make([]extraction.Input, len(f.Pages))
		for i, text := range f.Pages {
			page := base
			page.FileName = fmt.Sprintf("%s#%d", f.Name, i+1)
			page.Text = text
			page.Rows = nil
			pages[i] = page
		}
		res, err = c.extractor.ExtractPages(ctx, pages)
	} else {
		res, err = c.extractor.Extract(ctx, base)
	}
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return res, nil
}

func report(name string, kind FileKind, churchID string, res *extraction.Result) FileReport {
	return FileReport{
		FileName:   name,
		Kind:       kind,
		ChurchID:   churchID,
		Method:     res.Method,
		Status:     res.Status,
		Rows:       len(res.Transactions),
		Confidence: res.Confidence,
		Skipped:    res.Skipped,
		EmptyPages: res.EmptyPages,
	}
}

type identity struct {
	id, date, amount, description string
}

func identityOf(tx models.Transaction) identity {
	return identity{
		id:          tx.ID,
		date:        tx.Date.Format("2006-01-02"),
		amount:      tx.Amount.String(),
		description: tx.Description,
	}
}

// carryManual returns the prior manual results whose transaction is present
// again in the new statement.
func carryManual(prior []models.MatchResult, txs []models.Transaction) map[identity]models.MatchResult {
	present := make(map[identity]bool, len(txs))
	for _, tx := range txs {
		present[identityOf(tx)] = true
	}

	carried := make(map[identity]models.MatchResult)
	for _, r := range prior {
		if r.MatchMethod != models.MethodManual || r.IsGhost() {
			continue
		}
		key := identityOf(r.Transaction)
		if present[key] {
			carried[key] = r.Clone()
		}
	}
	return carried
}

// withoutCarried removes, per carried manual result, one matching
// contributor from the new lists so it is neither matched again nor reported
// as pending.
func withoutCarried(groups []models.ContributorGroup, carried map[identity]models.MatchResult) []models.ContributorGroup {
	out := make([]models.ContributorGroup, len(groups))
	for i, g := range groups {
		out[i] = models.ContributorGroup{
			Church:       g.Church,
			Contributors: append([]models.Contributor(nil), g.Contributors...),
		}
	}

	for _, r := range carried {
		if r.Contributor == nil {
			continue
		}
		want := normalizer.Normalize(r.Contributor.Name, nil)
	search:
		for gi := range out {
			if out[gi].Church.ID != r.Church.ID {
				continue
			}
			for ci, c := range out[gi].Contributors {
				if normalizer.Normalize(c.Name, nil) == want && c.Amount.Equal(r.Contributor.Amount) {
					out[gi].Contributors = append(out[gi].Contributors[:ci], out[gi].Contributors[ci+1:]...)
					break search
				}
			}
		}
	}
	return out
}

func markAI(results []models.MatchResult) {
	for i := range results {
		if results[i].Status == models.StatusIdentified && results[i].MatchMethod == models.MethodAutomatic {
			results[i].MatchMethod = models.MethodAI
		}
	}
}

func improveSuggestion(r *models.MatchResult, s *models.Suggestion) {
	if s == nil {
		return
	}
	if r.Suggestion == nil || s.Similarity > r.Suggestion.Similarity {
		copied := *s
		r.Suggestion = &copied
	}
}

func ghostFor(contributor models.Contributor, church models.Church, id string) models.MatchResult {
	c := contributor
	return models.MatchResult{
		Transaction: models.Transaction{
			ID:               id,
			Date:             c.Date,
			Description:      c.Name,
			Amount:           c.Amount,
			OriginalAmount:   c.OriginalAmount,
			ContributionType: c.ContributionType,
		},
		Contributor: &c,
		Church:      church,
		Status:      models.StatusPending,
		MatchMethod: models.MethodAutomatic,
	}
}

// uniqueID suffixes id until it no longer collides, then records it.
func uniqueID(id string, taken map[string]bool) string {
	candidate := id
	for n := 2; taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s-%d", id, n)
	}
	taken[candidate] = true
	return candidate
}
