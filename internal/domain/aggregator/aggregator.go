// Package aggregator groups match results for reporting.
//
// All functions are pure: they copy what they return and never mutate their
// input. Pending ghosts are expected-but-missing money, so they are kept out
// of every total that describes real bank movement and reported separately.
package aggregator

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// UnitTotals is the reporting line for one church, or for the unassigned
// bucket.
type UnitTotals struct {
	Church       models.Church   `json:"church"`
	Income       decimal.Decimal `json:"income"`
	Expense      decimal.Decimal `json:"expense"`
	PendingTotal decimal.Decimal `json:"pending_total"`
	Identified   int             `json:"identified"`
	Unidentified int             `json:"unidentified"`
	Pending      int             `json:"pending"`
	Divergent    int             `json:"divergent"`
}

// Summary is the reporting snapshot of a result set.
type Summary struct {
	Units        []UnitTotals    `json:"units"`
	Unassigned   UnitTotals      `json:"unassigned"`
	Income       decimal.Decimal `json:"income"`
	Expense      decimal.Decimal `json:"expense"`
	PendingTotal decimal.Decimal `json:"pending_total"`
	Total        int             `json:"total"`
}

// GroupByUnit buckets results by church id. Every unassigned result lands
// under models.PlaceholderChurchID.
func GroupByUnit(results []models.MatchResult) map[string][]models.MatchResult {
	out := make(map[string][]models.MatchResult)
	for _, r := range results {
		key := r.Church.ID
		if r.Church.IsPlaceholder() {
			key = models.PlaceholderChurchID
		}
		out[key] = append(out[key], r.Clone())
	}
	return out
}

// SplitByPolarity separates bank movement into income and expense. Ghosts
// and zero amounts belong to neither.
func SplitByPolarity(results []models.MatchResult) (income, expense []models.MatchResult) {
	for _, r := range results {
		if r.IsGhost() {
			continue
		}
		switch r.Transaction.Amount.Sign() {
		case 1:
			income = append(income, r.Clone())
		case -1:
			expense = append(expense, r.Clone())
		}
	}
	return income, expense
}

// Summarize computes per-church totals. Units follow the order of churches;
// churches seen only on results are appended sorted by id.
func Summarize(results []models.MatchResult, churches []models.Church) Summary {
	summary := Summary{
		Unassigned:   newTotals(models.PlaceholderChurch),
		Income:       decimal.Zero,
		Expense:      decimal.Zero,
		PendingTotal: decimal.Zero,
		Total:        len(results),
	}

	index := make(map[string]int)
	for _, c := range churches {
		if c.IsPlaceholder() {
			continue
		}
		if _, ok := index[c.ID]; ok {
			continue
		}
		index[c.ID] = len(summary.Units)
		summary.Units = append(summary.Units, newTotals(c))
	}

	var extra []models.Church
	for _, r := range results {
		if r.Church.IsPlaceholder() {
			continue
		}
		if _, ok := index[r.Church.ID]; !ok {
			index[r.Church.ID] = -1
			extra = append(extra, r.Church)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].ID < extra[j].ID })
	for _, c := range extra {
		index[c.ID] = len(summary.Units)
		summary.Units = append(summary.Units, newTotals(c))
	}

	for _, r := range results {
		unit := &summary.Unassigned
		if !r.Church.IsPlaceholder() {
			unit = &summary.Units[index[r.Church.ID]]
		}
		amount := r.Transaction.Amount

		switch r.Status {
		case models.StatusIdentified:
			unit.Identified++
		case models.StatusUnidentified:
			unit.Unidentified++
		case models.StatusDivergent:
			unit.Divergent++
		case models.StatusPending:
			unit.Pending++
			unit.PendingTotal = unit.PendingTotal.Add(amount)
			summary.PendingTotal = summary.PendingTotal.Add(amount)
			continue
		}

		switch amount.Sign() {
		case 1:
			unit.Income = unit.Income.Add(amount)
			summary.Income = summary.Income.Add(amount)
		case -1:
			unit.Expense = unit.Expense.Add(amount.Abs())
			summary.Expense = summary.Expense.Add(amount.Abs())
		}
	}
	return summary
}

func newTotals(c models.Church) UnitTotals {
	return UnitTotals{
		Church:       c,
		Income:       decimal.Zero,
		Expense:      decimal.Zero,
		PendingTotal: decimal.Zero,
	}
}
