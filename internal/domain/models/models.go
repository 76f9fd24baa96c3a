// Package models holds the records shared by every stage of the
// reconciliation pipeline: extracted transactions and contributors,
// churches, learned file models and associations, and match results.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlaceholderChurchID identifies the reserved bucket for unassigned records.
const PlaceholderChurchID = "__unidentified__"

// PlaceholderChurch is the sentinel unit for unidentified income. It is
// addressable and filterable but never a real unit.
var PlaceholderChurch = Church{ID: PlaceholderChurchID, Name: "Unidentified"}

// Church is the organizational unit a contribution is attributed to.
type Church struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// IsPlaceholder reports whether c is the reserved unassigned bucket.
func (c Church) IsPlaceholder() bool {
	return c.ID == PlaceholderChurchID || c.ID == ""
}

// Transaction is a single extracted bank statement row.
type Transaction struct {
	ID                 string          `json:"id"`
	Date               time.Time       `json:"date"`
	Description        string          `json:"description"`
	CleanedDescription string          `json:"cleaned_description"`
	Amount             decimal.Decimal `json:"amount"`
	OriginalAmount     string          `json:"original_amount"`
	ContributionType   string          `json:"contribution_type,omitempty"`

	// ParseError is set when the row's date or amount could not be parsed.
	// Such transactions are still reported, never matched.
	ParseError string `json:"parse_error,omitempty"`
}

// Valid reports whether the transaction can take part in matching.
func (t Transaction) Valid() bool {
	return t.ParseError == "" && !t.Date.IsZero()
}

// IsIncome reports whether the transaction credits the account.
func (t Transaction) IsIncome() bool {
	return t.Amount.IsPositive()
}

// Contributor is an expected entry from a contributor list.
type Contributor struct {
	Name             string          `json:"name"`
	CleanedName      string          `json:"cleaned_name"`
	NormalizedName   string          `json:"normalized_name"`
	Amount           decimal.Decimal `json:"amount"`
	Date             time.Time       `json:"date"` // zero when the list has no dates
	OriginalAmount   string          `json:"original_amount"`
	ContributionType string          `json:"contribution_type,omitempty"`
}

// ContributorGroup is one church's contributor list.
type ContributorGroup struct {
	Church       Church        `json:"church"`
	Contributors []Contributor `json:"contributors"`
}

// LearnedAssociation maps a normalized transaction description to the
// contributor and church a human confirmed for it.
type LearnedAssociation struct {
	NormalizedDescription     string    `json:"normalized_description"`
	ContributorNormalizedName string    `json:"contributor_normalized_name"`
	ContributorName           string    `json:"contributor_name"`
	ChurchID                  string    `json:"church_id"`
	OwnerID                   string    `json:"owner_id"`
	UpdatedAt                 time.Time `json:"updated_at"`
}

// Divergence records a conflict between learned memory and a fresh match.
type Divergence struct {
	ExpectedChurch      Church       `json:"expected_church"`
	ExpectedContributor *Contributor `json:"expected_contributor,omitempty"`
	LearnedKey          string       `json:"learned_key"`
}

// Suggestion is a non-binding candidate kept for manual review.
type Suggestion struct {
	Contributor Contributor `json:"contributor"`
	Church      Church      `json:"church"`
	Similarity  float64     `json:"similarity"`
}

// MatchResult is the engine's verdict for one transaction, or a ghost entry
// for a contributor that never showed up in the statement.
type MatchResult struct {
	Transaction Transaction  `json:"transaction"`
	Contributor *Contributor `json:"contributor,omitempty"`
	Church      Church       `json:"church"`
	Status      Status       `json:"status"`
	MatchMethod MatchMethod  `json:"match_method"`
	Similarity  float64      `json:"similarity"`
	Divergence  *Divergence  `json:"divergence,omitempty"`
	Suggestion  *Suggestion  `json:"suggestion,omitempty"`
}

// IsGhost reports whether the result was synthesized for a missing contributor.
func (r MatchResult) IsGhost() bool {
	return r.Status == StatusPending
}

// Clone returns a deep copy so callers can mutate results without aliasing.
func (r MatchResult) Clone() MatchResult {
	out := r
	if r.Contributor != nil {
		c := *r.Contributor
		out.Contributor = &c
	}
	if r.Divergence != nil {
		d := *r.Divergence
		if d.ExpectedContributor != nil {
			ec := *d.ExpectedContributor
			d.ExpectedContributor = &ec
		}
		out.Divergence = &d
	}
	if r.Suggestion != nil {
		s := *r.Suggestion
		out.Suggestion = &s
	}
	return out
}

// CloneResults deep-copies a result slice.
func CloneResults(results []MatchResult) []MatchResult {
	out := make([]MatchResult, len(results))
	for i, r := range results {
		out[i] = r.Clone()
	}
	return out
}
