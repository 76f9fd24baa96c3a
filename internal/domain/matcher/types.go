package matcher

import (
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// Options holds the per-run matching thresholds.
type Options struct {
	SimilarityThreshold float64 // 0-100, inclusive
	DayTolerance        int     // calendar days, inclusive in both directions
}

// DefaultOptions returns sensible defaults
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 55,
		DayTolerance:        2,
	}
}

// candidate is one contributor in the flattened pool, in insertion order.
type candidate struct {
	contributor models.Contributor
	church      models.Church
	key         string // keyword-stripped name used for scoring
	identity    string // full normalized name used by learned associations
	consumed    bool
}

// scored is the best eligible candidate found for a transaction.
type scored struct {
	index int
	score float64
	delta int
}
