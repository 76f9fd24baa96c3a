package extraction

import (
	"strings"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

// ToContributors turns rows extracted from a contributor list into
// contributor records. CleanedName is the keyword-stripped key used for
// similarity; NormalizedName keeps every token and identifies the person.
// Rows flagged with a parse error are dropped.
func ToContributors(txs []models.Transaction, cleaningKeywords []string) []models.Contributor {
	out := make([]models.Contributor, 0, len(txs))
	for _, tx := range txs {
		if tx.ParseError != "" {
			continue
		}
		name := strings.Join(strings.Fields(tx.Description), " ")
		out = append(out, models.Contributor{
			Name:             name,
			CleanedName:      normalizer.Normalize(name, cleaningKeywords),
			NormalizedName:   normalizer.Normalize(name, nil),
			Amount:           tx.Amount,
			Date:             tx.Date,
			OriginalAmount:   tx.OriginalAmount,
			ContributionType: tx.ContributionType,
		})
	}
	return out
}
