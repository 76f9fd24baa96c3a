package matcher

import (
	"math"
	"sort"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

// Similarity scores two normalized keys from 0 to 100 as the larger of the
// token-sort and token-set ratios. Word order and extra words on one side
// (bank prefixes, middle names) do not penalize a match.
//
// Two empty keys are identical (100); an empty key against anything else
// scores 0.
func Similarity(a, b string) float64 {
	ta, tb := normalizer.Tokens(a), normalizer.Tokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 100
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	best := math.Max(tokenSortRatio(ta, tb), tokenSetRatio(ta, tb))
	return math.Round(best*10000) / 100
}

func tokenSortRatio(a, b []string) float64 {
	return ratio(sortedJoin(a), sortedJoin(b))
}

func tokenSetRatio(a, b []string) float64 {
	setA, setB := toSet(a), toSet(b)

	var common, onlyA, onlyB []string
	for tok := range setA {
		if setB[tok] {
			common = append(common, tok)
		} else {
			onlyA = append(onlyA, tok)
		}
	}
	for tok := range setB {
		if !setA[tok] {
			onlyB = append(onlyB, tok)
		}
	}

	sect := sortedJoin(common)
	withA := strings.TrimSpace(sect + " " + sortedJoin(onlyA))
	withB := strings.TrimSpace(sect + " " + sortedJoin(onlyB))

	best := ratio(withA, withB)
	if sect != "" {
		best = math.Max(best, math.Max(ratio(sect, withA), ratio(sect, withB)))
	}
	return best
}

// ratio is the normalized Levenshtein similarity in [0, 1], with
// substitutions costing two edits.
func ratio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1
	}
	distance := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return float64(total-distance) / float64(total)
}

func sortedJoin(tokens []string) string {
	out := append([]string(nil), tokens...)
	sort.Strings(out)
	return strings.Join(out, " ")
}

func toSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}
