// Package normalizer canonicalizes free text into comparison keys.
//
// The same key is used by extraction (cleaned descriptions and names), by the
// matcher (similarity scoring) and by the learned association memory
// (lookup keys), so the function must stay deterministic and idempotent:
//
//	key := normalizer.Normalize("PIX Transferência - João", []string{"pix"})
//	// key == "transferencia joao"
package normalizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases text, strips diacritics and punctuation, collapses
// whitespace and removes every ignored keyword as a whole token sequence.
func Normalize(text string, ignoredKeywords []string) string {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return ""
	}

	keywords := make([][]string, 0, len(ignoredKeywords))
	for _, kw := range ignoredKeywords {
		if kwTokens := tokenize(kw); len(kwTokens) > 0 {
			keywords = append(keywords, kwTokens)
		}
	}

	// Removing a sequence can bring a new one together ("a a b b" with "a b"),
	// so strip until nothing changes.
	for {
		stripped := removeSequences(tokens, keywords)
		if len(stripped) == len(tokens) {
			break
		}
		tokens = stripped
	}

	return strings.Join(tokens, " ")
}

// Tokens splits an already normalized key into its tokens.
func Tokens(key string) []string {
	return strings.Fields(key)
}

// ContainsKeyword reports whether the normalized key contains kw as a whole
// token sequence. kw is normalized before comparison.
func ContainsKeyword(key, kw string) bool {
	kwTokens := tokenize(kw)
	if len(kwTokens) == 0 {
		return false
	}
	tokens := Tokens(key)
	for i := 0; i+len(kwTokens) <= len(tokens); i++ {
		if hasPrefix(tokens[i:], kwTokens) {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	lowered := strings.ToLower(text)

	// A fresh chain per call: transformers carry state and are not safe to share.
	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripMarks, lowered)
	if err != nil {
		stripped = lowered
	}

	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, stripped)

	return strings.Fields(cleaned)
}

func removeSequences(tokens []string, sequences [][]string) []string {
	if len(sequences) == 0 {
		return tokens
	}

	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := 0
		for _, seq := range sequences {
			if len(seq) > matched && hasPrefix(tokens[i:], seq) {
				matched = len(seq)
			}
		}
		if matched > 0 {
			i += matched
			continue
		}
		out = append(out, tokens[i])
		i++
	}
	return out
}

func hasPrefix(tokens, prefix []string) bool {
	if len(prefix) > len(tokens) {
		return false
	}
	for i := range prefix {
		if tokens[i] != prefix[i] {
			return false
		}
	}
	return true
}
