package filemodel

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

// headerScanRows bounds how far into a file the header search looks.
const headerScanRows = 10

// Fingerprint computes the structural signature of a tokenized file. Two
// files with the same delimiter, column count and header wording share a
// fingerprint regardless of their data rows.
func Fingerprint(rows [][]string, delimiter string) string {
	var sig strings.Builder
	sig.WriteString("d=")
	sig.WriteString(strconv.Quote(delimiter))
	sig.WriteString(";c=")
	sig.WriteString(strconv.Itoa(dominantWidth(rows)))
	sig.WriteString(";h=")
	sig.WriteString(headerSignature(rows))

	sum := sha256.Sum256([]byte(sig.String()))
	return hex.EncodeToString(sum[:16])
}

// dominantWidth returns the most common non-empty row width.
func dominantWidth(rows [][]string) int {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		n := len(row)
		counts[n]++
		if counts[n] > bestCount || counts[n] == bestCount && n > best {
			best, bestCount = n, counts[n]
		}
	}
	return best
}

// headerSignature describes the first textual row, or the cell shapes of the
// first row when the file has no header.
func headerSignature(rows [][]string) string {
	var first []string
	scanned := 0
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if first == nil {
			first = row
		}
		if isTextual(row) {
			cells := make([]string, len(row))
			for i, cell := range row {
				cells[i] = normalizer.Normalize(cell, nil)
			}
			return "t:" + strings.Join(cells, "|")
		}
		scanned++
		if scanned >= headerScanRows {
			break
		}
	}
	if first == nil {
		return "empty"
	}

	shapes := make([]string, len(first))
	for i, cell := range first {
		shapes[i] = cellShape(cell)
	}
	return "s:" + strings.Join(shapes, "")
}

// isTextual reports whether a row looks like a header: at least two
// non-empty cells and none of them numeric.
func isTextual(row []string) bool {
	nonEmpty := 0
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		nonEmpty++
		if hasDigit(cell) {
			return false
		}
	}
	return nonEmpty >= 2
}

func cellShape(cell string) string {
	cell = strings.TrimSpace(cell)
	switch {
	case cell == "":
		return "E"
	case strings.ContainsAny(cell, "/-") && hasDigit(cell) && !hasLetter(cell):
		return "D"
	case hasDigit(cell) && !hasLetter(cell):
		return "N"
	default:
		return "T"
	}
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}
