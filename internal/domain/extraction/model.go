package extraction

import (
	"strings"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

// applyModel replays a trained column mapping over the document.
func applyModel(doc *document, m models.FileModel) []row {
	table := doc.table
	rules := m.ParsingRules
	if rules.Delimiter != "" && doc.delimiter != delimiterCells && rules.Delimiter != doc.delimiter {
		table = splitLines(doc.lines, rules.Delimiter)
	}

	ignored := make([]string, 0, len(m.Mapping.IgnoredRowPatterns))
	for _, p := range m.Mapping.IgnoredRowPatterns {
		if key := normalizer.Normalize(p, nil); key != "" {
			ignored = append(ignored, key)
		}
	}

	mapping := m.Mapping
	var rows []row
	seen := 0
	for i, cells := range table {
		if isBlankRow(cells) {
			continue
		}
		seen++
		if seen <= mapping.HeaderRows {
			continue
		}
		if matchesAny(normalizer.Normalize(strings.Join(cells, " "), nil), ignored) {
			continue
		}
		rows = append(rows, row{
			index:       i,
			date:        cellAt(cells, mapping.DateColumn),
			description: cellAt(cells, mapping.DescriptionColumn),
			amount:      cellAt(cells, mapping.AmountColumn),
			credit:      cellAt(cells, mapping.CreditColumn),
			debit:       cellAt(cells, mapping.DebitColumn),
			raw:         doc.lines[i],
		})
	}
	return rows
}

func matchesAny(key string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}

// goLayout turns a "DD/MM/YYYY" style pattern into a time layout. Patterns
// that already look like Go layouts pass through unchanged.
func goLayout(format string) string {
	if format == "" || strings.Contains(format, "2006") || strings.Contains(format, "06") && strings.Contains(format, "01") {
		return format
	}
	r := strings.NewReplacer("YYYY", "2006", "yyyy", "2006", "YY", "06", "yy", "06",
		"MM", "01", "mm", "01", "DD", "02", "dd", "02")
	return r.Replace(format)
}

func modelSeparator(rules models.ParsingRules) separator {
	if rules.DecimalComma {
		return separatorComma
	}
	return separatorAuto
}
