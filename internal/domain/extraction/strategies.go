package extraction

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

// headerScanRows bounds how far down the delimited strategy looks for a header.
const headerScanRows = 15

var (
	dateCell   = regexp.MustCompile(`^(\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})([ T]\d{1,2}:\d{2}(:\d{2})?)?$`)
	moneyToken = regexp.MustCompile(`(?i)^\(?[-+]?(R\$)?[-+]?\d{1,3}([.,]?\d{3})*[.,]\d{2}\)?[-DC]?$`)
)

// Column header vocabulary, in normalized form.
var (
	dateHeaders   = []string{"data", "date", "dt", "dia"}
	amountHeaders = []string{"valor", "amount", "value", "quantia", "montante", "importe"}
	creditHeaders = []string{"credito", "creditos", "entrada", "entradas", "credit"}
	debitHeaders  = []string{"debito", "debitos", "saida", "saidas", "debit"}
	descHeaders   = []string{
		"historico", "descricao", "description", "lancamento", "detalhes", "detalhe",
		"memo", "nome", "name", "contribuinte", "membro", "dizimista", "favorecido",
		"remetente", "pagador",
	}
)

// strategy is one format-aware extraction heuristic.
type strategy interface {
	name() string
	extract(doc *document, kind Kind) []row
}

// delimitedStrategy reads tabular files: header-driven when a header row is
// found, shape-inferred per row otherwise.
type delimitedStrategy struct{}

func (delimitedStrategy) name() string { return MethodDelimited }

func (delimitedStrategy) extract(doc *document, kind Kind) []row {
	if doc.delimiter == "" || len(doc.table) == 0 {
		return nil
	}

	if headerIdx, cols, ok := findHeader(doc.table, kind); ok {
		var rows []row
		for i := headerIdx + 1; i < len(doc.table); i++ {
			cells := doc.table[i]
			if isBlankRow(cells) {
				continue
			}
			rows = append(rows, row{
				index:       i,
				date:        cellAt(cells, cols.date),
				description: cellAt(cells, cols.description),
				amount:      cellAt(cells, cols.amount),
				credit:      cellAt(cells, cols.credit),
				debit:       cellAt(cells, cols.debit),
				raw:         doc.lines[i],
			})
		}
		return rows
	}

	var rows []row
	for i, cells := range doc.table {
		if isBlankRow(cells) {
			continue
		}
		if r, ok := inferRow(cells); ok {
			r.index = i
			r.raw = doc.lines[i]
			rows = append(rows, r)
		}
	}
	return rows
}

type columns struct {
	date, description, amount, credit, debit int
}

// findHeader locates the first row naming the columns the kind requires.
func findHeader(table [][]string, kind Kind) (int, columns, bool) {
	for i := 0; i < len(table) && i < headerScanRows; i++ {
		cols := columns{date: -1, description: -1, amount: -1, credit: -1, debit: -1}
		for j, cell := range table[i] {
			key := normalizer.Normalize(cell, nil)
			switch {
			case key == "":
			case cols.date < 0 && headerMatches(key, dateHeaders):
				cols.date = j
			case cols.amount < 0 && headerMatches(key, amountHeaders):
				cols.amount = j
			case cols.credit < 0 && headerMatches(key, creditHeaders):
				cols.credit = j
			case cols.debit < 0 && headerMatches(key, debitHeaders):
				cols.debit = j
			case cols.description < 0 && headerMatches(key, descHeaders):
				cols.description = j
			}
		}

		hasAmount := cols.amount >= 0 || cols.credit >= 0 || cols.debit >= 0
		if !hasAmount {
			continue
		}
		if cols.description < 0 {
			cols.description = firstFreeColumn(table[i], cols)
		}
		switch kind {
		case KindStatement:
			if cols.date >= 0 {
				return i, cols, true
			}
		case KindContributorList:
			if cols.description >= 0 {
				return i, cols, true
			}
		}
	}
	return 0, columns{}, false
}

func headerMatches(key string, vocabulary []string) bool {
	for _, word := range vocabulary {
		if key == word || strings.HasPrefix(key, word+" ") {
			return true
		}
	}
	return false
}

func firstFreeColumn(header []string, cols columns) int {
	for j, cell := range header {
		if strings.TrimSpace(cell) == "" {
			continue
		}
		if j != cols.date && j != cols.amount && j != cols.credit && j != cols.debit {
			return j
		}
	}
	return -1
}

// inferRow guesses the roles of a header-less row: the first date-shaped
// cell is the date, the money cell before a trailing balance (or the only
// one) is the amount, the remaining text cells form the description.
func inferRow(cells []string) (row, bool) {
	dateIdx := -1
	for i, c := range cells {
		if dateCell.MatchString(c) {
			dateIdx = i
			break
		}
	}

	var money []int
	for i, c := range cells {
		if i != dateIdx && moneyToken.MatchString(strings.ReplaceAll(c, " ", "")) {
			money = append(money, i)
		}
	}
	if len(money) == 0 {
		for i := len(cells) - 1; i >= 0; i-- {
			if i == dateIdx || !isNumeric(cells[i]) {
				continue
			}
			if _, err := ParseAmount(cells[i]); err == nil {
				money = append(money, i)
				break
			}
		}
	}
	if len(money) == 0 {
		return row{}, false
	}
	amountIdx := money[0]
	if len(money) >= 2 {
		amountIdx = money[len(money)-2]
	}

	var desc []string
	for i, c := range cells {
		if i == dateIdx || i == amountIdx || !hasLetter(c) {
			continue
		}
		if containsInt(money, i) {
			continue
		}
		desc = append(desc, c)
	}

	r := row{amount: cells[amountIdx], description: strings.Join(desc, " ")}
	if dateIdx >= 0 {
		r.date = cells[dateIdx]
	}
	return r, true
}

// textPatternStrategy scans free text line by line for a leading date and
// trailing money tokens.
type textPatternStrategy struct{}

func (textPatternStrategy) name() string { return MethodTextPattern }

func (textPatternStrategy) extract(doc *document, kind Kind) []row {
	var rows []row
	for i, line := range doc.lines {
		if r, ok := scanLine(line); ok {
			if kind == KindStatement && r.date == "" {
				continue
			}
			r.index = i
			rows = append(rows, r)
		}
	}
	return rows
}

func scanLine(line string) (row, bool) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return row{}, false
	}

	start := 0
	date := ""
	if dateCell.MatchString(tokens[0]) {
		date = tokens[0]
		start = 1
	}

	// Walk back over money tokens, folding detached "D"/"C"/"-" markers and
	// "R$" prefixes into their amounts. Two trailing amounts mean the last
	// one is a running balance.
	end := len(tokens)
	var amounts []string
	amountStart := end
	for i := len(tokens) - 1; i >= start && len(amounts) < 2; i-- {
		tok := tokens[i]
		suffix := ""
		if isSignMarker(tok) && i-1 >= start {
			suffix = tok
			i--
			tok = tokens[i]
		}
		if !moneyToken.MatchString(tok + suffix) {
			break
		}
		amount := tok + suffix
		amountStart = i
		if i-1 >= start && strings.EqualFold(tokens[i-1], "R$") {
			i--
			amountStart = i
		}
		amounts = append(amounts, amount)
	}
	if len(amounts) == 0 {
		return row{}, false
	}

	amount := amounts[len(amounts)-1]
	description := strings.Join(tokens[start:amountStart], " ")
	if strings.TrimSpace(description) == "" {
		return row{}, false
	}
	return row{date: date, description: description, amount: amount, raw: line}, true
}

func isSignMarker(tok string) bool {
	switch strings.ToUpper(tok) {
	case "D", "C", "-":
		return true
	}
	return false
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func isNumeric(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0 && !hasLetter(strings.TrimSuffix(strings.ToUpper(s), "D"))
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, unicode.IsLetter) >= 0
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
