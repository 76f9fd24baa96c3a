package extraction

import (
	"encoding/csv"
	"regexp"
	"strings"
)

// delimiterCells marks a document whose rows arrived pre-tokenized.
const delimiterCells = "cells"

// sniffLines bounds how many lines delimiter detection looks at.
const sniffLines = 30

var (
	delimiterCandidates = []rune{';', '\t', '|', ','}
	wideGap             = regexp.MustCompile(`\s{2,}|\t`)
)

// document is the decoded file in both line and table form.
type document struct {
	lines     []string
	table     [][]string
	delimiter string
}

func newDocument(in Input) *document {
	if len(in.Rows) > 0 {
		doc := &document{delimiter: delimiterCells}
		for _, r := range in.Rows {
			cells := make([]string, len(r))
			for i, c := range r {
				cells[i] = strings.TrimSpace(c)
			}
			doc.table = append(doc.table, cells)
			doc.lines = append(doc.lines, strings.Join(cells, " "))
		}
		return doc
	}

	text := strings.TrimPrefix(in.Text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")

	doc := &document{lines: lines, delimiter: detectDelimiter(lines)}
	doc.table = splitLines(lines, doc.delimiter)
	return doc
}

// splitLines tokenizes every line with delim, keeping line and row indexes
// aligned. Without a delimiter, runs of two or more spaces separate cells,
// which is how text rendered from PDFs lays out columns.
func splitLines(lines []string, delim string) [][]string {
	table := make([][]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			table[i] = nil
			continue
		}
		if delim == "" {
			table[i] = trimCells(wideGap.Split(strings.TrimSpace(line), -1))
			continue
		}
		table[i] = trimCells(splitLine(line, []rune(delim)[0]))
	}
	return table
}

func splitLine(line string, comma rune) []string {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = comma
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	record, err := r.Read()
	if err != nil {
		return strings.Split(line, string(comma))
	}
	return record
}

func trimCells(cells []string) []string {
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	return cells
}

// detectDelimiter picks the candidate that splits the most sampled lines
// into the same number of (at least two) fields.
func detectDelimiter(lines []string) string {
	var sample []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		sample = append(sample, line)
		if len(sample) == sniffLines {
			break
		}
	}
	if len(sample) == 0 {
		return ""
	}

	best, bestScore := "", 0
	for _, cand := range delimiterCandidates {
		widths := make(map[int]int)
		for _, line := range sample {
			widths[len(splitLine(line, cand))]++
		}
		mode, consistent := 0, 0
		for width, count := range widths {
			if count > consistent || count == consistent && width > mode {
				mode, consistent = width, count
			}
		}
		// Decimal commas split most statement lines in two, so a comma
		// delimiter must produce at least three columns.
		minWidth := 2
		if cand == ',' {
			minWidth = 3
		}
		if mode < minWidth || consistent*10 < len(sample)*6 {
			continue
		}
		if consistent > bestScore {
			best, bestScore = string(cand), consistent
		}
	}
	return best
}
