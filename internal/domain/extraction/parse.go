package extraction

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyValue     = errors.New("empty value")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrInvalidDate    = errors.New("invalid date")
	thousandsGrouping = regexp.MustCompile(`^[1-9]\d{0,2}([.,]\d{3})+$`)
	amountBody        = regexp.MustCompile(`^[0-9.,]+$`)
)

// dateLayouts are tried in order; four-digit years first so "10/03/2024"
// never half-matches a two-digit layout.
var dateLayouts = []string{
	"2/1/2006",
	"2006-1-2",
	"2-1-2006",
	"2.1.2006",
	"2006/1/2",
	"2/1/06",
	"2-1-06",
}

// separator tells the amount parser which rune is the decimal separator.
type separator int

const (
	separatorAuto separator = iota
	separatorComma
	separatorDot
)

// ParseAmount parses a signed currency amount. It accepts thousands-separated
// values in both notations (1.234,56 and 1,234.56), bare decimals, currency
// symbols, a leading minus, accounting parentheses and trailing D/C markers
// (D = debit, negative).
func ParseAmount(raw string) (decimal.Decimal, error) {
	return parseAmount(raw, separatorAuto)
}

func parseAmount(raw string, sep separator) (decimal.Decimal, error) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, "\u00a0", " "))
	if s == "" {
		return decimal.Zero, ErrEmptyValue
	}

	negative := false
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "D"):
		negative = true
		s = s[:len(s)-1]
	case strings.HasSuffix(upper, "C"):
		s = s[:len(s)-1]
	}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasSuffix(s, "-") {
		negative = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "-"))
	}
	for _, prefix := range []string{"-", "+"} {
		if strings.HasPrefix(s, prefix) {
			negative = negative || prefix == "-"
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
		}
	}
	for _, symbol := range []string{"R$", "US$", "$", "BRL"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, symbol))
	}
	// The sign may also follow the currency symbol: "R$ -10,00".
	if strings.HasPrefix(s, "-") {
		negative = true
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	s = strings.ReplaceAll(s, " ", "")

	if s == "" || !amountBody.MatchString(s) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	normalized, err := normalizeSeparators(s, sep)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	value, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		value = value.Neg()
	}
	return value, nil
}

// normalizeSeparators rewrites s into a plain "1234.56" form.
func normalizeSeparators(s string, sep separator) (string, error) {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	decimalSep := ""
	switch sep {
	case separatorComma:
		decimalSep = ","
	case separatorDot:
		decimalSep = "."
	default:
		switch {
		case lastComma >= 0 && lastDot >= 0:
			if lastComma > lastDot {
				decimalSep = ","
			} else {
				decimalSep = "."
			}
		case lastComma >= 0:
			if !thousandsGrouping.MatchString(s) || strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
				decimalSep = ","
			}
		case lastDot >= 0:
			if !thousandsGrouping.MatchString(s) || strings.Count(s, ".") == 1 && len(s)-lastDot-1 != 3 {
				decimalSep = "."
			}
		}
	}

	intPart, fracPart := s, ""
	if decimalSep != "" {
		idx := strings.LastIndex(s, decimalSep)
		if idx >= 0 {
			intPart, fracPart = s[:idx], s[idx+1:]
		}
	}
	if strings.ContainsAny(fracPart, ".,") {
		return "", ErrInvalidAmount
	}
	intPart = strings.NewReplacer(".", "", ",", "").Replace(intPart)
	if intPart == "" {
		intPart = "0"
	}
	if fracPart == "" {
		return intPart, nil
	}
	return intPart + "." + fracPart, nil
}

// ParseDate parses DD/MM/YYYY, YYYY-MM-DD and their common variants into a
// UTC calendar date. A trailing time component is ignored.
func ParseDate(raw string) (time.Time, error) {
	return parseDate(raw, "")
}

func parseDate(raw, preferredLayout string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, ErrEmptyValue
	}
	if idx := strings.IndexAny(s, " T"); idx > 0 {
		s = s[:idx]
	}

	layouts := dateLayouts
	if preferredLayout != "" {
		layouts = append([]string{preferredLayout}, dateLayouts...)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}
