package extraction

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"brazilian thousands", "1.234,56", "1234.56"},
		{"us thousands", "1,234.56", "1234.56"},
		{"decimal comma", "150,00", "150"},
		{"bare decimal", "12.5", "12.5"},
		{"grouping without decimals", "1.234", "1234"},
		{"leading zero is never a group", "0.500", "0.5"},
		{"leading zero with comma", "0,500", "0.5"},
		{"leading minus", "-20,00", "-20"},
		{"parentheses", "(30,00)", "-30"},
		{"trailing minus", "100,00-", "-100"},
		{"debit marker", "150,00 D", "-150"},
		{"credit marker", "150,00C", "150"},
		{"currency symbol", "R$ 1.000,00", "1000"},
		{"sign after symbol", "R$ -10,00", "-10"},
		{"dollar", "$45.10", "45.1"},
		{"non-breaking space", "1\u00a0234,00", "1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			require.NoError(t, err)
			want := decimal.RequireFromString(tt.want)
			assert.True(t, want.Equal(got), "ParseAmount(%q) = %s, want %s", tt.raw, got, want)
		})
	}
}

func TestParseAmount_Errors(t *testing.T) {
	_, err := ParseAmount("")
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = ParseAmount("abc")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAmount("12/03")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	for _, raw := range []string{
		"10/03/2024",
		"2024-03-10",
		"10-03-2024",
		"10.03.2024",
		"10/03/24",
		"2024/03/10",
		"10/03/2024 14:22",
		"2024-03-10T09:00:00Z",
	} {
		t.Run(raw, func(t *testing.T) {
			got, err := ParseDate(raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestParseDate_Errors(t *testing.T) {
	_, err := ParseDate("")
	assert.ErrorIs(t, err, ErrEmptyValue)

	_, err = ParseDate("31/02/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ParseDate("ontem")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestParseDate_PreferredLayout(t *testing.T) {
	got, err := parseDate("20240310", goLayout("YYYYMMDD"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestDetectDelimiter(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{
			name:  "semicolon csv with decimal commas",
			lines: []string{"Data;Valor", "10/03/2024;150,00", "11/03/2024;20,00"},
			want:  ";",
		},
		{
			name:  "comma csv",
			lines: []string{"date,description,amount", "2024-03-10,PIX,150.00", "2024-03-11,TED,20.00"},
			want:  ",",
		},
		{
			name:  "free text with decimal commas",
			lines: []string{"10/03/2024 PIX JOAO 150,00", "11/03/2024 TARIFA 12,50"},
			want:  "",
		},
		{
			name:  "tab separated",
			lines: []string{"Data\tValor", "10/03/2024\t150,00"},
			want:  "\t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectDelimiter(tt.lines))
		})
	}
}
