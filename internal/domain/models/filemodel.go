package models

import "time"

// FileModelStatus is the review state of a trained file model.
type FileModelStatus string

const (
	FileModelDraft    FileModelStatus = "draft"
	FileModelApproved FileModelStatus = "approved"
)

// ColumnMapping assigns file columns to transaction fields. Column indexes
// are zero-based; -1 marks an unused column.
type ColumnMapping struct {
	DateColumn        int `json:"date_column" yaml:"date_column"`
	DescriptionColumn int `json:"description_column" yaml:"description_column"`
	AmountColumn      int `json:"amount_column" yaml:"amount_column"`
	CreditColumn      int `json:"credit_column" yaml:"credit_column"`
	DebitColumn       int `json:"debit_column" yaml:"debit_column"`
	HeaderRows        int `json:"header_rows" yaml:"header_rows"`

	// IgnoredRowPatterns are learned row-filter blocks: rows whose joined
	// text contains any of them (case-insensitive) are skipped.
	IgnoredRowPatterns []string `json:"ignored_row_patterns,omitempty" yaml:"ignored_row_patterns"`
}

// ParsingRules carry format details needed to replay a mapping.
type ParsingRules struct {
	Delimiter    string `json:"delimiter"`
	DateFormat   string `json:"date_format,omitempty"`
	DecimalComma bool   `json:"decimal_comma"`
}

// FileModel is a learned column-mapping template for one file layout.
type FileModel struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Version      int             `json:"version"`
	LineageID    string          `json:"lineage_id"`
	IsActive     bool            `json:"is_active"`
	Status       FileModelStatus `json:"status"`
	OwnerID      string          `json:"owner_id"`
	Global       bool            `json:"global"`
	Fingerprint  string          `json:"fingerprint"`
	Mapping      ColumnMapping   `json:"mapping"`
	ParsingRules ParsingRules    `json:"parsing_rules"`
	Snippet      string          `json:"snippet,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
