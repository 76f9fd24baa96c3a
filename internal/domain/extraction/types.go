package extraction

import (
	"context"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// Kind tells the selector what the file is expected to contain.
type Kind int

const (
	// KindStatement rows need a date and a signed amount.
	KindStatement Kind = iota
	// KindContributorList rows need a name and an amount; dates are optional.
	KindContributorList
)

// Status is the terminal outcome of an extraction.
type Status string

const (
	StatusOK            Status = "OK"
	StatusModelRequired Status = "MODEL_REQUIRED"
)

// Method names reported for the built-in strategies.
const (
	MethodDelimited   = "delimited"
	MethodTextPattern = "text-pattern"
	MethodAI          = "ai"
)

// Input is a single decoded file.
type Input struct {
	FileName string
	// Text is the decoded content of text-like files (CSV, OFX-as-text, PDF text).
	Text string
	// Rows holds pre-tokenized cells from spreadsheet decoders. When set,
	// Text is only used for fingerprinting fallbacks.
	Rows [][]string
	Kind Kind

	KnownModels          []models.FileModel
	CleaningKeywords     []string
	ContributionKeywords []string
	OwnerID              string

	// RawBinary is passed untouched to the AI fallback.
	RawBinary []byte
}

// ModelContext carries what a training workflow needs to build a FileModel.
type ModelContext struct {
	Fingerprint string     `json:"fingerprint"`
	Delimiter   string     `json:"delimiter"`
	Headers     []string   `json:"headers,omitempty"`
	SampleRows  [][]string `json:"sample_rows"`
}

// RowError describes a skipped row.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
	Raw    string `json:"raw"`
}

// Result is the outcome of Extract.
type Result struct {
	Transactions []models.Transaction `json:"transactions"`
	Method       string               `json:"method"`
	Status       Status               `json:"status"`
	Confidence   float64              `json:"confidence"`
	ModelContext *ModelContext        `json:"model_context,omitempty"`
	Model        *models.FileModel    `json:"model,omitempty"`
	Skipped      []RowError           `json:"skipped,omitempty"`

	// EmptyPages lists 1-based pages that held no movement rows.
	EmptyPages []int `json:"empty_pages,omitempty"`
}

// ProgressFunc reports AI extraction progress.
type ProgressFunc func(current, total int)

// AIRequest is what the AI fallback receives.
type AIRequest struct {
	FileName  string
	Text      string
	RawBinary []byte
	Kind      Kind
}

// AIExtractor is the injected external extraction fallback. It must return
// rows in source order.
type AIExtractor func(ctx context.Context, req AIRequest, progress ProgressFunc) ([]models.Transaction, error)

// row is a candidate produced by a strategy before it becomes a Transaction.
type row struct {
	index       int
	date        string
	description string
	amount      string
	// credit/debit are used when a layout splits the amount in two columns.
	credit string
	debit  string
	raw    string
}
