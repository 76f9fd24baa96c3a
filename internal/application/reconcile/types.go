package reconcile

import (
	"context"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/extraction"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/matcher"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// Extractor reads decoded files into transactions.
type Extractor interface {
	Extract(ctx context.Context, in extraction.Input) (*extraction.Result, error)
	ExtractPages(ctx context.Context, pages []extraction.Input) (*extraction.Result, error)
}

// Matcher pairs transactions with contributors.
type Matcher interface {
	Match(
		transactions []models.Transaction,
		groups []models.ContributorGroup,
		opts matcher.Options,
		associations []models.LearnedAssociation,
		churches []models.Church,
		keywords []string,
	) []models.MatchResult
}

// File is one decoded input. Pages, when set, are extracted concurrently and
// concatenated in order.
type File struct {
	Name      string
	Text      string
	Rows      [][]string
	Pages     []string
	RawBinary []byte
}

// ContributorFile is a contributor list that belongs to one church.
type ContributorFile struct {
	Church models.Church
	File   File
}

// Settings are the caller-supplied knobs and collections for one run.
type Settings struct {
	Options              matcher.Options
	IgnoredKeywords      []string
	ContributionKeywords []string
	OwnerID              string
	KnownModels          []models.FileModel
	Associations         []models.LearnedAssociation
	Churches             []models.Church
}

// FullInput starts a reconciliation over a new statement.
type FullInput struct {
	Statement    File
	Contributors []ContributorFile
	Settings     Settings
}

// AdditiveInput merges new contributor lists into an existing result set.
type AdditiveInput struct {
	Contributors []ContributorFile
	Settings     Settings
}

// FileKind names the role of a file in a run.
type FileKind string

const (
	FileStatement    FileKind = "statement"
	FileContributors FileKind = "contributors"
)

// FileReport describes how one file was extracted.
type FileReport struct {
	FileName   string                `json:"file_name"`
	Kind       FileKind              `json:"kind"`
	ChurchID   string                `json:"church_id,omitempty"`
	Method     string                `json:"method,omitempty"`
	Status     extraction.Status     `json:"status"`
	Rows       int                   `json:"rows"`
	Confidence float64               `json:"confidence"`
	Skipped    []extraction.RowError `json:"skipped,omitempty"`
	EmptyPages []int                 `json:"empty_pages,omitempty"`
}

// ModelRequest asks the training workflow for a file model.
type ModelRequest struct {
	FileName string                   `json:"file_name"`
	Kind     FileKind                 `json:"kind"`
	ChurchID string                   `json:"church_id,omitempty"`
	Context  *extraction.ModelContext `json:"context"`
}

// Outcome is the result of a run. When Applied is false the statement could
// not be read and Results is the unchanged prior set.
type Outcome struct {
	Results       []models.MatchResult `json:"results"`
	ModelRequests []ModelRequest       `json:"model_requests,omitempty"`
	Extraction    []FileReport         `json:"extraction"`
	Applied       bool                 `json:"applied"`
}
