package dto

import (
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// FileUpload carries one file. Content is base64 in JSON; Text is a
// shortcut for plain-text files.
type FileUpload struct {
	Name    string `json:"name"`
	Content []byte `json:"content,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Bytes returns the raw file content.
func (f FileUpload) Bytes() []byte {
	if f.Text != "" {
		return []byte(f.Text)
	}
	return f.Content
}

// ContributorUpload is a contributor list for one church.
type ContributorUpload struct {
	Church models.Church `json:"church"`
	File   FileUpload    `json:"file"`
}

// MatchOptions overrides the configured matching knobs for one run.
type MatchOptions struct {
	SimilarityThreshold *float64 `json:"similarity_threshold,omitempty"`
	DayTolerance        *int     `json:"day_tolerance,omitempty"`
}

// ReconcileRequest is the body of POST /api/sessions/{id}/reconcile.
type ReconcileRequest struct {
	OwnerID      string              `json:"owner_id"`
	Churches     []models.Church     `json:"churches,omitempty"`
	Statement    FileUpload          `json:"statement"`
	Contributors []ContributorUpload `json:"contributors,omitempty"`
	Options      *MatchOptions       `json:"options,omitempty"`
}

// ContributorsRequest is the body of POST /api/sessions/{id}/contributors.
type ContributorsRequest struct {
	OwnerID      string              `json:"owner_id"`
	Churches     []models.Church     `json:"churches,omitempty"`
	Contributors []ContributorUpload `json:"contributors"`
	Options      *MatchOptions       `json:"options,omitempty"`
}

// ContributorInput identifies the contributor a user picked.
type ContributorInput struct {
	Name   string `json:"name"`
	Amount string `json:"amount,omitempty"`
}

// ConfirmRequest is the body of a manual identification.
type ConfirmRequest struct {
	ChurchID    string           `json:"church_id"`
	Contributor ContributorInput `json:"contributor"`
}

// TrainModelRequest creates a file model version.
type TrainModelRequest struct {
	Name         string               `json:"name"`
	OwnerID      string               `json:"owner_id"`
	LineageID    string               `json:"lineage_id,omitempty"`
	Global       bool                 `json:"global"`
	Approve      bool                 `json:"approve"`
	Fingerprint  string               `json:"fingerprint,omitempty"`
	Sample       [][]string           `json:"sample,omitempty"`
	Mapping      models.ColumnMapping `json:"mapping"`
	ParsingRules models.ParsingRules  `json:"parsing_rules"`
}

// UpdateModelRequest is a partial file model change. Absent fields are
// left untouched.
type UpdateModelRequest struct {
	Name         *string                 `json:"name,omitempty"`
	Status       *models.FileModelStatus `json:"status,omitempty"`
	Global       *bool                   `json:"global,omitempty"`
	IsActive     *bool                   `json:"is_active,omitempty"`
	Mapping      *models.ColumnMapping   `json:"mapping,omitempty"`
	ParsingRules *models.ParsingRules    `json:"parsing_rules,omitempty"`
	Snippet      *string                 `json:"snippet,omitempty"`
}
