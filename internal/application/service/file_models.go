package service

import (
	"fmt"
	"strings"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/filemodel"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// TrainRequest describes a column mapping a user built for a file layout
// that extraction could not read on its own.
type TrainRequest struct {
	Name      string
	OwnerID   string
	LineageID string // set to refine an existing model
	Global    bool
	Approve   bool

	// Sample is the file the mapping was built from. Its fingerprint keys
	// the model unless Fingerprint is given.
	Sample      [][]string
	Fingerprint string

	Mapping      models.ColumnMapping
	ParsingRules models.ParsingRules
}

// TrainModel saves a new file model version so the next file with the same
// layout extracts automatically.
func (s *ReconciliationService) TrainModel(req TrainRequest) (models.FileModel, error) {
	fingerprint := req.Fingerprint
	if fingerprint == "" {
		fingerprint = filemodel.Fingerprint(req.Sample, req.ParsingRules.Delimiter)
	}
	if req.Name == "" {
		return models.FileModel{}, fmt.Errorf("%w: model name is required", ErrInvalidRequest)
	}

	status := models.FileModelDraft
	if req.Approve {
		status = models.FileModelApproved
	}

	saved, err := s.registry.Save(models.FileModel{
		Name:         req.Name,
		LineageID:    req.LineageID,
		Status:       status,
		OwnerID:      req.OwnerID,
		Global:       req.Global,
		Fingerprint:  fingerprint,
		Mapping:      req.Mapping,
		ParsingRules: req.ParsingRules,
		Snippet:      snippet(req.Sample),
	})
	if err != nil {
		return models.FileModel{}, err
	}
	if err := s.persistLineage(saved.LineageID); err != nil {
		return models.FileModel{}, err
	}
	return saved, nil
}

// Models lists the file models visible to an owner.
func (s *ReconciliationService) Models(ownerID string) []models.FileModel {
	return s.registry.ListFor(ownerID)
}

// Model returns one file model.
func (s *ReconciliationService) Model(id string) (models.FileModel, error) {
	return s.registry.Get(id)
}

// UpdateModel applies a partial change to a file model.
func (s *ReconciliationService) UpdateModel(id string, patch filemodel.Patch) (models.FileModel, error) {
	updated, err := s.registry.Update(id, patch)
	if err != nil {
		return models.FileModel{}, err
	}
	if err := s.persistLineage(updated.LineageID); err != nil {
		return models.FileModel{}, err
	}
	return updated, nil
}

// DeleteModel removes a file model version.
func (s *ReconciliationService) DeleteModel(id string) error {
	model, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if err := s.registry.Delete(id); err != nil {
		return err
	}
	if err := s.store.DeleteFileModel(id); err != nil {
		return err
	}
	return s.persistLineage(model.LineageID)
}

// persistLineage writes every version of a lineage, since one save may flip
// the active flag of its siblings.
func (s *ReconciliationService) persistLineage(lineageID string) error {
	for _, m := range s.registry.Lineage(lineageID) {
		if err := s.store.SaveFileModel(m); err != nil {
			return fmt.Errorf("persist file model %s: %w", m.ID, err)
		}
	}
	return nil
}

// snippet keeps the first rows of a sample for later review.
func snippet(rows [][]string) string {
	const maxRows = 5
	var lines []string
	for i, row := range rows {
		if i == maxRows {
			break
		}
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n")
}
