// Package filemodel stores learned column-mapping templates.
//
// Models are grouped into lineages: every refinement of a template is saved
// as a new version of the same lineage, and only the newest saved version is
// active. Templates are looked up by the structural fingerprint of a file so a
// trained layout applies automatically to future files of the same shape.
//
// Example usage:
//
//	reg := filemodel.NewRegistry(logger)
//	saved, err := reg.Save(models.FileModel{Name: "Banco X", OwnerID: "u1", Fingerprint: fp})
//	visible := reg.ListFor("u1")
package filemodel

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

var (
	ErrInvalidFingerprint   = errors.New("file model fingerprint is empty")
	ErrDuplicateModel       = errors.New("file model already exists")
	ErrLineageOwnerMismatch = errors.New("lineage belongs to another owner")
	ErrModelNotFound        = errors.New("file model not found")
)

// Patch carries the mutable fields of Update. Nil fields are left unchanged.
type Patch struct {
	Name         *string
	Status       *models.FileModelStatus
	Global       *bool
	IsActive     *bool
	Mapping      *models.ColumnMapping
	ParsingRules *models.ParsingRules
	Snippet      *string
}

// Registry is the in-memory file model store owned by the session layer.
type Registry struct {
	mu     sync.Mutex
	models map[string]models.FileModel
	cache  *Cache
	now    func() time.Time
	logger *slog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		models: make(map[string]models.FileModel),
		cache:  NewCache(),
		now:    time.Now,
		logger: logger,
	}
}

// Load seeds the registry with persisted models, replacing its contents.
// If storage holds several active versions of a lineage, only the highest
// version stays active.
func (r *Registry) Load(list []models.FileModel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = make(map[string]models.FileModel, len(list))
	activeByLineage := make(map[string]models.FileModel)
	for _, m := range list {
		r.models[m.ID] = m
		if !m.IsActive {
			continue
		}
		if cur, ok := activeByLineage[m.LineageID]; !ok || m.Version > cur.Version {
			activeByLineage[m.LineageID] = m
		}
	}
	for id, m := range r.models {
		if m.IsActive && activeByLineage[m.LineageID].ID != id {
			m.IsActive = false
			r.models[id] = m
		}
	}
	r.cache.Invalidate()
}

// Save stores a new model version and makes it the single active version of
// its lineage. A failing save leaves every lineage untouched.
func (r *Registry) Save(model models.FileModel) (models.FileModel, error) {
	if model.Fingerprint == "" {
		return models.FileModel{}, ErrInvalidFingerprint
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	if _, exists := r.models[model.ID]; exists {
		return models.FileModel{}, fmt.Errorf("%w: %s", ErrDuplicateModel, model.ID)
	}

	if model.LineageID == "" {
		model.LineageID = model.ID
	}

	maxVersion := 0
	for _, existing := range r.models {
		if existing.LineageID != model.LineageID {
			continue
		}
		if existing.OwnerID != model.OwnerID {
			return models.FileModel{}, fmt.Errorf("%w: lineage %s", ErrLineageOwnerMismatch, model.LineageID)
		}
		if existing.Version > maxVersion {
			maxVersion = existing.Version
		}
	}

	for id, existing := range r.models {
		if existing.LineageID == model.LineageID && existing.IsActive {
			existing.IsActive = false
			r.models[id] = existing
		}
	}

	model.Version = maxVersion + 1
	model.IsActive = true
	if model.Status == "" {
		model.Status = models.FileModelDraft
	}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = r.now().UTC()
	}
	r.models[model.ID] = model
	r.cache.Invalidate()

	r.logger.Info("saved file model",
		"id", model.ID,
		"lineage_id", model.LineageID,
		"version", model.Version,
		"owner_id", model.OwnerID)

	return model, nil
}

// Update applies a partial change to an existing model. Activating a model
// deactivates the rest of its lineage.
func (r *Registry) Update(id string, patch Patch) (models.FileModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, ok := r.models[id]
	if !ok {
		return models.FileModel{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}

	if patch.Name != nil {
		model.Name = *patch.Name
	}
	if patch.Status != nil {
		model.Status = *patch.Status
	}
	if patch.Global != nil {
		model.Global = *patch.Global
	}
	if patch.Mapping != nil {
		model.Mapping = *patch.Mapping
	}
	if patch.ParsingRules != nil {
		model.ParsingRules = *patch.ParsingRules
	}
	if patch.Snippet != nil {
		model.Snippet = *patch.Snippet
	}
	if patch.IsActive != nil {
		if *patch.IsActive {
			for otherID, other := range r.models {
				if otherID != id && other.LineageID == model.LineageID && other.IsActive {
					other.IsActive = false
					r.models[otherID] = other
				}
			}
		}
		model.IsActive = *patch.IsActive
	}

	r.models[id] = model
	r.cache.Invalidate()
	return model, nil
}

// Delete removes a model. When the active version goes, the newest
// remaining version of the lineage takes over.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, ok := r.models[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	delete(r.models, id)

	if model.IsActive {
		var successor *models.FileModel
		for _, other := range r.models {
			if other.LineageID != model.LineageID {
				continue
			}
			if successor == nil || other.Version > successor.Version {
				o := other
				successor = &o
			}
		}
		if successor != nil {
			successor.IsActive = true
			r.models[successor.ID] = *successor
		}
	}

	r.cache.Invalidate()
	return nil
}

// Get returns a model by id.
func (r *Registry) Get(id string) (models.FileModel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	model, ok := r.models[id]
	if !ok {
		return models.FileModel{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return model, nil
}

// Lineage returns every version of a lineage, oldest first.
func (r *Registry) Lineage(lineageID string) []models.FileModel {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.FileModel
	for _, m := range r.models {
		if m.LineageID == lineageID {
			out = append(out, m)
		}
	}
	sortModels(out)
	return out
}

// ListFor returns the models visible to owner: global or owned models that
// are active, plus every version the owner holds.
func (r *Registry) ListFor(owner string) []models.FileModel {
	if cached, ok := r.cache.Get(owner); ok {
		return cached
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.FileModel
	for _, m := range r.models {
		owned := m.OwnerID == owner
		if !(m.Global || owned) {
			continue
		}
		if m.IsActive || owned {
			out = append(out, m)
		}
	}
	sortModels(out)

	// Filled under the registry lock so a concurrent write cannot
	// invalidate before a stale list lands in the cache.
	r.cache.Set(owner, out)
	return out
}

// SelectFor picks the model to apply to a file with the given fingerprint:
// the caller's own active model first, then a global one, newest version
// winning within each group.
func SelectFor(known []models.FileModel, fingerprint, owner string) (models.FileModel, bool) {
	var best models.FileModel
	found := false
	for _, m := range known {
		if !m.IsActive || m.Fingerprint != fingerprint {
			continue
		}
		if m.OwnerID != owner && !m.Global {
			continue
		}
		if !found || better(m, best, owner) {
			best, found = m, true
		}
	}
	return best, found
}

func better(a, b models.FileModel, owner string) bool {
	aOwned, bOwned := a.OwnerID == owner, b.OwnerID == owner
	if aOwned != bOwned {
		return aOwned
	}
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return a.ID < b.ID
}

// All returns every stored model.
func (r *Registry) All() []models.FileModel {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.FileModel, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}
	sortModels(out)
	return out
}

func sortModels(list []models.FileModel) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].LineageID != list[j].LineageID {
			return list[i].LineageID < list[j].LineageID
		}
		return list[i].Version < list[j].Version
	})
}
