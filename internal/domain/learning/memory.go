// Package learning keeps the description-to-contributor associations built
// from manual confirmations.
//
// Associations are keyed by the normalized transaction description per
// owner, never by amount or date, so a recurring transfer resolves the same
// way even when its value drifts. Writes are upserts: confirming the same
// description twice updates one entry.
package learning

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
	"github.com/eshaffer321/contribution-reconciler/internal/domain/normalizer"
)

var (
	ErrEmptyKey          = errors.New("description normalizes to an empty key")
	ErrPlaceholderChurch = errors.New("cannot learn an association to the placeholder church")
)

type entryKey struct {
	owner string
	key   string
}

// Memory is an in-memory association store
type Memory struct {
	mu      sync.RWMutex
	entries map[entryKey]models.LearnedAssociation
	now     func() time.Time
}

// NewMemory creates an empty memory
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[entryKey]models.LearnedAssociation),
		now:     time.Now,
	}
}

// Upsert records that description belongs to contributor in church.
func (m *Memory) Upsert(
	description string,
	contributor models.Contributor,
	church models.Church,
	ownerID string,
	keywords []string,
) (models.LearnedAssociation, error) {
	key := normalizer.Normalize(description, keywords)
	if key == "" {
		return models.LearnedAssociation{}, ErrEmptyKey
	}
	if church.IsPlaceholder() {
		return models.LearnedAssociation{}, ErrPlaceholderChurch
	}

	name := contributor.NormalizedName
	if name == "" {
		name = normalizer.Normalize(contributor.Name, nil)
	}

	assoc := models.LearnedAssociation{
		NormalizedDescription:     key,
		ContributorNormalizedName: name,
		ContributorName:           contributor.Name,
		ChurchID:                  church.ID,
		OwnerID:                   ownerID,
		UpdatedAt:                 m.now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entryKey{owner: ownerID, key: key}] = assoc
	return assoc, nil
}

// Lookup retrieves the association for an already normalized key.
func (m *Memory) Lookup(ownerID, key string) (models.LearnedAssociation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	assoc, found := m.entries[entryKey{owner: ownerID, key: key}]
	return assoc, found
}

// For returns a snapshot of the owner's associations sorted by key.
func (m *Memory) For(ownerID string) []models.LearnedAssociation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.LearnedAssociation
	for k, assoc := range m.entries {
		if k.owner == ownerID {
			out = append(out, assoc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].NormalizedDescription < out[j].NormalizedDescription
	})
	return out
}

// Load replaces the memory contents with persisted associations. Later
// entries win when a key repeats.
func (m *Memory) Load(list []models.LearnedAssociation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[entryKey]models.LearnedAssociation, len(list))
	for _, assoc := range list {
		if assoc.NormalizedDescription == "" {
			continue
		}
		m.entries[entryKey{owner: assoc.OwnerID, key: assoc.NormalizedDescription}] = assoc
	}
}

// Len returns the number of stored associations
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}
