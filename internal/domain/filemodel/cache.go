package filemodel

import (
	"sync"

	"github.com/eshaffer321/contribution-reconciler/internal/domain/models"
)

// Cache memoizes ListFor results per owner. The registry invalidates it
// after every write; nothing else mutates it.
type Cache struct {
	mu    sync.RWMutex
	store map[string][]models.FileModel
}

// NewCache creates an empty cache
func NewCache() *Cache {
	return &Cache{
		store: make(map[string][]models.FileModel),
	}
}

// Get returns a copy of the cached list for owner
func (c *Cache) Get(owner string) ([]models.FileModel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list, found := c.store[owner]
	if !found {
		return nil, false
	}
	return append([]models.FileModel(nil), list...), true
}

// Set stores the list for owner
func (c *Cache) Set(owner string, list []models.FileModel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store[owner] = append([]models.FileModel(nil), list...)
}

// Invalidate drops every cached list. Visibility of global models crosses
// owners, so a write anywhere can change any owner's view.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store = make(map[string][]models.FileModel)
}

// Size returns the number of cached owners
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.store)
}
