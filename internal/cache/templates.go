package cache

import (
	"sync"

	"quicktexts/engine/internal/models"
)

// TemplateCache is an in-memory cache of fully resolved templates keyed
// by id. It holds either the complete template set or nothing: any remote
// change invalidates the whole cache and the next read repopulates it.
type TemplateCache struct {
	mu     sync.RWMutex
	items  map[string]models.Template
	loaded bool
}

func NewTemplateCache() *TemplateCache {
	return &TemplateCache{}
}

// Loaded reports whether the cache currently holds a full template set.
func (c *TemplateCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Get returns a single cached template. The second return value is false
// when the cache is cold or the id is unknown.
func (c *TemplateCache) Get(id string) (models.Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return models.Template{}, false
	}
	t, ok := c.items[id]
	return t, ok
}

// All returns a copy of the cached template set, or ok=false when cold.
func (c *TemplateCache) All() (map[string]models.Template, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, false
	}
	out := make(map[string]models.Template, len(c.items))
	for id, t := range c.items {
		out[id] = t
	}
	return out, true
}

// Fill replaces the cache contents with a full template set.
func (c *TemplateCache) Fill(templates map[string]models.Template) {
	items := make(map[string]models.Template, len(templates))
	for id, t := range templates {
		items[id] = t
	}
	c.mu.Lock()
	c.items = items
	c.loaded = true
	c.mu.Unlock()
}

// Invalidate drops everything. Per-document patching is deliberately not
// supported: membership of a template in the visible set depends on
// sharing state that a single change event does not carry.
func (c *TemplateCache) Invalidate() {
	c.mu.Lock()
	c.items = nil
	c.loaded = false
	c.mu.Unlock()
}
