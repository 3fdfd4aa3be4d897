package habitsource

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SchemaCache memoizes the backend property list. Writers call Invalidate or Refresh after
// changing properties; concurrent misses share a single backend load.
type SchemaCache struct {
	load  func(ctx context.Context) ([]Property, error)
	group singleflight.Group

	mu    sync.RWMutex
	props []Property
	valid bool
}

// NewSchemaCache creates a cache over load.
func NewSchemaCache(load func(ctx context.Context) ([]Property, error)) *SchemaCache {
	return &SchemaCache{load: load}
}

// Get returns the cached properties, loading them on a miss.
func (c *SchemaCache) Get(ctx context.Context) ([]Property, error) {
	c.mu.RLock()
	if c.valid {
		props := c.props
		c.mu.RUnlock()
		return props, nil
	}
	c.mu.RUnlock()

	v, err, shared := c.group.Do("schema", func() (interface{}, error) {
		props, err := c.load(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.props = props
		c.valid = true
		c.mu.Unlock()
		return props, nil
	})
	if err != nil {
		slog.Debug("SchemaCache.Get: load failed", "error", err, "shared", shared)
		return nil, err
	}
	slog.Debug("SchemaCache.Get: loaded properties", "count", len(v.([]Property)), "shared", shared)
	return v.([]Property), nil
}

// Invalidate drops the cached properties.
func (c *SchemaCache) Invalidate() {
	c.mu.Lock()
	c.props = nil
	c.valid = false
	c.mu.Unlock()
}

// Refresh drops and reloads the cached properties.
func (c *SchemaCache) Refresh(ctx context.Context) ([]Property, error) {
	c.Invalidate()
	return c.Get(ctx)
}
