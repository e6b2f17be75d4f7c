package schema

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// ErrSchemaNotFound indicates the registry has no schema with the requested id.
var ErrSchemaNotFound = errors.New("schema not found")

// Registry resolves schemas by id. Implementations must be safe for concurrent use.
type Registry interface {
	GetSchema(ctx context.Context, schemaID uuid.UUID) (*Schema, error)
}

// RegistryFunc adapts a function to the Registry interface.
type RegistryFunc func(ctx context.Context, schemaID uuid.UUID) (*Schema, error)

// GetSchema calls f.
func (f RegistryFunc) GetSchema(ctx context.Context, schemaID uuid.UUID) (*Schema, error) {
	return f(ctx, schemaID)
}

// StaticRegistry serves schemas from memory.
type StaticRegistry struct {
	mu      sync.RWMutex
	schemas map[uuid.UUID]*Schema
}

// NewStaticRegistry creates a registry holding the given schemas.
func NewStaticRegistry(schemas ...*Schema) *StaticRegistry {
	r := &StaticRegistry{schemas: make(map[uuid.UUID]*Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[s.ID] = s
	}
	return r
}

// Put adds or replaces a schema.
func (r *StaticRegistry) Put(s *Schema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[s.ID] = s
}

// GetSchema implements Registry.
func (r *StaticRegistry) GetSchema(ctx context.Context, schemaID uuid.UUID) (*Schema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schemas[schemaID]
	if !ok {
		return nil, errors.Wrapf(ErrSchemaNotFound, "schema %s", schemaID)
	}
	return s, nil
}

// CacheOptions configures a CachedRegistry.
type CacheOptions struct {
	// Size is the maximum number of cached schemas (default: 256)
	Size int

	// TTL bounds how long a schema is served from cache (default: 5 minutes)
	TTL time.Duration
}

// CachedRegistry is a read-through cache in front of another Registry.
// Concurrent misses for the same schema are collapsed into a single load.
type CachedRegistry struct {
	source Registry
	cache  *expirable.LRU[uuid.UUID, *Schema]
	group  singleflight.Group
}

// NewCachedRegistry wraps source with an expiring LRU cache.
func NewCachedRegistry(source Registry, opts CacheOptions) *CachedRegistry {
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	return &CachedRegistry{
		source: source,
		cache:  expirable.NewLRU[uuid.UUID, *Schema](opts.Size, nil, opts.TTL),
	}
}

// GetSchema implements Registry.
func (r *CachedRegistry) GetSchema(ctx context.Context, schemaID uuid.UUID) (*Schema, error) {
	if s, ok := r.cache.Get(schemaID); ok {
		return s, nil
	}

	// The load outlives any one caller so a cancelled caller does not fail
	// the others waiting on the same id.
	ch := r.group.DoChan(schemaID.String(), func() (interface{}, error) {
		if s, ok := r.cache.Get(schemaID); ok {
			return s, nil
		}
		s, err := r.source.GetSchema(context.WithoutCancel(ctx), schemaID)
		if err != nil {
			return nil, err
		}
		r.cache.Add(schemaID, s)
		return s, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Schema), nil
	}
}

// Invalidate drops a cached schema so the next lookup reloads it.
func (r *CachedRegistry) Invalidate(schemaID uuid.UUID) {
	r.cache.Remove(schemaID)
}
