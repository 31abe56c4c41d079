package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/calder-labs/persona/internal/domain"
)

const (
	cacheNumCounters = 10_000
	cacheMaxCost     = 32 << 20 // bytes of cached vectors
	cacheBufferItems = 64

	bytesPerFloat32 = 4
)

// Cache is a read-through decorator over an embedding client. Vectors are
// cached by content and, via EmbedFact, by fact id; fact entries must be
// invalidated whenever the fact's content changes or the fact is deleted.
type Cache struct {
	inner domain.EmbeddingClient
	cache *ristretto.Cache
}

var _ domain.EmbeddingClient = (*Cache)(nil)

func NewCache(inner domain.EmbeddingClient) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner, cache: c}, nil
}

func (c *Cache) Dimensions() int {
	return c.inner.Dimensions()
}

func (c *Cache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := "content:" + text
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, int64(len(vec)*bytesPerFloat32))
	return vec, nil
}

// EmbedFact resolves a fact's vector through the id-keyed cache.
func (c *Cache) EmbedFact(ctx context.Context, f *domain.Fact) ([]float32, error) {
	key := factKey(f.ID)
	if v, ok := c.cache.Get(key); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, f.Content)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, vec, int64(len(vec)*bytesPerFloat32))
	return vec, nil
}

// InvalidateFact drops the id-keyed entry for a changed or deleted fact.
func (c *Cache) InvalidateFact(id uuid.UUID) {
	c.cache.Del(factKey(id))
}

// Wait flushes pending cache writes; used by tests.
func (c *Cache) Wait() {
	c.cache.Wait()
}

func factKey(id uuid.UUID) string {
	return "fact:" + id.String()
}
