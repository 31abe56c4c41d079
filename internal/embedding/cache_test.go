package embedding

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/calder-labs/persona/internal/domain"
)

type countingClient struct {
	inner domain.EmbeddingClient
	calls atomic.Int64
}

func (c *countingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.inner.Embed(ctx, text)
}

func (c *countingClient) Dimensions() int { return c.inner.Dimensions() }

func TestCacheReadThrough(t *testing.T) {
	counting := &countingClient{inner: NewMockClient()}
	cache, err := NewCache(counting)
	if err != nil {
		t.Fatalf("cache init failed: %v", err)
	}

	first, err := cache.Embed(context.Background(), "I work at Acme")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	cache.Wait()

	second, err := cache.Embed(context.Background(), "I work at Acme")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if counting.calls.Load() != 1 {
		t.Errorf("inner called %d times, want 1", counting.calls.Load())
	}
	if len(first) != len(second) {
		t.Fatal("vector length changed between calls")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatal("cached vector differs from original")
		}
	}
}

func TestCacheInvalidateFact(t *testing.T) {
	counting := &countingClient{inner: NewMockClient()}
	cache, err := NewCache(counting)
	if err != nil {
		t.Fatalf("cache init failed: %v", err)
	}

	f := &domain.Fact{ID: uuid.New(), Content: "I work at Acme"}
	if _, err := cache.EmbedFact(context.Background(), f); err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	cache.Wait()

	cache.InvalidateFact(f.ID)
	cache.Wait()

	f.Content = "I work at Initech"
	if _, err := cache.EmbedFact(context.Background(), f); err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if counting.calls.Load() != 2 {
		t.Errorf("inner called %d times, want re-embed after invalidation", counting.calls.Load())
	}
}

func TestMockClientDeterministic(t *testing.T) {
	m := NewMockClient()
	a, _ := m.Embed(context.Background(), "same text")
	b, _ := m.Embed(context.Background(), "same text")
	c, _ := m.Embed(context.Background(), "different text")

	for i := range a {
		if a[i] != b[i] {
			t.Fatal("mock embedding not deterministic")
		}
	}
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("distinct texts produced identical vectors")
	}
	if len(a) != m.Dimensions() {
		t.Errorf("vector length %d, want %d", len(a), m.Dimensions())
	}
}
