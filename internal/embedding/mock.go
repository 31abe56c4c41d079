package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

const mockDimensions = 64

// MockClient produces deterministic pseudo-embeddings from a content hash.
// Identical text always maps to the same vector, so equality-style tests
// work without a network.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (*MockClient) Dimensions() int {
	return mockDimensions
}

func (*MockClient) Embed(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, mockDimensions)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed)) / math.MaxInt64
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}
