package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
	"github.com/calder-labs/persona/internal/similarity"
)

const (
	// FuzzyMatchThreshold gates validate/remove lookups by content.
	FuzzyMatchThreshold = 0.7
	// SemanticMatchThreshold gates vector-based fact equivalence; lower
	// because embeddings bridge cross-phrasing the string metric cannot.
	SemanticMatchThreshold = 0.6

	crossCategoryPenalty = 0.95
)

// Matcher scores the similarity of two pieces of fact content in [0,1].
type Matcher interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// StringMatcher is the canonical local strategy: Jaro-Winkler over
// normalized content. It never fails.
type StringMatcher struct{}

func (StringMatcher) Similarity(_ context.Context, a, b string) (float64, error) {
	return similarity.JaroWinkler(similarity.Normalize(a), similarity.Normalize(b)), nil
}

// VectorMatcher decorates the string strategy with embedding cosine
// similarity, falling back whenever the embedding client is unavailable.
type VectorMatcher struct {
	embedder domain.EmbeddingClient
	fallback Matcher
	logger   *zap.Logger
}

func NewVectorMatcher(embedder domain.EmbeddingClient, logger *zap.Logger) *VectorMatcher {
	return &VectorMatcher{
		embedder: embedder,
		fallback: StringMatcher{},
		logger:   logger,
	}
}

func (m *VectorMatcher) Similarity(ctx context.Context, a, b string) (float64, error) {
	va, err := m.embedder.Embed(ctx, a)
	if err != nil {
		m.logger.Debug("embedding unavailable, using string similarity", zap.Error(err))
		return m.fallback.Similarity(ctx, a, b)
	}
	vb, err := m.embedder.Embed(ctx, b)
	if err != nil {
		m.logger.Debug("embedding unavailable, using string similarity", zap.Error(err))
		return m.fallback.Similarity(ctx, a, b)
	}
	return similarity.Cosine(va, vb), nil
}

// MatchOptions tune a duplicate search.
type MatchOptions struct {
	// Threshold is the minimum adjusted score for a match.
	Threshold float64
	// Category applies the same-category bonus when set.
	Category domain.Category
	// AllowCrossCategory admits facts from other categories at a small
	// penalty instead of excluding them.
	AllowCrossCategory bool
}

// Deduper finds existing facts equivalent to new content.
type Deduper struct {
	matcher Matcher
}

func NewDeduper(matcher Matcher) *Deduper {
	return &Deduper{matcher: matcher}
}

// BestMatch returns the single highest-scoring fact at or above the
// threshold, or nil when nothing qualifies.
func (d *Deduper) BestMatch(ctx context.Context, content string, facts []domain.Fact, opts MatchOptions) (*domain.Fact, float64, error) {
	var best *domain.Fact
	bestScore := 0.0

	for i := range facts {
		f := &facts[i]
		score, err := d.matcher.Similarity(ctx, content, f.Content)
		if err != nil {
			return nil, 0, err
		}
		if opts.Category != "" && f.Category != opts.Category {
			if !opts.AllowCrossCategory {
				continue
			}
			score *= crossCategoryPenalty
		}
		if score >= opts.Threshold && score > bestScore {
			best = f
			bestScore = score
		}
	}
	return best, bestScore, nil
}

// FindDuplicate answers "is this content already a fact": exact normalized
// equality first, then a fuzzy search across all categories.
func (d *Deduper) FindDuplicate(ctx context.Context, content string, facts []domain.Fact) (*domain.Fact, error) {
	norm := similarity.Normalize(content)
	for i := range facts {
		if similarity.Normalize(facts[i].Content) == norm {
			return &facts[i], nil
		}
	}

	match, _, err := d.BestMatch(ctx, content, facts, MatchOptions{
		Threshold:          FuzzyMatchThreshold,
		AllowCrossCategory: true,
	})
	return match, err
}
