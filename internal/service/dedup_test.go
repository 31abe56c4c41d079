package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
)

func TestStringMatcherNormalizes(t *testing.T) {
	m := StringMatcher{}
	score, err := m.Similarity(context.Background(), "  I Work At Acme.", "i work at acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Errorf("score = %.4f, want 1.0 for equal normalized content", score)
	}
}

type errorEmbedder struct{}

func (errorEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding service down")
}

func (errorEmbedder) Dimensions() int { return 0 }

type fixedEmbedder struct {
	vectors map[string][]float32
}

func (e fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v, ok := e.vectors[text]
	if !ok {
		return nil, errors.New("no vector for text")
	}
	return v, nil
}

func (fixedEmbedder) Dimensions() int { return 3 }

func TestVectorMatcherFallsBackToString(t *testing.T) {
	m := NewVectorMatcher(errorEmbedder{}, zap.NewNop())
	score, err := m.Similarity(context.Background(), "i work at acme", "i work at acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Errorf("fallback score = %.4f, want 1.0", score)
	}
}

func TestVectorMatcherUsesCosine(t *testing.T) {
	m := NewVectorMatcher(fixedEmbedder{vectors: map[string][]float32{
		"a": {1, 0, 0},
		"b": {0, 1, 0},
	}}, zap.NewNop())

	score, err := m.Similarity(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 0 {
		t.Errorf("orthogonal vectors score = %.4f, want 0", score)
	}
}

func TestBestMatchThreshold(t *testing.T) {
	d := NewDeduper(StringMatcher{})
	facts := []domain.Fact{
		{Content: "I work at Acme", Category: domain.CategoryCore},
		{Content: "I enjoy hiking", Category: domain.CategoryPreference},
	}

	match, score, err := d.BestMatch(context.Background(), "I work for Acme", facts, MatchOptions{
		Threshold:          FuzzyMatchThreshold,
		AllowCrossCategory: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match == nil || match.Content != "I work at Acme" {
		t.Fatalf("match = %v, want the Acme fact", match)
	}
	if score < FuzzyMatchThreshold {
		t.Errorf("score %.4f below threshold", score)
	}

	match, _, err = d.BestMatch(context.Background(), "quantum basket weaving", facts, MatchOptions{
		Threshold:          FuzzyMatchThreshold,
		AllowCrossCategory: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("unexpected match %q for unrelated content", match.Content)
	}
}

func TestBestMatchCategoryFilter(t *testing.T) {
	d := NewDeduper(StringMatcher{})
	facts := []domain.Fact{
		{Content: "I work at Acme", Category: domain.CategoryCore},
	}

	// Mismatched category excluded when cross-category is not allowed.
	match, _, err := d.BestMatch(context.Background(), "I work at Acme", facts, MatchOptions{
		Threshold: FuzzyMatchThreshold,
		Category:  domain.CategoryPreference,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if match != nil {
		t.Errorf("cross-category match returned when not allowed")
	}

	// Allowed cross-category matches carry the penalty.
	_, score, err := d.BestMatch(context.Background(), "I work at Acme", facts, MatchOptions{
		Threshold:          FuzzyMatchThreshold,
		Category:           domain.CategoryPreference,
		AllowCrossCategory: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != crossCategoryPenalty {
		t.Errorf("penalized score = %.4f, want %.4f", score, crossCategoryPenalty)
	}

	// Same category keeps the full score.
	_, score, err = d.BestMatch(context.Background(), "I work at Acme", facts, MatchOptions{
		Threshold: FuzzyMatchThreshold,
		Category:  domain.CategoryCore,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if score != 1.0 {
		t.Errorf("same-category score = %.4f, want 1.0", score)
	}
}

func TestFindDuplicateExactBeforeFuzzy(t *testing.T) {
	d := NewDeduper(StringMatcher{})
	facts := []domain.Fact{
		{Content: "I work at Acme", Category: domain.CategoryCore},
	}

	dup, err := d.FindDuplicate(context.Background(), "i work at ACME.", facts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup == nil {
		t.Fatal("case-insensitive duplicate not found")
	}

	dup, err = d.FindDuplicate(context.Background(), "I bake sourdough bread", facts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dup != nil {
		t.Errorf("false duplicate: %q", dup.Content)
	}
}
