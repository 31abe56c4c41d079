package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
)

func newTestProjector(now time.Time) *Projector {
	decay := NewDecayModel(60)
	decay.now = fixedClock(now)
	return NewProjector(decay, nil, zap.NewNop())
}

func TestProjectRanksRelevanceOverRawConfidence(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := newTestProjector(now)

	facts := []domain.Fact{
		{
			Category:      domain.CategoryExpertise,
			Content:       "React hooks",
			Confidence:    0.9,
			Maturity:      domain.MaturityEstablished,
			LastValidated: now,
		},
		{
			Category:      domain.CategoryPreference,
			Content:       "Cooking",
			Confidence:    1.0,
			Maturity:      domain.MaturityEstablished,
			LastValidated: now,
		},
	}

	got := p.Project(context.Background(), facts, ProjectionOptions{Task: "debug React hook"})
	if len(got) == 0 {
		t.Fatal("projection returned nothing")
	}
	if got[0].Content != "React hooks" {
		t.Errorf("top fact = %q, want the React fact despite lower raw confidence", got[0].Content)
	}
}

func TestProjectProvenBypassesConfidenceFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := newTestProjector(now)

	// 200 days without validation: 1.0 * 0.5^(200/60) ~ 0.099, far below
	// the 0.3 floor.
	facts := []domain.Fact{
		{
			Category:      domain.CategoryCore,
			Content:       "I work at Acme",
			Confidence:    1.0,
			Maturity:      domain.MaturityProven,
			LastValidated: now.AddDate(0, 0, -200),
		},
		{
			Category:      domain.CategoryContext,
			Content:       "Old candidate fact",
			Confidence:    1.0,
			Maturity:      domain.MaturityCandidate,
			LastValidated: now.AddDate(0, 0, -200),
		},
	}

	got := p.Project(context.Background(), facts, ProjectionOptions{MinConfidence: 0.3})
	if len(got) != 1 {
		t.Fatalf("projected %d facts, want only the proven one", len(got))
	}
	if got[0].Maturity != domain.MaturityProven {
		t.Errorf("surviving fact is %s, want proven", got[0].Maturity)
	}
}

func TestProjectNeutralRelevanceWithoutTask(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := newTestProjector(now)

	facts := []domain.Fact{{
		Category:      domain.CategoryCore,
		Content:       "I work at Acme",
		Confidence:    0.8,
		Maturity:      domain.MaturityEstablished,
		LastValidated: now,
	}}

	got := p.Project(context.Background(), facts, ProjectionOptions{})
	if len(got) != 1 {
		t.Fatalf("projected %d facts, want 1", len(got))
	}
	if got[0].Relevance != 0.5 {
		t.Errorf("relevance without task = %.2f, want neutral 0.5", got[0].Relevance)
	}
	if got[0].Score != 0.5*0.8 {
		t.Errorf("score = %.4f, want relevance x effective", got[0].Score)
	}
}

func TestProjectTruncatesToMaxFacts(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := newTestProjector(now)

	facts := make([]domain.Fact, 15)
	for i := range facts {
		facts[i] = domain.Fact{
			Category:      domain.CategoryContext,
			Content:       "fact",
			Confidence:    0.9,
			Maturity:      domain.MaturityEstablished,
			LastValidated: now,
		}
	}

	if got := p.Project(context.Background(), facts, ProjectionOptions{}); len(got) != DefaultMaxFacts {
		t.Errorf("projected %d facts, want default max %d", len(got), DefaultMaxFacts)
	}
	if got := p.Project(context.Background(), facts, ProjectionOptions{MaxFacts: 3}); len(got) != 3 {
		t.Errorf("projected %d facts, want 3", len(got))
	}
}

func TestProjectCategoryBoosts(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := newTestProjector(now)

	expertise := domain.Fact{
		Category:      domain.CategoryExpertise,
		Content:       "Go profiling",
		Confidence:    0.9,
		Maturity:      domain.MaturityEstablished,
		LastValidated: now,
	}
	preference := domain.Fact{
		Category:      domain.CategoryPreference,
		Content:       "Short paragraphs",
		Confidence:    0.9,
		Maturity:      domain.MaturityEstablished,
		LastValidated: now,
	}

	debugRanked := p.Project(context.Background(), []domain.Fact{preference, expertise},
		ProjectionOptions{Task: "fix a crash"})
	if debugRanked[0].Category != domain.CategoryExpertise {
		t.Errorf("debug-like task ranked %s first, want expertise", debugRanked[0].Category)
	}

	writeRanked := p.Project(context.Background(), []domain.Fact{expertise, preference},
		ProjectionOptions{Task: "write a blog post"})
	if writeRanked[0].Category != domain.CategoryPreference {
		t.Errorf("write-like task ranked %s first, want preference", writeRanked[0].Category)
	}
}

func TestProjectEmbeddingRelevance(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	decay := NewDecayModel(60)
	decay.now = fixedClock(now)

	embedder := fixedEmbedder{vectors: map[string][]float32{
		"databases":    {1, 0, 0},
		"tuning posts": {0.9, 0.1, 0},
		"gardening":    {0, 0, 1},
	}}
	p := NewProjector(decay, embedder, zap.NewNop())

	facts := []domain.Fact{
		{Category: domain.CategoryFocus, Content: "gardening", Confidence: 0.9, LastValidated: now, Maturity: domain.MaturityEstablished},
		{Category: domain.CategoryExpertise, Content: "tuning posts", Confidence: 0.9, LastValidated: now, Maturity: domain.MaturityEstablished},
	}

	got := p.Project(context.Background(), facts, ProjectionOptions{Task: "databases"})
	if got[0].Content != "tuning posts" {
		t.Errorf("embedding relevance ranked %q first", got[0].Content)
	}
}
