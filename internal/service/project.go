package service

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
	"github.com/calder-labs/persona/internal/similarity"
)

const (
	DefaultMaxFacts      = 10
	DefaultMinConfidence = 0.3

	neutralRelevance = 0.5
	overlapStep      = 0.15
	overlapCap       = 0.6
	expertiseBoost   = 0.3
	preferenceBoost  = 0.2
	provenBoost      = 0.1
)

// ProjectionOptions select and bound a projection.
type ProjectionOptions struct {
	Task          string
	MaxFacts      int
	MinConfidence float64
}

// ProjectedFact is a fact with its derived read-time scores.
type ProjectedFact struct {
	domain.Fact
	EffectiveConfidence float64 `json:"effectiveConfidence"`
	Relevance           float64 `json:"relevance"`
	Score               float64 `json:"score"`
}

// Projector is the canonical read path: effective confidence per fact,
// task relevance, filter, rank, truncate. Proven facts bypass the
// confidence filter entirely.
type Projector struct {
	decay    *DecayModel
	embedder domain.EmbeddingClient
	logger   *zap.Logger
}

// NewProjector builds a projector; embedder may be nil, which pins
// relevance to the keyword path.
func NewProjector(decay *DecayModel, embedder domain.EmbeddingClient, logger *zap.Logger) *Projector {
	return &Projector{decay: decay, embedder: embedder, logger: logger}
}

func (p *Projector) Project(ctx context.Context, facts []domain.Fact, opts ProjectionOptions) []ProjectedFact {
	if opts.MaxFacts <= 0 {
		opts.MaxFacts = DefaultMaxFacts
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}

	taskVec := p.embedTask(ctx, opts.Task)

	out := []ProjectedFact{}
	for i := range facts {
		f := &facts[i]
		eff := p.decay.EffectiveConfidence(f)
		if eff < opts.MinConfidence && f.Maturity != domain.MaturityProven {
			continue
		}
		rel := p.relevance(ctx, f, opts.Task, taskVec)
		out = append(out, ProjectedFact{
			Fact:                *f,
			EffectiveConfidence: eff,
			Relevance:           rel,
			Score:               rel * eff,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > opts.MaxFacts {
		out = out[:opts.MaxFacts]
	}
	return out
}

func (p *Projector) embedTask(ctx context.Context, task string) []float32 {
	if p.embedder == nil || task == "" {
		return nil
	}
	vec, err := p.embedder.Embed(ctx, task)
	if err != nil {
		p.logger.Debug("task embedding unavailable, using keyword relevance", zap.Error(err))
		return nil
	}
	return vec
}

func (p *Projector) relevance(ctx context.Context, f *domain.Fact, task string, taskVec []float32) float64 {
	if task == "" {
		return neutralRelevance
	}

	if taskVec != nil {
		if vec, err := p.embedder.Embed(ctx, f.Content); err == nil {
			rel := similarity.Cosine(taskVec, vec)
			if rel < 0 {
				rel = 0
			}
			return clamp01(rel + maturityBoost(f))
		}
	}

	return clamp01(keywordRelevance(task, f) + maturityBoost(f))
}

// keywordRelevance scores token overlap between task and content, with a
// capped per-token contribution plus category boosts for task shapes that
// favor particular kinds of facts.
func keywordRelevance(task string, f *domain.Fact) float64 {
	taskTokens := similarity.Tokens(task)
	factTokens := map[string]struct{}{}
	for _, t := range similarity.Tokens(f.Content) {
		factTokens[t] = struct{}{}
	}

	overlap := 0.0
	for _, t := range taskTokens {
		if _, ok := factTokens[t]; ok {
			overlap += overlapStep
		}
	}
	if overlap > overlapCap {
		overlap = overlapCap
	}

	boost := 0.0
	if f.Category == domain.CategoryExpertise && hasAny(taskTokens, "debug", "fix", "error", "troubleshoot", "crash", "bug") {
		boost += expertiseBoost
	}
	if f.Category == domain.CategoryPreference && hasAny(taskTokens, "write", "review", "draft", "create", "design", "compose") {
		boost += preferenceBoost
	}
	return overlap + boost
}

func maturityBoost(f *domain.Fact) float64 {
	if f.Maturity == domain.MaturityProven {
		return provenBoost
	}
	return 0
}

func hasAny(tokens []string, wanted ...string) bool {
	for _, t := range tokens {
		for _, w := range wanted {
			if t == w {
				return true
			}
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
