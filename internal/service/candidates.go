package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
	"github.com/calder-labs/persona/internal/similarity"
)

// StaleInferThreshold is the inferCount at which a candidate stops being
// surfaced: repeatedly re-inferred but never accepted means the user does
// not want it.
const StaleInferThreshold = 3

// CandidateRegistry holds session-scoped fact proposals keyed by
// normalized content. Nothing here is persisted; a candidate only becomes
// identity state through Accept.
type CandidateRegistry struct {
	mu         sync.Mutex
	entries    map[string]*domain.StoredCandidate
	suppressed map[string]struct{}
	logger     *zap.Logger
	now        func() time.Time
}

func NewCandidateRegistry(logger *zap.Logger) *CandidateRegistry {
	return &CandidateRegistry{
		entries:    make(map[string]*domain.StoredCandidate),
		suppressed: make(map[string]struct{}),
		logger:     logger,
		now:        time.Now,
	}
}

// Register folds a batch of proposals into the registry and returns the
// candidates worth surfacing. Re-proposed content increments its entry's
// inferCount instead of duplicating it; entries at or past the stale
// threshold are kept internally but no longer surfaced. Suppressed content
// is dropped silently.
func (r *CandidateRegistry) Register(proposals []domain.ProposedFact) []domain.StoredCandidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	visible := []domain.StoredCandidate{}

	for _, p := range proposals {
		norm := similarity.Normalize(p.Content)
		if norm == "" {
			continue
		}
		if _, blocked := r.suppressed[norm]; blocked {
			r.logger.Debug("dropping suppressed candidate", zap.String("content", norm))
			continue
		}

		entry, ok := r.entries[norm]
		if ok {
			entry.InferCount++
			entry.LastInferred = now
			if p.Confidence > entry.Confidence {
				entry.Confidence = p.Confidence
			}
			if p.Evidence != "" {
				entry.Evidence = p.Evidence
			}
		} else {
			entry = &domain.StoredCandidate{
				ProposedFact: p,
				InferCount:   1,
				LastInferred: now,
			}
			r.entries[norm] = entry
		}

		if entry.InferCount >= StaleInferThreshold {
			r.logger.Debug("candidate stale, no longer surfaced",
				zap.String("content", norm),
				zap.Int("infer_count", entry.InferCount))
			continue
		}
		visible = append(visible, *entry)
	}
	return visible
}

// Pending lists candidates still eligible for surfacing.
func (r *CandidateRegistry) Pending() []domain.StoredCandidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []domain.StoredCandidate{}
	for _, e := range r.entries {
		if e.InferCount < StaleInferThreshold {
			out = append(out, *e)
		}
	}
	return out
}

// SuppressContent permanently blocks content from re-entering the registry.
func (r *CandidateRegistry) SuppressContent(content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	norm := similarity.Normalize(content)
	if norm == "" {
		return
	}
	delete(r.entries, norm)
	r.suppressed[norm] = struct{}{}
}

func (r *CandidateRegistry) IsContentSuppressed(content string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.suppressed[similarity.Normalize(content)]
	return ok
}

// Take removes and returns the candidate matching the given content, or
// nil when no entry matches.
func (r *CandidateRegistry) Take(content string) *domain.StoredCandidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	norm := similarity.Normalize(content)
	entry, ok := r.entries[norm]
	if !ok {
		return nil
	}
	delete(r.entries, norm)
	return entry
}

// Reject removes the candidate and suppresses its content so it cannot be
// re-proposed this session.
func (r *CandidateRegistry) Reject(content string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	norm := similarity.Normalize(content)
	_, ok := r.entries[norm]
	delete(r.entries, norm)
	r.suppressed[norm] = struct{}{}
	return ok
}
