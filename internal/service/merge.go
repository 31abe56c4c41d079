package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/calder-labs/persona/internal/domain"
	"github.com/calder-labs/persona/internal/similarity"
)

const (
	backoffBase = time.Second
	backoffCap  = 5 * time.Minute
)

// MergeStats summarizes what a reconciliation did.
type MergeStats struct {
	Added     int `json:"added"`
	Replaced  int `json:"replaced"`
	KeptLocal int `json:"keptLocal"`
	Deleted   int `json:"deleted"`
	Collapsed int `json:"collapsed"`
}

// Merge reconciles the remote fact copy into the local collection. Local
// is the authoritative baseline: tombstones newer than a remote fact's
// updatedAt exclude it, a strictly newer remote updatedAt replaces the
// local entry, and ties keep local. The merged set is then collapsed on
// exact normalized content so independent device inference cannot leave
// incidental duplicates.
func Merge(local, remote []domain.Fact, tombstones []domain.DeletedFact) ([]domain.Fact, MergeStats) {
	stats := MergeStats{}

	deleted := make(map[uuid.UUID]time.Time, len(tombstones))
	for _, t := range tombstones {
		deleted[t.ID] = t.DeletedAt
	}

	merged := make([]domain.Fact, len(local))
	copy(merged, local)
	index := make(map[uuid.UUID]int, len(merged))
	for i := range merged {
		index[merged[i].ID] = i
	}

	for _, rf := range remote {
		if deletedAt, ok := deleted[rf.ID]; ok && deletedAt.After(rf.UpdatedAt) {
			stats.Deleted++
			continue
		}
		i, ok := index[rf.ID]
		if !ok {
			index[rf.ID] = len(merged)
			merged = append(merged, rf)
			stats.Added++
			continue
		}
		if rf.UpdatedAt.After(merged[i].UpdatedAt) {
			merged[i] = rf
			stats.Replaced++
		} else {
			stats.KeptLocal++
		}
	}

	merged, collapsed := collapseByContent(merged)
	stats.Collapsed = collapsed
	return merged, stats
}

// collapseByContent keeps one fact per normalized content: higher
// confidence wins, then the more recently validated.
func collapseByContent(facts []domain.Fact) ([]domain.Fact, int) {
	keep := make(map[string]int, len(facts))
	out := facts[:0]
	collapsed := 0

	for _, f := range facts {
		norm := similarity.Normalize(f.Content)
		i, seen := keep[norm]
		if !seen {
			keep[norm] = len(out)
			out = append(out, f)
			continue
		}
		collapsed++
		if betterDuplicate(f, out[i]) {
			out[i] = f
		}
	}
	return out, collapsed
}

func betterDuplicate(a, b domain.Fact) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.LastValidated.After(b.LastValidated)
}

// BackoffDelay returns the retry delay after the given number of
// consecutive sync failures: zero with no failures, then doubling from
// one second up to the five-minute ceiling.
func BackoffDelay(consecutiveFailures int) time.Duration {
	if consecutiveFailures <= 0 {
		return 0
	}
	shift := consecutiveFailures - 1
	if shift > 20 {
		return backoffCap
	}
	d := backoffBase << shift
	if d > backoffCap {
		return backoffCap
	}
	return d
}
