package service

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/calder-labs/persona/internal/domain"
)

var mergeBase = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func mergeFact(id uuid.UUID, content string, updated time.Time) domain.Fact {
	return domain.Fact{
		ID:            id,
		Category:      domain.CategoryCore,
		Content:       content,
		Confidence:    0.8,
		Maturity:      domain.MaturityEstablished,
		LastValidated: updated,
		UpdatedAt:     updated,
		CreatedAt:     mergeBase.AddDate(0, -1, 0),
	}
}

func TestMergeLastWriteWins(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name        string
		localTime   time.Time
		remoteTime  time.Time
		wantContent string
	}{
		{"newer remote replaces", mergeBase, mergeBase.Add(time.Hour), "remote"},
		{"older remote ignored", mergeBase.Add(time.Hour), mergeBase, "local"},
		{"tie keeps local", mergeBase, mergeBase, "local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := []domain.Fact{mergeFact(id, "local", tt.localTime)}
			remote := []domain.Fact{mergeFact(id, "remote", tt.remoteTime)}

			merged, _ := Merge(local, remote, nil)
			if len(merged) != 1 {
				t.Fatalf("merged %d facts, want 1", len(merged))
			}
			if merged[0].Content != tt.wantContent {
				t.Errorf("kept %q, want %q", merged[0].Content, tt.wantContent)
			}
		})
	}
}

func TestMergeAppendsNewRemote(t *testing.T) {
	local := []domain.Fact{mergeFact(uuid.New(), "local only", mergeBase)}
	remote := []domain.Fact{mergeFact(uuid.New(), "remote only", mergeBase)}

	merged, stats := Merge(local, remote, nil)
	if len(merged) != 2 {
		t.Fatalf("merged %d facts, want 2", len(merged))
	}
	if stats.Added != 1 {
		t.Errorf("stats.Added = %d, want 1", stats.Added)
	}
}

func TestMergeTombstonePrecedence(t *testing.T) {
	id := uuid.New()
	remote := []domain.Fact{mergeFact(id, "resurrect me", mergeBase)}

	// Deletion after the remote's last update wins.
	merged, stats := Merge(nil, remote, []domain.DeletedFact{{ID: id, DeletedAt: mergeBase.Add(time.Hour)}})
	if len(merged) != 0 {
		t.Fatalf("tombstoned fact resurrected: %+v", merged)
	}
	if stats.Deleted != 1 {
		t.Errorf("stats.Deleted = %d, want 1", stats.Deleted)
	}

	// A remote update after the deletion means the fact came back legitimately.
	merged, _ = Merge(nil, remote, []domain.DeletedFact{{ID: id, DeletedAt: mergeBase.Add(-time.Hour)}})
	if len(merged) != 1 {
		t.Errorf("remote fact updated after deletion was dropped")
	}
}

func TestMergeCollapsesDuplicateContent(t *testing.T) {
	a := mergeFact(uuid.New(), "I work at Acme", mergeBase)
	a.Confidence = 0.6
	b := mergeFact(uuid.New(), "i work at acme", mergeBase)
	b.Confidence = 0.9

	merged, stats := Merge([]domain.Fact{a}, []domain.Fact{b}, nil)
	if len(merged) != 1 {
		t.Fatalf("merged %d facts, want duplicates collapsed to 1", len(merged))
	}
	if merged[0].Confidence != 0.9 {
		t.Errorf("kept confidence %.2f, want the higher 0.9", merged[0].Confidence)
	}
	if stats.Collapsed != 1 {
		t.Errorf("stats.Collapsed = %d, want 1", stats.Collapsed)
	}
}

func TestMergeCollapseTieBreaksOnLastValidated(t *testing.T) {
	a := mergeFact(uuid.New(), "I work at Acme", mergeBase)
	a.LastValidated = mergeBase.Add(-time.Hour)
	b := mergeFact(uuid.New(), "i work at acme", mergeBase)
	b.LastValidated = mergeBase

	merged, _ := Merge([]domain.Fact{a}, []domain.Fact{b}, nil)
	if len(merged) != 1 {
		t.Fatalf("merged %d facts, want 1", len(merged))
	}
	if !merged[0].LastValidated.Equal(mergeBase) {
		t.Errorf("equal-confidence tie kept the older validation")
	}
}

func TestMergeDeterministic(t *testing.T) {
	id := uuid.New()
	local := []domain.Fact{mergeFact(id, "local", mergeBase), mergeFact(uuid.New(), "second", mergeBase)}
	remote := []domain.Fact{mergeFact(id, "remote", mergeBase.Add(time.Minute))}

	first, _ := Merge(local, remote, nil)
	second, _ := Merge(local, remote, nil)
	if len(first) != len(second) {
		t.Fatalf("non-deterministic merge size")
	}
	for i := range first {
		if first[i].ID != second[i].ID || first[i].Content != second[i].Content {
			t.Errorf("non-deterministic merge at %d", i)
		}
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{9, 256 * time.Second},
		{10, 5 * time.Minute},
		{50, 5 * time.Minute},
		{-1, 0},
	}
	for _, tt := range tests {
		if got := BackoffDelay(tt.failures); got != tt.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}
