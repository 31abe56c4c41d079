package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(t.TempDir(), "test-device", zap.NewNop())
}

func TestLoadCollectionMissingReturnsDefault(t *testing.T) {
	s := newTestStore(t)

	c, err := s.LoadCollection()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Version != domain.CollectionVersion || c.DeviceID != "test-device" {
		t.Errorf("default collection = %+v", c)
	}
	if c.Facts == nil || len(c.Facts) != 0 {
		t.Errorf("default facts = %v, want empty slice", c.Facts)
	}
	if c.Settings.DecayHalfLifeDays != domain.DefaultDecayHalfLife {
		t.Errorf("default half-life = %v", c.Settings.DecayHalfLifeDays)
	}
}

func TestCollectionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	c, _ := s.LoadCollection()
	c.Facts = append(c.Facts, domain.Fact{
		ID:            uuid.New(),
		Category:      domain.CategoryCore,
		Content:       "I work at Acme",
		Confidence:    1.0,
		Maturity:      domain.MaturityEstablished,
		Source:        domain.SourceManual,
		LastValidated: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err := s.SaveCollection(c); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := s.LoadCollection()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(loaded.Facts) != 1 {
		t.Fatalf("reloaded %d facts, want 1", len(loaded.Facts))
	}
	got := loaded.Facts[0]
	if got.Content != "I work at Acme" || got.Category != domain.CategoryCore {
		t.Errorf("reloaded fact = %+v", got)
	}
	if !got.LastValidated.Equal(c.Facts[0].LastValidated) {
		t.Errorf("timestamp drift: %v", got.LastValidated)
	}
}

func TestCorruptCollectionDegradesToDefault(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, "test-device", zap.NewNop())

	if err := os.WriteFile(filepath.Join(dir, collectionFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := s.LoadCollection()
	if err != nil {
		t.Fatalf("corrupt read errored: %v", err)
	}
	if len(c.Facts) != 0 {
		t.Errorf("corrupt document produced facts: %+v", c.Facts)
	}
}

func TestSyncStateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	state, _ := s.LoadSyncState()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	state.PendingPush = true
	state.ConsecutiveFailures = 2
	state.LastSyncError = "pull: timeout"
	state.RecordDeletion(uuid.New(), now)
	if err := s.SaveSyncState(state); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := s.LoadSyncState()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !loaded.PendingPush || loaded.ConsecutiveFailures != 2 || loaded.LastSyncError != "pull: timeout" {
		t.Errorf("reloaded state = %+v", loaded)
	}
	if len(loaded.DeletedFactIDs) != 1 {
		t.Errorf("tombstones = %+v", loaded.DeletedFactIDs)
	}
}

func TestBlocklistRoundTrip(t *testing.T) {
	s := newTestStore(t)

	blocked, _ := s.LoadBlocklist()
	if len(blocked) != 0 {
		t.Fatalf("default blocklist = %+v", blocked)
	}

	blocked = append(blocked, domain.BlockedFact{
		FactID:    uuid.New(),
		Content:   "I work at Acme",
		Reason:    "outdated",
		BlockedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err := s.SaveBlocklist(blocked); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := s.LoadBlocklist()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Reason != "outdated" {
		t.Errorf("reloaded blocklist = %+v", loaded)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, "test-device", zap.NewNop())

	c, _ := s.LoadCollection()
	if err := s.SaveCollection(c); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
