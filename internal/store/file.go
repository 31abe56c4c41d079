package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
)

const (
	collectionFile = "facts.json"
	syncStateFile  = "sync_state.json"
	blocklistFile  = "blocked_facts.json"
)

// FileStore persists the local documents as JSON files under a data
// directory. Writes go through a temp file and rename so a crash never
// leaves a half-written document. A missing or unreadable document
// degrades to its zero-value default rather than failing the caller.
type FileStore struct {
	dir      string
	deviceID string
	logger   *zap.Logger

	mu sync.Mutex
}

var _ domain.CollectionStore = (*FileStore)(nil)

func NewFileStore(dir, deviceID string, logger *zap.Logger) *FileStore {
	return &FileStore{dir: dir, deviceID: deviceID, logger: logger}
}

func (s *FileStore) LoadCollection() (*domain.FactCollection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var c domain.FactCollection
	ok, err := s.readJSON(collectionFile, &c)
	if err != nil || !ok {
		return domain.NewFactCollection(s.deviceID), err
	}
	if c.Facts == nil {
		c.Facts = []domain.Fact{}
	}
	if c.Settings.DecayHalfLifeDays <= 0 {
		c.Settings.DecayHalfLifeDays = domain.DefaultDecayHalfLife
	}
	return &c, nil
}

func (s *FileStore) SaveCollection(c *domain.FactCollection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(collectionFile, c)
}

func (s *FileStore) LoadSyncState() (*domain.SyncState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var state domain.SyncState
	ok, err := s.readJSON(syncStateFile, &state)
	if err != nil || !ok {
		return domain.NewSyncState(), err
	}
	if state.DeletedFactIDs == nil {
		state.DeletedFactIDs = []domain.DeletedFact{}
	}
	return &state, nil
}

func (s *FileStore) SaveSyncState(state *domain.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(syncStateFile, state)
}

func (s *FileStore) LoadBlocklist() ([]domain.BlockedFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blocked []domain.BlockedFact
	ok, err := s.readJSON(blocklistFile, &blocked)
	if err != nil || !ok || blocked == nil {
		return []domain.BlockedFact{}, err
	}
	return blocked, nil
}

func (s *FileStore) SaveBlocklist(blocked []domain.BlockedFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(blocklistFile, blocked)
}

// readJSON reports whether the document existed and parsed. A corrupt file
// is logged and treated as absent so the store always yields a default.
func (s *FileStore) readJSON(name string, v any) (bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("document corrupt, starting from defaults",
			zap.String("file", name),
			zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
