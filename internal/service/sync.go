package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
)

const (
	defaultSyncInterval = 5 * time.Minute
	syncAttemptTimeout  = 30 * time.Second
)

// SyncResult reports one reconciliation attempt.
type SyncResult struct {
	Pulled int        `json:"pulled"`
	Pushed int        `json:"pushed"`
	Stats  MergeStats `json:"stats"`
}

// SyncService reconciles the local collection against the remote fact
// copy in the background. Mutating callers queue a sync and return
// immediately; the worker pulls, merges, pushes, and persists SyncState
// after every attempt, honoring exponential backoff between failures.
type SyncService struct {
	store  domain.CollectionStore
	remote domain.RemoteStore
	logger *zap.Logger
	guard  *CollectionGuard

	interval time.Duration
	stopCh   chan struct{}
	kick     chan struct{}
	wg       sync.WaitGroup

	now         func() time.Time
	lastAttempt time.Time
}

func NewSyncService(store domain.CollectionStore, remote domain.RemoteStore, logger *zap.Logger) *SyncService {
	return &SyncService{
		store:    store,
		remote:   remote,
		logger:   logger,
		guard:    &CollectionGuard{},
		interval: defaultSyncInterval,
		stopCh:   make(chan struct{}),
		kick:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

func (s *SyncService) SetInterval(d time.Duration) {
	s.interval = d
}

// SetGuard shares an update guard with the other writers of the same
// store. Without it each writer serializes only against itself.
func (s *SyncService) SetGuard(g *CollectionGuard) {
	s.guard = g
}

// QueueSync marks a push as pending and nudges the worker. It never
// blocks: if a nudge is already queued the mutation simply rides along.
func (s *SyncService) QueueSync() {
	s.guard.Lock()
	state, err := s.store.LoadSyncState()
	if err != nil {
		s.logger.Warn("failed to load sync state for queueing", zap.Error(err))
		state = domain.NewSyncState()
	}
	if !state.PendingPush {
		state.PendingPush = true
		if err := s.store.SaveSyncState(state); err != nil {
			s.logger.Warn("failed to persist pending push", zap.Error(err))
		}
	}
	s.guard.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *SyncService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("sync worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				s.attempt()
			case <-s.kick:
				s.attempt()
			case <-s.stopCh:
				s.logger.Info("sync worker stopped")
				return
			}
		}
	}()
}

func (s *SyncService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// attempt runs one sync unless backoff says it is too soon to retry.
func (s *SyncService) attempt() {
	state, err := s.store.LoadSyncState()
	if err != nil {
		s.logger.Warn("failed to load sync state", zap.Error(err))
		return
	}
	if delay := BackoffDelay(state.ConsecutiveFailures); delay > 0 {
		if elapsed := s.now().Sub(s.lastAttempt); elapsed < delay {
			s.logger.Debug("sync backoff in effect",
				zap.Duration("remaining", delay-elapsed))
			return
		}
	}
	s.lastAttempt = s.now()

	ctx, cancel := context.WithTimeout(context.Background(), syncAttemptTimeout)
	defer cancel()

	result, err := s.Sync(ctx)
	if err != nil {
		s.logger.Warn("sync failed", zap.Error(err))
		return
	}
	s.logger.Info("sync complete",
		zap.Int("pulled", result.Pulled),
		zap.Int("pushed", result.Pushed),
		zap.Int("added", result.Stats.Added),
		zap.Int("replaced", result.Stats.Replaced),
		zap.Int("deleted", result.Stats.Deleted))
}

// Sync performs one full pull-merge-push cycle. SyncState is persisted on
// every path out, success or failure. The pull runs outside the guard so
// tool mutations never wait on the network; the local load-merge-save
// cycle holds the guard so a mutation landing mid-sync is never
// overwritten by the merge of a stale snapshot.
func (s *SyncService) Sync(ctx context.Context) (*SyncResult, error) {
	remoteFacts, err := s.remote.Fetch(ctx)
	if err != nil {
		s.guard.Lock()
		defer s.guard.Unlock()
		state, stateErr := s.store.LoadSyncState()
		if stateErr != nil {
			return nil, fmt.Errorf("load sync state: %w", stateErr)
		}
		s.recordFailure(state, fmt.Errorf("pull: %w", err))
		return nil, fmt.Errorf("pull: %w", err)
	}

	s.guard.Lock()
	defer s.guard.Unlock()

	state, err := s.store.LoadSyncState()
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	collection, err := s.store.LoadCollection()
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}

	merged, stats := Merge(collection.Facts, remoteFacts, state.DeletedFactIDs)
	now := s.now()
	state.LastPullAt = &now

	collection.Facts = merged
	if err := s.store.SaveCollection(collection); err != nil {
		s.recordFailure(state, fmt.Errorf("save merged collection: %w", err))
		return nil, fmt.Errorf("save merged collection: %w", err)
	}

	if err := s.remote.ReplaceAll(ctx, merged); err != nil {
		s.recordFailure(state, fmt.Errorf("push: %w", err))
		return nil, fmt.Errorf("push: %w", err)
	}

	state.LastPushAt = &now
	state.PendingPush = false
	state.ConsecutiveFailures = 0
	state.LastSyncError = ""
	if err := s.store.SaveSyncState(state); err != nil {
		return nil, fmt.Errorf("save sync state: %w", err)
	}

	return &SyncResult{
		Pulled: len(remoteFacts),
		Pushed: len(merged),
		Stats:  stats,
	}, nil
}

func (s *SyncService) recordFailure(state *domain.SyncState, cause error) {
	state.ConsecutiveFailures++
	state.LastSyncError = cause.Error()
	if err := s.store.SaveSyncState(state); err != nil {
		s.logger.Warn("failed to persist sync failure", zap.Error(err))
	}
}

// CompactTombstones is explicit housekeeping: it drops tombstones older
// than the retention window. Nothing else ever clears them.
func (s *SyncService) CompactTombstones(retention time.Duration) (int, error) {
	s.guard.Lock()
	defer s.guard.Unlock()

	state, err := s.store.LoadSyncState()
	if err != nil {
		return 0, fmt.Errorf("load sync state: %w", err)
	}
	removed := state.CompactTombstones(s.now().Add(-retention))
	if removed == 0 {
		return 0, nil
	}
	if err := s.store.SaveSyncState(state); err != nil {
		return 0, fmt.Errorf("save sync state: %w", err)
	}
	s.logger.Info("tombstones compacted", zap.Int("removed", removed))
	return removed, nil
}
