package domain

import (
	"time"

	"github.com/google/uuid"
)

// DeletedFact is a tombstone preventing a merge from resurrecting a deleted
// fact. Tombstones are cleared only by explicit housekeeping.
type DeletedFact struct {
	ID        uuid.UUID `json:"id"`
	DeletedAt time.Time `json:"deletedAt"`
}

const SyncStateVersion = 1

// SyncState tracks reconciliation progress against the remote fact copy.
// It is persisted immediately after every sync attempt.
type SyncState struct {
	Version             int           `json:"version"`
	LastPullAt          *time.Time    `json:"lastPullAt"`
	LastPushAt          *time.Time    `json:"lastPushAt"`
	PendingPush         bool          `json:"pendingPush"`
	DeletedFactIDs      []DeletedFact `json:"deletedFactIds"`
	LastSyncError       string        `json:"lastSyncError,omitempty"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
}

func NewSyncState() *SyncState {
	return &SyncState{
		Version:        SyncStateVersion,
		DeletedFactIDs: []DeletedFact{},
	}
}

// RecordDeletion adds (or refreshes) a tombstone for the given fact id.
func (s *SyncState) RecordDeletion(id uuid.UUID, at time.Time) {
	for i := range s.DeletedFactIDs {
		if s.DeletedFactIDs[i].ID == id {
			if at.After(s.DeletedFactIDs[i].DeletedAt) {
				s.DeletedFactIDs[i].DeletedAt = at
			}
			return
		}
	}
	s.DeletedFactIDs = append(s.DeletedFactIDs, DeletedFact{ID: id, DeletedAt: at})
}

// CompactTombstones drops tombstones older than the cutoff and returns how
// many were removed. This is the only path that clears tombstones.
func (s *SyncState) CompactTombstones(before time.Time) int {
	kept := s.DeletedFactIDs[:0]
	removed := 0
	for _, t := range s.DeletedFactIDs {
		if t.DeletedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	s.DeletedFactIDs = kept
	return removed
}

// BlockedFact is a permanently suppressed fact, persisted so it survives
// restarts and syncs.
type BlockedFact struct {
	FactID    uuid.UUID `json:"factId"`
	Content   string    `json:"content,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	BlockedAt time.Time `json:"blockedAt"`
}
