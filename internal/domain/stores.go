package domain

import "context"

// CollectionStore persists the three local documents: the fact collection,
// the sync state, and the blocklist. Implementations must return usable
// defaults when a document is missing or unreadable.
type CollectionStore interface {
	LoadCollection() (*FactCollection, error)
	SaveCollection(c *FactCollection) error

	LoadSyncState() (*SyncState, error)
	SaveSyncState(s *SyncState) error

	LoadBlocklist() ([]BlockedFact, error)
	SaveBlocklist(blocked []BlockedFact) error
}

// RemoteStore is the remote fact copy the sync engine reconciles against.
type RemoteStore interface {
	Fetch(ctx context.Context) ([]Fact, error)
	ReplaceAll(ctx context.Context, facts []Fact) error
}

// EmbeddingClient produces vector embeddings for text.
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// PromotionResult is a classifier's verdict on whether a piece of insight
// text describes a durable identity fact.
type PromotionResult struct {
	Promote    bool     `json:"promote"`
	Category   Category `json:"category,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Content    string   `json:"content,omitempty"`
}

// PromotionClassifier decides promotion, typically backed by a remote model.
type PromotionClassifier interface {
	ClassifyInsight(ctx context.Context, text string) (*PromotionResult, error)
}
