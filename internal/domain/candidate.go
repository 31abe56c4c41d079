package domain

import "time"

// ProposedFact is an unconfirmed fact proposal coming from an external
// signal aggregator (e.g. a browsing-pattern analyzer).
type ProposedFact struct {
	Category   Category `json:"category"`
	Content    string   `json:"content"`
	Confidence float64  `json:"confidence"`
	Evidence   string   `json:"evidence,omitempty"`
}

// StoredCandidate is a registry entry for a proposed fact. Candidates are
// session-scoped: they are never persisted and never become identity state
// in place; acceptance copies them into a new Fact.
type StoredCandidate struct {
	ProposedFact
	InferCount   int
	LastInferred time.Time
}
