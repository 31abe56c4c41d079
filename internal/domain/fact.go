package domain

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies what kind of identity knowledge a fact carries.
type Category string

const (
	CategoryCore       Category = "core"
	CategoryExpertise  Category = "expertise"
	CategoryPreference Category = "preference"
	CategoryContext    Category = "context"
	CategoryFocus      Category = "focus"
)

func ValidCategory(c string) bool {
	switch Category(c) {
	case CategoryCore, CategoryExpertise, CategoryPreference, CategoryContext, CategoryFocus:
		return true
	}
	return false
}

// Maturity is the discrete trust tier of a fact. It only moves forward
// under validation; only an explicit external operation may lower it.
type Maturity string

const (
	MaturityCandidate   Maturity = "candidate"
	MaturityEstablished Maturity = "established"
	MaturityProven      Maturity = "proven"
)

func ValidMaturity(m string) bool {
	switch Maturity(m) {
	case MaturityCandidate, MaturityEstablished, MaturityProven:
		return true
	}
	return false
}

// Rank orders maturity tiers so forward-only transitions can be enforced
// with a plain comparison.
func (m Maturity) Rank() int {
	switch m {
	case MaturityEstablished:
		return 1
	case MaturityProven:
		return 2
	default:
		return 0
	}
}

// Source records where a fact came from.
type Source string

const (
	SourceManual       Source = "manual"
	SourceInferred     Source = "inferred"
	SourceConversation Source = "conversation"
	SourceImported     Source = "imported"
)

func ValidSource(s string) bool {
	switch Source(s) {
	case SourceManual, SourceInferred, SourceConversation, SourceImported:
		return true
	}
	return false
}

func (s Source) InitialConfidence() float64 {
	switch s {
	case SourceManual:
		return 1.0
	case SourceImported:
		return 0.8
	case SourceConversation:
		return 0.7
	case SourceInferred:
		return 0.5
	default:
		return 0.5
	}
}

func (s Source) InitialMaturity() Maturity {
	switch s {
	case SourceManual, SourceImported:
		return MaturityEstablished
	default:
		return MaturityCandidate
	}
}

// Fact is the atomic unit of identity knowledge.
//
// Confidence is the nominal, undecayed trust in [0,1]; the decayed value is
// always derived at read time and never written back. UpdatedAt is the merge
// tie-breaker and must never precede CreatedAt.
type Fact struct {
	ID              uuid.UUID `json:"id"`
	Category        Category  `json:"category"`
	Content         string    `json:"content"`
	Confidence      float64   `json:"confidence"`
	Maturity        Maturity  `json:"maturity"`
	ValidationCount int       `json:"validationCount"`
	LastValidated   time.Time `json:"lastValidated"`
	Source          Source    `json:"source"`
	SourceRef       string    `json:"sourceRef,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// CollectionSettings are the per-store knobs persisted alongside the facts.
type CollectionSettings struct {
	DecayHalfLifeDays float64 `json:"decayHalfLifeDays"`
	SyncEnabled       bool    `json:"syncEnabled"`
	EmbeddingEnabled  bool    `json:"embeddingEnabled"`
}

const (
	CollectionVersion       = 1
	DefaultDecayHalfLife    = 60.0
	defaultSyncEnabled      = true
	defaultEmbeddingEnabled = true
)

// FactCollection is the persisted fact document, the single source of truth
// for one device's copy of a user's facts.
type FactCollection struct {
	Version  int                `json:"version"`
	DeviceID string             `json:"deviceId"`
	Facts    []Fact             `json:"facts"`
	Settings CollectionSettings `json:"settings"`
}

func NewFactCollection(deviceID string) *FactCollection {
	return &FactCollection{
		Version:  CollectionVersion,
		DeviceID: deviceID,
		Facts:    []Fact{},
		Settings: CollectionSettings{
			DecayHalfLifeDays: DefaultDecayHalfLife,
			SyncEnabled:       defaultSyncEnabled,
			EmbeddingEnabled:  defaultEmbeddingEnabled,
		},
	}
}

// FindByID returns a pointer into the collection's backing slice, or nil.
func (c *FactCollection) FindByID(id uuid.UUID) *Fact {
	for i := range c.Facts {
		if c.Facts[i].ID == id {
			return &c.Facts[i]
		}
	}
	return nil
}

// Remove deletes the fact with the given id and reports whether it was present.
func (c *FactCollection) Remove(id uuid.UUID) bool {
	for i := range c.Facts {
		if c.Facts[i].ID == id {
			c.Facts = append(c.Facts[:i], c.Facts[i+1:]...)
			return true
		}
	}
	return false
}
