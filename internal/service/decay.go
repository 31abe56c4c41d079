package service

import (
	"math"
	"time"

	"github.com/calder-labs/persona/internal/domain"
)

const (
	// ValidationBoost is added to nominal confidence on each validation.
	ValidationBoost = 0.2
	// ArchivalThreshold marks facts whose effective confidence has decayed
	// below usefulness. Nothing is deleted automatically.
	ArchivalThreshold = 0.1

	establishedValidations = 2
	provenValidations      = 5

	hoursPerDay = 24
)

// DecayModel derives time-decayed confidence and applies validations.
// Decay is computed at read time and never written back; only validation
// mutates a fact's stored confidence.
type DecayModel struct {
	halfLifeDays float64
	now          func() time.Time
}

func NewDecayModel(halfLifeDays float64) *DecayModel {
	if halfLifeDays <= 0 {
		halfLifeDays = domain.DefaultDecayHalfLife
	}
	return &DecayModel{halfLifeDays: halfLifeDays, now: time.Now}
}

// EffectiveConfidence halves the nominal confidence once per half-life
// elapsed since the fact was last validated.
func (m *DecayModel) EffectiveConfidence(f *domain.Fact) float64 {
	days := m.now().Sub(f.LastValidated).Hours() / hoursPerDay
	if days <= 0 {
		return f.Confidence
	}
	return f.Confidence * math.Pow(0.5, days/m.halfLifeDays)
}

// Validate confirms a fact is still true: confidence rises by the fixed
// boost (capped at 1.0), the validation counter advances, and the decay
// clock resets. Maturity only ever moves forward.
func (m *DecayModel) Validate(f *domain.Fact) {
	now := m.now()

	f.Confidence += ValidationBoost
	if f.Confidence > 1.0 {
		f.Confidence = 1.0
	}
	f.ValidationCount++
	f.LastValidated = now
	f.UpdatedAt = now

	if earned := MaturityForValidations(f.ValidationCount); earned.Rank() > f.Maturity.Rank() {
		f.Maturity = earned
	}
}

// MaturityForValidations maps a validation count onto the maturity tier it
// earns on its own, independent of tiers granted at creation.
func MaturityForValidations(count int) domain.Maturity {
	switch {
	case count >= provenValidations:
		return domain.MaturityProven
	case count >= establishedValidations:
		return domain.MaturityEstablished
	default:
		return domain.MaturityCandidate
	}
}

// IsArchivalCandidate reports whether the fact has decayed below the
// archival threshold.
func (m *DecayModel) IsArchivalCandidate(f *domain.Fact) bool {
	return m.EffectiveConfidence(f) < ArchivalThreshold
}
