package service

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
)

func proposal(content string) domain.ProposedFact {
	return domain.ProposedFact{
		Category:   domain.CategoryFocus,
		Content:    content,
		Confidence: 0.5,
	}
}

func TestRegisterIncrementsWithoutDuplicating(t *testing.T) {
	r := NewCandidateRegistry(zap.NewNop())
	r.now = fixedClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	first := r.Register([]domain.ProposedFact{proposal("I am learning Rust")})
	if len(first) != 1 || first[0].InferCount != 1 {
		t.Fatalf("first registration = %+v", first)
	}

	second := r.Register([]domain.ProposedFact{proposal("i am learning rust")})
	if len(second) != 1 {
		t.Fatalf("second registration surfaced %d candidates, want 1", len(second))
	}
	if second[0].InferCount != 2 {
		t.Errorf("inferCount = %d, want 2", second[0].InferCount)
	}
	if len(r.Pending()) != 1 {
		t.Errorf("registry holds %d entries, want 1", len(r.Pending()))
	}
}

func TestRegisterStaleThreshold(t *testing.T) {
	r := NewCandidateRegistry(zap.NewNop())

	r.Register([]domain.ProposedFact{proposal("I am learning Rust")})
	r.Register([]domain.ProposedFact{proposal("I am learning Rust")})

	// Third registration crosses the stale threshold and is no longer surfaced.
	third := r.Register([]domain.ProposedFact{proposal("I am learning Rust")})
	if len(third) != 0 {
		t.Errorf("stale candidate still surfaced: %+v", third)
	}
	if len(r.Pending()) != 0 {
		t.Errorf("stale candidate still pending")
	}
}

func TestSuppressContentDropsSilently(t *testing.T) {
	r := NewCandidateRegistry(zap.NewNop())
	r.SuppressContent("I am learning Rust")

	if !r.IsContentSuppressed("i am learning RUST.") {
		t.Error("suppression not case-insensitive")
	}
	got := r.Register([]domain.ProposedFact{proposal("I am learning Rust")})
	if len(got) != 0 || len(r.Pending()) != 0 {
		t.Errorf("suppressed content registered anyway: %+v", got)
	}
}

func TestRegisterKeepsBestConfidence(t *testing.T) {
	r := NewCandidateRegistry(zap.NewNop())

	r.Register([]domain.ProposedFact{{Category: domain.CategoryFocus, Content: "I am learning Rust", Confidence: 0.4}})
	got := r.Register([]domain.ProposedFact{{Category: domain.CategoryFocus, Content: "I am learning Rust", Confidence: 0.6, Evidence: "repeated searches"}})
	if got[0].Confidence != 0.6 {
		t.Errorf("confidence = %.2f, want refreshed 0.6", got[0].Confidence)
	}
	if got[0].Evidence != "repeated searches" {
		t.Errorf("evidence not refreshed: %q", got[0].Evidence)
	}
}

func TestTakeRemovesEntry(t *testing.T) {
	r := NewCandidateRegistry(zap.NewNop())
	r.Register([]domain.ProposedFact{proposal("I am learning Rust")})

	cand := r.Take("i am learning rust")
	if cand == nil {
		t.Fatal("Take returned nil for registered candidate")
	}
	if r.Take("i am learning rust") != nil {
		t.Error("Take did not remove the entry")
	}
	if r.IsContentSuppressed("i am learning rust") {
		t.Error("accepted content must not be suppressed")
	}
}

func TestRejectSuppresses(t *testing.T) {
	r := NewCandidateRegistry(zap.NewNop())
	r.Register([]domain.ProposedFact{proposal("I am learning Rust")})

	if !r.Reject("I am learning Rust") {
		t.Fatal("Reject reported missing entry")
	}
	if !r.IsContentSuppressed("I am learning Rust") {
		t.Error("rejected content not suppressed")
	}
	if got := r.Register([]domain.ProposedFact{proposal("I am learning Rust")}); len(got) != 0 {
		t.Errorf("rejected content re-registered: %+v", got)
	}
}
