package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
)

var (
	ErrFactNotFound      = errors.New("fact not found")
	ErrCandidateNotFound = errors.New("candidate not found")
	ErrEmptyContent      = errors.New("fact content is required")
	ErrInvalidCategory   = errors.New("invalid fact category")
	ErrInvalidSource     = errors.New("invalid fact source")
)

// SyncQueuer lets mutations schedule a background sync without waiting
// for one.
type SyncQueuer interface {
	QueueSync()
}

// EmbeddingInvalidator drops cached vectors for a fact whose content
// changed or that was deleted.
type EmbeddingInvalidator interface {
	InvalidateFact(id uuid.UUID)
}

// IdentityService is the tool-level contract: every operation loads the
// collection snapshot, mutates it through the engines, persists, and
// returns a typed result with a human-readable summary. Collaborator
// failures degrade to local behavior and never surface to the caller.
type IdentityService struct {
	store     domain.CollectionStore
	guard     *CollectionGuard
	decay     *DecayModel
	deduper   *Deduper
	registry  *CandidateRegistry
	projector *Projector
	promotion *PromotionService
	syncer    SyncQueuer
	cache     EmbeddingInvalidator
	logger    *zap.Logger
	now       func() time.Time
}

func NewIdentityService(
	store domain.CollectionStore,
	decay *DecayModel,
	deduper *Deduper,
	registry *CandidateRegistry,
	projector *Projector,
	promotion *PromotionService,
	logger *zap.Logger,
) *IdentityService {
	return &IdentityService{
		store:     store,
		guard:     &CollectionGuard{},
		decay:     decay,
		deduper:   deduper,
		registry:  registry,
		projector: projector,
		promotion: promotion,
		logger:    logger,
		now:       time.Now,
	}
}

// SetSyncQueuer wires the background sync worker; optional.
func (s *IdentityService) SetSyncQueuer(q SyncQueuer) { s.syncer = q }

// Guard returns the update guard. Any other writer of the same store,
// in particular a SyncService, must share it.
func (s *IdentityService) Guard() *CollectionGuard { return s.guard }

// SetEmbeddingInvalidator wires the embedding cache; optional.
func (s *IdentityService) SetEmbeddingInvalidator(c EmbeddingInvalidator) { s.cache = c }

type AddFactResult struct {
	Fact          *domain.Fact `json:"fact,omitempty"`
	AlreadyExists bool         `json:"alreadyExists"`
	Summary       string       `json:"summary"`
}

// AddFact records a new fact. Content equivalent to an existing fact is a
// no-op success with AlreadyExists set, never a silent overwrite.
func (s *IdentityService) AddFact(ctx context.Context, content, category string, source domain.Source, sourceRef string) (*AddFactResult, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if source == "" {
		source = domain.SourceManual
	}
	if !domain.ValidSource(string(source)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSource, source)
	}

	var cat domain.Category
	if category == "" {
		cat = DetectCategory(content)
	} else if domain.ValidCategory(category) {
		cat = domain.Category(category)
	} else {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	// The sync nudge must wait until the guard is released; the queuer
	// takes the same guard.
	syncNeeded := false
	defer func() {
		if syncNeeded {
			s.queueSync()
		}
	}()
	s.guard.Lock()
	defer s.guard.Unlock()

	collection, err := s.store.LoadCollection()
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}

	if existing, err := s.deduper.FindDuplicate(ctx, content, collection.Facts); err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	} else if existing != nil {
		return &AddFactResult{
			Fact:          existing,
			AlreadyExists: true,
			Summary:       fmt.Sprintf("Already known: %q", existing.Content),
		}, nil
	}

	now := s.now()
	fact := domain.Fact{
		ID:            uuid.New(),
		Category:      cat,
		Content:       content,
		Confidence:    source.InitialConfidence(),
		Maturity:      source.InitialMaturity(),
		LastValidated: now,
		Source:        source,
		SourceRef:     sourceRef,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	collection.Facts = append(collection.Facts, fact)
	if err := s.store.SaveCollection(collection); err != nil {
		return nil, fmt.Errorf("save collection: %w", err)
	}
	syncNeeded = true

	s.logger.Info("fact added",
		zap.String("fact_id", fact.ID.String()),
		zap.String("category", string(cat)),
		zap.String("source", string(source)))

	return &AddFactResult{
		Fact:    &fact,
		Summary: fmt.Sprintf("Added %s fact: %q", cat, content),
	}, nil
}

type ValidateFactResult struct {
	Fact    *domain.Fact `json:"fact"`
	Summary string       `json:"summary"`
}

// ValidateFact confirms a fact by id or fuzzy content match.
func (s *IdentityService) ValidateFact(ctx context.Context, query string) (*ValidateFactResult, error) {
	if query == "" {
		return nil, ErrEmptyContent
	}

	syncNeeded := false
	defer func() {
		if syncNeeded {
			s.queueSync()
		}
	}()
	s.guard.Lock()
	defer s.guard.Unlock()

	collection, err := s.store.LoadCollection()
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}

	fact, err := s.findFact(ctx, query, collection)
	if err != nil {
		return nil, err
	}

	s.decay.Validate(fact)
	if err := s.store.SaveCollection(collection); err != nil {
		return nil, fmt.Errorf("save collection: %w", err)
	}
	syncNeeded = true

	return &ValidateFactResult{
		Fact: fact,
		Summary: fmt.Sprintf("Validated %q (confidence %.2f, %s, %d validations)",
			fact.Content, fact.Confidence, fact.Maturity, fact.ValidationCount),
	}, nil
}

type RemoveFactResult struct {
	Fact    *domain.Fact `json:"fact"`
	Blocked bool         `json:"blocked"`
	Summary string       `json:"summary"`
}

// RemoveFact deletes a fact by id or fuzzy content match, records a
// tombstone so sync cannot resurrect it, and optionally blocks the
// content from being re-inferred.
func (s *IdentityService) RemoveFact(ctx context.Context, query string, block bool, reason string) (*RemoveFactResult, error) {
	if query == "" {
		return nil, ErrEmptyContent
	}

	syncNeeded := false
	defer func() {
		if syncNeeded {
			s.queueSync()
		}
	}()
	s.guard.Lock()
	defer s.guard.Unlock()

	collection, err := s.store.LoadCollection()
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}

	fact, err := s.findFact(ctx, query, collection)
	if err != nil {
		return nil, err
	}
	removed := *fact
	collection.Remove(removed.ID)

	now := s.now()
	state, err := s.store.LoadSyncState()
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	state.RecordDeletion(removed.ID, now)

	// Tombstone first. If the collection write then fails the fact
	// survives alongside a stale tombstone, which merge ignores for a
	// live local fact; the reverse order can lose the deletion.
	if err := s.store.SaveSyncState(state); err != nil {
		return nil, fmt.Errorf("save sync state: %w", err)
	}
	if err := s.store.SaveCollection(collection); err != nil {
		return nil, fmt.Errorf("save collection: %w", err)
	}

	if block {
		blocked, err := s.store.LoadBlocklist()
		if err != nil {
			return nil, fmt.Errorf("load blocklist: %w", err)
		}
		blocked = append(blocked, domain.BlockedFact{
			FactID:    removed.ID,
			Content:   removed.Content,
			Reason:    reason,
			BlockedAt: now,
		})
		if err := s.store.SaveBlocklist(blocked); err != nil {
			return nil, fmt.Errorf("save blocklist: %w", err)
		}
		s.registry.SuppressContent(removed.Content)
	}

	if s.cache != nil {
		s.cache.InvalidateFact(removed.ID)
	}
	syncNeeded = true

	s.logger.Info("fact removed",
		zap.String("fact_id", removed.ID.String()),
		zap.Bool("blocked", block))

	summary := fmt.Sprintf("Removed %q", removed.Content)
	if block {
		summary += " and blocked it from re-inference"
	}
	return &RemoveFactResult{Fact: &removed, Blocked: block, Summary: summary}, nil
}

type ProposeCandidatesResult struct {
	Candidates []domain.StoredCandidate `json:"candidates"`
	Validated  int                      `json:"validated"`
	Summary    string                   `json:"summary"`
}

// ProposeCandidates feeds proposals from an external signal aggregator
// into the registry. A proposal whose content already matches a stored
// fact validates that fact instead of becoming a candidate; blocked
// content is dropped.
func (s *IdentityService) ProposeCandidates(ctx context.Context, proposals []domain.ProposedFact) (*ProposeCandidatesResult, error) {
	syncNeeded := false
	defer func() {
		if syncNeeded {
			s.queueSync()
		}
	}()
	s.guard.Lock()
	defer s.guard.Unlock()

	collection, err := s.store.LoadCollection()
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	blocked, err := s.store.LoadBlocklist()
	if err != nil {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}
	for _, b := range blocked {
		if b.Content != "" {
			s.registry.SuppressContent(b.Content)
		}
	}

	fresh := []domain.ProposedFact{}
	validated := 0
	dirty := false
	for _, p := range proposals {
		existing, err := s.deduper.FindDuplicate(ctx, p.Content, collection.Facts)
		if err != nil {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
		if existing != nil {
			s.decay.Validate(existing)
			validated++
			dirty = true
			continue
		}
		fresh = append(fresh, p)
	}
	if dirty {
		if err := s.store.SaveCollection(collection); err != nil {
			return nil, fmt.Errorf("save collection: %w", err)
		}
		syncNeeded = true
	}

	visible := s.registry.Register(fresh)
	return &ProposeCandidatesResult{
		Candidates: visible,
		Validated:  validated,
		Summary: fmt.Sprintf("%d candidate(s) pending, %d existing fact(s) validated",
			len(visible), validated),
	}, nil
}

// ProposeInsight classifies free insight text and, when it promotes,
// registers the result as a candidate.
func (s *IdentityService) ProposeInsight(ctx context.Context, text string) (*ProposeCandidatesResult, error) {
	if text == "" {
		return nil, ErrEmptyContent
	}
	verdict := s.promotion.Classify(ctx, text)
	if !verdict.Promote {
		return &ProposeCandidatesResult{
			Candidates: []domain.StoredCandidate{},
			Summary:    "Insight did not describe a durable identity fact",
		}, nil
	}
	return s.ProposeCandidates(ctx, []domain.ProposedFact{{
		Category:   verdict.Category,
		Content:    verdict.Content,
		Confidence: verdict.Confidence,
		Evidence:   text,
	}})
}

// AcceptCandidate turns a registered candidate into a persisted fact with
// source=inferred and maturity=candidate. If equivalent content was
// persisted in the meantime, the existing fact is validated instead.
func (s *IdentityService) AcceptCandidate(ctx context.Context, content string) (*AddFactResult, error) {
	cand := s.registry.Take(content)
	if cand == nil {
		return nil, fmt.Errorf("%w: %q", ErrCandidateNotFound, content)
	}

	syncNeeded := false
	defer func() {
		if syncNeeded {
			s.queueSync()
		}
	}()
	s.guard.Lock()
	defer s.guard.Unlock()

	collection, err := s.store.LoadCollection()
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	if existing, err := s.deduper.FindDuplicate(ctx, cand.Content, collection.Facts); err != nil {
		return nil, fmt.Errorf("duplicate check: %w", err)
	} else if existing != nil {
		s.decay.Validate(existing)
		if err := s.store.SaveCollection(collection); err != nil {
			return nil, fmt.Errorf("save collection: %w", err)
		}
		syncNeeded = true
		return &AddFactResult{
			Fact:          existing,
			AlreadyExists: true,
			Summary:       fmt.Sprintf("Already known, validated instead: %q", existing.Content),
		}, nil
	}

	confidence := cand.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = domain.SourceInferred.InitialConfidence()
	}
	cat := cand.Category
	if !domain.ValidCategory(string(cat)) {
		cat = DetectCategory(cand.Content)
	}

	now := s.now()
	fact := domain.Fact{
		ID:            uuid.New(),
		Category:      cat,
		Content:       cand.Content,
		Confidence:    confidence,
		Maturity:      domain.MaturityCandidate,
		LastValidated: now,
		Source:        domain.SourceInferred,
		SourceRef:     cand.Evidence,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	collection.Facts = append(collection.Facts, fact)
	if err := s.store.SaveCollection(collection); err != nil {
		return nil, fmt.Errorf("save collection: %w", err)
	}
	syncNeeded = true

	return &AddFactResult{
		Fact:    &fact,
		Summary: fmt.Sprintf("Accepted candidate as %s fact: %q", cat, fact.Content),
	}, nil
}

// PendingCandidates lists candidates still awaiting an accept or reject.
func (s *IdentityService) PendingCandidates() []domain.StoredCandidate {
	return s.registry.Pending()
}

type RejectCandidateResult struct {
	Summary string `json:"summary"`
}

// RejectCandidate discards a candidate and suppresses its content for the
// rest of the session.
func (s *IdentityService) RejectCandidate(content string) (*RejectCandidateResult, error) {
	if !s.registry.Reject(content) {
		return nil, fmt.Errorf("%w: %q", ErrCandidateNotFound, content)
	}
	return &RejectCandidateResult{
		Summary: fmt.Sprintf("Rejected candidate %q; it will not be re-proposed", content),
	}, nil
}

type ProjectResult struct {
	Facts   []ProjectedFact `json:"facts"`
	Summary string          `json:"summary"`
}

// Project returns the ranked facts most useful for the given task.
func (s *IdentityService) Project(ctx context.Context, opts ProjectionOptions) (*ProjectResult, error) {
	collection, err := s.store.LoadCollection()
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	facts := s.projector.Project(ctx, collection.Facts, opts)

	summary := fmt.Sprintf("%d fact(s) selected", len(facts))
	if opts.Task != "" {
		summary = fmt.Sprintf("%d fact(s) selected for task %q", len(facts), opts.Task)
	}
	return &ProjectResult{Facts: facts, Summary: summary}, nil
}

// Export returns the full collection document.
func (s *IdentityService) Export() (*domain.FactCollection, error) {
	return s.store.LoadCollection()
}

type ImportResult struct {
	Imported  int    `json:"imported"`
	Validated int    `json:"validated"`
	Summary   string `json:"summary"`
}

// Import merges external facts through deduplication: equivalent content
// validates the existing fact, everything else is appended with
// source=imported.
func (s *IdentityService) Import(ctx context.Context, facts []domain.Fact) (*ImportResult, error) {
	syncNeeded := false
	defer func() {
		if syncNeeded {
			s.queueSync()
		}
	}()
	s.guard.Lock()
	defer s.guard.Unlock()

	collection, err := s.store.LoadCollection()
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}

	result := &ImportResult{}
	now := s.now()
	for _, f := range facts {
		if f.Content == "" {
			continue
		}
		existing, err := s.deduper.FindDuplicate(ctx, f.Content, collection.Facts)
		if err != nil {
			return nil, fmt.Errorf("duplicate check: %w", err)
		}
		if existing != nil {
			s.decay.Validate(existing)
			result.Validated++
			continue
		}
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		if !domain.ValidCategory(string(f.Category)) {
			f.Category = DetectCategory(f.Content)
		}
		f.Source = domain.SourceImported
		if f.Confidence <= 0 || f.Confidence > 1 {
			f.Confidence = domain.SourceImported.InitialConfidence()
		}
		if !domain.ValidMaturity(string(f.Maturity)) {
			f.Maturity = domain.SourceImported.InitialMaturity()
		}
		if f.LastValidated.IsZero() {
			f.LastValidated = now
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		f.UpdatedAt = now
		collection.Facts = append(collection.Facts, f)
		result.Imported++
	}

	if err := s.store.SaveCollection(collection); err != nil {
		return nil, fmt.Errorf("save collection: %w", err)
	}
	syncNeeded = true

	result.Summary = fmt.Sprintf("Imported %d fact(s), validated %d existing", result.Imported, result.Validated)
	return result, nil
}

// ArchivalCandidates lists facts whose effective confidence has decayed
// below the archival threshold. Read-only; deletion stays with the caller.
func (s *IdentityService) ArchivalCandidates() ([]domain.Fact, error) {
	collection, err := s.store.LoadCollection()
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	out := []domain.Fact{}
	for i := range collection.Facts {
		if s.decay.IsArchivalCandidate(&collection.Facts[i]) {
			out = append(out, collection.Facts[i])
		}
	}
	return out, nil
}

// findFact resolves a query that is either a fact id or free content to
// fuzzy-match against the collection.
func (s *IdentityService) findFact(ctx context.Context, query string, collection *domain.FactCollection) (*domain.Fact, error) {
	if id, err := uuid.Parse(query); err == nil {
		if f := collection.FindByID(id); f != nil {
			return f, nil
		}
		return nil, fmt.Errorf("%w: id %s", ErrFactNotFound, id)
	}

	match, _, err := s.deduper.BestMatch(ctx, query, collection.Facts, MatchOptions{
		Threshold:          FuzzyMatchThreshold,
		AllowCrossCategory: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fuzzy match: %w", err)
	}
	if match == nil {
		return nil, fmt.Errorf("%w: no fact matches %q", ErrFactNotFound, query)
	}
	return match, nil
}

func (s *IdentityService) queueSync() {
	if s.syncer != nil {
		s.syncer.QueueSync()
	}
}
