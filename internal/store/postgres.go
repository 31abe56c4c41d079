package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/calder-labs/persona/internal/domain"
)

// FactStore is the relay-side storage for user fact collections, one row
// per fact. The relay holds the authoritative remote copy that devices
// reconcile against; embeddings are optional and only populated when the
// relay runs with an embedding provider.
type FactStore struct {
	db *pgxpool.Pool
}

func NewFactStore(db *pgxpool.Pool) *FactStore {
	return &FactStore{db: db}
}

const factsSchema = `
CREATE TABLE IF NOT EXISTS facts (
	id UUID NOT NULL,
	user_id TEXT NOT NULL,
	category TEXT NOT NULL,
	content TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	maturity TEXT NOT NULL,
	validation_count INT NOT NULL DEFAULT 0,
	last_validated TIMESTAMPTZ NOT NULL,
	source TEXT NOT NULL,
	source_ref TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	embedding vector(1536),
	PRIMARY KEY (user_id, id)
);
CREATE INDEX IF NOT EXISTS idx_facts_user_updated ON facts (user_id, updated_at DESC);
`

// Migrate creates the facts table. The vector extension must already be
// installed on the target database.
func (s *FactStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, factsSchema); err != nil {
		return fmt.Errorf("migrate facts table: %w", err)
	}
	return nil
}

func (s *FactStore) GetByUser(ctx context.Context, userID string) ([]domain.Fact, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, category, content, confidence, maturity, validation_count,
		       last_validated, source, source_ref, created_at, updated_at
		FROM facts
		WHERE user_id = $1
		ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	facts := []domain.Fact{}
	for rows.Next() {
		var f domain.Fact
		if err := rows.Scan(&f.ID, &f.Category, &f.Content, &f.Confidence,
			&f.Maturity, &f.ValidationCount, &f.LastValidated,
			&f.Source, &f.SourceRef, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// ReplaceAll swaps the user's entire collection in one transaction, the
// push side of the device sync protocol. Embeddings are keyed by fact id
// and may cover only a subset of the facts.
func (s *FactStore) ReplaceAll(ctx context.Context, userID string, facts []domain.Fact, embeddings map[uuid.UUID][]float32) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM facts WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear facts: %w", err)
	}

	for _, f := range facts {
		var vec *pgvector.Vector
		if emb, ok := embeddings[f.ID]; ok && len(emb) > 0 {
			v := pgvector.NewVector(emb)
			vec = &v
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO facts (id, user_id, category, content, confidence, maturity,
				validation_count, last_validated, source, source_ref,
				created_at, updated_at, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			f.ID, userID, f.Category, f.Content, f.Confidence, f.Maturity,
			f.ValidationCount, f.LastValidated, f.Source, f.SourceRef,
			f.CreatedAt, f.UpdatedAt, vec)
		if err != nil {
			return fmt.Errorf("insert fact %s: %w", f.ID, err)
		}
	}

	return tx.Commit(ctx)
}

type FactWithScore struct {
	domain.Fact
	Score float64 `json:"score"`
}

// FindSimilar runs a cosine similarity search over stored embeddings.
func (s *FactStore) FindSimilar(ctx context.Context, userID string, embedding []float32, threshold float64, limit int) ([]FactWithScore, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, category, content, confidence, maturity, validation_count,
		       last_validated, source, source_ref, created_at, updated_at,
		       1 - (embedding <=> $2) AS score
		FROM facts
		WHERE user_id = $1
		  AND embedding IS NOT NULL
		  AND 1 - (embedding <=> $2) >= $3
		ORDER BY embedding <=> $2
		LIMIT $4`,
		userID, pgvector.NewVector(embedding), threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	defer rows.Close()

	results := []FactWithScore{}
	for rows.Next() {
		var r FactWithScore
		if err := rows.Scan(&r.ID, &r.Category, &r.Content, &r.Confidence,
			&r.Maturity, &r.ValidationCount, &r.LastValidated,
			&r.Source, &r.SourceRef, &r.CreatedAt, &r.UpdatedAt, &r.Score); err != nil {
			return nil, fmt.Errorf("scan similar fact: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
