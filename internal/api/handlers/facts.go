package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
	"github.com/calder-labs/persona/internal/service"
	"github.com/calder-labs/persona/internal/store"
)

// FactsHandler serves the relay's per-user fact collection: fetch,
// replace-all, and embedding similarity search.
type FactsHandler struct {
	store    *store.FactStore
	embedder domain.EmbeddingClient
	logger   *zap.Logger
}

// NewFactsHandler builds the handler; embedder may be nil, which disables
// embedding storage and the similarity endpoint.
func NewFactsHandler(s *store.FactStore, embedder domain.EmbeddingClient, logger *zap.Logger) *FactsHandler {
	return &FactsHandler{store: s, embedder: embedder, logger: logger}
}

type factsEnvelope struct {
	Facts []domain.Fact `json:"facts"`
}

func (h *FactsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userID is required")
		return
	}

	facts, err := h.store.GetByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to fetch facts", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch facts")
		return
	}
	writeJSON(w, http.StatusOK, factsEnvelope{Facts: facts})
}

func (h *FactsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userID is required")
		return
	}

	var req factsEnvelope
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for i := range req.Facts {
		f := &req.Facts[i]
		if f.ID == uuid.Nil || f.Content == "" {
			writeError(w, http.StatusBadRequest, "every fact needs an id and content")
			return
		}
		if !domain.ValidCategory(string(f.Category)) {
			writeError(w, http.StatusBadRequest, "invalid category: "+string(f.Category))
			return
		}
	}

	embeddings := h.embedFacts(r.Context(), req.Facts)
	if err := h.store.ReplaceAll(r.Context(), userID, req.Facts, embeddings); err != nil {
		h.logger.Error("failed to replace facts", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to replace facts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"stored": len(req.Facts)})
}

// embedFacts is best-effort: a failed embedding leaves that fact without a
// vector rather than failing the push.
func (h *FactsHandler) embedFacts(ctx context.Context, facts []domain.Fact) map[uuid.UUID][]float32 {
	if h.embedder == nil {
		return nil
	}
	embeddings := make(map[uuid.UUID][]float32, len(facts))
	for i := range facts {
		vec, err := h.embedder.Embed(ctx, facts[i].Content)
		if err != nil {
			h.logger.Warn("embedding failed, storing fact without vector",
				zap.String("fact_id", facts[i].ID.String()),
				zap.Error(err))
			continue
		}
		embeddings[facts[i].ID] = vec
	}
	return embeddings
}

type similarRequest struct {
	Text      string  `json:"text"`
	Threshold float64 `json:"threshold,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

// normalize fills in the relay-side defaults for an underspecified
// search. The default threshold is the same one the agent uses for
// semantic fact equivalence.
func (r *similarRequest) normalize() {
	if r.Threshold <= 0 {
		r.Threshold = service.SemanticMatchThreshold
	}
	if r.Limit <= 0 {
		r.Limit = 10
	}
}

type similarResponse struct {
	Matches []store.FactWithScore `json:"matches"`
}

func (h *FactsHandler) Similar(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userID is required")
		return
	}
	if h.embedder == nil {
		writeError(w, http.StatusServiceUnavailable, "similarity search requires an embedding provider")
		return
	}

	var req similarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	req.normalize()

	vec, err := h.embedder.Embed(r.Context(), req.Text)
	if err != nil {
		h.logger.Warn("embedding failed for similarity search", zap.Error(err))
		writeError(w, http.StatusBadGateway, "embedding provider unavailable")
		return
	}

	matches, err := h.store.FindSimilar(r.Context(), userID, vec, req.Threshold, req.Limit)
	if err != nil {
		h.logger.Error("similarity search failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "similarity search failed")
		return
	}
	writeJSON(w, http.StatusOK, similarResponse{Matches: matches})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
