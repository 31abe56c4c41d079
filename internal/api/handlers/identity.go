package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/calder-labs/persona/internal/domain"
	"github.com/calder-labs/persona/internal/service"
)

// SyncTrigger nudges the background sync worker.
type SyncTrigger interface {
	QueueSync()
}

// IdentityHandler exposes the local identity operations over HTTP for
// tool callers on the same machine.
type IdentityHandler struct {
	svc    *service.IdentityService
	syncer SyncTrigger
	logger *zap.Logger
}

// NewIdentityHandler builds the handler; syncer may be nil when sync is
// not configured.
func NewIdentityHandler(svc *service.IdentityService, syncer SyncTrigger, logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{svc: svc, syncer: syncer, logger: logger}
}

type addFactRequest struct {
	Content   string `json:"content"`
	Category  string `json:"category,omitempty"`
	Source    string `json:"source,omitempty"`
	SourceRef string `json:"sourceRef,omitempty"`
}

func (h *IdentityHandler) AddFact(w http.ResponseWriter, r *http.Request) {
	var req addFactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.AddFact(r.Context(), req.Content, req.Category, domain.Source(req.Source), req.SourceRef)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type factQueryRequest struct {
	Query  string `json:"query"`
	Block  bool   `json:"block,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h *IdentityHandler) ValidateFact(w http.ResponseWriter, r *http.Request) {
	var req factQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.ValidateFact(r.Context(), req.Query)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *IdentityHandler) RemoveFact(w http.ResponseWriter, r *http.Request) {
	var req factQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.RemoveFact(r.Context(), req.Query, req.Block, req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *IdentityHandler) Projection(w http.ResponseWriter, r *http.Request) {
	opts := service.ProjectionOptions{
		Task: r.URL.Query().Get("task"),
	}
	if v := r.URL.Query().Get("maxFacts"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			opts.MaxFacts = n
		}
	}
	if v := r.URL.Query().Get("minConfidence"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.MinConfidence = f
		}
	}

	result, err := h.svc.Project(r.Context(), opts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *IdentityHandler) ArchivalCandidates(w http.ResponseWriter, r *http.Request) {
	facts, err := h.svc.ArchivalCandidates()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"facts": facts})
}

type proposeRequest struct {
	Proposals []domain.ProposedFact `json:"proposals"`
}

func (h *IdentityHandler) ProposeCandidates(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.ProposeCandidates(r.Context(), req.Proposals)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type insightRequest struct {
	Text string `json:"text"`
}

func (h *IdentityHandler) ProposeInsight(w http.ResponseWriter, r *http.Request) {
	var req insightRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.ProposeInsight(r.Context(), req.Text)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *IdentityHandler) PendingCandidates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"candidates": h.svc.PendingCandidates()})
}

type candidateRequest struct {
	Content string `json:"content"`
}

func (h *IdentityHandler) AcceptCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.AcceptCandidate(r.Context(), req.Content)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *IdentityHandler) RejectCandidate(w http.ResponseWriter, r *http.Request) {
	var req candidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.RejectCandidate(req.Content)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *IdentityHandler) Export(w http.ResponseWriter, r *http.Request) {
	collection, err := h.svc.Export()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collection)
}

type importRequest struct {
	Facts []domain.Fact `json:"facts"`
}

func (h *IdentityHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.svc.Import(r.Context(), req.Facts)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *IdentityHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "sync is not configured")
		return
	}
	h.syncer.QueueSync()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync queued"})
}

// writeServiceError maps service sentinels onto HTTP status codes.
func (h *IdentityHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrFactNotFound), errors.Is(err, service.ErrCandidateNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrInvalidCategory),
		errors.Is(err, service.ErrInvalidSource):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("identity operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
