package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/wonny/aegis-rebalance/internal/cache"
	"github.com/wonny/aegis-rebalance/internal/contracts"
	"github.com/wonny/aegis-rebalance/internal/engine"
	"github.com/wonny/aegis-rebalance/pkg/logger"
)

// maxBodyBytes bounds a request or batch document
const maxBodyBytes = 8 << 20

// ReplayHeader marks a response served from the replay cache
const ReplayHeader = "X-Rebalance-Replay"

// RebalanceHandler exposes the engine over HTTP.
// Stateless: 요청 본문이 유일한 입력, 저장 없음
// ⭐ SSOT: 리밸런싱 API 핸들러는 여기서만
type RebalanceHandler struct {
	engine       *engine.Engine
	parallelism  int
	batchTimeout time.Duration
	replay       *cache.Cache // nil = 비활성
	logger       *logger.Logger
}

// NewRebalanceHandler creates a new rebalance handler
func NewRebalanceHandler(e *engine.Engine, parallelism int, batchTimeout time.Duration, log *logger.Logger) *RebalanceHandler {
	return &RebalanceHandler{
		engine:       e,
		parallelism:  parallelism,
		batchTimeout: batchTimeout,
		logger:       log,
	}
}

// WithReplay serves repeated requests from c instead of re-running them
func (h *RebalanceHandler) WithReplay(c *cache.Cache) *RebalanceHandler {
	h.replay = c
	return h
}

// InvariantResponse carries the BLOCKED outcome of an internal failure
type InvariantResponse struct {
	Error   string             `json:"error"`
	Outcome *contracts.Outcome `json:"outcome"`
}

// HashResponse is the idempotency key of a request
type HashResponse struct {
	Hash  string `json:"hash"`
	RunID string `json:"run_id"`
}

// Rebalance runs one request
// POST /api/v1/rebalance (body: YAML or JSON request)
func (h *RebalanceHandler) Rebalance(w http.ResponseWriter, r *http.Request) {
	req, err := engine.DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := engine.CanonicalHash(*req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out, ok := h.replay.Get(hash); ok {
		w.Header().Set(ReplayHeader, "hit")
		respondJSON(w, http.StatusOK, out)
		return
	}

	out, err := h.engine.Run(*req)
	switch {
	case err == nil:
		// 결정적 실행 → 동일 hash는 동일 Outcome
		h.replay.Set(hash, out)
		respondJSON(w, http.StatusOK, out)
	case errors.Is(err, contracts.ErrInvariant) && out != nil:
		// 내부 결함: BLOCKED Outcome과 함께 500
		h.logger.WithError(err).Error("Rebalance invariant failure")
		respondJSON(w, http.StatusInternalServerError, InvariantResponse{Error: err.Error(), Outcome: out})
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}

// Batch runs named what-if scenarios
// POST /api/v1/batch (body: {scenarios: {name: request}})
func (h *RebalanceHandler) Batch(w http.ResponseWriter, r *http.Request) {
	scenarios, err := engine.DecodeBatch(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.batchTimeout)
	defer cancel()

	results, err := h.engine.RunBatch(ctx, scenarios, h.parallelism)
	if err != nil {
		h.logger.WithError(err).Warn("Batch interrupted")
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, results)
}

// Hash returns the canonical hash and run id of a request
// POST /api/v1/hash
func (h *RebalanceHandler) Hash(w http.ResponseWriter, r *http.Request) {
	req, err := engine.DecodeRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := engine.CanonicalHash(*req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	runID, err := engine.RunID(*req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, HashResponse{Hash: hash, RunID: runID})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
