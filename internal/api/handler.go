package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/osprey-risk/internal/alerts"
	"github.com/opensource-finance/osprey-risk/internal/decision"
	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/ensemble"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Scorer runs the scoring pipeline. *scoring.Processor satisfies it.
type Scorer interface {
	Process(ctx context.Context, tx *domain.Transaction, traceID string) (*domain.ScoringResult, error)
}

// BaselineRecomputer rebuilds a user's baseline.
type BaselineRecomputer interface {
	Recompute(ctx context.Context, tenantID, userID string) (*domain.UserBaseline, error)
}

// Deps are the components the API serves. Nil optional components turn
// their endpoints into 503s.
type Deps struct {
	Scorer     Scorer
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Alerts     *alerts.Service
	Baselines  BaselineRecomputer
	Ensemble   *ensemble.Ensemble
	Thresholds *decision.ThresholdStore
	Costs      *decision.CostStore
	Calibrator *decision.Calibrator
	Version    string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	Deps
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// Score handles POST /score requests.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.ScoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	result, err := h.Scorer.Process(ctx, req.ToTransaction(tenantID), GetTraceID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result.ToResponse())
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "id")

	if !h.requireRepo(w) {
		return
	}

	tx, err := h.Repo.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// GetResult retrieves the latest scoring result for a transaction.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	txID := chi.URLParam(r, "txId")

	if !h.requireRepo(w) {
		return
	}

	result, err := h.Repo.GetResultByTx(ctx, tenantID, txID)
	if err != nil {
		slog.Error("failed to get result", "tx_id", txID, "error", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// StatsResponse is the response for GET /stats.
type StatsResponse struct {
	Alerts       *domain.AlertStats     `json:"alerts,omitempty"`
	Thresholds   *domain.ThresholdSet   `json:"thresholds"`
	Weights      domain.EnsembleWeights `json:"ensembleWeights"`
	ModelVersion string                 `json:"modelVersion"`
	Version      string                 `json:"version"`
}

// Stats returns alert statistics with the active thresholds and models.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := h.Ensemble.Snapshot()
	resp := StatsResponse{
		Thresholds:   h.Thresholds.Current(),
		Weights:      snap.Weights(),
		ModelVersion: snap.Version(),
		Version:      h.Version,
	}

	if h.Alerts != nil {
		stats, err := h.Alerts.Stats(ctx, GetTenantID(ctx))
		if err != nil {
			slog.Error("failed to get alert stats", "error", err)
			writeError(w, err)
			return
		}
		resp.Alerts = stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(r.Context()); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if h.Repo != nil {
		check("repository", h.Repo.Ping)
	}
	if h.Cache != nil {
		check("cache", h.Cache.Ping)
	}
	if h.Bus != nil {
		check("bus", h.Bus.Ping)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.Version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Scorer == nil || h.Thresholds == nil || h.Thresholds.Current() == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) requireRepo(w http.ResponseWriter) bool {
	if h.Repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return false
	}
	return true
}

// decodeJSON reads a bounded JSON body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return false
	}
	return true
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, name)
	}
	return n, nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidThresholds),
		errors.Is(err, domain.ErrInvalidWeights),
		errors.Is(err, domain.ErrModelValidation),
		errors.Is(err, domain.ErrInvalidCalibration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrBaselineNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
