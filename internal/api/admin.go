package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/osprey-risk/internal/decision"
	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/ensemble"
)

// ModelsResponse is the response for GET /models.
type ModelsResponse struct {
	Models     []ensemble.ModelInfo   `json:"models"`
	Weights    domain.EnsembleWeights `json:"ensembleWeights"`
	Version    string                 `json:"modelVersion"`
	Generation uint64                 `json:"generation"`
}

// ListModels handles GET /models.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	snap := h.Ensemble.Snapshot()
	writeJSON(w, http.StatusOK, ModelsResponse{
		Models:     snap.Models(),
		Weights:    snap.Weights(),
		Version:    snap.Version(),
		Generation: snap.Generation(),
	})
}

// UpdateModel handles POST /models/{role}. The body is a model artifact;
// a model that fails validation is rejected and the serving model is kept.
func (h *Handler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	role, err := domain.ParseModelRole(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "failed to read request body",
		})
		return
	}

	model, err := ensemble.ParseArtifact(body)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.Ensemble.UpdateModel(ctx, role, model); err != nil {
		writeError(w, err)
		return
	}

	h.announce(ctx, domain.TopicModelUpdated, map[string]any{
		"role":    role,
		"kind":    model.Kind,
		"version": model.Version,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"role":         role,
		"kind":         model.Kind,
		"version":      model.Version,
		"modelVersion": h.Ensemble.Snapshot().Version(),
	})
}

// ConfigResponse is the response for GET /config.
type ConfigResponse struct {
	Thresholds *domain.ThresholdSet   `json:"thresholds"`
	Weights    domain.EnsembleWeights `json:"ensembleWeights"`
	Costs      domain.CostMatrix      `json:"costMatrix"`
}

// GetConfig handles GET /config.
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ConfigResponse{
		Thresholds: h.Thresholds.Current(),
		Weights:    h.Ensemble.Snapshot().Weights(),
		Costs:      h.Costs.Current(),
	})
}

// ThresholdsRequest is the request body for PUT /config/thresholds.
type ThresholdsRequest struct {
	Approve *float64 `json:"approveThreshold"`
	Block   *float64 `json:"blockThreshold"`
}

// UpdateThresholds handles PUT /config/thresholds.
func (h *Handler) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ThresholdsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Approve == nil || req.Block == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "approveThreshold and blockThreshold are required",
		})
		return
	}

	ts, err := h.Thresholds.Publish(*req.Approve, *req.Block, h.Costs.Current().Version, decision.SourceAdmin)
	if err != nil {
		slog.Warn("threshold update rejected", "approve", *req.Approve, "block", *req.Block, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("thresholds updated", "threshold_id", ts.ID, "approve", ts.Approve, "block", ts.Block)
	h.announce(ctx, domain.TopicThresholdsUpdated, ts)
	writeJSON(w, http.StatusOK, ts)
}

// UpdateWeights handles PUT /config/weights.
func (h *Handler) UpdateWeights(w http.ResponseWriter, r *http.Request) {
	var req domain.EnsembleWeights
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Ensemble.SetWeights(req); err != nil {
		slog.Warn("weight update rejected", "unsupervised", req.Unsupervised, "supervised", req.Supervised, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("ensemble weights updated", "unsupervised", req.Unsupervised, "supervised", req.Supervised)
	h.announce(r.Context(), domain.TopicModelUpdated, map[string]any{"ensembleWeights": req})
	writeJSON(w, http.StatusOK, h.Ensemble.Snapshot().Weights())
}

// UpdateCosts handles PUT /config/costs.
func (h *Handler) UpdateCosts(w http.ResponseWriter, r *http.Request) {
	var req domain.CostMatrix
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.Costs.Set(req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Info("cost matrix updated", "version", req.Version)
	writeJSON(w, http.StatusOK, h.Costs.Current())
}

// CalibrateRequest is the request body for POST /calibrate. Without
// samples, the tenant's analyst-reviewed alerts are used.
type CalibrateRequest struct {
	Samples []domain.LabeledScore `json:"samples,omitempty"`
	Costs   *domain.CostMatrix    `json:"costMatrix,omitempty"`
}

// Calibrate handles POST /calibrate.
func (h *Handler) Calibrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CalibrateRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	if req.Costs != nil {
		if err := req.Costs.Validate(); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": err.Error(),
			})
			return
		}
	}

	samples := req.Samples
	if len(samples) == 0 && h.Repo != nil {
		reviewed, err := h.Repo.ListReviewedScores(ctx, tenantID)
		if err != nil {
			slog.Error("failed to load reviewed scores", "tenant_id", tenantID, "error", err)
			writeError(w, err)
			return
		}
		samples = reviewed
	}

	report, err := h.Calibrator.Calibrate(ctx, samples, req.Costs)
	if err != nil {
		writeError(w, err)
		return
	}

	h.announce(ctx, domain.TopicThresholdsUpdated, report.Thresholds)
	writeJSON(w, http.StatusOK, report)
}

// RecomputeBaseline handles POST /baselines/{userId}/recompute.
func (h *Handler) RecomputeBaseline(w http.ResponseWriter, r *http.Request) {
	if h.Baselines == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "baselines not available",
		})
		return
	}
	ctx := r.Context()

	b, err := h.Baselines.Recompute(ctx, GetTenantID(ctx), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, b)
}

// announce publishes an admin change for the request's tenant. Failures are logged.
func (h *Handler) announce(ctx context.Context, topic string, v any) {
	if h.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to encode event", "topic", topic, "error", err)
		return
	}
	if err := h.Bus.Publish(ctx, GetTenantID(ctx), topic, payload); err != nil {
		slog.Error("failed to publish event", "topic", topic, "error", err)
	}
}
