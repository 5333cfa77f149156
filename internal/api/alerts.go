package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

func (h *Handler) requireAlerts(w http.ResponseWriter) bool {
	if h.Alerts == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "alerts not available",
		})
		return false
	}
	return true
}

// ListAlerts handles GET /alerts?status=&priority=&limit=.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	if !h.requireAlerts(w) {
		return
	}
	ctx := r.Context()

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	filter := domain.AlertFilter{
		Status:   domain.AlertStatus(r.URL.Query().Get("status")),
		Priority: domain.Priority(r.URL.Query().Get("priority")),
		Limit:    limit,
	}

	list, err := h.Alerts.List(ctx, GetTenantID(ctx), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

// PendingAlerts handles GET /alerts/pending, the prioritized review queue.
func (h *Handler) PendingAlerts(w http.ResponseWriter, r *http.Request) {
	if !h.requireAlerts(w) {
		return
	}
	ctx := r.Context()

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.Alerts.Pending(ctx, GetTenantID(ctx), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

// ReviewAlert handles POST /alerts/{id}/review.
func (h *Handler) ReviewAlert(w http.ResponseWriter, r *http.Request) {
	if !h.requireAlerts(w) {
		return
	}
	ctx := r.Context()

	var review domain.AlertReview
	if !decodeJSON(w, r, &review) {
		return
	}

	alert, err := h.Alerts.Review(ctx, GetTenantID(ctx), chi.URLParam(r, "id"), review)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// ResolveAlert handles POST /alerts/{id}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	if !h.requireAlerts(w) {
		return
	}
	ctx := r.Context()

	alert, err := h.Alerts.Resolve(ctx, GetTenantID(ctx), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// AlertStats handles GET /alerts/stats.
func (h *Handler) AlertStats(w http.ResponseWriter, r *http.Request) {
	if !h.requireAlerts(w) {
		return
	}
	ctx := r.Context()

	stats, err := h.Alerts.Stats(ctx, GetTenantID(ctx))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
