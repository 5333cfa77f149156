// Package alerts manages the analyst review queue for flagged transactions.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/metrics"
)

// Store persists alerts. domain.Repository satisfies it.
type Store interface {
	SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error
	GetAlert(ctx context.Context, tenantID string, alertID string) (*domain.Alert, error)
	ListAlerts(ctx context.Context, tenantID string, filter domain.AlertFilter) ([]*domain.Alert, error)
	UpdateAlert(ctx context.Context, tenantID string, alert *domain.Alert) error
	AlertStats(ctx context.Context, tenantID string) (*domain.AlertStats, error)
}

// DefaultPendingLimit caps the pending queue when no limit is given.
const DefaultPendingLimit = 50

// Service creates and transitions alerts.
type Service struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates an alert service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// Create opens a pending alert for a review or block result.
// Approved results do not produce alerts and return nil.
func (s *Service) Create(ctx context.Context, result *domain.ScoringResult) (*domain.Alert, error) {
	if result.Decision.Action == domain.ActionApprove {
		return nil, nil
	}

	var summary string
	if result.Explanation != nil {
		summary = result.Explanation.Summary
	}
	alert := &domain.Alert{
		ID:          uuid.New().String(),
		TenantID:    result.TenantID,
		TxID:        result.TxID,
		UserID:      result.UserID,
		Amount:      result.Amount,
		FraudScore:  result.FraudScore,
		Action:      result.Decision.Action,
		Priority:    result.Priority,
		Status:      domain.AlertPending,
		Explanation: summary,
		CreatedAt:   s.now(),
	}
	if err := s.store.SaveAlert(ctx, result.TenantID, alert); err != nil {
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	metrics.AlertsTotal.WithLabelValues(string(alert.Priority)).Inc()
	s.logger.Info("alert created",
		"alert_id", alert.ID,
		"tenant_id", alert.TenantID,
		"tx_id", alert.TxID,
		"priority", alert.Priority,
		"fraud_score", alert.FraudScore,
	)
	return alert, nil
}

// Get returns one alert.
func (s *Service) Get(ctx context.Context, tenantID, alertID string) (*domain.Alert, error) {
	return s.store.GetAlert(ctx, tenantID, alertID)
}

// List returns alerts matching filter, newest first.
func (s *Service) List(ctx context.Context, tenantID string, filter domain.AlertFilter) ([]*domain.Alert, error) {
	return s.store.ListAlerts(ctx, tenantID, filter)
}

// Pending returns the review queue: high priority first, then the highest
// score, then the oldest alert.
func (s *Service) Pending(ctx context.Context, tenantID string, limit int) ([]*domain.Alert, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	pending, err := s.store.ListAlerts(ctx, tenantID, domain.AlertFilter{Status: domain.AlertPending})
	if err != nil {
		return nil, err
	}
	Prioritize(pending)
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Prioritize sorts alerts into review order in place.
func Prioritize(alerts []*domain.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if a.FraudScore != b.FraudScore {
			return a.FraudScore > b.FraudScore
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// Review records an analyst verdict on a pending alert.
func (s *Service) Review(ctx context.Context, tenantID, alertID string, review domain.AlertReview) (*domain.Alert, error) {
	if review.AnalystID == "" {
		return nil, fmt.Errorf("%w: analystId is required", domain.ErrInvalidInput)
	}
	switch review.Decision {
	case domain.VerdictConfirmedFraud, domain.VerdictLegitimate:
	default:
		return nil, fmt.Errorf("%w: analystDecision must be %q or %q", domain.ErrInvalidInput, domain.VerdictConfirmedFraud, domain.VerdictLegitimate)
	}

	alert, err := s.store.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status != domain.AlertPending {
		return nil, fmt.Errorf("%w: alert %s is already %s", domain.ErrInvalidInput, alertID, alert.Status)
	}

	now := s.now()
	alert.Status = domain.AlertReviewed
	alert.AnalystID = review.AnalystID
	alert.AnalystDecision = review.Decision
	alert.AnalystNotes = review.Notes
	alert.ReviewedAt = &now
	if err := s.store.UpdateAlert(ctx, tenantID, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	s.logger.Info("alert reviewed",
		"alert_id", alert.ID,
		"tenant_id", tenantID,
		"analyst_id", review.AnalystID,
		"decision", review.Decision,
	)
	return alert, nil
}

// Resolve closes an alert.
func (s *Service) Resolve(ctx context.Context, tenantID, alertID string) (*domain.Alert, error) {
	alert, err := s.store.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status == domain.AlertResolved {
		return alert, nil
	}
	alert.Status = domain.AlertResolved
	if err := s.store.UpdateAlert(ctx, tenantID, alert); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}
	s.logger.Info("alert resolved", "alert_id", alert.ID, "tenant_id", tenantID)
	return alert, nil
}

// Stats summarizes the tenant's alert queue.
func (s *Service) Stats(ctx context.Context, tenantID string) (*domain.AlertStats, error) {
	return s.store.AlertStats(ctx, tenantID)
}
