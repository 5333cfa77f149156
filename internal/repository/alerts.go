package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

const alertColumns = `id, tenant_id, tx_id, user_id, amount, fraud_score, action, priority, status,
	explanation, analyst_id, analyst_decision, analyst_notes, created_at_ns, reviewed_at_ns`

// SaveAlert stores a new alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO alerts (` + alertColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, tenantID, alert.TxID, alert.UserID,
		alert.Amount, alert.FraudScore,
		string(alert.Action), string(alert.Priority), string(alert.Status),
		alert.Explanation,
		alert.AnalystID, alert.AnalystDecision, alert.AnalystNotes,
		toNanos(alert.CreatedAt), reviewedNanos(alert),
	)
	return err
}

// GetAlert retrieves an alert by ID with tenant isolation.
func (r *SQLRepository) GetAlert(ctx context.Context, tenantID string, alertID string) (*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + alertColumns + ` FROM alerts WHERE tenant_id = ? AND id = ?`

	alert, err := scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, alertID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// ListAlerts returns alerts matching filter, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, tenantID string, filter domain.AlertFilter) ([]*domain.Alert, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + alertColumns + ` FROM alerts WHERE tenant_id = ?`)
	args := []any{tenantID}
	if filter.Status != "" {
		b.WriteString(` AND status = ?`)
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		b.WriteString(` AND priority = ?`)
		args = append(args, string(filter.Priority))
	}
	b.WriteString(` ORDER BY created_at_ns DESC`)
	if filter.Limit > 0 {
		b.WriteString(` LIMIT ?`)
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(b.String()), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// UpdateAlert writes an alert's workflow fields.
func (r *SQLRepository) UpdateAlert(ctx context.Context, tenantID string, alert *domain.Alert) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if alert == nil || alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE alerts
		SET status = ?, analyst_id = ?, analyst_decision = ?, analyst_notes = ?, reviewed_at_ns = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query),
		string(alert.Status), alert.AnalystID, alert.AnalystDecision, alert.AnalystNotes,
		reviewedNanos(alert), tenantID, alert.ID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// AlertStats counts alerts by status.
func (r *SQLRepository) AlertStats(ctx context.Context, tenantID string) (*domain.AlertStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT status, priority, COUNT(*)
		FROM alerts
		WHERE tenant_id = ?
		GROUP BY status, priority
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &domain.AlertStats{}
	for rows.Next() {
		var status, priority string
		var n int
		if err := rows.Scan(&status, &priority, &n); err != nil {
			return nil, err
		}
		stats.Total += n
		switch domain.AlertStatus(status) {
		case domain.AlertPending:
			stats.Pending += n
			if domain.Priority(priority) == domain.PriorityHigh {
				stats.HighPriorityPending += n
			}
		case domain.AlertReviewed:
			stats.Reviewed += n
		case domain.AlertResolved:
			stats.Resolved += n
		}
	}
	return stats, rows.Err()
}

// ListReviewedScores returns the scores of alerts an analyst has ruled on,
// labeled with the verdict.
func (r *SQLRepository) ListReviewedScores(ctx context.Context, tenantID string) ([]domain.LabeledScore, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT fraud_score, analyst_decision
		FROM alerts
		WHERE tenant_id = ? AND analyst_decision IN (?, ?)
		ORDER BY created_at_ns ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query),
		tenantID, domain.VerdictConfirmedFraud, domain.VerdictLegitimate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []domain.LabeledScore
	for rows.Next() {
		var score float64
		var verdict string
		if err := rows.Scan(&score, &verdict); err != nil {
			return nil, err
		}
		samples = append(samples, domain.LabeledScore{
			Score:   score,
			IsFraud: verdict == domain.VerdictConfirmedFraud,
		})
	}
	return samples, rows.Err()
}

func scanAlert(row rowScanner) (*domain.Alert, error) {
	var a domain.Alert
	var action, priority, status string
	var created int64
	var reviewed sql.NullInt64

	err := row.Scan(
		&a.ID, &a.TenantID, &a.TxID, &a.UserID,
		&a.Amount, &a.FraudScore,
		&action, &priority, &status,
		&a.Explanation,
		&a.AnalystID, &a.AnalystDecision, &a.AnalystNotes,
		&created, &reviewed,
	)
	if err != nil {
		return nil, err
	}
	a.Action = domain.Action(action)
	a.Priority = domain.Priority(priority)
	a.Status = domain.AlertStatus(status)
	a.CreatedAt = fromNanos(created)
	if reviewed.Valid {
		t := fromNanos(reviewed.Int64)
		a.ReviewedAt = &t
	}
	return &a, nil
}

func reviewedNanos(a *domain.Alert) sql.NullInt64 {
	if a.ReviewedAt == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toNanos(*a.ReviewedAt), Valid: true}
}
