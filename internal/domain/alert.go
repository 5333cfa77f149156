package domain

import (
	"time"
)

// AlertStatus is the analyst workflow state of an alert.
type AlertStatus string

const (
	AlertPending  AlertStatus = "pending"
	AlertReviewed AlertStatus = "reviewed"
	AlertResolved AlertStatus = "resolved"
)

// Analyst verdicts recorded on review.
const (
	VerdictConfirmedFraud = "confirmed_fraud"
	VerdictLegitimate     = "legitimate"
)

// Alert is a flagged transaction awaiting or past analyst review.
type Alert struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"tenantId"`
	TxID        string      `json:"txId"`
	UserID      string      `json:"userId"`
	Amount      float64     `json:"amount"`
	FraudScore  float64     `json:"fraudScore"`
	Action      Action      `json:"action"`
	Priority    Priority    `json:"priority"`
	Status      AlertStatus `json:"status"`
	Explanation string      `json:"explanation"`

	AnalystID       string     `json:"analystId,omitempty"`
	AnalystDecision string     `json:"analystDecision,omitempty"`
	AnalystNotes    string     `json:"analystNotes,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
}

// AlertFilter narrows alert listings. Empty fields match everything.
type AlertFilter struct {
	Status   AlertStatus
	Priority Priority
	Limit    int
}

// AlertReview is an analyst's verdict on an alert.
type AlertReview struct {
	AnalystID string `json:"analystId"`
	Decision  string `json:"analystDecision"`
	Notes     string `json:"analystNotes,omitempty"`
}

// AlertStats summarizes the alert queue.
type AlertStats struct {
	Total               int `json:"totalAlerts"`
	Pending             int `json:"pendingAlerts"`
	Reviewed            int `json:"reviewedAlerts"`
	Resolved            int `json:"resolvedAlerts"`
	HighPriorityPending int `json:"highPriorityPending"`
}
