package domain

import (
	"fmt"
	"math"
	"time"
)

// Action is the outcome of classification.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReview  Action = "review"
	ActionBlock   Action = "block"
)

// Severity orders actions: approve < review < block.
func (a Action) Severity() int {
	switch a {
	case ActionBlock:
		return 2
	case ActionReview:
		return 1
	default:
		return 0
	}
}

// CostMatrix prices classification errors for calibration.
type CostMatrix struct {
	FalsePositiveCost float64 `json:"falsePositiveCost" mapstructure:"false_positive_cost"`
	FalseNegativeCost float64 `json:"falseNegativeCost" mapstructure:"false_negative_cost"`
	ReviewCost        float64 `json:"reviewCost" mapstructure:"review_cost"`
	Version           string  `json:"version" mapstructure:"version"`
}

// DefaultCostMatrix returns the stock business costs.
func DefaultCostMatrix() CostMatrix {
	return CostMatrix{
		FalsePositiveCost: 50,
		FalseNegativeCost: 1000,
		ReviewCost:        5,
		Version:           "default",
	}
}

// Validate rejects negative or non-finite costs.
func (c CostMatrix) Validate() error {
	for name, v := range map[string]float64{
		"falsePositiveCost": c.FalsePositiveCost,
		"falseNegativeCost": c.FalseNegativeCost,
		"reviewCost":        c.ReviewCost,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidInput, name)
		}
	}
	return nil
}

// ThresholdSet is an immutable snapshot of decision thresholds.
type ThresholdSet struct {
	ID                string    `json:"id"`
	Approve           float64   `json:"approveThreshold"`
	Block             float64   `json:"blockThreshold"`
	CalibratedAt      time.Time `json:"calibrationTimestamp"`
	CostMatrixVersion string    `json:"costMatrixVersion"`
}

// Validate enforces 0 <= approve < block <= 1.
func (t *ThresholdSet) Validate() error {
	if math.IsNaN(t.Approve) || math.IsNaN(t.Block) {
		return fmt.Errorf("%w: thresholds must be numbers", ErrInvalidThresholds)
	}
	if t.Approve < 0 || t.Block > 1 {
		return fmt.Errorf("%w: thresholds must lie in [0,1] (approve=%v, block=%v)", ErrInvalidThresholds, t.Approve, t.Block)
	}
	if t.Approve >= t.Block {
		return fmt.Errorf("%w: approve threshold %v must be below block threshold %v", ErrInvalidThresholds, t.Approve, t.Block)
	}
	return nil
}

// Decision is the classification of one fused score.
type Decision struct {
	Action              Action  `json:"action"`
	FraudScore          float64 `json:"fraudScore"`
	ThresholdSnapshotID string  `json:"thresholdSnapshotId"`
	Confidence          float64 `json:"confidence"`
	LowConfidence       bool    `json:"lowConfidence,omitempty"`
}

// Priority ranks alerts for analyst review.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities: high sorts first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// LabeledScore is one calibration sample.
type LabeledScore struct {
	Score   float64 `json:"score"`
	IsFraud bool    `json:"isFraud"`
}
