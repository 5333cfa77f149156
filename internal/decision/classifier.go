// Package decision turns fused scores into actions using published
// threshold snapshots, and calibrates those thresholds from labeled data.
package decision

import (
	"math"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// Classifier maps scores to actions and alert priorities.
type Classifier struct {
	highValueAmount     float64
	mediumPriorityScore float64
}

// NewClassifier creates a classifier from decision settings.
func NewClassifier(cfg domain.DecisionConfig) *Classifier {
	high, medium := cfg.HighValueAmount, cfg.MediumPriorityScore
	if high <= 0 {
		high = 10000
	}
	if medium <= 0 {
		medium = 0.70
	}
	return &Classifier{highValueAmount: high, mediumPriorityScore: medium}
}

// Classify applies ts to score. It is a monotonic step function:
// block at or above the block threshold, review from approve up to block,
// approve below. A non-finite score is sent to review.
func Classify(score float64, ts *domain.ThresholdSet) domain.Decision {
	d := domain.Decision{
		FraudScore:          score,
		ThresholdSnapshotID: ts.ID,
	}
	switch {
	case math.IsNaN(score) || math.IsInf(score, 0):
		d.Action = domain.ActionReview
		d.LowConfidence = true
		return d
	case score >= ts.Block:
		d.Action = domain.ActionBlock
	case score >= ts.Approve:
		d.Action = domain.ActionReview
	default:
		d.Action = domain.ActionApprove
	}
	d.Confidence = Confidence(d.Action, score, ts.Approve, ts.Block)
	return d
}

// Confidence is the normalized distance of score from the nearest boundary
// of its band, in [0,1]. A degenerate band yields 1.
func Confidence(action domain.Action, score, approve, block float64) float64 {
	var num, den float64
	switch action {
	case domain.ActionApprove:
		num, den = approve-score, approve
	case domain.ActionReview:
		num, den = math.Min(score-approve, block-score), (block-approve)/2
	case domain.ActionBlock:
		num, den = score-block, 1-block
	}
	if den <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, num/den))
}

// Decide classifies a prediction. A force-review prediction never approves,
// and degraded inputs mark the decision low-confidence.
func (c *Classifier) Decide(pred domain.ModelPrediction, ts *domain.ThresholdSet, lowConfidenceFeatures bool) domain.Decision {
	d := Classify(pred.FraudScore, ts)
	if pred.ForceReview && d.Action == domain.ActionApprove {
		d.Action = domain.ActionReview
		d.Confidence = 0
	}
	if lowConfidenceFeatures || pred.Degraded {
		d.LowConfidence = true
	}
	return d
}

// Priority ranks an alert: blocks and high-value transactions are high,
// strong scores are medium, everything else is low.
func (c *Classifier) Priority(action domain.Action, score, amount float64) domain.Priority {
	if action == domain.ActionBlock || amount > c.highValueAmount {
		return domain.PriorityHigh
	}
	if score >= c.mediumPriorityScore {
		return domain.PriorityMedium
	}
	return domain.PriorityLow
}
