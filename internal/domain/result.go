package domain

import (
	"time"
)

// ScoringResult is the complete output for one transaction.
type ScoringResult struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenantId"`
	TxID     string  `json:"txId"`
	UserID   string  `json:"userId"`
	Amount   float64 `json:"amount"`

	FraudScore          float64         `json:"fraudScore"`
	UnsupervisedScore   float64         `json:"unsupervisedScore"`
	SupervisedScore     float64         `json:"supervisedScore"`
	Weights             EnsembleWeights `json:"ensembleWeights"`
	ModelVersion        string          `json:"modelVersion"`
	Decision            Decision        `json:"decision"`
	ThresholdSnapshotID string          `json:"thresholdSnapshotId"`
	Explanation         *Explanation    `json:"explanation,omitempty"`
	Priority            Priority        `json:"priority,omitempty"`

	Features   *FeatureVector  `json:"features,omitempty"`
	Prediction ModelPrediction `json:"prediction"`

	Metadata  ResultMetadata `json:"metadata"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ResultMetadata contains processing information.
type ResultMetadata struct {
	TraceID       string `json:"traceId"`
	FeaturesMs    int64  `json:"featuresMs"`
	ScoringMs     int64  `json:"scoringMs"`
	ExplainMs     int64  `json:"explainMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// ScoreResponse is the API response for a scored transaction.
type ScoreResponse struct {
	ResultID            string       `json:"resultId"`
	TxID                string       `json:"transactionId"`
	FraudScore          float64      `json:"fraudScore"`
	UnsupervisedScore   float64      `json:"unsupervisedScore"`
	SupervisedScore     float64      `json:"supervisedScore"`
	Decision            Action       `json:"decision"`
	Confidence          float64      `json:"confidence"`
	ThresholdSnapshotID string       `json:"thresholdSnapshotId"`
	ModelVersion        string       `json:"modelVersion"`
	Explanation         *Explanation `json:"explanation,omitempty"`
	ExplanationText     string       `json:"explanationText"`
	Priority            Priority     `json:"priority,omitempty"`
	LowConfidence       bool         `json:"lowConfidence,omitempty"`
	ProcessingMs        int64        `json:"processingTimeMs"`
}

// ApprovedText is the explanation text for approved transactions.
const ApprovedText = "Transaction approved - no anomalies detected"

// ToResponse converts a ScoringResult to an API response.
func (r *ScoringResult) ToResponse() *ScoreResponse {
	text := ApprovedText
	if r.Explanation != nil {
		text = r.Explanation.Summary
	}
	return &ScoreResponse{
		ResultID:            r.ID,
		TxID:                r.TxID,
		FraudScore:          r.FraudScore,
		UnsupervisedScore:   r.UnsupervisedScore,
		SupervisedScore:     r.SupervisedScore,
		Decision:            r.Decision.Action,
		Confidence:          r.Decision.Confidence,
		ThresholdSnapshotID: r.ThresholdSnapshotID,
		ModelVersion:        r.ModelVersion,
		Explanation:         r.Explanation,
		ExplanationText:     text,
		Priority:            r.Priority,
		LowConfidence:       r.Decision.LowConfidence,
		ProcessingMs:        r.Metadata.TotalMs,
	}
}
