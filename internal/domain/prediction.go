package domain

import (
	"fmt"
	"math"
)

// ModelRole selects which ensemble slot a scorer occupies.
type ModelRole string

const (
	RoleUnsupervised ModelRole = "unsupervised"
	RoleSupervised   ModelRole = "supervised"
)

// ParseModelRole validates a role name.
func ParseModelRole(s string) (ModelRole, error) {
	switch ModelRole(s) {
	case RoleUnsupervised, RoleSupervised:
		return ModelRole(s), nil
	default:
		return "", fmt.Errorf("%w: unknown model role %q", ErrInvalidInput, s)
	}
}

// EnsembleWeights are the fusion weights. They must sum to 1.
type EnsembleWeights struct {
	Unsupervised float64 `json:"unsupervised" mapstructure:"unsupervised"`
	Supervised   float64 `json:"supervised" mapstructure:"supervised"`
}

// DefaultEnsembleWeights returns the 0.3/0.7 split.
func DefaultEnsembleWeights() EnsembleWeights {
	return EnsembleWeights{Unsupervised: 0.3, Supervised: 0.7}
}

// Validate checks that both weights are finite, non-negative and sum to 1.
func (w EnsembleWeights) Validate() error {
	for _, v := range []float64{w.Unsupervised, w.Supervised} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: weights must be finite (unsupervised=%v, supervised=%v)", ErrInvalidWeights, w.Unsupervised, w.Supervised)
		}
	}
	if w.Unsupervised < 0 || w.Supervised < 0 {
		return fmt.Errorf("%w: weights must be non-negative (unsupervised=%v, supervised=%v)", ErrInvalidWeights, w.Unsupervised, w.Supervised)
	}
	sum := w.Unsupervised + w.Supervised
	if sum < 1-1e-9 || sum > 1+1e-9 {
		return fmt.Errorf("%w: weights must sum to 1, got %v", ErrInvalidWeights, sum)
	}
	return nil
}

// ModelPrediction is the ensemble output for one transaction.
type ModelPrediction struct {
	UnsupervisedScore float64         `json:"unsupervisedScore"`
	SupervisedScore   float64         `json:"supervisedScore"`
	FraudScore        float64         `json:"fraudScore"`
	Weights           EnsembleWeights `json:"ensembleWeights"`
	ModelVersion      string          `json:"modelVersion"`

	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degradedReason,omitempty"`
	ForceReview    bool   `json:"forceReview,omitempty"`
}
