// Package ensemble fuses an unsupervised and a supervised scorer into one
// fraud score and supports replacing either model while scoring continues.
package ensemble

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// Scorer produces a score in [0,1] for a feature vector.
type Scorer interface {
	Score(ctx context.Context, fv *domain.FeatureVector) (float64, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, fv *domain.FeatureVector) (float64, error)

// Score calls f.
func (f ScorerFunc) Score(ctx context.Context, fv *domain.FeatureVector) (float64, error) {
	return f(ctx, fv)
}

// Model is a loaded scorer with its identity.
type Model struct {
	Scorer   Scorer
	Kind     string
	Version  string
	LoadedAt time.Time
}

// NewModel wraps a scorer. An empty version becomes 1.0.0-<unix seconds>.
func NewModel(kind, version string, s Scorer) *Model {
	now := time.Now().UTC()
	if version == "" {
		version = fmt.Sprintf("1.0.0-%d", now.Unix())
	}
	return &Model{Scorer: s, Kind: kind, Version: version, LoadedAt: now}
}

// ModelInfo describes a model slot for admin listings.
type ModelInfo struct {
	Role            domain.ModelRole `json:"role"`
	Kind            string           `json:"kind"`
	Version         string           `json:"version"`
	LoadedAt        time.Time        `json:"loadedAt"`
	LastKnownGood   string           `json:"lastKnownGood,omitempty"`
	LastKnownGoodAt *time.Time       `json:"lastKnownGoodAt,omitempty"`
}

// checkScore rejects values outside [0,1] and non-finite values.
func checkScore(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: non-finite score %v", domain.ErrModelValidation, v)
	}
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: score %v outside [0,1]", domain.ErrModelValidation, v)
	}
	return nil
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
