package ensemble

import (
	"context"
	"math"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// Artifact kinds.
const (
	KindHeuristicAnomaly    = "heuristic_anomaly"
	KindHeuristicClassifier = "heuristic_classifier"
	KindZScoreAnomaly       = "zscore_anomaly"
	KindLogistic            = "logistic"
	KindCEL                 = "cel"
)

// HeuristicAnomaly is the built-in unsupervised scorer. It adds fixed
// penalties for burst velocity, impossible travel, extreme deviation and
// unseen devices.
type HeuristicAnomaly struct{}

// Score implements Scorer.
func (HeuristicAnomaly) Score(_ context.Context, fv *domain.FeatureVector) (float64, error) {
	score := 0.0

	if fv.Get(domain.FeatureTxCount1m) > 5 {
		score += 0.3
	} else if fv.Get(domain.FeatureTxCount5m) > 10 {
		score += 0.2
	}

	score += fv.Get(domain.FeatureGeoInconsistency) * 0.4

	if math.Abs(fv.Get(domain.FeatureDeviationMean)) > 1000 {
		score += 0.2
	}

	if fv.Get(domain.FeatureDeviceFrequency) == 0 {
		score += 0.1
	}

	return math.Min(score, 1.0), nil
}

// HeuristicClassifier is the built-in supervised scorer. It encodes known
// fraud patterns on top of a small base rate.
type HeuristicClassifier struct{}

// Score implements Scorer.
func (HeuristicClassifier) Score(_ context.Context, fv *domain.FeatureVector) (float64, error) {
	score := 0.1

	if fv.Get(domain.FeatureTxCount1m) >= 3 {
		score += 0.3
	}
	if fv.Get(domain.FeatureTxCount5m) >= 8 {
		score += 0.2
	}

	if fv.Get(domain.FeatureGeoInconsistency) > 0.8 {
		score += 0.4
	}

	pct := fv.Get(domain.FeatureAmountPercentile)
	if pct > 0.95 {
		score += 0.2
	}
	if fv.Get(domain.FeatureDeviceFrequency) == 0 && pct > 0.8 {
		score += 0.3
	}

	return math.Min(score, 1.0), nil
}

// Logistic is a logistic-regression classifier over named features.
type Logistic struct {
	Intercept    float64            `json:"intercept"`
	Coefficients map[string]float64 `json:"coefficients"`
}

// Score implements Scorer.
func (l *Logistic) Score(_ context.Context, fv *domain.FeatureVector) (float64, error) {
	z := l.Intercept
	for name, c := range l.Coefficients {
		z += c * fv.Get(name)
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// ZScoreAnomaly scores the weighted absolute standardized distance of a
// vector from a reference center, mapped to [0,1).
type ZScoreAnomaly struct {
	Center  map[string]float64 `json:"center"`
	Scale   map[string]float64 `json:"scale"`
	Weights map[string]float64 `json:"weights"`
}

// Score implements Scorer.
func (z *ZScoreAnomaly) Score(_ context.Context, fv *domain.FeatureVector) (float64, error) {
	dist := 0.0
	for name, w := range z.Weights {
		scale := z.Scale[name]
		if scale <= 0 {
			scale = 1
		}
		dist += w * math.Abs(fv.Get(name)-z.Center[name]) / scale
	}
	return 1 - math.Exp(-dist), nil
}
