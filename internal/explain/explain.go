// Package explain attributes a fraud score to its features and renders a
// short analyst-facing summary.
package explain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/metrics"
)

const (
	MethodStatic = "static_importance"

	minTopK = 3
	maxTopK = 5

	// summaryReasons caps the verbalized reasons in a summary.
	summaryReasons = 3
)

// NormalValues is the reference "normal" transaction attributions are
// measured against: no burst, amount at the user's mean, an established
// device and merchant, no travel, and a day since the last transaction.
var NormalValues = map[string]float64{
	domain.FeatureTxCount1m:         0,
	domain.FeatureTxCount5m:         0,
	domain.FeatureTxCount1h:         1,
	domain.FeatureDeviationMean:     0,
	domain.FeatureDeviationMedian:   0,
	domain.FeatureAmountPercentile:  0.5,
	domain.FeatureDeviceFrequency:   5,
	domain.FeatureMerchantFrequency: 3,
	domain.FeatureGeoInconsistency:  0,
	domain.FeatureDistanceKm:        0,
	domain.FeatureHoursSinceLast:    24,
}

// StaticImportance is the fixed feature ranking used when attribution
// cannot run in time.
var StaticImportance = map[string]float64{
	domain.FeatureTxCount1m:         0.15,
	domain.FeatureTxCount5m:         0.12,
	domain.FeatureTxCount1h:         0.08,
	domain.FeatureDeviationMean:     0.10,
	domain.FeatureDeviationMedian:   0.08,
	domain.FeatureAmountPercentile:  0.09,
	domain.FeatureDeviceFrequency:   0.07,
	domain.FeatureMerchantFrequency: 0.06,
	domain.FeatureGeoInconsistency:  0.18,
	domain.FeatureDistanceKm:        0.04,
	domain.FeatureHoursSinceLast:    0.03,
}

// Generator produces explanations under a latency budget.
type Generator struct {
	attributor Attributor
	method     string
	topK       int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewGenerator creates a generator using permutation Shapley.
func NewGenerator(cfg domain.ExplainConfig, logger *slog.Logger) *Generator {
	ps := PermutationShapley{Permutations: cfg.Permutations}
	return NewGeneratorWith(ps, ps.Method(), cfg, logger)
}

// NewGeneratorWith creates a generator around any attributor.
func NewGeneratorWith(a Attributor, method string, cfg domain.ExplainConfig, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Millisecond
	}
	return &Generator{
		attributor: a,
		method:     method,
		topK:       clampTopK(cfg.TopK),
		timeout:    timeout,
		logger:     logger,
	}
}

func clampTopK(k int) int {
	if k < minTopK {
		return minTopK
	}
	if k > maxTopK {
		return maxTopK
	}
	return k
}

// ReferenceVector returns the normal vector used as attribution baseline.
func ReferenceVector() *domain.FeatureVector {
	fv := domain.NewFeatureVector("reference")
	for name, v := range NormalValues {
		fv.Set(name, v)
	}
	return fv
}

var errPanic = errors.New("attribution panicked")

type attribution struct {
	phi  map[string]float64
	base float64
	err  error
}

// Explain attributes score to the features of fv using model f. It always
// returns an explanation: on error, timeout or panic it falls back to the
// static importance ranking and marks the result approximate.
func (g *Generator) Explain(ctx context.Context, fv *domain.FeatureVector, f ModelFunc, score float64) *domain.Explanation {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	reference := ReferenceVector()
	done := make(chan attribution, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attribution{err: fmt.Errorf("%w: %v", errPanic, r)}
			}
		}()
		phi, err := g.attributor.Attribute(ctx, f, fv, reference)
		if err != nil {
			done <- attribution{err: err}
			return
		}
		base, err := f(ctx, withFlags(reference, fv))
		done <- attribution{phi: phi, base: base, err: err}
	}()

	var res attribution
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	if res.err != nil {
		cause := "error"
		switch {
		case errors.Is(res.err, context.DeadlineExceeded):
			cause = "timeout"
		case errors.Is(res.err, errPanic):
			cause = "panic"
		}
		metrics.ExplanationFallbacksTotal.WithLabelValues(cause).Inc()
		g.logger.Warn("explanation fell back to static importance",
			"tx_id", fv.TxID,
			"cause", cause,
			"error", res.err,
		)
		return g.Static(fv, score)
	}

	attrs := g.rank(fv, reference, res.phi)
	return &domain.Explanation{
		Attributions: attrs,
		Summary:      Summarize(attrs),
		Method:       g.method,
		BaseValue:    res.base,
	}
}

// Static ranks features by fixed importance scaled by how unusual each
// value is, and marks the explanation approximate.
func (g *Generator) Static(fv *domain.FeatureVector, score float64) *domain.Explanation {
	phi := make(map[string]float64, len(domain.FeatureNames))
	for _, name := range domain.FeatureNames {
		phi[name] = StaticImportance[name] * unusualness(name, fv.Get(name)) * score
	}
	attrs := g.rank(fv, ReferenceVector(), phi)
	return &domain.Explanation{
		Attributions: attrs,
		Summary:      Summarize(attrs),
		Method:       MethodStatic,
		Approximate:  true,
	}
}

// rank keeps the top K features by absolute attribution.
func (g *Generator) rank(fv, reference *domain.FeatureVector, phi map[string]float64) []domain.Attribution {
	out := make([]domain.Attribution, 0, len(domain.FeatureNames))
	for _, name := range domain.FeatureNames {
		raw, normal := fv.Get(name), reference.Get(name)
		out = append(out, domain.Attribution{
			Feature:             name,
			Attribution:         phi[name],
			RawValue:            raw,
			NormalValue:         normal,
			DeviationFromNormal: raw - normal,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Attribution) > math.Abs(out[j].Attribution)
	})
	return out[:g.topK]
}

// withFlags copies reference and carries fv's confidence flags.
func withFlags(reference, fv *domain.FeatureVector) *domain.FeatureVector {
	z := fv.Clone()
	for name, v := range reference.Values {
		z.Values[name] = v
	}
	return z
}

// unusualness maps a raw value to [0,1] for the static ranking.
func unusualness(name string, v float64) float64 {
	switch name {
	case domain.FeatureTxCount1m, domain.FeatureTxCount5m, domain.FeatureTxCount1h:
		return math.Min(v/10, 1)
	case domain.FeatureDeviationMean:
		return math.Min(math.Abs(v)/3, 1)
	case domain.FeatureDeviationMedian:
		return math.Min(math.Abs(v)/1000, 1)
	case domain.FeatureAmountPercentile:
		return math.Abs(v-0.5) * 2
	case domain.FeatureDeviceFrequency, domain.FeatureMerchantFrequency:
		switch {
		case v == 0:
			return 0.8
		case v > 20:
			return 0.6
		default:
			return 0.2
		}
	case domain.FeatureGeoInconsistency:
		return v
	case domain.FeatureDistanceKm:
		return math.Min(v/5000, 1)
	case domain.FeatureHoursSinceLast:
		if v*3600 < 60 {
			return 0.8
		}
		return 0.2
	default:
		return 0.5
	}
}
