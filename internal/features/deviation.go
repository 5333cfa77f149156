package features

import (
	"math"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// Deviation holds the amount-deviation features for one transaction.
type Deviation struct {
	FromMean   float64
	FromMedian float64
	Percentile float64
}

// DeviationCalculator compares an amount against a user baseline.
type DeviationCalculator struct {
	global     domain.GlobalBaseline
	maxAge     time.Duration
	minSamples int
	epsilon    float64
}

// NewDeviationCalculator creates a calculator from feature settings.
func NewDeviationCalculator(cfg domain.FeatureConfig) *DeviationCalculator {
	eps := cfg.Epsilon
	if eps <= 0 {
		eps = 1e-6
	}
	return &DeviationCalculator{
		global:     cfg.GlobalBaseline,
		maxAge:     cfg.BaselineMaxAge,
		minSamples: cfg.BaselineMinSamples,
		epsilon:    eps,
	}
}

// Usable reports whether a user baseline can be trusted at now.
func (d *DeviationCalculator) Usable(b *domain.UserBaseline, now time.Time) bool {
	if b == nil {
		return false
	}
	if b.SampleCount < d.minSamples {
		return false
	}
	if d.maxAge > 0 && now.Sub(b.LastUpdated) > d.maxAge {
		return false
	}
	return true
}

// Compute returns the deviation features for amount. It returns the
// baseline source used, which is global when the user baseline is unusable.
func (d *DeviationCalculator) Compute(amount float64, b *domain.UserBaseline, now time.Time) (Deviation, string) {
	mean, median, std := d.global.Mean, d.global.Median, d.global.Std
	source := domain.BaselineSourceGlobal
	if d.Usable(b, now) {
		mean, median, std = b.Mean, b.Median, b.Std
		source = domain.BaselineSourceUser
	}

	z := (amount - mean) / math.Max(std, d.epsilon)
	return Deviation{
		FromMean:   z,
		FromMedian: amount - median,
		Percentile: NormalCDF(z),
	}, source
}

// NormalCDF is the standard normal cumulative distribution function.
func NormalCDF(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}
