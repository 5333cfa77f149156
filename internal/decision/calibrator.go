package decision

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// CalibrationReport describes the thresholds chosen by a calibration run.
type CalibrationReport struct {
	Approve           float64           `json:"approveThreshold"`
	Block             float64           `json:"blockThreshold"`
	ExpectedCost      float64           `json:"expectedCost"`
	FalseNegativeRate float64           `json:"falseNegativeRate"`
	FalsePositiveRate float64           `json:"falsePositiveRate"`
	ReviewRate        float64           `json:"reviewRate"`
	Samples           int               `json:"samples"`
	Frauds            int               `json:"frauds"`
	Candidates        int               `json:"candidates"`
	Costs             domain.CostMatrix `json:"costMatrix"`

	Thresholds *domain.ThresholdSet `json:"thresholds,omitempty"` // set once published
}

// Optimize searches approve <= block over the distinct observed scores plus
// 1.0 and returns the pair with minimum expected cost per sample:
//
//	(FN*fn_cost + FP*fp_cost + R*review_cost) / n
//
// where FN counts frauds below approve, FP counts legitimate samples at or
// above block, and R counts samples in [approve, block). Ties go to the
// larger block and then the larger approve, so the block threshold never
// decreases as fp_cost grows.
func Optimize(samples []domain.LabeledScore, costs domain.CostMatrix) (*CalibrationReport, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no labeled samples", domain.ErrInvalidCalibration)
	}
	if err := costs.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCalibration, err)
	}
	for i, s := range samples {
		if math.IsNaN(s.Score) || math.IsInf(s.Score, 0) {
			return nil, fmt.Errorf("%w: sample %d has non-finite score", domain.ErrInvalidCalibration, i)
		}
		if s.Score < 0 || s.Score > 1 {
			return nil, fmt.Errorf("%w: sample %d score %v outside [0,1]", domain.ErrInvalidCalibration, i, s.Score)
		}
	}

	sorted := make([]domain.LabeledScore, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	// cuts[k] is a candidate threshold; below[k] and fraudBelow[k] count the
	// samples strictly under it.
	n := len(sorted)
	var cuts []float64
	var below, fraudBelow []int
	frauds := 0
	for i := 0; i < n; i++ {
		if i == 0 || sorted[i].Score != sorted[i-1].Score {
			cuts = append(cuts, sorted[i].Score)
			below = append(below, i)
			fraudBelow = append(fraudBelow, frauds)
		}
		if sorted[i].IsFraud {
			frauds++
		}
	}
	if cuts[len(cuts)-1] < 1 {
		cuts = append(cuts, 1)
		below = append(below, n)
		fraudBelow = append(fraudBelow, frauds)
	}
	legit := n - frauds

	// cost(i,j) = A(i) + B(j) with
	//   A(i) = fn*fraudBelow(i) - review*below(i)
	//   B(j) = fp*legitAtOrAbove(j) + review*below(j)
	A := func(i int) float64 {
		return costs.FalseNegativeCost*float64(fraudBelow[i]) - costs.ReviewCost*float64(below[i])
	}
	B := func(j int) float64 {
		legitAbove := legit - (below[j] - fraudBelow[j])
		return costs.FalsePositiveCost*float64(legitAbove) + costs.ReviewCost*float64(below[j])
	}

	bestI, bestJ := -1, -1
	bestCost := math.Inf(1)
	prefI := -1
	prefA := math.Inf(1)
	for j := range cuts {
		if a := A(j); prefI < 0 || lessOrEqual(a, prefA) {
			prefI, prefA = j, a
		}
		// approve == block needs room for a strictly lower approve.
		if prefI == j && j == 0 && cuts[0] <= 0 {
			continue
		}
		if c := prefA + B(j); bestJ < 0 || lessOrEqual(c, bestCost) {
			bestI, bestJ, bestCost = prefI, j, c
		}
	}
	if bestJ < 0 {
		return nil, fmt.Errorf("%w: no separable threshold pair", domain.ErrInvalidCalibration)
	}

	approve, block := cuts[bestI], cuts[bestJ]
	if bestI == bestJ {
		// Nothing was observed strictly between the previous cut and block,
		// so moving approve into that gap changes no classification.
		lower := 0.0
		if bestI > 0 {
			lower = cuts[bestI-1]
		}
		approve = lower + (block-lower)/2
	}

	fn := fraudBelow[bestI]
	fp := legit - (below[bestJ] - fraudBelow[bestJ])
	review := below[bestJ] - below[bestI]
	total := float64(n)

	return &CalibrationReport{
		Approve:           approve,
		Block:             block,
		ExpectedCost:      (costs.FalseNegativeCost*float64(fn) + costs.FalsePositiveCost*float64(fp) + costs.ReviewCost*float64(review)) / total,
		FalseNegativeRate: float64(fn) / total,
		FalsePositiveRate: float64(fp) / total,
		ReviewRate:        float64(review) / total,
		Samples:           n,
		Frauds:            frauds,
		Candidates:        len(cuts),
		Costs:             costs,
	}, nil
}

// lessOrEqual compares costs with a relative tolerance so that rounding
// noise does not break ties the wrong way.
func lessOrEqual(a, b float64) bool {
	return a <= b+1e-9*math.Max(1, math.Abs(b))
}

// Calibrator runs Optimize and publishes the result.
type Calibrator struct {
	thresholds *ThresholdStore
	costs      *CostStore
	logger     *slog.Logger
}

// NewCalibrator creates a calibrator publishing into thresholds.
func NewCalibrator(thresholds *ThresholdStore, costs *CostStore, logger *slog.Logger) *Calibrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calibrator{thresholds: thresholds, costs: costs, logger: logger}
}

// Calibrate optimizes thresholds for samples under the active cost matrix,
// or under override when given, and publishes them. Model weights are
// never touched. On error the current thresholds stay in place.
func (c *Calibrator) Calibrate(ctx context.Context, samples []domain.LabeledScore, override *domain.CostMatrix) (*CalibrationReport, error) {
	costs := c.costs.Current()
	if override != nil {
		costs = *override
	}

	report, err := Optimize(samples, costs)
	if err != nil {
		c.logger.Warn("calibration rejected", "samples", len(samples), "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ts, err := c.thresholds.Publish(report.Approve, report.Block, costs.Version, SourceCalibration)
	if err != nil {
		return nil, err
	}
	report.Thresholds = ts

	c.logger.Info("thresholds calibrated",
		"threshold_id", ts.ID,
		"approve", ts.Approve,
		"block", ts.Block,
		"expected_cost", report.ExpectedCost,
		"samples", report.Samples,
		"frauds", report.Frauds,
	)
	return report, nil
}
