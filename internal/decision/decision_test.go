package decision

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func thresholds(approve, block float64) *domain.ThresholdSet {
	return &domain.ThresholdSet{ID: "ts-1", Approve: approve, Block: block}
}

func TestClassify(t *testing.T) {
	ts := thresholds(0.5, 0.85)

	tests := []struct {
		score float64
		want  domain.Action
	}{
		{0.0, domain.ActionApprove},
		{0.49, domain.ActionApprove},
		{0.5, domain.ActionReview},
		{0.84, domain.ActionReview},
		{0.85, domain.ActionBlock},
		{0.92, domain.ActionBlock},
		{1.0, domain.ActionBlock},
	}
	for _, tt := range tests {
		d := Classify(tt.score, ts)
		if d.Action != tt.want {
			t.Errorf("score %v: expected %s, got %s", tt.score, tt.want, d.Action)
		}
		if d.ThresholdSnapshotID != "ts-1" {
			t.Errorf("expected snapshot id ts-1, got %s", d.ThresholdSnapshotID)
		}
		if d.Confidence < 0 || d.Confidence > 1 {
			t.Errorf("score %v: confidence %v outside [0,1]", tt.score, d.Confidence)
		}
	}

	t.Run("MonotonicStep", func(t *testing.T) {
		prev := -1
		for s := 0.0; s <= 1.0; s += 0.001 {
			sev := Classify(s, ts).Action.Severity()
			if sev < prev {
				t.Fatalf("severity decreased at score %v", s)
			}
			prev = sev
		}
	})

	t.Run("NonFiniteGoesToReview", func(t *testing.T) {
		d := Classify(math.NaN(), ts)
		if d.Action != domain.ActionReview || !d.LowConfidence {
			t.Errorf("expected low-confidence review, got %+v", d)
		}
	})
}

func TestConfidence(t *testing.T) {
	if got := Confidence(domain.ActionApprove, 0, 0.5, 0.85); got != 1 {
		t.Errorf("expected 1 at score 0, got %v", got)
	}
	if got := Confidence(domain.ActionApprove, 0.25, 0.5, 0.85); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected 0.5, got %v", got)
	}
	mid := (0.5 + 0.85) / 2
	if got := Confidence(domain.ActionReview, mid, 0.5, 0.85); math.Abs(got-1) > 1e-12 {
		t.Errorf("expected 1 at band center, got %v", got)
	}
	if got := Confidence(domain.ActionBlock, 0.85, 0.5, 0.85); got != 0 {
		t.Errorf("expected 0 at block boundary, got %v", got)
	}
	if got := Confidence(domain.ActionBlock, 1, 0.5, 1); got != 1 {
		t.Errorf("expected degenerate band confidence 1, got %v", got)
	}
	if got := Confidence(domain.ActionApprove, 0, 0, 0.5); got != 1 {
		t.Errorf("expected degenerate approve band confidence 1, got %v", got)
	}
}

func TestDecide(t *testing.T) {
	c := NewClassifier(domain.DefaultConfig().Decision)
	ts := thresholds(0.5, 0.85)

	t.Run("ForceReview", func(t *testing.T) {
		d := c.Decide(domain.ModelPrediction{FraudScore: 0.5 * 0.3, ForceReview: true, Degraded: true}, ts, false)
		if d.Action != domain.ActionReview {
			t.Errorf("expected review, got %s", d.Action)
		}
		if !d.LowConfidence {
			t.Error("expected low confidence")
		}
	})

	t.Run("ForceReviewKeepsBlock", func(t *testing.T) {
		d := c.Decide(domain.ModelPrediction{FraudScore: 0.9, ForceReview: true}, ts, false)
		if d.Action != domain.ActionBlock {
			t.Errorf("expected block, got %s", d.Action)
		}
	})

	t.Run("LowConfidenceFeatures", func(t *testing.T) {
		d := c.Decide(domain.ModelPrediction{FraudScore: 0.1}, ts, true)
		if d.Action != domain.ActionApprove || !d.LowConfidence {
			t.Errorf("expected low-confidence approve, got %+v", d)
		}
	})
}

func TestPriority(t *testing.T) {
	c := NewClassifier(domain.DefaultConfig().Decision)

	tests := []struct {
		name   string
		action domain.Action
		score  float64
		amount float64
		want   domain.Priority
	}{
		{"Block", domain.ActionBlock, 0.9, 10, domain.PriorityHigh},
		{"HighValue", domain.ActionReview, 0.55, 15000, domain.PriorityHigh},
		{"StrongScore", domain.ActionReview, 0.75, 100, domain.PriorityMedium},
		{"Weak", domain.ActionReview, 0.55, 100, domain.PriorityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Priority(tt.action, tt.score, tt.amount); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestThresholdStore(t *testing.T) {
	store, err := NewThresholdStore(0.5, 0.85, "default")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	first := store.Current()
	if first.ID == "" {
		t.Error("expected snapshot id")
	}

	invalid := [][2]float64{{0.9, 0.8}, {0.5, 0.5}, {-0.1, 0.5}, {0.2, 1.2}, {math.NaN(), 0.5}}
	for _, p := range invalid {
		if _, err := store.Publish(p[0], p[1], "v", SourceAdmin); !errors.Is(err, domain.ErrInvalidThresholds) {
			t.Errorf("expected ErrInvalidThresholds for %v, got %v", p, err)
		}
	}
	if store.Current() != first {
		t.Error("expected prior snapshot kept after rejected updates")
	}

	next, err := store.Publish(0.4, 0.9, "v2", SourceAdmin)
	if err != nil {
		t.Fatalf("expected publish, got %v", err)
	}
	if next.ID == first.ID {
		t.Error("expected fresh snapshot id")
	}
	if store.Current().Approve != 0.4 {
		t.Errorf("expected approve 0.4, got %v", store.Current().Approve)
	}
}

func TestThresholdStoreConcurrentReaders(t *testing.T) {
	store, _ := NewThresholdStore(0.5, 0.85, "default")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				ts := store.Current()
				if ts.Approve >= ts.Block {
					t.Errorf("observed invalid snapshot %+v", ts)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		a := float64(i%50) / 100
		_, _ = store.Publish(a, a+0.3, "v", SourceAdmin)
	}
	close(stop)
	wg.Wait()
}

func TestCostStore(t *testing.T) {
	store, err := NewCostStore(domain.DefaultCostMatrix())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(domain.CostMatrix{FalsePositiveCost: -1, FalseNegativeCost: 10}); err == nil {
		t.Error("expected negative cost rejected")
	}
	if store.Current().Version != "default" {
		t.Errorf("expected default matrix kept, got %s", store.Current().Version)
	}
	if err := store.Set(domain.CostMatrix{FalsePositiveCost: 10, FalseNegativeCost: 100}); err != nil {
		t.Fatal(err)
	}
	if store.Current().Version == "" {
		t.Error("expected generated version")
	}
}

func syntheticSamples(seed int64, n int) []domain.LabeledScore {
	rng := rand.New(rand.NewSource(seed))
	out := make([]domain.LabeledScore, n)
	for i := range out {
		fraud := rng.Float64() < 0.1
		var s float64
		if fraud {
			s = 0.5 + 0.5*rng.Float64()
		} else {
			s = 0.7 * rng.Float64()
		}
		out[i] = domain.LabeledScore{Score: math.Round(s*1000) / 1000, IsFraud: fraud}
	}
	return out
}

// bruteForce evaluates every cut pair directly.
func bruteForce(samples []domain.LabeledScore, costs domain.CostMatrix) float64 {
	cutSet := map[float64]bool{1: true}
	for _, s := range samples {
		cutSet[s.Score] = true
	}
	var cuts []float64
	for c := range cutSet {
		cuts = append(cuts, c)
	}
	best := math.Inf(1)
	for _, a := range cuts {
		for _, b := range cuts {
			if a > b || (a == b && a == 0) {
				continue
			}
			var cost float64
			for _, s := range samples {
				switch {
				case s.Score < a && s.IsFraud:
					cost += costs.FalseNegativeCost
				case s.Score >= b && !s.IsFraud:
					cost += costs.FalsePositiveCost
				case s.Score >= a && s.Score < b:
					cost += costs.ReviewCost
				}
			}
			best = math.Min(best, cost/float64(len(samples)))
		}
	}
	return best
}

func TestOptimize(t *testing.T) {
	costs := domain.DefaultCostMatrix()

	t.Run("MatchesBruteForce", func(t *testing.T) {
		for seed := int64(1); seed <= 5; seed++ {
			samples := syntheticSamples(seed, 200)
			report, err := Optimize(samples, costs)
			if err != nil {
				t.Fatalf("seed %d: %v", seed, err)
			}
			want := bruteForce(samples, costs)
			if math.Abs(report.ExpectedCost-want) > 1e-9 {
				t.Errorf("seed %d: expected cost %v, got %v", seed, want, report.ExpectedCost)
			}
		}
	})

	t.Run("ApproveBelowBlock", func(t *testing.T) {
		for seed := int64(1); seed <= 20; seed++ {
			report, err := Optimize(syntheticSamples(seed, 100), costs)
			if err != nil {
				t.Fatal(err)
			}
			if !(report.Approve >= 0 && report.Approve < report.Block && report.Block <= 1) {
				t.Errorf("seed %d: invalid pair approve=%v block=%v", seed, report.Approve, report.Block)
			}
		}
	})

	t.Run("BlockMonotonicInFalsePositiveCost", func(t *testing.T) {
		samples := syntheticSamples(42, 300)
		prev := -1.0
		for fp := 1.0; fp <= 2000; fp *= 1.5 {
			c := domain.CostMatrix{FalsePositiveCost: fp, FalseNegativeCost: 1000, ReviewCost: 5, Version: "t"}
			report, err := Optimize(samples, c)
			if err != nil {
				t.Fatal(err)
			}
			if report.Block < prev {
				t.Fatalf("block decreased from %v to %v at fp_cost %v", prev, report.Block, fp)
			}
			prev = report.Block
		}
	})

	t.Run("SeparableData", func(t *testing.T) {
		samples := []domain.LabeledScore{
			{Score: 0.1}, {Score: 0.2}, {Score: 0.3},
			{Score: 0.9, IsFraud: true}, {Score: 0.95, IsFraud: true},
		}
		report, err := Optimize(samples, costs)
		if err != nil {
			t.Fatal(err)
		}
		if report.ExpectedCost != 0 {
			t.Errorf("expected zero cost, got %v", report.ExpectedCost)
		}
		if report.Block != 0.9 {
			t.Errorf("expected block 0.9, got %v", report.Block)
		}
		if !(report.Approve > 0.3 && report.Approve < 0.9) {
			t.Errorf("expected approve strictly inside the gap, got %v", report.Approve)
		}
		if Classify(0.3, &domain.ThresholdSet{Approve: report.Approve, Block: report.Block}).Action != domain.ActionApprove {
			t.Error("expected legit sample approved")
		}
	})

	t.Run("AllZeroScores", func(t *testing.T) {
		report, err := Optimize([]domain.LabeledScore{{Score: 0}, {Score: 0, IsFraud: true}}, costs)
		if err != nil {
			t.Fatal(err)
		}
		if report.Approve >= report.Block {
			t.Errorf("expected approve < block, got %v/%v", report.Approve, report.Block)
		}
	})

	t.Run("Rejects", func(t *testing.T) {
		cases := map[string]struct {
			samples []domain.LabeledScore
			costs   domain.CostMatrix
		}{
			"Empty":        {nil, costs},
			"NaN":          {[]domain.LabeledScore{{Score: math.NaN()}}, costs},
			"OutOfRange":   {[]domain.LabeledScore{{Score: 1.2}}, costs},
			"NegativeCost": {[]domain.LabeledScore{{Score: 0.5}}, domain.CostMatrix{FalsePositiveCost: -5, FalseNegativeCost: 1}},
		}
		for name, tc := range cases {
			if _, err := Optimize(tc.samples, tc.costs); !errors.Is(err, domain.ErrInvalidCalibration) {
				t.Errorf("%s: expected ErrInvalidCalibration, got %v", name, err)
			}
		}
	})
}

func TestCalibratorPublishes(t *testing.T) {
	store, _ := NewThresholdStore(0.5, 0.85, "default")
	costs, _ := NewCostStore(domain.DefaultCostMatrix())
	cal := NewCalibrator(store, costs, quietLogger())
	before := store.Current()

	if _, err := cal.Calibrate(context.Background(), nil, nil); err == nil {
		t.Fatal("expected empty calibration to fail")
	}
	if store.Current() != before {
		t.Error("expected thresholds untouched after failed calibration")
	}

	report, err := cal.Calibrate(context.Background(), syntheticSamples(3, 150), nil)
	if err != nil {
		t.Fatalf("expected calibration, got %v", err)
	}
	if report.Thresholds == nil || store.Current().ID != report.Thresholds.ID {
		t.Error("expected calibrated snapshot published")
	}
	if store.Current().CostMatrixVersion != "default" {
		t.Errorf("expected cost version default, got %s", store.Current().CostMatrixVersion)
	}
}
