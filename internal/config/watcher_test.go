package config

import (
	"testing"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

type recordingTargets struct {
	thresholds [][2]float64
	costs      []domain.CostMatrix
	weights    []domain.EnsembleWeights
}

func (r *recordingTargets) Publish(approve, block float64, costVersion, source string) (*domain.ThresholdSet, error) {
	ts := &domain.ThresholdSet{Approve: approve, Block: block, CostMatrixVersion: costVersion}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	r.thresholds = append(r.thresholds, [2]float64{approve, block})
	return ts, nil
}

func (r *recordingTargets) Set(c domain.CostMatrix) error {
	if err := c.Validate(); err != nil {
		return err
	}
	r.costs = append(r.costs, c)
	return nil
}

func (r *recordingTargets) SetWeights(w domain.EnsembleWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	r.weights = append(r.weights, w)
	return nil
}

func TestWatcher(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "decision:\n  approve_threshold: 0.5\n  block_threshold: 0.85\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	rec := &recordingTargets{}
	w, err := NewWatcher(path, cfg, Targets{Thresholds: rec, Costs: rec, Weights: rec}, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	t.Run("UnrelatedEdit", func(t *testing.T) {
		writeFile(t, dir, "server:\n  port: 9999\ndecision:\n  approve_threshold: 0.5\n  block_threshold: 0.85\n")
		if err := w.Reload(); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}
		if len(rec.thresholds)+len(rec.costs)+len(rec.weights) != 0 {
			t.Errorf("expected no pushes, got %+v", rec)
		}
	})

	t.Run("ThresholdsAndWeights", func(t *testing.T) {
		writeFile(t, dir, `
decision:
  approve_threshold: 0.35
  block_threshold: 0.8
ensemble:
  weights:
    unsupervised: 0.5
    supervised: 0.5
`)
		if err := w.Reload(); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}
		if len(rec.thresholds) != 1 || rec.thresholds[0] != [2]float64{0.35, 0.8} {
			t.Errorf("expected thresholds 0.35/0.8, got %v", rec.thresholds)
		}
		if len(rec.weights) != 1 || rec.weights[0].Unsupervised != 0.5 {
			t.Errorf("expected weights 0.5/0.5, got %v", rec.weights)
		}
		if len(rec.costs) != 0 {
			t.Errorf("expected costs untouched, got %v", rec.costs)
		}
	})

	t.Run("InvalidRejected", func(t *testing.T) {
		writeFile(t, dir, "decision:\n  approve_threshold: 0.9\n  block_threshold: 0.1\n")
		if err := w.Reload(); err == nil {
			t.Error("expected error for inverted thresholds")
		}
		if len(rec.thresholds) != 1 {
			t.Errorf("expected no new publish, got %v", rec.thresholds)
		}
	})

	t.Run("Costs", func(t *testing.T) {
		writeFile(t, dir, `
decision:
  approve_threshold: 0.35
  block_threshold: 0.8
  costs:
    false_positive_cost: 75
    version: q4
ensemble:
  weights:
    unsupervised: 0.5
    supervised: 0.5
`)
		if err := w.Reload(); err != nil {
			t.Fatalf("Reload failed: %v", err)
		}
		if len(rec.costs) != 1 || rec.costs[0].FalsePositiveCost != 75 || rec.costs[0].Version != "q4" {
			t.Errorf("expected q4 costs, got %v", rec.costs)
		}
		if len(rec.thresholds) != 1 {
			t.Errorf("expected thresholds unchanged, got %v", rec.thresholds)
		}
	})
}

func TestNewWatcherRequiresPath(t *testing.T) {
	if _, err := NewWatcher("", nil, Targets{}, nil); err == nil {
		t.Error("expected error for empty path")
	}
}
