package config

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/opensource-finance/osprey-risk/internal/decision"
	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// ThresholdPublisher accepts new thresholds. *decision.ThresholdStore satisfies it.
type ThresholdPublisher interface {
	Publish(approve, block float64, costVersion, source string) (*domain.ThresholdSet, error)
}

// CostSetter accepts a new cost matrix. *decision.CostStore satisfies it.
type CostSetter interface {
	Set(c domain.CostMatrix) error
}

// WeightSetter accepts new fusion weights. *ensemble.Ensemble satisfies it.
type WeightSetter interface {
	SetWeights(w domain.EnsembleWeights) error
}

// Targets are the live stores a config edit is applied to. Nil targets are skipped.
type Targets struct {
	Thresholds ThresholdPublisher
	Costs      CostSetter
	Weights    WeightSetter
}

// Watcher reapplies decision settings when the config file changes. Only
// values that differ from the last applied file are pushed, so admin
// updates survive unrelated edits.
type Watcher struct {
	v       *viper.Viper
	targets Targets
	logger  *slog.Logger

	mu   sync.Mutex
	last *domain.Config
}

// NewWatcher reads path and applies nothing until the file changes. Call Start to begin watching.
func NewWatcher(path string, initial *domain.Config, targets Targets, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: watcher requires a config path", domain.ErrInvalidInput)
	}
	if logger == nil {
		logger = slog.Default()
	}
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	if initial == nil {
		initial = domain.DefaultConfig()
	}
	return &Watcher{v: v, targets: targets, logger: logger, last: initial}, nil
}

// Start begins watching the file.
func (w *Watcher) Start() {
	w.v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.Reload(); err != nil {
			w.logger.Error("config reload failed", "file", evt.Name, "error", err)
		}
	})
	w.v.WatchConfig()
	w.logger.Info("watching config", "file", w.v.ConfigFileUsed())
}

// Reload rereads the file and applies what changed. Invalid values are
// rejected as a whole and the running settings stay.
func (w *Watcher) Reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed: %w", err)
	}
	next := *w.last
	if err := w.v.UnmarshalKey("decision", &next.Decision, decodeOptions); err != nil {
		return fmt.Errorf("parsing decision config failed: %w", err)
	}
	if err := w.v.UnmarshalKey("ensemble", &next.Ensemble, decodeOptions); err != nil {
		return fmt.Errorf("parsing ensemble config failed: %w", err)
	}
	if err := Validate(&next); err != nil {
		return err
	}

	prev := w.last
	changed := 0
	if next.Decision.Costs != prev.Decision.Costs && w.targets.Costs != nil {
		if err := w.targets.Costs.Set(next.Decision.Costs); err != nil {
			return err
		}
		changed++
	}
	if (next.Decision.ApproveThreshold != prev.Decision.ApproveThreshold ||
		next.Decision.BlockThreshold != prev.Decision.BlockThreshold) && w.targets.Thresholds != nil {
		if _, err := w.targets.Thresholds.Publish(next.Decision.ApproveThreshold, next.Decision.BlockThreshold, next.Decision.Costs.Version, decision.SourceConfig); err != nil {
			return err
		}
		changed++
	}
	if next.Ensemble.Weights != prev.Ensemble.Weights && w.targets.Weights != nil {
		if err := w.targets.Weights.SetWeights(next.Ensemble.Weights); err != nil {
			return err
		}
		changed++
	}

	w.last = &next
	w.logger.Info("config reloaded",
		"changed", changed,
		"approve", next.Decision.ApproveThreshold,
		"block", next.Decision.BlockThreshold,
		"cost_version", next.Decision.Costs.Version,
	)
	return nil
}
