package ensemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/metrics"
)

// NeutralScore is used when neither the current nor the last-known-good
// model of a role produced a score.
const NeutralScore = 0.5

// DefaultInferenceTimeout bounds one model call.
const DefaultInferenceTimeout = 100 * time.Millisecond

// slot holds the active model for a role and the one it replaced.
type slot struct {
	current       *Model
	lastKnownGood *Model
}

// Snapshot is an immutable view of the ensemble. Readers take one per
// transaction and use it throughout.
type Snapshot struct {
	unsupervised slot
	supervised   slot
	weights      domain.EnsembleWeights
	timeout      time.Duration
	generation   uint64
	logger       *slog.Logger
}

// Ensemble publishes snapshots through an atomic pointer.
type Ensemble struct {
	current atomic.Pointer[Snapshot]
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an ensemble. Nil models are replaced with the built-in heuristics.
func New(unsupervised, supervised *Model, weights domain.EnsembleWeights, timeout time.Duration, logger *slog.Logger) (*Ensemble, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultInferenceTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if unsupervised == nil {
		unsupervised = DefaultModel(domain.RoleUnsupervised)
	}
	if supervised == nil {
		supervised = DefaultModel(domain.RoleSupervised)
	}

	e := &Ensemble{timeout: timeout, logger: logger}
	e.current.Store(&Snapshot{
		unsupervised: slot{current: unsupervised},
		supervised:   slot{current: supervised},
		weights:      weights,
		timeout:      timeout,
		generation:   1,
		logger:       logger,
	})
	return e, nil
}

// Snapshot returns the current immutable snapshot.
func (e *Ensemble) Snapshot() *Snapshot {
	return e.current.Load()
}

// Predict scores fv against the current snapshot.
func (e *Ensemble) Predict(ctx context.Context, fv *domain.FeatureVector) domain.ModelPrediction {
	return e.Snapshot().Predict(ctx, fv)
}

// UpdateModel validates m and, if it passes, publishes a snapshot that
// serves m for role. The replaced model becomes that role's last-known-good.
// On any error the current snapshot is untouched.
func (e *Ensemble) UpdateModel(ctx context.Context, role domain.ModelRole, m *Model) error {
	if _, err := domain.ParseModelRole(string(role)); err != nil {
		return err
	}
	if m == nil || m.Scorer == nil {
		return fmt.Errorf("%w: model is required", domain.ErrModelValidation)
	}

	if err := e.smokeTest(ctx, m); err != nil {
		metrics.ModelSwapsTotal.WithLabelValues(string(role), "rejected").Inc()
		e.logger.Warn("model rejected",
			"role", role,
			"kind", m.Kind,
			"version", m.Version,
			"error", err,
		)
		return err
	}

	for {
		old := e.current.Load()
		next := *old
		next.generation = old.generation + 1
		switch role {
		case domain.RoleUnsupervised:
			next.unsupervised = slot{current: m, lastKnownGood: old.unsupervised.current}
		case domain.RoleSupervised:
			next.supervised = slot{current: m, lastKnownGood: old.supervised.current}
		}
		if e.current.CompareAndSwap(old, &next) {
			break
		}
	}

	metrics.ModelSwapsTotal.WithLabelValues(string(role), "accepted").Inc()
	e.logger.Info("model swapped",
		"role", role,
		"kind", m.Kind,
		"version", m.Version,
	)
	return nil
}

// SetWeights publishes new fusion weights after validation.
func (e *Ensemble) SetWeights(w domain.EnsembleWeights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	for {
		old := e.current.Load()
		next := *old
		next.weights = w
		next.generation = old.generation + 1
		if e.current.CompareAndSwap(old, &next) {
			return nil
		}
	}
}

// smokeTest runs m on a neutral vector under the inference timeout.
func (e *Ensemble) smokeTest(ctx context.Context, m *Model) error {
	fv := domain.NewFeatureVector("smoke-test")
	score, err := infer(ctx, m, fv, e.timeout)
	if err != nil {
		return fmt.Errorf("%w: smoke test failed: %v", domain.ErrModelValidation, err)
	}
	if err := checkScore(score); err != nil {
		return err
	}
	return nil
}

// Weights returns the snapshot's fusion weights.
func (s *Snapshot) Weights() domain.EnsembleWeights {
	return s.weights
}

// Generation increases by one on every publish.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// Version identifies the pair of models serving this snapshot.
func (s *Snapshot) Version() string {
	return s.unsupervised.current.Version + "+" + s.supervised.current.Version
}

// Models describes both slots.
func (s *Snapshot) Models() []ModelInfo {
	return []ModelInfo{
		s.unsupervised.info(domain.RoleUnsupervised),
		s.supervised.info(domain.RoleSupervised),
	}
}

func (sl slot) info(role domain.ModelRole) ModelInfo {
	mi := ModelInfo{
		Role:     role,
		Kind:     sl.current.Kind,
		Version:  sl.current.Version,
		LoadedAt: sl.current.LoadedAt,
	}
	if sl.lastKnownGood != nil {
		at := sl.lastKnownGood.LoadedAt
		mi.LastKnownGood = sl.lastKnownGood.Version
		mi.LastKnownGoodAt = &at
	}
	return mi
}

// Predict scores fv with both roles and fuses the result.
func (s *Snapshot) Predict(ctx context.Context, fv *domain.FeatureVector) domain.ModelPrediction {
	u := s.scoreRole(ctx, domain.RoleUnsupervised, s.unsupervised, fv)
	sv := s.scoreRole(ctx, domain.RoleSupervised, s.supervised, fv)

	pred := domain.ModelPrediction{
		UnsupervisedScore: u.score,
		SupervisedScore:   sv.score,
		FraudScore:        clamp01(s.weights.Unsupervised*u.score + s.weights.Supervised*sv.score),
		Weights:           s.weights,
		ModelVersion:      s.Version(),
	}

	var reasons []string
	for _, r := range []roleScore{u, sv} {
		if r.reason != "" {
			reasons = append(reasons, r.reason)
		}
		if r.neutral {
			pred.ForceReview = true
		}
	}
	if len(reasons) > 0 {
		pred.Degraded = true
		pred.DegradedReason = strings.Join(reasons, "; ")
	}
	return pred
}

type roleScore struct {
	score   float64
	reason  string // empty when the current model answered
	neutral bool
}

// scoreRole tries the current model, then last-known-good, then the neutral score.
func (s *Snapshot) scoreRole(ctx context.Context, role domain.ModelRole, sl slot, fv *domain.FeatureVector) roleScore {
	score, err := infer(ctx, sl.current, fv, s.timeout)
	if err == nil {
		return roleScore{score: score}
	}
	s.logger.Warn("model inference failed",
		"role", role,
		"version", sl.current.Version,
		"tx_id", fv.TxID,
		"error", err,
	)

	if sl.lastKnownGood != nil {
		score, lkgErr := infer(ctx, sl.lastKnownGood, fv, s.timeout)
		if lkgErr == nil {
			metrics.ModelFallbacksTotal.WithLabelValues(string(role), "last_known_good").Inc()
			return roleScore{score: score, reason: fmt.Sprintf("%s: last_known_good %s", role, sl.lastKnownGood.Version)}
		}
		s.logger.Warn("last-known-good inference failed",
			"role", role,
			"version", sl.lastKnownGood.Version,
			"tx_id", fv.TxID,
			"error", lkgErr,
		)
	}

	metrics.ModelFallbacksTotal.WithLabelValues(string(role), "neutral").Inc()
	return roleScore{score: NeutralScore, reason: fmt.Sprintf("%s: neutral", role), neutral: true}
}

var errInferenceTimeout = errors.New("inference timed out")

// infer runs one model call bounded by timeout. A hung scorer is abandoned;
// its goroutine exits when the scorer returns.
func infer(ctx context.Context, m *Model, fv *domain.FeatureVector, timeout time.Duration) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		score float64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("scorer panicked: %v", r)}
			}
		}()
		score, err := m.Scorer.Score(ctx, fv)
		if err == nil {
			err = checkScore(score)
		}
		done <- result{score: score, err: err}
	}()

	select {
	case r := <-done:
		return r.score, r.err
	case <-ctx.Done():
		return 0, errInferenceTimeout
	}
}

// Fused scores fv with the current models only, without timeouts or
// fallbacks. Explanations use it to probe the model that served a decision.
func (s *Snapshot) Fused(ctx context.Context, fv *domain.FeatureVector) (float64, error) {
	u, err := s.unsupervised.current.Scorer.Score(ctx, fv)
	if err != nil {
		return 0, err
	}
	sv, err := s.supervised.current.Scorer.Score(ctx, fv)
	if err != nil {
		return 0, err
	}
	if err := checkScore(u); err != nil {
		return 0, err
	}
	if err := checkScore(sv); err != nil {
		return 0, err
	}
	return clamp01(s.weights.Unsupervised*u + s.weights.Supervised*sv), nil
}
