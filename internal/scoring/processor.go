// Package scoring runs one transaction through the fraud pipeline:
// features, fused score, decision, explanation, then alert and persistence
// side effects.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/osprey-risk/internal/decision"
	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/ensemble"
	"github.com/opensource-finance/osprey-risk/internal/explain"
	"github.com/opensource-finance/osprey-risk/internal/features"
	"github.com/opensource-finance/osprey-risk/internal/metrics"
)

// EngineVersion is stamped on every result.
const EngineVersion = "osprey-risk-1.0"

// DefaultPersistTimeout bounds each store, alert and publish call.
const DefaultPersistTimeout = 2 * time.Second

var tracer = otel.Tracer("osprey-risk-scoring")

// ResultStore persists transactions and results. domain.Repository satisfies it.
type ResultStore interface {
	SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error
	SaveResult(ctx context.Context, tenantID string, result *domain.ScoringResult) error
}

// AlertCreator opens alerts for flagged results.
type AlertCreator interface {
	Create(ctx context.Context, result *domain.ScoringResult) (*domain.Alert, error)
}

// Processor wires the scoring components together.
type Processor struct {
	assembler  *features.Assembler
	ensemble   *ensemble.Ensemble
	classifier *decision.Classifier
	thresholds *decision.ThresholdStore
	explainer  *explain.Generator

	store          ResultStore
	alerts         AlertCreator
	bus            domain.EventBus
	persistTimeout time.Duration
	logger         *slog.Logger
}

// Option configures optional side effects.
type Option func(*Processor)

// WithStore persists every transaction and result.
func WithStore(s ResultStore) Option {
	return func(p *Processor) { p.store = s }
}

// WithAlerts opens alerts for review and block decisions.
func WithAlerts(a AlertCreator) Option {
	return func(p *Processor) { p.alerts = a }
}

// WithBus publishes decisions and alerts.
func WithBus(b domain.EventBus) Option {
	return func(p *Processor) { p.bus = b }
}

// WithPersistTimeout bounds each side-effect call.
func WithPersistTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.persistTimeout = d
		}
	}
}

// NewProcessor creates a processor.
func NewProcessor(
	assembler *features.Assembler,
	ens *ensemble.Ensemble,
	classifier *decision.Classifier,
	thresholds *decision.ThresholdStore,
	explainer *explain.Generator,
	logger *slog.Logger,
	opts ...Option,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		assembler:      assembler,
		ensemble:       ens,
		classifier:     classifier,
		thresholds:     thresholds,
		explainer:      explainer,
		persistTimeout: DefaultPersistTimeout,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate rejects transactions the pipeline cannot score.
func Validate(tx *domain.Transaction) error {
	switch {
	case tx == nil:
		return fmt.Errorf("%w: transaction is required", domain.ErrInvalidInput)
	case tx.TenantID == "":
		return fmt.Errorf("%w: tenant id is required", domain.ErrInvalidInput)
	case tx.ID == "":
		return fmt.Errorf("%w: transactionId is required", domain.ErrInvalidInput)
	case tx.UserID == "":
		return fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	case math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) || tx.Amount < 0:
		return fmt.Errorf("%w: amount must be a non-negative number", domain.ErrInvalidInput)
	case tx.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", domain.ErrInvalidInput)
	}
	return nil
}

// Process scores tx. The threshold and model snapshots are read once up
// front, so a concurrent republish never mixes versions within one result.
// Persistence, alert and publish failures are logged and do not fail scoring.
func (p *Processor) Process(ctx context.Context, tx *domain.Transaction, traceID string) (*domain.ScoringResult, error) {
	start := time.Now()
	if err := Validate(tx); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "scoring.process",
		trace.WithAttributes(
			attribute.String("tenant.id", tx.TenantID),
			attribute.String("tx.id", tx.ID),
		),
	)
	defer span.End()

	ts := p.thresholds.Current()
	snap := p.ensemble.Snapshot()

	// 1. Features
	fctx, fspan := tracer.Start(ctx, "scoring.features")
	fres := p.assembler.Assemble(fctx, tx)
	fspan.SetAttributes(
		attribute.Bool("features.low_confidence", fres.Vector.LowConfidence),
		attribute.String("features.baseline_source", fres.Vector.BaselineSource),
	)
	fspan.End()
	featuresMs := time.Since(start).Milliseconds()

	// 2. Fused score and decision
	scoreStart := time.Now()
	sctx, sspan := tracer.Start(ctx, "scoring.predict")
	pred := snap.Predict(sctx, fres.Vector)
	dec := p.classifier.Decide(pred, ts, fres.Vector.LowConfidence)
	sspan.SetAttributes(
		attribute.Float64("score.fused", pred.FraudScore),
		attribute.String("decision.action", string(dec.Action)),
		attribute.Bool("model.degraded", pred.Degraded),
	)
	sspan.End()
	scoringMs := time.Since(scoreStart).Milliseconds()

	result := &domain.ScoringResult{
		ID:                  uuid.New().String(),
		TenantID:            tx.TenantID,
		TxID:                tx.ID,
		UserID:              tx.UserID,
		Amount:              tx.Amount,
		FraudScore:          pred.FraudScore,
		UnsupervisedScore:   pred.UnsupervisedScore,
		SupervisedScore:     pred.SupervisedScore,
		Weights:             pred.Weights,
		ModelVersion:        pred.ModelVersion,
		Decision:            dec,
		ThresholdSnapshotID: ts.ID,
		Features:            fres.Vector,
		Prediction:          pred,
		CreatedAt:           time.Now().UTC(),
	}

	// 3. Explanation and priority for flagged transactions
	var explainMs int64
	if dec.Action != domain.ActionApprove {
		explainStart := time.Now()
		ectx, espan := tracer.Start(ctx, "scoring.explain")
		result.Explanation = p.explainer.Explain(ectx, fres.Vector, snap.Fused, pred.FraudScore)
		espan.SetAttributes(
			attribute.String("explain.method", result.Explanation.Method),
			attribute.Bool("explain.approximate", result.Explanation.Approximate),
		)
		espan.End()
		explainMs = time.Since(explainStart).Milliseconds()
		result.Priority = p.classifier.Priority(dec.Action, pred.FraudScore, tx.Amount)
	}

	result.Metadata = domain.ResultMetadata{
		TraceID:       traceID,
		FeaturesMs:    featuresMs,
		ScoringMs:     scoringMs,
		ExplainMs:     explainMs,
		TotalMs:       time.Since(start).Milliseconds(),
		EngineVersion: EngineVersion,
	}

	metrics.DecisionsTotal.WithLabelValues(string(dec.Action)).Inc()
	metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("decision.action", string(dec.Action)))

	p.persist(ctx, tx, result)

	p.logger.Info("transaction scored",
		"tx_id", tx.ID,
		"tenant_id", tx.TenantID,
		"trace_id", traceID,
		"fraud_score", result.FraudScore,
		"action", dec.Action,
		"threshold_id", ts.ID,
		"model_version", result.ModelVersion,
		"low_confidence", dec.LowConfidence,
		"duration_ms", result.Metadata.TotalMs,
	)
	return result, nil
}

// persist stores the transaction and result, opens an alert and publishes.
// Each call runs under its own persistTimeout.
func (p *Processor) persist(ctx context.Context, tx *domain.Transaction, result *domain.ScoringResult) {
	if p.store != nil {
		if err := p.bounded(ctx, func(ctx context.Context) error {
			return p.store.SaveTransaction(ctx, tx.TenantID, tx)
		}); err != nil {
			p.logger.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		}
		if err := p.bounded(ctx, func(ctx context.Context) error {
			return p.store.SaveResult(ctx, tx.TenantID, result)
		}); err != nil {
			p.logger.Error("failed to save result", "tx_id", tx.ID, "error", err)
		}
	}

	var alert *domain.Alert
	if p.alerts != nil && result.Decision.Action != domain.ActionApprove {
		err := p.bounded(ctx, func(ctx context.Context) error {
			var err error
			alert, err = p.alerts.Create(ctx, result)
			return err
		})
		if err != nil {
			p.logger.Error("failed to create alert", "tx_id", tx.ID, "error", err)
		}
	}

	if p.bus == nil {
		return
	}
	payload, err := json.Marshal(result.ToResponse())
	if err != nil {
		p.logger.Error("failed to encode decision", "tx_id", tx.ID, "error", err)
		return
	}
	if err := p.bounded(ctx, func(ctx context.Context) error {
		return p.bus.Publish(ctx, tx.TenantID, domain.TopicDecision, payload)
	}); err != nil {
		p.logger.Error("failed to publish decision", "tx_id", tx.ID, "error", err)
	}
	if alert != nil {
		alertPayload, err := json.Marshal(alert)
		if err != nil {
			p.logger.Error("failed to encode alert", "tx_id", tx.ID, "error", err)
			return
		}
		if err := p.bounded(ctx, func(ctx context.Context) error {
			return p.bus.Publish(ctx, tx.TenantID, domain.TopicAlert, alertPayload)
		}); err != nil {
			p.logger.Error("failed to publish alert", "tx_id", tx.ID, "error", err)
		}
	}
}

func (p *Processor) bounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.persistTimeout)
	defer cancel()
	return fn(ctx)
}
