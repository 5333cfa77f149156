// Package worker scores transactions published to the event bus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// Scorer runs one transaction through the pipeline. *scoring.Processor
// satisfies it.
type Scorer interface {
	Process(ctx context.Context, tx *domain.Transaction, traceID string) (*domain.ScoringResult, error)
}

// Worker processes transactions asynchronously from the EventBus.
// Decisions and alerts are published by the scorer.
type Worker struct {
	bus    domain.EventBus
	scorer Scorer
	logger *slog.Logger

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all tenants)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, scorer Scorer, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		scorer: scorer,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(domain.AllTenants)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			w.logger.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	w.logger.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	w.logger.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicTransactionIngested,
	)
	return nil
}

// TransactionMessage is the message payload for transaction processing.
// It carries the same fields as the scoring API request.
type TransactionMessage struct {
	domain.ScoreRequest
	TenantID string `json:"tenantId,omitempty"`
	TraceID  string `json:"traceId,omitempty"`
}

// handleMessage scores one ingested transaction.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var txMsg TransactionMessage
	if err := json.Unmarshal(msg.Payload, &txMsg); err != nil {
		w.logger.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	// The envelope tenant wins; the payload tenant is a fallback for
	// producers that publish through a shared subject.
	tenantID := msg.TenantID
	if tenantID == "" || tenantID == domain.AllTenants {
		tenantID = txMsg.TenantID
	}

	traceID := txMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	tx := txMsg.ToTransaction(tenantID)
	result, err := w.scorer.Process(ctx, tx, traceID)
	if err != nil {
		w.logger.Error("failed to score transaction",
			"tx_id", tx.ID,
			"tenant_id", tenantID,
			"trace_id", traceID,
			"error", err,
		)
		return err
	}

	w.logger.Debug("transaction processed",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
		"action", result.Decision.Action,
		"fraud_score", result.FraudScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.logger.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
