// Package velocity provides the windowed transaction history behind the
// velocity, frequency and geo-time features.
package velocity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/metrics"
	"github.com/opensource-finance/osprey-risk/internal/window"
)

// Store is the durable transaction source. domain.Repository satisfies it.
type Store interface {
	CountTransactions(ctx context.Context, tenantID string, keyType domain.KeyType, key string, start, end time.Time) (int64, error)
	ListTransactionsSince(ctx context.Context, tenantID string, since time.Time) ([]*domain.Transaction, error)
	ListTenants(ctx context.Context) ([]string, error)
}

// Service answers history queries from in-memory windows. Windows wider
// than the retained horizon, or reaching back past what memory still holds
// for the key, are counted from the store.
type Service struct {
	counts    *window.Aggregator
	locations *window.LocationStore
	store     Store
	retention time.Duration
	logger    *slog.Logger
}

// NewService creates a history service. store may be nil.
func NewService(cfg domain.FeatureConfig, store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	retention := cfg.BaselineWindow
	if retention < cfg.MaxWindow {
		retention = cfg.MaxWindow
	}
	return &Service{
		counts:    window.NewAggregator(cfg.MaxWindow, cfg.LatenessBound),
		locations: window.NewLocationStore(),
		store:     store,
		retention: retention,
		logger:    logger,
	}
}

func windowKey(tenantID string, kt domain.KeyType, key string) string {
	return tenantID + "/" + string(kt) + "/" + key
}

func userKey(tenantID, userID string) string {
	return tenantID + "/" + userID
}

// Count implements domain.History.
func (s *Service) Count(ctx context.Context, tenantID string, kt domain.KeyType, key string, start, end time.Time) (int64, error) {
	if tenantID == "" || key == "" {
		return 0, fmt.Errorf("%w: tenantID and key are required", domain.ErrInvalidInput)
	}
	wk := windowKey(tenantID, kt, key)
	span := end.Sub(start)
	if span <= s.counts.MaxWindow() && s.counts.Covers(wk, start) {
		return int64(s.counts.Count(wk, span, end)), nil
	}
	if s.store == nil {
		return 0, fmt.Errorf("%w: window (%v, %v] predates retained history", domain.ErrInvalidInput, start, end)
	}
	n, err := s.store.CountTransactions(ctx, tenantID, kt, key, start, end)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// MostRecentLocation implements domain.History.
func (s *Service) MostRecentLocation(ctx context.Context, tenantID, userID string) (*domain.LocationFix, error) {
	return s.locations.LastFix(userKey(tenantID, userID)), nil
}

// LastSeen implements domain.History.
func (s *Service) LastSeen(ctx context.Context, tenantID, userID string) (time.Time, error) {
	at, _ := s.locations.LastSeen(userKey(tenantID, userID))
	return at, nil
}

// Record implements domain.History.
func (s *Service) Record(ctx context.Context, tx *domain.Transaction) error {
	if tx.TenantID == "" || tx.UserID == "" {
		return fmt.Errorf("%w: tenantID and userID are required", domain.ErrInvalidInput)
	}

	s.add(tx, domain.KeyUser, tx.UserID)
	if tx.DeviceID != "" {
		s.add(tx, domain.KeyDevice, tx.DeviceID)
	}
	if tx.MerchantID != "" {
		s.add(tx, domain.KeyMerchant, domain.MerchantKey(tx.UserID, tx.MerchantID))
	}
	s.locations.Update(userKey(tx.TenantID, tx.UserID), tx.Timestamp, tx.Location)
	return nil
}

func (s *Service) add(tx *domain.Transaction, kt domain.KeyType, key string) {
	switch s.counts.Add(windowKey(tx.TenantID, kt, key), tx.Timestamp) {
	case window.Late:
		metrics.LateEventsTotal.Inc()
		s.logger.Debug("late event counted",
			"tx_id", tx.ID,
			"tenant_id", tx.TenantID,
			"key_type", kt,
		)
	case window.Dropped:
		metrics.DroppedEventsTotal.Inc()
		s.logger.Warn("event older than retained window kept out of memory",
			"tx_id", tx.ID,
			"tenant_id", tx.TenantID,
			"key_type", kt,
			"timestamp", tx.Timestamp,
		)
	}
}

// Warm replays stored transactions so that counts and last locations
// survive a restart. Counts are rebuilt from the last MaxWindow and
// locations from the longer retention horizon. An empty tenant list, or one
// holding domain.AllTenants, warms every tenant in the store.
func (s *Service) Warm(ctx context.Context, tenantIDs []string, now time.Time) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	if len(tenantIDs) == 0 || slices.Contains(tenantIDs, domain.AllTenants) {
		all, err := s.store.ListTenants(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list tenants: %w", err)
		}
		tenantIDs = all
	}

	countsSince := now.Add(-s.counts.MaxWindow())
	since := now.Add(-s.retention)
	s.counts.Advance(countsSince)
	total, located := 0, 0
	for _, tenantID := range tenantIDs {
		txs, err := s.store.ListTransactionsSince(ctx, tenantID, since)
		if err != nil {
			return total, fmt.Errorf("failed to warm tenant %s: %w", tenantID, err)
		}
		for _, tx := range txs {
			if tx.Timestamp.Before(countsSince) {
				if tx.UserID != "" {
					s.locations.Update(userKey(tx.TenantID, tx.UserID), tx.Timestamp, tx.Location)
					located++
				}
				continue
			}
			if err := s.Record(ctx, tx); err != nil {
				s.logger.Warn("skipping transaction during warm-up", "tx_id", tx.ID, "error", err)
				continue
			}
			total++
		}
	}

	s.logger.Info("velocity windows warmed",
		"tenants", len(tenantIDs),
		"transactions", total,
		"location_only", located,
		"keys", s.counts.Keys(),
	)
	return total, nil
}

// Sweep drops idle keys and updates the tracked-key gauge.
func (s *Service) Sweep(now time.Time) int {
	removed := s.counts.Sweep(now)
	removed += s.locations.Sweep(now.Add(-s.retention))
	metrics.WindowKeys.Set(float64(s.counts.Keys()))
	return removed
}

// Run sweeps on interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Sweep(now.UTC()); n > 0 {
				s.logger.Debug("velocity keys swept", "removed", n)
			}
		}
	}
}
