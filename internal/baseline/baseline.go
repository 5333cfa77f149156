// Package baseline serves and recomputes per-user amount statistics.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/osprey-risk/internal/cache"
	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// Store persists baselines and supplies transaction history.
// domain.Repository satisfies it.
type Store interface {
	GetBaseline(ctx context.Context, tenantID, userID string) (*domain.UserBaseline, error)
	SaveBaseline(ctx context.Context, tenantID string, baseline *domain.UserBaseline) error
	GetTransactionsByUser(ctx context.Context, tenantID, userID string, since time.Time) ([]*domain.Transaction, error)
}

// Service implements domain.BaselineStore with a read-through cache.
type Service struct {
	store  Store
	cache  domain.Cache
	ttl    time.Duration
	window time.Duration
	group  singleflight.Group
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a baseline service. c may be nil.
func NewService(store Store, c domain.Cache, ttl, window time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cache:  c,
		ttl:    ttl,
		window: window,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// CacheKey is the cache entry holding a user's baseline.
func CacheKey(userID string) string {
	return "baseline:" + userID
}

// GetBaseline returns the user's baseline from cache, else from the store.
// Concurrent misses for one user share a single store read.
func (s *Service) GetBaseline(ctx context.Context, tenantID, userID string) (*domain.UserBaseline, error) {
	if s.cache != nil {
		b, err := cache.GetJSON[domain.UserBaseline](ctx, s.cache, tenantID, CacheKey(userID))
		if err != nil {
			s.logger.Warn("baseline cache read failed", "tenant_id", tenantID, "user_id", userID, "error", err)
		}
		if b != nil {
			return b, nil
		}
	}

	v, err, _ := s.group.Do(tenantID+"/"+userID, func() (any, error) {
		b, err := s.store.GetBaseline(ctx, tenantID, userID)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrBaselineNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load baseline: %w", err)
		}
		s.cacheBaseline(ctx, tenantID, userID, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	b := *v.(*domain.UserBaseline)
	return &b, nil
}

// Recompute rebuilds the user's baseline from the last window of
// transactions, persists it and invalidates the cached copy.
func (s *Service) Recompute(ctx context.Context, tenantID, userID string) (*domain.UserBaseline, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("%w: tenantID and userID are required", domain.ErrInvalidInput)
	}
	now := s.now()
	txs, err := s.store.GetTransactionsByUser(ctx, tenantID, userID, now.Add(-s.window))
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	amounts := make([]float64, 0, len(txs))
	for _, tx := range txs {
		amounts = append(amounts, tx.Amount)
	}
	b := Compute(userID, amounts, now)

	if err := s.store.SaveBaseline(ctx, tenantID, b); err != nil {
		return nil, fmt.Errorf("failed to save baseline: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Delete(ctx, tenantID, CacheKey(userID)); err != nil {
			s.logger.Warn("baseline cache invalidation failed", "tenant_id", tenantID, "user_id", userID, "error", err)
		}
	}

	s.logger.Info("baseline recomputed",
		"tenant_id", tenantID,
		"user_id", userID,
		"samples", b.SampleCount,
		"mean", b.Mean,
		"std", b.Std,
	)
	return b, nil
}

// Compute returns mean, median and population standard deviation of amounts.
// An empty history yields a zero baseline with no samples.
func Compute(userID string, amounts []float64, now time.Time) *domain.UserBaseline {
	b := &domain.UserBaseline{UserID: userID, SampleCount: len(amounts), LastUpdated: now}
	n := len(amounts)
	if n == 0 {
		return b
	}

	var sum float64
	for _, a := range amounts {
		sum += a
	}
	b.Mean = sum / float64(n)

	var sq float64
	for _, a := range amounts {
		sq += (a - b.Mean) * (a - b.Mean)
	}
	b.Std = math.Sqrt(sq / float64(n))

	sorted := append([]float64(nil), amounts...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		b.Median = sorted[n/2]
	} else {
		b.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return b
}

func (s *Service) cacheBaseline(ctx context.Context, tenantID, userID string, b *domain.UserBaseline) {
	if s.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, tenantID, CacheKey(userID), b, s.ttl); err != nil {
		s.logger.Warn("baseline cache write failed", "tenant_id", tenantID, "user_id", userID, "error", err)
	}
}
