package velocity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

type fakeStore struct {
	txs      []*domain.Transaction
	counted  int
	countErr error
}

func (f *fakeStore) CountTransactions(ctx context.Context, tenantID string, kt domain.KeyType, key string, start, end time.Time) (int64, error) {
	f.counted++
	if f.countErr != nil {
		return 0, f.countErr
	}
	var n int64
	for _, tx := range f.txs {
		if tx.TenantID == tenantID && tx.UserID == key && tx.Timestamp.After(start) && !tx.Timestamp.After(end) {
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) ListTransactionsSince(ctx context.Context, tenantID string, since time.Time) ([]*domain.Transaction, error) {
	var out []*domain.Transaction
	for _, tx := range f.txs {
		if tx.TenantID == tenantID && !tx.Timestamp.Before(since) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTenants(ctx context.Context) ([]string, error) {
	var out []string
	for _, tx := range f.txs {
		if !slices.Contains(out, tx.TenantID) {
			out = append(out, tx.TenantID)
		}
	}
	return out, nil
}

func newTestService(store Store) *Service {
	return NewService(domain.DefaultFeatureConfig(), store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func tx(id, user string, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:         id,
		TenantID:   "tenant-001",
		UserID:     user,
		MerchantID: "m-1",
		DeviceID:   "d-1",
		Amount:     20,
		Timestamp:  at,
	}
}

func TestServiceCounts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	t.Run("EmptyHistory", func(t *testing.T) {
		n, err := svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", base.Add(-time.Minute), base)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 0 {
			t.Errorf("expected 0, got %d", n)
		}
	})

	for i := 0; i < 3; i++ {
		svc.Record(ctx, tx("tx", "user-001", base.Add(time.Duration(i-3)*10*time.Second)))
	}

	t.Run("UserWindow", func(t *testing.T) {
		n, _ := svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", base.Add(-time.Minute), base)
		if n != 3 {
			t.Errorf("expected 3, got %d", n)
		}
	})

	t.Run("DeviceAndMerchant", func(t *testing.T) {
		n, _ := svc.Count(ctx, "tenant-001", domain.KeyDevice, "d-1", base.Add(-time.Hour), base)
		if n != 3 {
			t.Errorf("expected 3 device events, got %d", n)
		}
		n, _ = svc.Count(ctx, "tenant-001", domain.KeyMerchant, domain.MerchantKey("user-001", "m-1"), base.Add(-time.Hour), base)
		if n != 3 {
			t.Errorf("expected 3 merchant events, got %d", n)
		}
		n, _ = svc.Count(ctx, "tenant-001", domain.KeyMerchant, domain.MerchantKey("user-002", "m-1"), base.Add(-time.Hour), base)
		if n != 0 {
			t.Errorf("expected merchant frequency per user, got %d", n)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		n, _ := svc.Count(ctx, "tenant-002", domain.KeyUser, "user-001", base.Add(-time.Hour), base)
		if n != 0 {
			t.Errorf("expected 0 for other tenant, got %d", n)
		}
	})

	t.Run("MissingKey", func(t *testing.T) {
		_, err := svc.Count(ctx, "tenant-001", domain.KeyUser, "", base.Add(-time.Minute), base)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("WideWindowWithoutStore", func(t *testing.T) {
		_, err := svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", base.Add(-48*time.Hour), base)
		if err == nil {
			t.Error("expected error for window beyond retention")
		}
	})
}

func TestServiceStoreFallback(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{txs: []*domain.Transaction{
		tx("old", "user-001", base.Add(-40*time.Hour)),
		tx("new", "user-001", base.Add(-time.Hour)),
	}}
	svc := newTestService(store)

	n, err := svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", base.Add(-72*time.Hour), base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 || store.counted != 1 {
		t.Errorf("expected 2 from store in one query, got %d after %d queries", n, store.counted)
	}

	store.countErr = errors.New("db down")
	if _, err := svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", base.Add(-72*time.Hour), base); err == nil {
		t.Error("expected store error to surface")
	}
}

func TestServiceLocations(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(nil)

	fix, _ := svc.MostRecentLocation(ctx, "tenant-001", "user-001")
	if fix != nil {
		t.Errorf("expected no location, got %+v", fix)
	}

	located := tx("a", "user-001", base.Add(-time.Hour))
	located.Location = &domain.Location{Lat: 40.7, Lon: -74.0}
	svc.Record(ctx, located)
	svc.Record(ctx, tx("b", "user-001", base.Add(-time.Minute)))

	fix, _ = svc.MostRecentLocation(ctx, "tenant-001", "user-001")
	if fix == nil || fix.Location.Lat != 40.7 {
		t.Fatalf("expected located fix, got %+v", fix)
	}
	if !fix.Timestamp.Equal(base.Add(-time.Hour)) {
		t.Errorf("expected fix time %v, got %v", base.Add(-time.Hour), fix.Timestamp)
	}

	last, _ := svc.LastSeen(ctx, "tenant-001", "user-001")
	if !last.Equal(base.Add(-time.Minute)) {
		t.Errorf("expected last seen %v, got %v", base.Add(-time.Minute), last)
	}
}

func TestServiceLateArrivalBeyondHorizon(t *testing.T) {
	ctx := context.Background()
	t0 := base
	store := &fakeStore{txs: []*domain.Transaction{
		tx("first", "user-001", t0),
		tx("next-day", "user-001", t0.Add(25*time.Hour)),
	}}
	svc := newTestService(store)
	for _, stored := range store.txs {
		svc.Record(ctx, stored)
	}

	late := t0.Add(2 * time.Minute)
	n, err := svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", late.Add(-5*time.Minute), late)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 event in the late window, got %d", n)
	}
	if store.counted != 1 {
		t.Errorf("expected the late window to be counted from the store, got %d queries", store.counted)
	}

	lateTx := tx("late", "user-001", late)
	svc.Record(ctx, lateTx)
	store.txs = append(store.txs, lateTx)
	n, _ = svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", late.Add(-5*time.Minute), late.Add(time.Minute))
	if n != 2 {
		t.Errorf("expected the late event to be counted, got %d", n)
	}

	t.Run("RecentWindowStaysInMemory", func(t *testing.T) {
		before := store.counted
		at := t0.Add(25 * time.Hour)
		n, _ := svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", at.Add(-time.Minute), at.Add(time.Second))
		if n != 1 {
			t.Errorf("expected 1, got %d", n)
		}
		if store.counted != before {
			t.Errorf("expected no store query, got %d", store.counted-before)
		}
	})

	t.Run("WithoutStore", func(t *testing.T) {
		mem := newTestService(nil)
		mem.Record(ctx, tx("first", "user-001", t0))
		mem.Record(ctx, tx("next-day", "user-001", t0.Add(25*time.Hour)))
		_, err := mem.Count(ctx, "tenant-001", domain.KeyUser, "user-001", late.Add(-5*time.Minute), late)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestServiceWarmAndSweep(t *testing.T) {
	ctx := context.Background()
	now := base
	located := tx("abroad", "user-002", now.Add(-10*24*time.Hour))
	located.TenantID = "tenant-002"
	located.Location = &domain.Location{Lat: 51.5, Lon: -0.1}
	store := &fakeStore{txs: []*domain.Transaction{
		located,
		tx("stale", "user-001", now.Add(-30*time.Hour)),
		tx("a", "user-001", now.Add(-2*time.Minute)),
		tx("b", "user-001", now.Add(-30*time.Second)),
	}}
	svc := newTestService(store)

	n, err := svc.Warm(ctx, []string{domain.AllTenants}, now)
	if err != nil {
		t.Fatalf("Warm failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 transactions replayed into windows, got %d", n)
	}
	count, _ := svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", now.Add(-5*time.Minute), now)
	if count != 2 {
		t.Errorf("expected 2 after warm-up, got %d", count)
	}

	t.Run("LocationsUseRetentionHorizon", func(t *testing.T) {
		fix, _ := svc.MostRecentLocation(ctx, "tenant-002", "user-002")
		if fix == nil || fix.Location.Lat != 51.5 {
			t.Errorf("expected warmed location for other tenant, got %+v", fix)
		}
	})

	t.Run("WindowBeforeWarmHorizonUsesStore", func(t *testing.T) {
		before := store.counted
		end := now.Add(-7 * time.Hour)
		count, err := svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", end.Add(-24*time.Hour), end)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 1 || store.counted != before+1 {
			t.Errorf("expected 1 from one store query, got %d after %d queries", count, store.counted-before)
		}
	})

	if removed := svc.Sweep(now.Add(25 * time.Hour)); removed == 0 {
		t.Error("expected idle window keys to be swept")
	}
	count, _ = svc.Count(ctx, "tenant-001", domain.KeyUser, "user-001", now.Add(25*time.Hour-time.Hour), now.Add(25*time.Hour))
	if count != 0 {
		t.Errorf("expected 0 after sweep, got %d", count)
	}
	if last, _ := svc.LastSeen(ctx, "tenant-001", "user-001"); last.IsZero() {
		t.Error("expected last-seen to outlive the count windows")
	}
}
