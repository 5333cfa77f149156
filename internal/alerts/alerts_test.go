package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

type memStore struct {
	mu     sync.Mutex
	alerts map[string]*domain.Alert
}

func newMemStore() *memStore {
	return &memStore{alerts: make(map[string]*domain.Alert)}
}

func (m *memStore) SaveAlert(ctx context.Context, tenantID string, a *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.alerts[tenantID+"/"+a.ID] = &cp
	return nil
}

func (m *memStore) GetAlert(ctx context.Context, tenantID, id string) (*domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[tenantID+"/"+id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListAlerts(ctx context.Context, tenantID string, f domain.AlertFilter) ([]*domain.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Alert
	for _, a := range m.alerts {
		if a.TenantID != tenantID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.Priority != "" && a.Priority != f.Priority {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) UpdateAlert(ctx context.Context, tenantID string, a *domain.Alert) error {
	return m.SaveAlert(ctx, tenantID, a)
}

func (m *memStore) AlertStats(ctx context.Context, tenantID string) (*domain.AlertStats, error) {
	all, _ := m.ListAlerts(ctx, tenantID, domain.AlertFilter{})
	st := &domain.AlertStats{Total: len(all)}
	for _, a := range all {
		switch a.Status {
		case domain.AlertPending:
			st.Pending++
			if a.Priority == domain.PriorityHigh {
				st.HighPriorityPending++
			}
		case domain.AlertReviewed:
			st.Reviewed++
		case domain.AlertResolved:
			st.Resolved++
		}
	}
	return st, nil
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func flagged(txID string, action domain.Action, priority domain.Priority, score float64) *domain.ScoringResult {
	return &domain.ScoringResult{
		TenantID:   "tenant-1",
		TxID:       txID,
		UserID:     "user-1",
		Amount:     250,
		FraudScore: score,
		Decision:   domain.Decision{Action: action, FraudScore: score},
		Priority:   priority,
		Explanation: &domain.Explanation{
			Summary: "Flagged due to: new device",
		},
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	t.Run("ApproveProducesNoAlert", func(t *testing.T) {
		a, err := svc.Create(ctx, flagged("tx-ok", domain.ActionApprove, domain.PriorityLow, 0.1))
		if err != nil || a != nil {
			t.Errorf("expected no alert, got %+v, %v", a, err)
		}
	})

	t.Run("ReviewOpensPendingAlert", func(t *testing.T) {
		a, err := svc.Create(ctx, flagged("tx-r", domain.ActionReview, domain.PriorityMedium, 0.72))
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if a.Status != domain.AlertPending {
			t.Errorf("expected pending, got %s", a.Status)
		}
		if a.Explanation != "Flagged due to: new device" {
			t.Errorf("unexpected explanation %q", a.Explanation)
		}
		got, err := svc.Get(ctx, "tenant-1", a.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.TxID != "tx-r" {
			t.Errorf("expected tx-r, got %s", got.TxID)
		}
	})
}

func TestPending(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	seq := []struct {
		tx       string
		priority domain.Priority
		score    float64
	}{
		{"low", domain.PriorityLow, 0.6},
		{"med-old", domain.PriorityMedium, 0.75},
		{"high-low", domain.PriorityHigh, 0.6},
		{"med-new", domain.PriorityMedium, 0.75},
		{"high-top", domain.PriorityHigh, 0.95},
		{"med-top", domain.PriorityMedium, 0.8},
	}
	for i, s := range seq {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		if _, err := svc.Create(ctx, flagged(s.tx, domain.ActionReview, s.priority, s.score)); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	queue, err := svc.Pending(ctx, "tenant-1", 0)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	want := []string{"high-top", "high-low", "med-top", "med-old", "med-new", "low"}
	if len(queue) != len(want) {
		t.Fatalf("expected %d alerts, got %d", len(want), len(queue))
	}
	for i, tx := range want {
		if queue[i].TxID != tx {
			t.Errorf("position %d: expected %s, got %s", i, tx, queue[i].TxID)
		}
	}

	limited, _ := svc.Pending(ctx, "tenant-1", 2)
	if len(limited) != 2 {
		t.Errorf("expected 2 alerts, got %d", len(limited))
	}

	other, _ := svc.Pending(ctx, "tenant-2", 0)
	if len(other) != 0 {
		t.Errorf("expected tenant isolation, got %d alerts", len(other))
	}
}

func TestReviewAndResolve(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	a, _ := svc.Create(ctx, flagged("tx-1", domain.ActionBlock, domain.PriorityHigh, 0.93))

	t.Run("RejectsBadVerdict", func(t *testing.T) {
		_, err := svc.Review(ctx, "tenant-1", a.ID, domain.AlertReview{AnalystID: "an-1", Decision: "maybe"})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		_, err = svc.Review(ctx, "tenant-1", a.ID, domain.AlertReview{Decision: domain.VerdictLegitimate})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for missing analyst, got %v", err)
		}
	})

	t.Run("UnknownAlert", func(t *testing.T) {
		_, err := svc.Review(ctx, "tenant-1", "nope", domain.AlertReview{AnalystID: "an-1", Decision: domain.VerdictLegitimate})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ReviewThenResolve", func(t *testing.T) {
		reviewed, err := svc.Review(ctx, "tenant-1", a.ID, domain.AlertReview{
			AnalystID: "an-1",
			Decision:  domain.VerdictConfirmedFraud,
			Notes:     "card reported stolen",
		})
		if err != nil {
			t.Fatalf("Review failed: %v", err)
		}
		if reviewed.Status != domain.AlertReviewed || reviewed.ReviewedAt == nil {
			t.Errorf("expected reviewed with timestamp, got %+v", reviewed)
		}

		_, err = svc.Review(ctx, "tenant-1", a.ID, domain.AlertReview{AnalystID: "an-2", Decision: domain.VerdictLegitimate})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected second review to be rejected, got %v", err)
		}

		resolved, err := svc.Resolve(ctx, "tenant-1", a.ID)
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if resolved.Status != domain.AlertResolved {
			t.Errorf("expected resolved, got %s", resolved.Status)
		}
		if resolved.AnalystDecision != domain.VerdictConfirmedFraud {
			t.Errorf("expected verdict kept, got %q", resolved.AnalystDecision)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		svc.Create(ctx, flagged("tx-2", domain.ActionBlock, domain.PriorityHigh, 0.9))
		svc.Create(ctx, flagged("tx-3", domain.ActionReview, domain.PriorityLow, 0.55))
		st, err := svc.Stats(ctx, "tenant-1")
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if st.Total != 3 || st.Pending != 2 || st.Resolved != 1 || st.HighPriorityPending != 1 {
			t.Errorf("unexpected stats %+v", st)
		}
	})
}
