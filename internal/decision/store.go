package decision

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/metrics"
)

// Publish sources.
const (
	SourceConfig      = "config"
	SourceAdmin       = "admin"
	SourceCalibration = "calibration"
)

// ThresholdStore holds the current threshold snapshot. Readers load it once
// per transaction; publishers replace it wholesale.
type ThresholdStore struct {
	current atomic.Pointer[domain.ThresholdSet]
}

// NewThresholdStore creates a store holding an initial validated snapshot.
func NewThresholdStore(approve, block float64, costVersion string) (*ThresholdStore, error) {
	s := &ThresholdStore{}
	if _, err := s.Publish(approve, block, costVersion, SourceConfig); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active snapshot.
func (s *ThresholdStore) Current() *domain.ThresholdSet {
	return s.current.Load()
}

// Publish validates and installs a new snapshot. An invalid pair leaves the
// prior snapshot in place.
func (s *ThresholdStore) Publish(approve, block float64, costVersion, source string) (*domain.ThresholdSet, error) {
	ts := &domain.ThresholdSet{
		ID:                uuid.New().String(),
		Approve:           approve,
		Block:             block,
		CalibratedAt:      time.Now().UTC(),
		CostMatrixVersion: costVersion,
	}
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	s.current.Store(ts)
	metrics.ThresholdPublishesTotal.WithLabelValues(source).Inc()
	return ts, nil
}

// CostStore holds the active cost matrix.
type CostStore struct {
	current atomic.Pointer[domain.CostMatrix]
}

// NewCostStore creates a store with an initial matrix.
func NewCostStore(c domain.CostMatrix) (*CostStore, error) {
	s := &CostStore{}
	if err := s.Set(c); err != nil {
		return nil, err
	}
	return s, nil
}

// Current returns the active matrix.
func (s *CostStore) Current() domain.CostMatrix {
	return *s.current.Load()
}

// Set validates and installs c. An empty version is stamped with the time.
func (s *CostStore) Set(c domain.CostMatrix) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Version == "" {
		c.Version = fmt.Sprintf("v%d", time.Now().UTC().Unix())
	}
	s.current.Store(&c)
	return nil
}
