// Package bus provides event bus implementations for Osprey Risk.
package bus

import (
	"fmt"

	"github.com/opensource-finance/osprey-risk/internal/domain"
	"github.com/opensource-finance/osprey-risk/internal/metrics"
)

// Message directions recorded in metrics.
const (
	directionPublished = "published"
	directionHandled   = "handled"
	directionFailed    = "failed"
	directionDropped   = "dropped"
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func checkPublishTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if tenantID == domain.AllTenants {
		return fmt.Errorf("%w: cannot publish to all tenants", domain.ErrInvalidInput)
	}
	return nil
}

func observe(topic, direction string) {
	metrics.BusMessagesTotal.WithLabelValues(topic, direction).Inc()
}
