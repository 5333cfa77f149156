package domain

import (
	"context"
	"time"
)

// UserBaseline is a user's historical amount statistics.
// Owned by the baseline store; read-only to scoring.
type UserBaseline struct {
	UserID      string    `json:"userId"`
	Mean        float64   `json:"mean"`
	Median      float64   `json:"median"`
	Std         float64   `json:"std"`
	SampleCount int       `json:"sampleCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// BaselineStore provides user baselines.
// GetBaseline returns ErrBaselineNotFound when the user has none.
type BaselineStore interface {
	GetBaseline(ctx context.Context, tenantID, userID string) (*UserBaseline, error)
}

// KeyType identifies which entity a window count is keyed by.
type KeyType string

const (
	KeyUser     KeyType = "user"
	KeyDevice   KeyType = "device"
	KeyMerchant KeyType = "merchant"
)

// MerchantKey is the KeyMerchant window key. Merchant frequency is per user.
func MerchantKey(userID, merchantID string) string {
	return userID + "|" + merchantID
}

// History answers windowed count and last-location queries.
type History interface {
	// Count returns the number of prior events for key with timestamp in (start, end].
	Count(ctx context.Context, tenantID string, keyType KeyType, key string, start, end time.Time) (int64, error)

	// MostRecentLocation returns the user's latest located event, or nil if none.
	MostRecentLocation(ctx context.Context, tenantID, userID string) (*LocationFix, error)

	// LastSeen returns the timestamp of the user's latest event, or the zero time.
	LastSeen(ctx context.Context, tenantID, userID string) (time.Time, error)

	// Record adds a scored transaction to history.
	Record(ctx context.Context, tx *Transaction) error
}
