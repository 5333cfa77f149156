package domain

import (
	"time"
)

// Transaction represents an incoming payment to be scored.
// Records arrive already schema-validated from ingestion.
type Transaction struct {
	// Core identifiers
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Parties
	UserID     string `json:"userId"`
	MerchantID string `json:"merchantId"`

	// Financial details
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Temporal
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// Device and network context
	DeviceID string    `json:"deviceId"`
	IP       string    `json:"ip,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// Location is a geographic point attached to a transaction.
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country,omitempty"`
}

// LocationFix is a location observed at a point in time.
type LocationFix struct {
	Location  Location  `json:"location"`
	Timestamp time.Time `json:"timestamp"`
}

// ScoreRequest is the API request payload for transaction scoring.
type ScoreRequest struct {
	ID         string    `json:"transactionId"`
	UserID     string    `json:"userId"`
	MerchantID string    `json:"merchantId"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	Timestamp  time.Time `json:"timestamp"`
	DeviceID   string    `json:"deviceId"`
	IP         string    `json:"ip,omitempty"`
	Location   *Location `json:"location,omitempty"`
}

// ToTransaction converts a request to a Transaction domain object.
// A zero timestamp is replaced with the current time.
func (r *ScoreRequest) ToTransaction(tenantID string) *Transaction {
	now := time.Now().UTC()
	ts := r.Timestamp.UTC()
	if r.Timestamp.IsZero() {
		ts = now
	}
	return &Transaction{
		ID:         r.ID,
		TenantID:   tenantID,
		UserID:     r.UserID,
		MerchantID: r.MerchantID,
		Amount:     r.Amount,
		Currency:   r.Currency,
		Timestamp:  ts,
		CreatedAt:  now,
		DeviceID:   r.DeviceID,
		IP:         r.IP,
		Location:   r.Location,
	}
}
