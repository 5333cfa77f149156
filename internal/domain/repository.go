// Package domain defines the core interfaces and types for Osprey Risk.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	GetTransactionsByUser(ctx context.Context, tenantID string, userID string, since time.Time) ([]*Transaction, error)
	ListTransactionsSince(ctx context.Context, tenantID string, since time.Time) ([]*Transaction, error)
	CountTransactions(ctx context.Context, tenantID string, keyType KeyType, key string, start, end time.Time) (int64, error)
	ListTenants(ctx context.Context) ([]string, error)

	// Scoring results
	SaveResult(ctx context.Context, tenantID string, result *ScoringResult) error
	GetResultByTx(ctx context.Context, tenantID string, txID string) (*ScoringResult, error)

	// Alerts
	SaveAlert(ctx context.Context, tenantID string, alert *Alert) error
	GetAlert(ctx context.Context, tenantID string, alertID string) (*Alert, error)
	ListAlerts(ctx context.Context, tenantID string, filter AlertFilter) ([]*Alert, error)
	UpdateAlert(ctx context.Context, tenantID string, alert *Alert) error
	AlertStats(ctx context.Context, tenantID string) (*AlertStats, error)
	ListReviewedScores(ctx context.Context, tenantID string) ([]LabeledScore, error)

	// Baselines
	SaveBaseline(ctx context.Context, tenantID string, baseline *UserBaseline) error
	GetBaseline(ctx context.Context, tenantID string, userID string) (*UserBaseline, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `mapstructure:"driver"`

	// SQLite specific
	SQLitePath string `mapstructure:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDB       string `mapstructure:"postgres_db"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Connection pool settings
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}
