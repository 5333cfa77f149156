// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `id, tenant_id, user_id, merchant_id, device_id, amount, currency, ip,
	has_location, lat, lon, country, timestamp_ns, created_at_ns`

// SaveTransaction stores a transaction with tenant isolation.
// Saving the same transaction twice keeps the first copy.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrInvalidInput)
	}

	var hasLocation int
	var lat, lon float64
	var country string
	if tx.Location != nil {
		hasLocation = 1
		lat, lon, country = tx.Location.Lat, tx.Location.Lon, tx.Location.Country
	}
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID, tx.UserID, tx.MerchantID, tx.DeviceID,
		tx.Amount, tx.Currency, tx.IP,
		hasLocation, lat, lon, country,
		toNanos(tx.Timestamp), toNanos(createdAt),
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID string, txID string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_id = ? AND id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// GetTransactionsByUser returns a user's transactions at or after since, oldest first.
func (r *SQLRepository) GetTransactionsByUser(ctx context.Context, tenantID string, userID string, since time.Time) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = ? AND user_id = ? AND timestamp_ns >= ?
		ORDER BY timestamp_ns ASC
	`
	return r.queryTransactions(ctx, query, tenantID, userID, toNanos(since))
}

// ListTransactionsSince returns all of a tenant's transactions at or after since, oldest first.
func (r *SQLRepository) ListTransactionsSince(ctx context.Context, tenantID string, since time.Time) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE tenant_id = ? AND timestamp_ns >= ?
		ORDER BY timestamp_ns ASC
	`
	return r.queryTransactions(ctx, query, tenantID, toNanos(since))
}

// ListTenants returns the distinct tenants that have stored transactions.
func (r *SQLRepository) ListTenants(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM transactions ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// CountTransactions counts transactions for key with timestamp in (start, end].
// Merchant keys have the form "user|merchant".
func (r *SQLRepository) CountTransactions(ctx context.Context, tenantID string, keyType domain.KeyType, key string, start, end time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	var where string
	args := []any{tenantID}
	switch keyType {
	case domain.KeyUser:
		where = "user_id = ?"
		args = append(args, key)
	case domain.KeyDevice:
		where = "device_id = ?"
		args = append(args, key)
	case domain.KeyMerchant:
		userID, merchantID, ok := strings.Cut(key, "|")
		if !ok {
			return 0, fmt.Errorf("%w: merchant key must be user|merchant", domain.ErrInvalidInput)
		}
		where = "user_id = ? AND merchant_id = ?"
		args = append(args, userID, merchantID)
	default:
		return 0, fmt.Errorf("%w: unknown key type %q", domain.ErrInvalidInput, keyType)
	}
	args = append(args, toNanos(start), toNanos(end))

	query := `
		SELECT COUNT(*) FROM transactions
		WHERE tenant_id = ? AND ` + where + ` AND timestamp_ns > ? AND timestamp_ns <= ?
	`

	var n int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// SaveResult stores a scoring result. The full result is kept as JSON with
// the columns needed for lookups alongside.
func (r *SQLRepository) SaveResult(ctx context.Context, tenantID string, result *domain.ScoringResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if result == nil || result.ID == "" {
		return fmt.Errorf("%w: result id is required", domain.ErrInvalidInput)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	query := `
		INSERT INTO scoring_results (
			id, tenant_id, tx_id, user_id, fraud_score, action,
			threshold_id, model_version, payload, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.TxID, result.UserID,
		result.FraudScore, string(result.Decision.Action),
		result.ThresholdSnapshotID, result.ModelVersion,
		string(payload), toNanos(result.CreatedAt),
	)
	return err
}

// GetResultByTx returns the latest result for a transaction.
func (r *SQLRepository) GetResultByTx(ctx context.Context, tenantID string, txID string) (*domain.ScoringResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT payload FROM scoring_results
		WHERE tenant_id = ? AND tx_id = ?
		ORDER BY created_at_ns DESC
		LIMIT 1
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, txID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result domain.ScoringResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// SaveBaseline creates or replaces a user's baseline.
func (r *SQLRepository) SaveBaseline(ctx context.Context, tenantID string, b *domain.UserBaseline) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if b == nil || b.UserID == "" {
		return fmt.Errorf("%w: baseline user id is required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO user_baselines (
			tenant_id, user_id, mean, median, std, sample_count, last_updated_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			mean = excluded.mean,
			median = excluded.median,
			std = excluded.std,
			sample_count = excluded.sample_count,
			last_updated_ns = excluded.last_updated_ns
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, b.UserID, b.Mean, b.Median, b.Std, b.SampleCount, toNanos(b.LastUpdated),
	)
	return err
}

// GetBaseline retrieves a user's baseline.
func (r *SQLRepository) GetBaseline(ctx context.Context, tenantID string, userID string) (*domain.UserBaseline, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT user_id, mean, median, std, sample_count, last_updated_ns
		FROM user_baselines
		WHERE tenant_id = ? AND user_id = ?
	`

	var b domain.UserBaseline
	var updated int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, userID).Scan(
		&b.UserID, &b.Mean, &b.Median, &b.Std, &b.SampleCount, &updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.LastUpdated = fromNanos(updated)
	return &b, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var hasLocation int
	var lat, lon float64
	var country string
	var ts, created int64

	err := row.Scan(
		&tx.ID, &tx.TenantID, &tx.UserID, &tx.MerchantID, &tx.DeviceID,
		&tx.Amount, &tx.Currency, &tx.IP,
		&hasLocation, &lat, &lon, &country,
		&ts, &created,
	)
	if err != nil {
		return nil, err
	}
	if hasLocation == 1 {
		tx.Location = &domain.Location{Lat: lat, Lon: lon, Country: country}
	}
	tx.Timestamp = fromNanos(ts)
	tx.CreatedAt = fromNanos(created)
	return &tx, nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
