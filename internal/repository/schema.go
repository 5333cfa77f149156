package repository

// Schema definitions for Osprey Risk.
// Compatible with both SQLite and PostgreSQL. Times are stored as unix
// nanoseconds so range queries behave the same on both drivers.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    merchant_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    ip TEXT NOT NULL,
    has_location INTEGER NOT NULL DEFAULT 0,
    lat REAL NOT NULL DEFAULT 0,
    lon REAL NOT NULL DEFAULT 0,
    country TEXT NOT NULL DEFAULT '',
    timestamp_ns BIGINT NOT NULL,
    created_at_ns BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_time ON transactions(tenant_id, timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_transactions_user ON transactions(tenant_id, user_id, timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_transactions_device ON transactions(tenant_id, device_id, timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_transactions_merchant ON transactions(tenant_id, user_id, merchant_id, timestamp_ns);
`

const schemaResults = `
CREATE TABLE IF NOT EXISTS scoring_results (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    fraud_score REAL NOT NULL,
    action TEXT NOT NULL,
    threshold_id TEXT NOT NULL,
    model_version TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at_ns BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_results_tx ON scoring_results(tenant_id, tx_id, created_at_ns);
CREATE INDEX IF NOT EXISTS idx_results_action ON scoring_results(tenant_id, action);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    amount REAL NOT NULL,
    fraud_score REAL NOT NULL,
    action TEXT NOT NULL,
    priority TEXT NOT NULL,
    status TEXT NOT NULL,
    explanation TEXT NOT NULL,
    analyst_id TEXT NOT NULL DEFAULT '',
    analyst_decision TEXT NOT NULL DEFAULT '',
    analyst_notes TEXT NOT NULL DEFAULT '',
    created_at_ns BIGINT NOT NULL,
    reviewed_at_ns BIGINT
);

CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(tenant_id, status, priority);
CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(tenant_id, created_at_ns);
`

const schemaBaselines = `
CREATE TABLE IF NOT EXISTS user_baselines (
    tenant_id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    mean REAL NOT NULL,
    median REAL NOT NULL,
    std REAL NOT NULL,
    sample_count INTEGER NOT NULL,
    last_updated_ns BIGINT NOT NULL,
    PRIMARY KEY (tenant_id, user_id)
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaResults,
		schemaAlerts,
		schemaBaselines,
	}
}
