package postgres

import (
	"context"

	"go.uber.org/zap"
)

// DB is the postgres-backed disbursement store.
type DB struct {
	Client *Client
	Logger *zap.Logger
}

// NewDB wraps a client and ensures the schema exists.
func NewDB(ctx context.Context, client *Client) (*DB, error) {
	db := &DB{Client: client, Logger: client.Logger}
	if err := db.initTables(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) initTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS disbursements (
			id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			chain_id BIGINT NOT NULL,
			token TEXT NOT NULL,
			kind TEXT NOT NULL,
			beneficiary_id TEXT NOT NULL DEFAULT '',
			recipient TEXT NOT NULL DEFAULT '',
			total_amount TEXT NOT NULL,
			status TEXT NOT NULL,
			safe_tx_hash TEXT,
			tx_hash TEXT,
			scheduled_at TIMESTAMP WITH TIME ZONE,
			scheduled_version BIGINT NOT NULL DEFAULT 0,
			relay_task_id TEXT,
			relay_status TEXT,
			relay_error TEXT,
			memo TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_disbursements_tenant ON disbursements(tenant_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_disbursements_status ON disbursements(status);

		CREATE TABLE IF NOT EXISTS disbursement_recipients (
			id TEXT PRIMARY KEY,
			disbursement_id TEXT NOT NULL REFERENCES disbursements(id),
			beneficiary_id TEXT NOT NULL,
			address TEXT NOT NULL,
			amount TEXT NOT NULL,
			position INTEGER NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			UNIQUE (disbursement_id, position)
		);

		CREATE TABLE IF NOT EXISTS linked_wallets (
			tenant_id TEXT NOT NULL,
			chain_id BIGINT NOT NULL,
			wallet_address TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tenant_id, chain_id)
		);

		CREATE TABLE IF NOT EXISTS disbursement_events (
			id BIGSERIAL PRIMARY KEY,
			disbursement_id TEXT NOT NULL,
			actor TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_disbursement_events_disbursement ON disbursement_events(disbursement_id, id);
	`
	return db.Client.Exec(ctx, query)
}
