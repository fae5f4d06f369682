package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trustrails/payoutd/pkg/db"
	"github.com/trustrails/payoutd/pkg/db/models"
)

const disbursementColumns = `
	id, tenant_id, chain_id, token, kind, beneficiary_id, recipient,
	total_amount, status, safe_tx_hash, tx_hash, scheduled_at,
	scheduled_version, relay_task_id, relay_status, relay_error, memo,
	created_at, updated_at`

func scanDisbursement(row pgx.Row) (*models.Disbursement, error) {
	var d models.Disbursement
	err := row.Scan(
		&d.ID, &d.TenantID, &d.ChainID, &d.Token, &d.Kind, &d.BeneficiaryID,
		&d.Recipient, &d.TotalAmount, &d.Status, &d.SafeTxHash, &d.TxHash,
		&d.ScheduledAt, &d.ScheduledVersion, &d.RelayTaskID, &d.RelayStatus,
		&d.RelayError, &d.Memo, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Get returns one disbursement by id.
func (s *DB) Get(ctx context.Context, id string) (*models.Disbursement, error) {
	query := `SELECT ` + disbursementColumns + ` FROM disbursements WHERE id = $1`
	return scanDisbursement(s.Client.Pool.QueryRow(ctx, query, id))
}

// GetWithRecipients returns a disbursement plus its batch recipients in
// position order.
func (s *DB) GetWithRecipients(ctx context.Context, id string) (*models.Disbursement, []models.Recipient, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	query := `
		SELECT id, disbursement_id, beneficiary_id, address, amount, position, created_at
		FROM disbursement_recipients
		WHERE disbursement_id = $1
		ORDER BY position
	`
	rows, err := s.Client.Pool.Query(ctx, query, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var recipients []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.ID, &r.DisbursementID, &r.BeneficiaryID, &r.Address, &r.Amount, &r.Position, &r.CreatedAt); err != nil {
			return nil, nil, err
		}
		recipients = append(recipients, r)
	}
	return d, recipients, rows.Err()
}

// ListByTenant returns the tenant's disbursements, newest first.
func (s *DB) ListByTenant(ctx context.Context, tenantID string, limit int) ([]models.Disbursement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT ` + disbursementColumns + `
		FROM disbursements WHERE tenant_id = $1
		ORDER BY created_at DESC LIMIT $2`
	return s.list(ctx, query, tenantID, limit)
}

// ListRelaying returns every disbursement currently awaiting relay
// resolution. This is the reconciler's work set.
func (s *DB) ListRelaying(ctx context.Context) ([]models.Disbursement, error) {
	query := `SELECT ` + disbursementColumns + `
		FROM disbursements
		WHERE status = $1 AND relay_task_id IS NOT NULL`
	return s.list(ctx, query, models.StatusRelaying)
}

func (s *DB) list(ctx context.Context, query string, args ...any) ([]models.Disbursement, error) {
	rows, err := s.Client.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Disbursement
	for rows.Next() {
		d, err := scanDisbursement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Create inserts a single-shape disbursement in draft.
func (s *DB) Create(ctx context.Context, d *models.Disbursement) error {
	return s.Client.BeginFunc(ctx, func(tx pgx.Tx) error {
		if err := insertDisbursement(ctx, tx, d); err != nil {
			return err
		}
		return insertEvent(ctx, tx, d.ID, "api", d.Status, d.Status, "created")
	})
}

// CreateBatch inserts a batch disbursement and its recipients atomically.
// The stored total must equal the recomputed recipient sum.
func (s *DB) CreateBatch(ctx context.Context, d *models.Disbursement, recipients []models.Recipient) error {
	if err := models.ValidateBatchTotal(d.TotalAmount, recipients); err != nil {
		return err
	}
	return s.Client.BeginFunc(ctx, func(tx pgx.Tx) error {
		if err := insertDisbursement(ctx, tx, d); err != nil {
			return err
		}
		for _, r := range recipients {
			_, err := tx.Exec(ctx, `
				INSERT INTO disbursement_recipients (id, disbursement_id, beneficiary_id, address, amount, position)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				r.ID, d.ID, r.BeneficiaryID, r.Address, r.Amount, r.Position)
			if err != nil {
				return err
			}
		}
		return insertEvent(ctx, tx, d.ID, "api", d.Status, d.Status, fmt.Sprintf("created batch of %d", len(recipients)))
	})
}

func insertDisbursement(ctx context.Context, tx pgx.Tx, d *models.Disbursement) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO disbursements (
			id, tenant_id, chain_id, token, kind, beneficiary_id, recipient,
			total_amount, status, scheduled_at, memo
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		d.ID, d.TenantID, d.ChainID, d.Token, d.Kind, d.BeneficiaryID,
		d.Recipient, d.TotalAmount, d.Status, d.ScheduledAt, d.Memo)
	return err
}

func insertEvent(ctx context.Context, tx pgx.Tx, id, actor string, from, to models.Status, detail string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO disbursement_events (disbursement_id, actor, from_status, to_status, detail)
		VALUES ($1, $2, $3, $4, $5)`,
		id, actor, from, to, detail)
	return err
}

// staleOrMissing distinguishes a failed guard from a missing row.
func (s *DB) staleOrMissing(ctx context.Context, tx pgx.Tx, id string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM disbursements WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return db.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: status is %s", db.ErrStale, status)
}

// UpdateStatus moves id from -> to under a compare-and-set guard.
func (s *DB) UpdateStatus(ctx context.Context, id string, from, to models.Status, actor, detail string) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	return s.Client.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE disbursements SET status = $1, updated_at = NOW()
			WHERE id = $2 AND status = $3`,
			to, id, from)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return s.staleOrMissing(ctx, tx, id)
		}
		return insertEvent(ctx, tx, id, actor, from, to, detail)
	})
}

// SetProposed completes a proposal from pending. safeTxHash is write-once
// (COALESCE keeps an existing hash). When scheduled, bumps and returns the
// scheduled version.
func (s *DB) SetProposed(ctx context.Context, id, safeTxHash string, scheduled bool, actor string) (int64, error) {
	to := models.StatusProposed
	bump := 0
	if scheduled {
		to = models.StatusScheduled
		bump = 1
	}
	var version int64
	err := s.Client.BeginFunc(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE disbursements
			SET status = $1,
			    safe_tx_hash = COALESCE(safe_tx_hash, $2),
			    scheduled_version = scheduled_version + $3,
			    updated_at = NOW()
			WHERE id = $4 AND status = $5
			RETURNING scheduled_version`,
			to, safeTxHash, bump, id, models.StatusPending)
		if err := row.Scan(&version); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return s.staleOrMissing(ctx, tx, id)
			}
			return err
		}
		return insertEvent(ctx, tx, id, actor, models.StatusPending, to, "proposal accepted "+safeTxHash)
	})
	if err != nil {
		return 0, err
	}
	if !scheduled {
		return 0, nil
	}
	return version, nil
}

// SetRelayTask records a relay submission and enters relaying. The status
// guard enforces the one-active-task invariant: the previous task must have
// reached a terminal state before a new id can be written.
func (s *DB) SetRelayTask(ctx context.Context, id string, from models.Status, taskID, actor string) error {
	if !from.CanTransition(models.StatusRelaying) {
		return fmt.Errorf("illegal transition %s -> %s", from, models.StatusRelaying)
	}
	return s.Client.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE disbursements
			SET status = $1, relay_task_id = $2, relay_status = 'submitted',
			    relay_error = NULL, updated_at = NOW()
			WHERE id = $3 AND status = $4`,
			models.StatusRelaying, taskID, id, from)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return s.staleOrMissing(ctx, tx, id)
		}
		return insertEvent(ctx, tx, id, actor, from, models.StatusRelaying, "relay task "+taskID)
	})
}

// UpdateRelayStatus records provider progress only; lifecycle status is
// untouched. Re-applying the same value is a no-op write. Allowed while
// relaying (poll updates) and while failed (recovery annotations).
func (s *DB) UpdateRelayStatus(ctx context.Context, id, relayStatus string) error {
	return s.Client.Exec(ctx, `
		UPDATE disbursements SET relay_status = $1, updated_at = NOW()
		WHERE id = $2 AND (status = $3 OR status = $4)`,
		relayStatus, id, models.StatusRelaying, models.StatusFailed)
}

// MarkExecuted finishes the lifecycle; txHash is write-once.
func (s *DB) MarkExecuted(ctx context.Context, id string, from models.Status, txHash, actor, detail string) error {
	if !from.CanTransition(models.StatusExecuted) {
		return fmt.Errorf("illegal transition %s -> %s", from, models.StatusExecuted)
	}
	return s.Client.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE disbursements
			SET status = $1, tx_hash = COALESCE(tx_hash, $2), updated_at = NOW()
			WHERE id = $3 AND status = $4`,
			models.StatusExecuted, txHash, id, from)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return s.staleOrMissing(ctx, tx, id)
		}
		return insertEvent(ctx, tx, id, actor, from, models.StatusExecuted, detail)
	})
}

// MarkFailed records a failure and its cause.
func (s *DB) MarkFailed(ctx context.Context, id string, from models.Status, relayError, actor string) error {
	if !from.CanTransition(models.StatusFailed) {
		return fmt.Errorf("illegal transition %s -> %s", from, models.StatusFailed)
	}
	return s.Client.BeginFunc(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE disbursements
			SET status = $1, relay_error = $2, updated_at = NOW()
			WHERE id = $3 AND status = $4`,
			models.StatusFailed, relayError, id, from)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return s.staleOrMissing(ctx, tx, id)
		}
		return insertEvent(ctx, tx, id, actor, from, models.StatusFailed, relayError)
	})
}

// Reschedule moves a scheduled disbursement to a new instant. The version
// strictly increases so any outstanding job holding the old version becomes
// stale.
func (s *DB) Reschedule(ctx context.Context, id string, at time.Time) (int64, error) {
	var version int64
	err := s.Client.BeginFunc(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE disbursements
			SET scheduled_at = $1, scheduled_version = scheduled_version + 1, updated_at = NOW()
			WHERE id = $2 AND status = $3
			RETURNING scheduled_version`,
			at, id, models.StatusScheduled)
		if err := row.Scan(&version); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return s.staleOrMissing(ctx, tx, id)
			}
			return err
		}
		return insertEvent(ctx, tx, id, "api", models.StatusScheduled, models.StatusScheduled,
			fmt.Sprintf("rescheduled to %s (v%d)", at.UTC().Format(time.RFC3339), version))
	})
	if err != nil {
		return 0, err
	}
	return version, nil
}

// GetLinkedWallet resolves the tenant's custody wallet on a chain.
func (s *DB) GetLinkedWallet(ctx context.Context, tenantID string, chainID int64) (*models.LinkedWallet, error) {
	var w models.LinkedWallet
	err := s.Client.Pool.QueryRow(ctx, `
		SELECT tenant_id, chain_id, wallet_address, created_at
		FROM linked_wallets WHERE tenant_id = $1 AND chain_id = $2`,
		tenantID, chainID).Scan(&w.TenantID, &w.ChainID, &w.WalletAddress, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// LinkWallet upserts the tenant/chain wallet link.
func (s *DB) LinkWallet(ctx context.Context, w *models.LinkedWallet) error {
	return s.Client.Exec(ctx, `
		INSERT INTO linked_wallets (tenant_id, chain_id, wallet_address)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, chain_id) DO UPDATE SET wallet_address = EXCLUDED.wallet_address`,
		w.TenantID, w.ChainID, w.WalletAddress)
}

// ListEvents returns the audit trail for one disbursement, oldest first.
func (s *DB) ListEvents(ctx context.Context, disbursementID string) ([]models.Event, error) {
	rows, err := s.Client.Pool.Query(ctx, `
		SELECT id, disbursement_id, actor, from_status, to_status, detail, recorded_at
		FROM disbursement_events WHERE disbursement_id = $1 ORDER BY id`,
		disbursementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.DisbursementID, &e.Actor, &e.FromStatus, &e.ToStatus, &e.Detail, &e.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
