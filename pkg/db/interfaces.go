// Package db defines the persistence surface the orchestrator is written
// against. The orchestrator never touches storage directly; everything goes
// through Store, so the backing implementation is replaceable (postgres in
// production, hand-written fakes in tests).
package db

import (
	"context"
	"errors"
	"time"

	"github.com/trustrails/payoutd/pkg/db/models"
)

var (
	// ErrNotFound is returned when a disbursement or wallet does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStale is returned when a compare-and-set guard fails: the record's
	// status (or scheduled version) changed since the caller read it. Callers
	// treat this as "someone else acted first" and no-op.
	ErrStale = errors.New("stale precondition")
)

// Store is the disbursement read/write surface. Every state-changing method
// re-checks its precondition inside the write (WHERE status = ...) and
// returns ErrStale when the guard fails, so concurrent callers cannot corrupt
// a record; at worst a stale action is discarded.
type Store interface {
	Get(ctx context.Context, id string) (*models.Disbursement, error)
	GetWithRecipients(ctx context.Context, id string) (*models.Disbursement, []models.Recipient, error)
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]models.Disbursement, error)
	ListRelaying(ctx context.Context) ([]models.Disbursement, error)

	Create(ctx context.Context, d *models.Disbursement) error
	CreateBatch(ctx context.Context, d *models.Disbursement, recipients []models.Recipient) error

	// UpdateStatus moves id from -> to. The transition must be a legal
	// lifecycle edge; illegal edges are rejected before touching storage.
	UpdateStatus(ctx context.Context, id string, from, to models.Status, actor, detail string) error

	// SetProposed completes a proposal: pending -> proposed (or scheduled when
	// the disbursement is future-dated). safeTxHash is write-once; an existing
	// hash is never overwritten. When scheduling, the scheduled version is
	// incremented and the new version returned (otherwise 0).
	SetProposed(ctx context.Context, id, safeTxHash string, scheduled bool, actor string) (int64, error)

	// SetRelayTask records a relay submission and moves the record to
	// relaying. The status guard doubles as the single-active-task invariant:
	// a record can only re-enter relaying after the previous task reached a
	// terminal state.
	SetRelayTask(ctx context.Context, id string, from models.Status, taskID, actor string) error

	// UpdateRelayStatus records provider progress without changing lifecycle
	// status. Safe to apply repeatedly with the same value.
	UpdateRelayStatus(ctx context.Context, id, relayStatus string) error

	// MarkExecuted finishes the lifecycle with the on-chain hash. txHash is
	// write-once. from must be a legal predecessor of executed.
	MarkExecuted(ctx context.Context, id string, from models.Status, txHash, actor, detail string) error

	// MarkFailed records a failure with its cause.
	MarkFailed(ctx context.Context, id string, from models.Status, relayError, actor string) error

	// Reschedule moves a scheduled disbursement to a new instant and strictly
	// increments the scheduled version, invalidating any outstanding job
	// token issued for the previous version.
	Reschedule(ctx context.Context, id string, at time.Time) (int64, error)

	GetLinkedWallet(ctx context.Context, tenantID string, chainID int64) (*models.LinkedWallet, error)
	LinkWallet(ctx context.Context, w *models.LinkedWallet) error

	ListEvents(ctx context.Context, disbursementID string) ([]models.Event, error)
}
