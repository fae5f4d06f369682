package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/custody"
	"github.com/trustrails/payoutd/pkg/db"
	"github.com/trustrails/payoutd/pkg/db/models"
)

// FireOutcome reports what a scheduled firing attempt did.
type FireOutcome string

const (
	FireSkipped FireOutcome = "skipped"
	FireFailed  FireOutcome = "failed"
	Fired       FireOutcome = "fired"
)

// FireScheduled is the entry point for the durable delayed job. Delivery is
// at-least-once and jobs for superseded schedules keep arriving after a
// reschedule, so the version fence decides everything: a job whose version
// does not match the record's current one returns FireSkipped without a
// single write. The function never returns an error for stale or lost races;
// only infrastructure faults propagate, so the job queue retries exactly the
// attempts worth retrying.
func (c *Context) FireScheduled(ctx context.Context, id string, version int64) (FireOutcome, error) {
	d, err := c.Store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.Logger.Warn("scheduled fire for missing disbursement", zap.String("disbursement", id))
			return FireSkipped, nil
		}
		return FireSkipped, err
	}

	if d.Status != models.StatusScheduled || d.ScheduledVersion != version {
		c.Logger.Info("scheduled fire superseded",
			zap.String("disbursement", id),
			zap.String("status", string(d.Status)),
			zap.Int64("jobVersion", version),
			zap.Int64("currentVersion", d.ScheduledVersion))
		return FireSkipped, nil
	}

	record, err := c.readyTransaction(ctx, d)
	if err != nil {
		var insufficient *InsufficientConfirmationsError
		switch {
		case errors.As(err, &insufficient), errors.Is(err, custody.ErrTransactionNotFound):
			// The prerequisites evaporated between scheduling and firing.
			// This attempt is final for this schedule; record it and stop.
			return c.fireFailed(ctx, d, err.Error())
		case errors.Is(err, ErrCustodyUnavailable):
			// Transient; let the job queue retry.
			return FireSkipped, err
		default:
			var validation *ValidationError
			if errors.As(err, &validation) {
				return c.fireFailed(ctx, d, err.Error())
			}
			return FireSkipped, err
		}
	}

	if record.IsExecuted {
		txHash := ""
		if record.TransactionHash != nil {
			txHash = *record.TransactionHash
		}
		if err := c.Store.MarkExecuted(ctx, id, models.StatusScheduled, txHash, "scheduler", "already executed at custody service"); err != nil {
			if errors.Is(err, db.ErrStale) {
				return FireSkipped, nil
			}
			return FireSkipped, err
		}
		c.notify(ctx, d, models.StatusScheduled, models.StatusExecuted)
		return Fired, nil
	}

	if err := c.executeRelayed(ctx, d, record, models.StatusScheduled); err != nil {
		if errors.Is(err, db.ErrStale) {
			// Another actor moved the record after our checks. Their write
			// wins; this job has nothing left to do.
			return FireSkipped, nil
		}
		if errors.Is(err, ErrRelayFailure) {
			return c.fireFailed(ctx, d, err.Error())
		}
		return FireSkipped, err
	}
	return Fired, nil
}

func (c *Context) fireFailed(ctx context.Context, d *models.Disbursement, reason string) (FireOutcome, error) {
	if err := c.Store.MarkFailed(ctx, d.ID, models.StatusScheduled, reason, "scheduler"); err != nil {
		if errors.Is(err, db.ErrStale) {
			return FireSkipped, nil
		}
		return FireSkipped, err
	}
	c.notify(ctx, d, models.StatusScheduled, models.StatusFailed)
	c.Logger.Warn("scheduled fire failed",
		zap.String("disbursement", d.ID), zap.String("reason", reason))
	return FireFailed, nil
}
