package orchestrator

import (
	"context"
	"errors"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/db"
	"github.com/trustrails/payoutd/pkg/db/models"
	"github.com/trustrails/payoutd/pkg/relay"
)

// ReconcileOnce polls the relay provider for every in-flight disbursement and
// folds the answers into local state. Each poll is independent and the
// mapping is idempotent, so overlapping ticks and provider flakiness are
// harmless: a record that cannot be resolved this tick is simply picked up
// again on the next one.
func (c *Context) ReconcileOnce(ctx context.Context) error {
	inflight, err := c.Store.ListRelaying(ctx)
	if err != nil {
		return err
	}
	if len(inflight) == 0 {
		return nil
	}

	pool := pond.NewPool(8)
	for _, d := range inflight {
		pool.Submit(func() {
			c.reconcileOne(ctx, &d)
		})
	}
	pool.StopAndWait()
	return nil
}

func (c *Context) reconcileOne(ctx context.Context, d *models.Disbursement) {
	if d.RelayTaskID == nil {
		// Shouldn't happen; relaying is only entered via SetRelayTask.
		c.Logger.Error("relaying disbursement without a task id", zap.String("disbursement", d.ID))
		return
	}

	status, err := c.Relay.TaskStatus(ctx, *d.RelayTaskID)
	if err != nil {
		c.Logger.Warn("relay status poll failed",
			zap.String("disbursement", d.ID),
			zap.String("taskId", *d.RelayTaskID),
			zap.Error(err))
		return
	}

	switch {
	case status.TaskState == relay.TaskExecSuccess && status.TransactionHash != "":
		if err := c.Store.MarkExecuted(ctx, d.ID, models.StatusRelaying, status.TransactionHash, "reconciler", "relay task succeeded"); err != nil {
			// A stale guard means another actor already resolved this record;
			// their write stands.
			if !errors.Is(err, db.ErrStale) {
				c.Logger.Error("failed to mark executed",
					zap.String("disbursement", d.ID), zap.Error(err))
			}
			return
		}
		c.notify(ctx, d, models.StatusRelaying, models.StatusExecuted)
		c.Logger.Info("relay task executed",
			zap.String("disbursement", d.ID),
			zap.String("txHash", status.TransactionHash))

	case status.TaskState.TerminalFailure():
		detail := string(status.TaskState)
		if status.LastCheckMessage != "" {
			detail += ": " + status.LastCheckMessage
		}
		if err := c.Store.MarkFailed(ctx, d.ID, models.StatusRelaying, detail, "reconciler"); err != nil {
			if !errors.Is(err, db.ErrStale) {
				c.Logger.Error("failed to mark failed",
					zap.String("disbursement", d.ID), zap.Error(err))
			}
			return
		}
		c.notify(ctx, d, models.StatusRelaying, models.StatusFailed)
		c.Logger.Warn("relay task failed",
			zap.String("disbursement", d.ID),
			zap.String("state", string(status.TaskState)))

	default:
		// Still in flight; record the provider's current state only.
		if err := c.Store.UpdateRelayStatus(ctx, d.ID, string(status.TaskState)); err != nil && !errors.Is(err, db.ErrStale) {
			c.Logger.Error("failed to update relay status",
				zap.String("disbursement", d.ID), zap.Error(err))
		}
	}
}
