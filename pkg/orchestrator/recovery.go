package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/custody"
	"github.com/trustrails/payoutd/pkg/db/models"
)

// Retry re-derives a failed disbursement's true state from the custody
// service rather than replaying the last attempt blindly. Depending on what
// actually happened out there, the record resolves to executed, drops back
// to proposed for more signatures, or goes through the relay again.
func (c *Context) Retry(ctx context.Context, id string) error {
	d, err := c.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != models.StatusFailed {
		return &ValidationError{Reason: fmt.Sprintf("cannot retry a %s disbursement", d.Status)}
	}
	if d.SafeTxHash == nil {
		return &ValidationError{Reason: "failed disbursement has no proposal to retry"}
	}

	cli, err := c.Custody.ClientFor(d.ChainID)
	if err != nil {
		return err
	}
	record, err := cli.GetTransaction(ctx, *d.SafeTxHash)
	if err != nil {
		if errors.Is(err, custody.ErrTransactionNotFound) {
			// The proposal is gone from the custody service. The record stays
			// failed; annotate it so an operator sees why a retry cannot work.
			if uerr := c.Store.UpdateRelayStatus(ctx, d.ID, "safe_tx_not_found"); uerr != nil {
				c.Logger.Error("failed to annotate missing proposal",
					zap.String("disbursement", d.ID), zap.Error(uerr))
			}
			return &ValidationError{Reason: "proposal no longer exists at the custody service"}
		}
		return fmt.Errorf("%w: %v", ErrCustodyUnavailable, err)
	}

	if record.IsExecuted {
		// The earlier attempt went through after all.
		txHash := ""
		if record.TransactionHash != nil {
			txHash = *record.TransactionHash
		}
		if err := c.Store.MarkExecuted(ctx, d.ID, models.StatusFailed, txHash, "recovery", "found executed at custody service"); err != nil {
			return err
		}
		c.notify(ctx, d, models.StatusFailed, models.StatusExecuted)
		c.Logger.Info("retry resolved to executed",
			zap.String("disbursement", d.ID), zap.String("txHash", txHash))
		return nil
	}

	if len(record.Confirmations) < record.ConfirmationsRequired {
		// Signatures were revoked or the threshold rose. Park the record back
		// at proposed so the normal confirmation flow takes over.
		if err := c.Store.UpdateStatus(ctx, d.ID, models.StatusFailed, models.StatusProposed, "recovery", "returned for confirmations"); err != nil {
			return err
		}
		c.notify(ctx, d, models.StatusFailed, models.StatusProposed)
		return &InsufficientConfirmationsError{
			Have: len(record.Confirmations),
			Need: record.ConfirmationsRequired,
		}
	}

	if err := c.executeRelayed(ctx, d, record, models.StatusFailed); err != nil {
		return err
	}
	c.Logger.Info("retry resubmitted to relay", zap.String("disbursement", d.ID))
	return nil
}
