package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/custody"
	"github.com/trustrails/payoutd/pkg/db"
	"github.com/trustrails/payoutd/pkg/db/models"
	"github.com/trustrails/payoutd/pkg/txbuilder"
)

// buildCall produces the single call descriptor for a disbursement: the
// token transfer itself, or the aggregated multisend for a batch. Recipient
// order is preserved into the packed calldata.
func buildCall(d *models.Disbursement, recipients []models.Recipient) (txbuilder.CallDescriptor, error) {
	if d.Kind == models.KindSingle {
		return txbuilder.BuildTransfer(txbuilder.Transfer{
			ChainID:   d.ChainID,
			Token:     d.Token,
			Recipient: common.HexToAddress(d.Recipient),
			Amount:    d.TotalAmount,
		})
	}

	transfers := make([]txbuilder.Transfer, 0, len(recipients))
	for _, r := range recipients {
		transfers = append(transfers, txbuilder.Transfer{
			ChainID:   d.ChainID,
			Token:     d.Token,
			Recipient: common.HexToAddress(r.Address),
			Amount:    r.Amount,
		})
	}
	calls, err := txbuilder.BuildBatch(transfers)
	if err != nil {
		return txbuilder.CallDescriptor{}, err
	}
	return txbuilder.AggregateBatch(calls)
}

func (c *Context) beneficiaryIDs(d *models.Disbursement, recipients []models.Recipient) []string {
	if d.Kind == models.KindSingle {
		return []string{d.BeneficiaryID}
	}
	ids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		ids = append(ids, r.BeneficiaryID)
	}
	return ids
}

// Propose builds the transaction, computes the hash the custody wallet will
// assign, signs it, and registers the proposal with the custody service.
// The record moves draft -> pending before the network calls, then to
// proposed (or scheduled when future-dated) on success, or back to draft on
// failure, so a half-finished proposal never looks proposed.
func (c *Context) Propose(ctx context.Context, id string, skipScreening bool) (string, error) {
	d, recipients, err := c.Store.GetWithRecipients(ctx, id)
	if err != nil {
		return "", err
	}
	if d.Status != models.StatusDraft {
		return "", &ValidationError{Reason: fmt.Sprintf("cannot propose a %s disbursement", d.Status)}
	}

	// Screening and wallet resolution happen before any state mutation.
	if err := c.gate(ctx, c.beneficiaryIDs(d, recipients), skipScreening); err != nil {
		return "", err
	}
	wallet, err := c.Store.GetLinkedWallet(ctx, d.TenantID, d.ChainID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return "", &NoLinkedWalletError{TenantID: d.TenantID, ChainID: d.ChainID}
		}
		return "", err
	}

	call, err := buildCall(d, recipients)
	if err != nil {
		return "", &ValidationError{Reason: "cannot build transfer", Err: err}
	}

	cli, err := c.Custody.ClientFor(d.ChainID)
	if err != nil {
		return "", &ValidationError{Reason: "unsupported chain", Err: err}
	}

	// Mark the attempt before talking to the custody service.
	if err := c.Store.UpdateStatus(ctx, id, models.StatusDraft, models.StatusPending, "orchestrator", "propose started"); err != nil {
		return "", err
	}

	revert := func(cause error) {
		if rerr := c.Store.UpdateStatus(ctx, id, models.StatusPending, models.StatusDraft, "orchestrator", "propose failed: "+cause.Error()); rerr != nil {
			c.Logger.Error("failed to revert disbursement to draft",
				zap.String("disbursement", id), zap.Error(rerr))
		}
	}

	info, err := cli.SafeInfo(ctx, wallet.WalletAddress)
	if err != nil {
		revert(err)
		return "", fmt.Errorf("%w: %v", ErrCustodyUnavailable, err)
	}

	hashInput := txbuilder.HashInput{
		ChainID: d.ChainID,
		Wallet:  common.HexToAddress(wallet.WalletAddress),
		Call:    call,
		Nonce:   info.Nonce,
	}
	safeTxHash := txbuilder.TransactionHash(hashInput)

	signature, err := c.Signer.SignHash(safeTxHash)
	if err != nil {
		revert(err)
		return "", fmt.Errorf("signing proposal: %w", err)
	}

	propErr := cli.ProposeTransaction(ctx, custody.ProposeRequest{
		SafeAddress:     wallet.WalletAddress,
		TransactionData: call,
		Nonce:           info.Nonce,
		Hash:            safeTxHash.Hex(),
		SenderAddress:   c.Signer.Address().Hex(),
		SenderSignature: signature,
	})
	if propErr != nil {
		revert(propErr)
		return "", fmt.Errorf("%w: %v", ErrCustodyUnavailable, propErr)
	}

	scheduled := d.ScheduledAt != nil && d.ScheduledAt.After(time.Now())
	version, err := c.Store.SetProposed(ctx, id, safeTxHash.Hex(), scheduled, "orchestrator")
	if err != nil {
		// The proposal exists at the custody service but the local record
		// moved under us (e.g. a concurrent cancel). The guard already kept
		// local state coherent; surface the conflict.
		return safeTxHash.Hex(), err
	}

	to := models.StatusProposed
	if scheduled {
		to = models.StatusScheduled
		if c.Fires != nil {
			if err := c.Fires.ScheduleFire(ctx, id, version, *d.ScheduledAt); err != nil {
				return safeTxHash.Hex(), fmt.Errorf("proposed but arming the scheduled job failed: %w", err)
			}
		}
	}
	c.notify(ctx, d, models.StatusPending, to)

	c.Logger.Info("disbursement proposed",
		zap.String("disbursement", id),
		zap.String("safeTxHash", safeTxHash.Hex()),
		zap.Bool("scheduled", scheduled))
	return safeTxHash.Hex(), nil
}

// Confirm adds the orchestrator's signature to an existing proposal, for
// records whose proposal was registered by another owner.
func (c *Context) Confirm(ctx context.Context, id string) error {
	d, err := c.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.SafeTxHash == nil {
		return &ValidationError{Reason: "disbursement has no proposal to confirm"}
	}
	cli, err := c.Custody.ClientFor(d.ChainID)
	if err != nil {
		return err
	}
	signature, err := c.Signer.SignHash(common.HexToHash(*d.SafeTxHash))
	if err != nil {
		return err
	}
	if err := cli.ConfirmTransaction(ctx, *d.SafeTxHash, signature); err != nil {
		return fmt.Errorf("%w: %v", ErrCustodyUnavailable, err)
	}
	return nil
}
