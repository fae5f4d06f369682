package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/trustrails/payoutd/pkg/chains"
	"github.com/trustrails/payoutd/pkg/db/models"
	"github.com/trustrails/payoutd/pkg/txbuilder"
)

// CreateInput describes a single-beneficiary disbursement command.
type CreateInput struct {
	TenantID      string     `json:"tenantId"`
	ChainID       int64      `json:"chainId"`
	Token         string     `json:"token"`
	BeneficiaryID string     `json:"beneficiaryId"`
	Recipient     string     `json:"recipient"`
	Amount        string     `json:"amount"`
	Memo          string     `json:"memo"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
	SkipScreening bool       `json:"skipScreening,omitempty"`
}

// RecipientInput is one beneficiary line of a batch command.
type RecipientInput struct {
	BeneficiaryID string `json:"beneficiaryId"`
	Address       string `json:"address"`
	Amount        string `json:"amount"`
}

// CreateBatchInput describes a batch disbursement command.
type CreateBatchInput struct {
	TenantID      string           `json:"tenantId"`
	ChainID       int64            `json:"chainId"`
	Token         string           `json:"token"`
	Recipients    []RecipientInput `json:"recipients"`
	Memo          string           `json:"memo"`
	ScheduledAt   *time.Time       `json:"scheduledAt,omitempty"`
	SkipScreening bool             `json:"skipScreening,omitempty"`
}

func (c *Context) validateTransfer(chainID int64, token, recipient, amount string) error {
	tok, err := chains.TokenFor(chainID, token)
	if err != nil {
		return &ValidationError{Reason: "unknown token or chain", Err: err}
	}
	if !common.IsHexAddress(recipient) {
		return &ValidationError{Reason: fmt.Sprintf("recipient %q is not a valid address", recipient)}
	}
	if _, err := txbuilder.ParseAmount(amount, tok.Decimals); err != nil {
		return &ValidationError{Reason: "bad amount", Err: err}
	}
	return nil
}

// Create validates, screens, and persists a single disbursement in draft.
func (c *Context) Create(ctx context.Context, in CreateInput) (*models.Disbursement, error) {
	if err := c.validateTransfer(in.ChainID, in.Token, in.Recipient, in.Amount); err != nil {
		return nil, err
	}
	if err := c.gate(ctx, []string{in.BeneficiaryID}, in.SkipScreening); err != nil {
		return nil, err
	}

	d := &models.Disbursement{
		ID:            uuid.NewString(),
		TenantID:      in.TenantID,
		ChainID:       in.ChainID,
		Token:         in.Token,
		Kind:          models.KindSingle,
		BeneficiaryID: in.BeneficiaryID,
		Recipient:     in.Recipient,
		TotalAmount:   in.Amount,
		Status:        models.StatusDraft,
		ScheduledAt:   in.ScheduledAt,
		Memo:          in.Memo,
	}
	if err := c.Store.Create(ctx, d); err != nil {
		return nil, err
	}
	return c.Store.Get(ctx, d.ID)
}

// CreateBatch validates every line, screens all beneficiaries, derives the
// total, and persists the batch in draft.
func (c *Context) CreateBatch(ctx context.Context, in CreateBatchInput) (*models.Disbursement, error) {
	if len(in.Recipients) == 0 {
		return nil, &ValidationError{Reason: "batch has no recipients"}
	}

	ids := make([]string, 0, len(in.Recipients))
	recipients := make([]models.Recipient, 0, len(in.Recipients))
	disbursementID := uuid.NewString()
	for i, r := range in.Recipients {
		if err := c.validateTransfer(in.ChainID, in.Token, r.Address, r.Amount); err != nil {
			return nil, fmt.Errorf("recipient %d: %w", i, err)
		}
		ids = append(ids, r.BeneficiaryID)
		recipients = append(recipients, models.Recipient{
			ID:             uuid.NewString(),
			DisbursementID: disbursementID,
			BeneficiaryID:  r.BeneficiaryID,
			Address:        r.Address,
			Amount:         r.Amount,
			Position:       i,
		})
	}
	if err := c.gate(ctx, ids, in.SkipScreening); err != nil {
		return nil, err
	}

	total, err := models.SumAmounts(recipients)
	if err != nil {
		return nil, &ValidationError{Reason: "bad batch amounts", Err: err}
	}

	d := &models.Disbursement{
		ID:          disbursementID,
		TenantID:    in.TenantID,
		ChainID:     in.ChainID,
		Token:       in.Token,
		Kind:        models.KindBatch,
		TotalAmount: total,
		Status:      models.StatusDraft,
		ScheduledAt: in.ScheduledAt,
		Memo:        in.Memo,
	}
	if err := c.Store.CreateBatch(ctx, d, recipients); err != nil {
		return nil, err
	}
	return c.Store.Get(ctx, d.ID)
}

// Cancel marks a disbursement cancelled. Only pre-execution states can be
// cancelled; an in-flight relay is not aborted, it is simply ignored by the
// guards once the record is cancelled.
func (c *Context) Cancel(ctx context.Context, id, actor string) error {
	d, err := c.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !d.Status.CanTransition(models.StatusCancelled) {
		return &ValidationError{Reason: fmt.Sprintf("cannot cancel a %s disbursement", d.Status)}
	}
	if err := c.Store.UpdateStatus(ctx, id, d.Status, models.StatusCancelled, actor, "cancelled"); err != nil {
		return err
	}
	c.notify(ctx, d, d.Status, models.StatusCancelled)
	return nil
}

// Reschedule moves a scheduled disbursement to a new future instant, bumps
// the version, and arms a fresh job. The job armed for the previous version
// will find a version mismatch when it fires and skip.
func (c *Context) Reschedule(ctx context.Context, id string, at time.Time) (int64, error) {
	if !at.After(time.Now()) {
		return 0, &ValidationError{Reason: "scheduled time must be in the future"}
	}
	version, err := c.Store.Reschedule(ctx, id, at)
	if err != nil {
		return 0, err
	}
	if c.Fires != nil {
		if err := c.Fires.ScheduleFire(ctx, id, version, at); err != nil {
			return version, fmt.Errorf("rescheduled to v%d but arming the job failed: %w", version, err)
		}
	}
	return version, nil
}
