package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustrails/payoutd/pkg/custody"
	"github.com/trustrails/payoutd/pkg/db/models"
)

const (
	testWallet    = "0x2222222222222222222222222222222222222222"
	testRecipient = "0x1111111111111111111111111111111111111111"
)

func seedDraft(env *testEnv, scheduledAt *time.Time) {
	env.store.put(&models.Disbursement{
		ID:            "d1",
		TenantID:      "acme",
		ChainID:       1,
		Token:         "USDC",
		Kind:          models.KindSingle,
		BeneficiaryID: "ben-1",
		Recipient:     testRecipient,
		TotalAmount:   "100",
		Status:        models.StatusDraft,
		ScheduledAt:   scheduledAt,
	})
	env.store.wallets[walletKey("acme", 1)] = &models.LinkedWallet{
		TenantID:      "acme",
		ChainID:       1,
		WalletAddress: testWallet,
	}
	env.cust.info = &custody.SafeInfo{
		Address:   testWallet,
		Threshold: 2,
		Nonce:     5,
	}
}

func TestProposeHappyPath(t *testing.T) {
	env := newTestEnv(t)
	seedDraft(env, nil)

	safeTxHash, err := env.ctx.Propose(context.Background(), "d1", false)
	require.NoError(t, err)
	require.NotEmpty(t, safeTxHash)

	d := env.store.snapshot("d1")
	assert.Equal(t, models.StatusProposed, d.Status)
	require.NotNil(t, d.SafeTxHash)
	assert.Equal(t, safeTxHash, *d.SafeTxHash)

	require.Len(t, env.cust.proposed, 1)
	req := env.cust.proposed[0]
	assert.Equal(t, testWallet, req.SafeAddress)
	assert.Equal(t, uint64(5), req.Nonce)
	assert.Equal(t, safeTxHash, req.Hash)
	assert.Len(t, []byte(req.SenderSignature), 65)
}

func TestProposeScheduled(t *testing.T) {
	env := newTestEnv(t)
	at := time.Now().Add(2 * time.Hour)
	seedDraft(env, &at)

	_, err := env.ctx.Propose(context.Background(), "d1", false)
	require.NoError(t, err)

	d := env.store.snapshot("d1")
	assert.Equal(t, models.StatusScheduled, d.Status)
	assert.Equal(t, int64(1), d.ScheduledVersion)

	require.Len(t, env.fires.calls, 1)
	assert.Equal(t, "d1", env.fires.calls[0].ID)
	assert.Equal(t, int64(1), env.fires.calls[0].Version)
}

func TestProposePastScheduleIsImmediate(t *testing.T) {
	env := newTestEnv(t)
	at := time.Now().Add(-time.Hour)
	seedDraft(env, &at)

	_, err := env.ctx.Propose(context.Background(), "d1", false)
	require.NoError(t, err)

	assert.Equal(t, models.StatusProposed, env.store.snapshot("d1").Status)
	assert.Empty(t, env.fires.calls)
}

func TestProposeNoLinkedWallet(t *testing.T) {
	env := newTestEnv(t)
	seedDraft(env, nil)
	delete(env.store.wallets, walletKey("acme", 1))

	_, err := env.ctx.Propose(context.Background(), "d1", false)
	var noWallet *NoLinkedWalletError
	require.ErrorAs(t, err, &noWallet)
	assert.Equal(t, "acme", noWallet.TenantID)

	assert.Equal(t, models.StatusDraft, env.store.snapshot("d1").Status)
	assert.Zero(t, env.store.writeCount())
}

func TestProposeCustodyDownRevertsToDraft(t *testing.T) {
	env := newTestEnv(t)
	seedDraft(env, nil)
	env.cust.infoErr = errors.New("connection refused")

	_, err := env.ctx.Propose(context.Background(), "d1", false)
	require.ErrorIs(t, err, ErrCustodyUnavailable)

	d := env.store.snapshot("d1")
	assert.Equal(t, models.StatusDraft, d.Status)
	assert.Nil(t, d.SafeTxHash)
}

func TestProposeRegistrationFailureRevertsToDraft(t *testing.T) {
	env := newTestEnv(t)
	seedDraft(env, nil)
	env.cust.proposeErr = errors.New("500 from transaction service")

	_, err := env.ctx.Propose(context.Background(), "d1", false)
	require.ErrorIs(t, err, ErrCustodyUnavailable)
	assert.Equal(t, models.StatusDraft, env.store.snapshot("d1").Status)
}

func TestProposeRejectsNonDraft(t *testing.T) {
	env := newTestEnv(t)
	seedDraft(env, nil)
	env.store.setStatus("d1", models.StatusProposed)

	_, err := env.ctx.Propose(context.Background(), "d1", false)
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestProposeScreeningBlocked(t *testing.T) {
	env := newTestEnv(t)
	seedDraft(env, nil)
	env.screen.result = &ScreeningResult{Enforcement: EnforcementBlock, Flagged: []string{"ben-1"}}

	_, err := env.ctx.Propose(context.Background(), "d1", false)
	var blocked *ScreeningBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, models.StatusDraft, env.store.snapshot("d1").Status)
	assert.Zero(t, env.store.writeCount())
}

func TestProposeBatchUsesAggregatedCall(t *testing.T) {
	env := newTestEnv(t)
	env.store.put(&models.Disbursement{
		ID:          "b1",
		TenantID:    "acme",
		ChainID:     1,
		Token:       "USDC",
		Kind:        models.KindBatch,
		TotalAmount: "3",
		Status:      models.StatusDraft,
	})
	env.store.recipients["b1"] = []models.Recipient{
		{BeneficiaryID: "x", Address: "0x0000000000000000000000000000000000000001", Amount: "1", Position: 0},
		{BeneficiaryID: "y", Address: "0x0000000000000000000000000000000000000002", Amount: "2", Position: 1},
	}
	env.store.wallets[walletKey("acme", 1)] = &models.LinkedWallet{TenantID: "acme", ChainID: 1, WalletAddress: testWallet}
	env.cust.info = &custody.SafeInfo{Address: testWallet, Threshold: 2, Nonce: 0}

	_, err := env.ctx.Propose(context.Background(), "b1", false)
	require.NoError(t, err)

	require.Len(t, env.cust.proposed, 1)
	// A multi-line batch goes through the aggregator as a delegatecall.
	assert.Equal(t, uint8(1), uint8(env.cust.proposed[0].TransactionData.Operation))
}

func TestConfirm(t *testing.T) {
	env := newTestEnv(t)
	hash := "0xabc123"
	env.store.put(&models.Disbursement{ID: "d1", ChainID: 1, Status: models.StatusProposed, SafeTxHash: &hash})

	require.NoError(t, env.ctx.Confirm(context.Background(), "d1"))
	assert.Equal(t, []string{hash}, env.cust.confirmed)
}

func TestConfirmWithoutProposal(t *testing.T) {
	env := newTestEnv(t)
	env.store.put(&models.Disbursement{ID: "d1", ChainID: 1, Status: models.StatusDraft})

	err := env.ctx.Confirm(context.Background(), "d1")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}
