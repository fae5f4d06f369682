package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustrails/payoutd/pkg/custody"
	"github.com/trustrails/payoutd/pkg/db/models"
)

func seedFailed(env *testEnv, id string) {
	hash := "0xsafetx"
	relayErr := "ExecReverted"
	env.store.put(&models.Disbursement{
		ID:         id,
		TenantID:   "acme",
		ChainID:    1,
		Token:      "USDC",
		Status:     models.StatusFailed,
		SafeTxHash: &hash,
		RelayError: &relayErr,
	})
}

func TestRetryResubmitsToRelay(t *testing.T) {
	env := newTestEnv(t)
	seedFailed(env, "d1")
	env.cust.record = confirmedRecord(2, 2)

	require.NoError(t, env.ctx.Retry(context.Background(), "d1"))

	d := env.store.snapshot("d1")
	assert.Equal(t, models.StatusRelaying, d.Status)
	require.NotNil(t, d.RelayTaskID)
	assert.Equal(t, "task-1", *d.RelayTaskID)
	require.Len(t, env.rel.calls, 1)
}

func TestRetryResolvesToExecuted(t *testing.T) {
	env := newTestEnv(t)
	seedFailed(env, "d1")
	record := confirmedRecord(2, 2)
	record.IsExecuted = true
	txHash := "0xmined"
	record.TransactionHash = &txHash
	env.cust.record = record

	require.NoError(t, env.ctx.Retry(context.Background(), "d1"))

	d := env.store.snapshot("d1")
	assert.Equal(t, models.StatusExecuted, d.Status)
	require.NotNil(t, d.TxHash)
	assert.Equal(t, "0xmined", *d.TxHash)
	assert.Empty(t, env.rel.calls)
}

func TestRetryBelowThresholdReturnsToProposed(t *testing.T) {
	env := newTestEnv(t)
	seedFailed(env, "d1")
	env.cust.record = confirmedRecord(1, 2)

	err := env.ctx.Retry(context.Background(), "d1")

	var insufficient *InsufficientConfirmationsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Have)
	assert.Equal(t, 2, insufficient.Need)
	assert.Equal(t, models.StatusProposed, env.store.snapshot("d1").Status)
	assert.Empty(t, env.rel.calls)
}

func TestRetryProposalGoneAnnotatesRecord(t *testing.T) {
	env := newTestEnv(t)
	seedFailed(env, "d1")
	env.cust.recordErr = custody.ErrTransactionNotFound

	err := env.ctx.Retry(context.Background(), "d1")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	d := env.store.snapshot("d1")
	assert.Equal(t, models.StatusFailed, d.Status)
	require.NotNil(t, d.RelayStatus)
	assert.Equal(t, "safe_tx_not_found", *d.RelayStatus)
}

func TestRetryCustodyUnavailable(t *testing.T) {
	env := newTestEnv(t)
	seedFailed(env, "d1")
	env.cust.recordErr = errors.New("dial tcp: connection refused")

	err := env.ctx.Retry(context.Background(), "d1")

	require.ErrorIs(t, err, ErrCustodyUnavailable)
	assert.Equal(t, models.StatusFailed, env.store.snapshot("d1").Status)
	assert.Zero(t, env.store.writeCount())
}

func TestRetryRejectsNonFailed(t *testing.T) {
	for _, status := range []models.Status{
		models.StatusDraft,
		models.StatusProposed,
		models.StatusRelaying,
		models.StatusExecuted,
		models.StatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			env := newTestEnv(t)
			seedFailed(env, "d1")
			env.store.setStatus("d1", status)

			err := env.ctx.Retry(context.Background(), "d1")

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Zero(t, env.store.writeCount())
		})
	}
}

func TestRetryWithoutProposal(t *testing.T) {
	env := newTestEnv(t)
	env.store.put(&models.Disbursement{
		ID:       "d1",
		TenantID: "acme",
		ChainID:  1,
		Token:    "USDC",
		Status:   models.StatusFailed,
	})

	err := env.ctx.Retry(context.Background(), "d1")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Zero(t, env.store.writeCount())
}
