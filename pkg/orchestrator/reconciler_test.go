package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustrails/payoutd/pkg/db/models"
	"github.com/trustrails/payoutd/pkg/relay"
)

func seedRelaying(env *testEnv, id, taskID string) {
	hash := "0xsafetx-" + id
	tid := taskID
	env.store.put(&models.Disbursement{
		ID:          id,
		TenantID:    "acme",
		ChainID:     1,
		Token:       "USDC",
		Status:      models.StatusRelaying,
		SafeTxHash:  &hash,
		RelayTaskID: &tid,
	})
}

func TestReconcileSuccess(t *testing.T) {
	env := newTestEnv(t)
	seedRelaying(env, "d1", "task-1")
	env.rel.statuses["task-1"] = &relay.TaskStatus{
		TaskID:          "task-1",
		TaskState:       relay.TaskExecSuccess,
		TransactionHash: "0xdeadbeef",
	}

	require.NoError(t, env.ctx.ReconcileOnce(context.Background()))

	d := env.store.snapshot("d1")
	assert.Equal(t, models.StatusExecuted, d.Status)
	require.NotNil(t, d.TxHash)
	assert.Equal(t, "0xdeadbeef", *d.TxHash)
}

func TestReconcileTerminalFailure(t *testing.T) {
	env := newTestEnv(t)
	seedRelaying(env, "d1", "task-1")
	env.rel.statuses["task-1"] = &relay.TaskStatus{
		TaskID:           "task-1",
		TaskState:        relay.TaskExecReverted,
		LastCheckMessage: "execution reverted: GS026",
	}

	require.NoError(t, env.ctx.ReconcileOnce(context.Background()))

	d := env.store.snapshot("d1")
	assert.Equal(t, models.StatusFailed, d.Status)
	require.NotNil(t, d.RelayError)
	assert.Contains(t, *d.RelayError, "ExecReverted")
	assert.Contains(t, *d.RelayError, "GS026")
}

func TestReconcileInFlightUpdatesRelayStatusOnly(t *testing.T) {
	env := newTestEnv(t)
	seedRelaying(env, "d1", "task-1")
	env.rel.statuses["task-1"] = &relay.TaskStatus{
		TaskID:    "task-1",
		TaskState: relay.TaskWaitingForConfirmation,
	}

	require.NoError(t, env.ctx.ReconcileOnce(context.Background()))

	d := env.store.snapshot("d1")
	assert.Equal(t, models.StatusRelaying, d.Status)
	require.NotNil(t, d.RelayStatus)
	assert.Equal(t, "WaitingForConfirmation", *d.RelayStatus)
}

func TestReconcileIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	seedRelaying(env, "d1", "task-1")
	env.rel.statuses["task-1"] = &relay.TaskStatus{
		TaskID:          "task-1",
		TaskState:       relay.TaskExecSuccess,
		TransactionHash: "0xdeadbeef",
	}

	require.NoError(t, env.ctx.ReconcileOnce(context.Background()))
	writesAfterFirst := env.store.writeCount()

	// The record left relaying, so the second tick has nothing to poll.
	require.NoError(t, env.ctx.ReconcileOnce(context.Background()))
	assert.Equal(t, writesAfterFirst, env.store.writeCount())
}

func TestReconcilePollErrorLeavesRecordForNextTick(t *testing.T) {
	env := newTestEnv(t)
	seedRelaying(env, "d1", "task-1")
	env.rel.statusErr = errors.New("504 gateway timeout")

	require.NoError(t, env.ctx.ReconcileOnce(context.Background()))

	assert.Equal(t, models.StatusRelaying, env.store.snapshot("d1").Status)
	assert.Zero(t, env.store.writeCount())

	// Provider recovers; the next tick resolves the record.
	env.rel.statusErr = nil
	env.rel.statuses["task-1"] = &relay.TaskStatus{
		TaskID:          "task-1",
		TaskState:       relay.TaskExecSuccess,
		TransactionHash: "0xdeadbeef",
	}
	require.NoError(t, env.ctx.ReconcileOnce(context.Background()))
	assert.Equal(t, models.StatusExecuted, env.store.snapshot("d1").Status)
}

func TestReconcileMultipleRecords(t *testing.T) {
	env := newTestEnv(t)
	seedRelaying(env, "d1", "task-1")
	seedRelaying(env, "d2", "task-2")
	seedRelaying(env, "d3", "task-3")
	env.rel.statuses["task-1"] = &relay.TaskStatus{TaskID: "task-1", TaskState: relay.TaskExecSuccess, TransactionHash: "0x01"}
	env.rel.statuses["task-2"] = &relay.TaskStatus{TaskID: "task-2", TaskState: relay.TaskCancelled}
	env.rel.statuses["task-3"] = &relay.TaskStatus{TaskID: "task-3", TaskState: relay.TaskExecPending}

	require.NoError(t, env.ctx.ReconcileOnce(context.Background()))

	assert.Equal(t, models.StatusExecuted, env.store.snapshot("d1").Status)
	assert.Equal(t, models.StatusFailed, env.store.snapshot("d2").Status)
	assert.Equal(t, models.StatusRelaying, env.store.snapshot("d3").Status)
}

func TestReconcileNoInflightRecords(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.ctx.ReconcileOnce(context.Background()))
	assert.Zero(t, env.rel.polls)
}
