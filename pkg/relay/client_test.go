package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallWithSyncFee(t *testing.T) {
	var got CallWithSyncFeeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/relays/v2/call-with-sync-fee", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(CallWithSyncFeeResponse{TaskID: "task-42"})
	}))
	defer srv.Close()

	cli := NewClientWithEndpoint(srv.URL, map[string]string{"Authorization": "Bearer secret"})
	taskID, err := cli.CallWithSyncFee(context.Background(), CallWithSyncFeeRequest{
		ChainID:        1,
		Target:         "0xWallet",
		Data:           []byte{0x6a, 0x76, 0x12, 0x02},
		FeeToken:       "0xToken",
		IsRelayContext: false,
	})
	require.NoError(t, err)
	assert.Equal(t, "task-42", taskID)
	assert.Equal(t, int64(1), got.ChainID)
	assert.Equal(t, "0xWallet", got.Target)
	assert.False(t, got.IsRelayContext)
}

func TestCallWithSyncFeeEmptyTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(CallWithSyncFeeResponse{})
	}))
	defer srv.Close()

	cli := NewClientWithEndpoint(srv.URL, nil)
	_, err := cli.CallWithSyncFee(context.Background(), CallWithSyncFeeRequest{ChainID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no task id")
}

func TestCallWithSyncFeeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"insufficient fee"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	cli := NewClientWithEndpoint(srv.URL, nil)
	_, err := cli.CallWithSyncFee(context.Background(), CallWithSyncFeeRequest{ChainID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestTaskStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tasks/status/task-42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(TaskStatus{
			TaskID:          "task-42",
			TaskState:       TaskExecSuccess,
			TransactionHash: "0xmined",
		})
	}))
	defer srv.Close()

	cli := NewClientWithEndpoint(srv.URL, nil)
	status, err := cli.TaskStatus(context.Background(), "task-42")
	require.NoError(t, err)
	assert.Equal(t, TaskExecSuccess, status.TaskState)
	assert.Equal(t, "0xmined", status.TransactionHash)
}

func TestTaskStatusFillsTaskID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(TaskStatus{TaskState: TaskExecPending})
	}))
	defer srv.Close()

	cli := NewClientWithEndpoint(srv.URL, nil)
	status, err := cli.TaskStatus(context.Background(), "task-42")
	require.NoError(t, err)
	assert.Equal(t, "task-42", status.TaskID)
}

func TestTerminalFailure(t *testing.T) {
	terminal := []TaskState{TaskExecReverted, TaskCancelled, TaskBlacklisted}
	for _, s := range terminal {
		assert.True(t, s.TerminalFailure(), string(s))
	}
	inflight := []TaskState{TaskCheckPending, TaskExecPending, TaskWaitingForConfirmation, TaskExecSuccess}
	for _, s := range inflight {
		assert.False(t, s.TerminalFailure(), string(s))
	}
}
