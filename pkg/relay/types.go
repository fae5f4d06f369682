package relay

import "github.com/ethereum/go-ethereum/common/hexutil"

// TaskState is the provider-side lifecycle of a submitted relay job.
type TaskState string

const (
	TaskCheckPending           TaskState = "CheckPending"
	TaskExecPending            TaskState = "ExecPending"
	TaskWaitingForConfirmation TaskState = "WaitingForConfirmation"
	TaskExecSuccess            TaskState = "ExecSuccess"
	TaskExecReverted           TaskState = "ExecReverted"
	TaskCancelled              TaskState = "Cancelled"
	TaskBlacklisted            TaskState = "Blacklisted"
)

// TerminalFailure reports whether the state is a definitive provider-side
// failure. Anything not terminal keeps the local record in relaying.
func (s TaskState) TerminalFailure() bool {
	switch s {
	case TaskExecReverted, TaskCancelled, TaskBlacklisted:
		return true
	}
	return false
}

// CallWithSyncFeeRequest submits a self-contained execute call; the fee is
// taken from the target in feeToken during execution.
type CallWithSyncFeeRequest struct {
	ChainID        int64         `json:"chainId"`
	Target         string        `json:"target"`
	Data           hexutil.Bytes `json:"data"`
	FeeToken       string        `json:"feeToken"`
	IsRelayContext bool          `json:"isRelayContext"`
}

// CallWithSyncFeeResponse carries the tracking handle for the job.
type CallWithSyncFeeResponse struct {
	TaskID string `json:"taskId"`
}

// TaskStatus is the provider's current view of a task.
type TaskStatus struct {
	TaskID           string    `json:"taskId"`
	TaskState        TaskState `json:"taskState"`
	TransactionHash  string    `json:"transactionHash,omitempty"`
	LastCheckMessage string    `json:"lastCheckMessage,omitempty"`
}
