package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/chains"
	"github.com/trustrails/payoutd/pkg/custody"
	"github.com/trustrails/payoutd/pkg/db/models"
	"github.com/trustrails/payoutd/pkg/relay"
	"github.com/trustrails/payoutd/pkg/txbuilder"
)

// ExecMode selects how a ready disbursement reaches the chain.
type ExecMode string

const (
	// ExecDirect broadcasts the wallet execution from the orchestrator's own
	// account and waits for a transaction hash.
	ExecDirect ExecMode = "direct"
	// ExecRelayed hands the execution to the relay provider and tracks the
	// returned task asynchronously.
	ExecRelayed ExecMode = "relayed"
)

// readyTransaction fetches the live custody record for a disbursement and
// enforces the confirmation threshold against it. Local caches are never
// trusted here: a signature revoked or added at the custody service between
// proposal and execution must be reflected.
func (c *Context) readyTransaction(ctx context.Context, d *models.Disbursement) (*custody.TransactionRecord, error) {
	if d.SafeTxHash == nil {
		return nil, &ValidationError{Reason: "disbursement has no registered proposal"}
	}
	cli, err := c.Custody.ClientFor(d.ChainID)
	if err != nil {
		return nil, err
	}
	record, err := cli.GetTransaction(ctx, *d.SafeTxHash)
	if err != nil {
		if errors.Is(err, custody.ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCustodyUnavailable, err)
	}
	if len(record.Confirmations) < record.ConfirmationsRequired {
		return nil, &InsufficientConfirmationsError{
			Have: len(record.Confirmations),
			Need: record.ConfirmationsRequired,
		}
	}
	return record, nil
}

func decOrNil(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}

// execInputFromRecord rebuilds the hash input from the custody record so the
// calldata we execute is exactly what the owners confirmed.
func execInputFromRecord(chainID int64, record *custody.TransactionRecord) txbuilder.HashInput {
	return txbuilder.HashInput{
		ChainID: chainID,
		Wallet:  common.HexToAddress(record.Safe),
		Call: txbuilder.CallDescriptor{
			To:        common.HexToAddress(record.To),
			Value:     record.Value,
			Data:      record.Data,
			Operation: txbuilder.Operation(record.Operation),
		},
		SafeTxGas:      decOrNil(record.SafeTxGas),
		BaseGas:        decOrNil(record.BaseGas),
		GasPrice:       decOrNil(record.GasPrice),
		GasToken:       common.HexToAddress(record.GasToken),
		RefundReceiver: common.HexToAddress(record.RefundReceiver),
		Nonce:          record.Nonce,
	}
}

// selectFeeToken picks the token the relay provider is paid in. Fees come
// out of the disbursed token so the custody wallet needs no separate gas
// balance; unknown tokens fall back to the chain's native sentinel.
func selectFeeToken(chainID int64, token string) string {
	if t, err := chains.TokenFor(chainID, token); err == nil {
		return t.Address.Hex()
	}
	return chains.NativeTokenSentinel.Hex()
}

// Execute pushes a confirmed disbursement to the chain. The record must be
// proposed; the live confirmation count is checked against the wallet
// threshold immediately before submission.
func (c *Context) Execute(ctx context.Context, id string, mode ExecMode) error {
	d, err := c.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != models.StatusProposed {
		return &ValidationError{Reason: fmt.Sprintf("cannot execute a %s disbursement", d.Status)}
	}

	record, err := c.readyTransaction(ctx, d)
	if err != nil {
		return err
	}
	if record.IsExecuted {
		// Someone executed out-of-band; fold the result in.
		txHash := ""
		if record.TransactionHash != nil {
			txHash = *record.TransactionHash
		}
		if err := c.Store.MarkExecuted(ctx, id, models.StatusProposed, txHash, "orchestrator", "already executed at custody service"); err != nil {
			return err
		}
		c.notify(ctx, d, models.StatusProposed, models.StatusExecuted)
		return nil
	}

	switch mode {
	case ExecDirect:
		return c.executeDirect(ctx, d, record)
	case ExecRelayed:
		return c.executeRelayed(ctx, d, record, models.StatusProposed)
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown execution mode %q", mode)}
	}
}

// execCalldata assembles the execute-with-signatures payload from the live
// custody record.
func execCalldata(chainID int64, record *custody.TransactionRecord) ([]byte, error) {
	confs := make([]txbuilder.Confirmation, 0, len(record.Confirmations))
	for _, conf := range record.Confirmations {
		confs = append(confs, txbuilder.Confirmation{
			Owner:     common.HexToAddress(conf.Owner),
			Signature: conf.Signature,
		})
	}
	signatures, err := txbuilder.AggregateSignatures(confs)
	if err != nil {
		return nil, fmt.Errorf("aggregating signatures: %w", err)
	}
	calldata, err := txbuilder.EncodeExecTransaction(execInputFromRecord(chainID, record), signatures)
	if err != nil {
		return nil, fmt.Errorf("encoding execution: %w", err)
	}
	return calldata, nil
}

func (c *Context) executeDirect(ctx context.Context, d *models.Disbursement, record *custody.TransactionRecord) error {
	if c.Broadcast == nil {
		return &ValidationError{Reason: "direct execution is not configured"}
	}

	calldata, err := execCalldata(d.ChainID, record)
	if err != nil {
		return err
	}

	txHash, err := c.Broadcast.Broadcast(ctx, d.ChainID, record.Safe, calldata)
	if err != nil {
		if merr := c.Store.MarkFailed(ctx, d.ID, models.StatusProposed, "broadcast: "+err.Error(), "orchestrator"); merr != nil {
			c.Logger.Error("failed to record broadcast failure",
				zap.String("disbursement", d.ID), zap.Error(merr))
		}
		c.notify(ctx, d, models.StatusProposed, models.StatusFailed)
		return fmt.Errorf("broadcasting execution: %w", err)
	}

	if err := c.Store.MarkExecuted(ctx, d.ID, models.StatusProposed, txHash, "orchestrator", "direct broadcast"); err != nil {
		return err
	}
	c.notify(ctx, d, models.StatusProposed, models.StatusExecuted)
	c.Logger.Info("disbursement executed",
		zap.String("disbursement", d.ID), zap.String("txHash", txHash))
	return nil
}

// executeRelayed submits the execution through the relay provider. Local
// state is untouched until the provider accepts the task, so a rejected
// submission leaves the record retryable in place.
func (c *Context) executeRelayed(ctx context.Context, d *models.Disbursement, record *custody.TransactionRecord, from models.Status) error {
	calldata, err := execCalldata(d.ChainID, record)
	if err != nil {
		return err
	}

	// isRelayContext must be false: the provider would otherwise append
	// fee-context bytes to the calldata, which a plain execTransaction
	// payload cannot absorb.
	taskID, err := c.Relay.CallWithSyncFee(ctx, relay.CallWithSyncFeeRequest{
		ChainID:        d.ChainID,
		Target:         record.Safe,
		Data:           calldata,
		FeeToken:       selectFeeToken(d.ChainID, d.Token),
		IsRelayContext: false,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayFailure, err)
	}

	if err := c.Store.SetRelayTask(ctx, d.ID, from, taskID, "orchestrator"); err != nil {
		return err
	}
	c.notify(ctx, d, from, models.StatusRelaying)
	c.Logger.Info("disbursement handed to relay",
		zap.String("disbursement", d.ID),
		zap.String("taskId", taskID))
	return nil
}
