package custody

import (
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/trustrails/payoutd/pkg/txbuilder"
)

// SafeInfo is the wallet's live on-chain view held by the custody service.
type SafeInfo struct {
	Address   string   `json:"address"`
	Owners    []string `json:"owners"`
	Threshold int      `json:"threshold"`
	Nonce     uint64   `json:"nonce"`
}

// ConfirmationRecord is one approver's signature on a proposed transaction.
type ConfirmationRecord struct {
	Owner     string        `json:"owner"`
	Signature hexutil.Bytes `json:"signature"`
}

// TransactionRecord is the custody service's current view of a proposed
// multisig transaction. It is the source of truth at execution time; locally
// cached copies of any of these fields are never trusted.
type TransactionRecord struct {
	SafeTxHash            string               `json:"safeTxHash"`
	Safe                  string               `json:"safe"`
	To                    string               `json:"to"`
	Value                 string               `json:"value"`
	Data                  hexutil.Bytes        `json:"data"`
	Operation             int                  `json:"operation"`
	SafeTxGas             string               `json:"safeTxGas"`
	BaseGas               string               `json:"baseGas"`
	GasPrice              string               `json:"gasPrice"`
	GasToken              string               `json:"gasToken"`
	RefundReceiver        string               `json:"refundReceiver"`
	Nonce                 uint64               `json:"nonce"`
	IsExecuted            bool                 `json:"isExecuted"`
	TransactionHash       *string              `json:"transactionHash"`
	Confirmations         []ConfirmationRecord `json:"confirmations"`
	ConfirmationsRequired int                  `json:"confirmationsRequired"`
}

// ProposeRequest registers a new transaction with the custody service.
type ProposeRequest struct {
	SafeAddress     string                   `json:"safeAddress"`
	TransactionData txbuilder.CallDescriptor `json:"transactionData"`
	Nonce           uint64                   `json:"nonce"`
	Hash            string                   `json:"hash"`
	SenderAddress   string                   `json:"senderAddress"`
	SenderSignature hexutil.Bytes            `json:"senderSignature"`
}

// ConfirmRequest adds one signature to an existing proposal.
type ConfirmRequest struct {
	Hash      string        `json:"hash"`
	Signature hexutil.Bytes `json:"signature"`
}
