// Package txbuilder turns token transfers into the call descriptors a
// threshold wallet executes. It is pure encoding; no I/O happens here.
package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/trustrails/payoutd/pkg/chains"
)

// Operation is the custody-wallet call kind.
type Operation uint8

const (
	OperationCall         Operation = 0
	OperationDelegateCall Operation = 1
)

// transferSelector is the first four bytes of keccak256("transfer(address,uint256)").
var transferSelector = crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]

// CallDescriptor is one contract call to be executed by the custody wallet.
// Value is always "0": funds move through the token contract, never as a
// native transfer.
type CallDescriptor struct {
	To        common.Address `json:"to"`
	Value     string         `json:"value"`
	Data      hexutil.Bytes  `json:"data"`
	Operation Operation      `json:"operation"`
}

// Transfer is one requested token movement in human units.
type Transfer struct {
	ChainID   int64
	Token     string
	Recipient common.Address
	Amount    string // decimal string, e.g. "100.50"
}

// ParseAmount converts a human decimal amount string into the token's integer
// base-unit representation. Non-numeric, negative, zero, or
// more-precise-than-the-token inputs are rejected.
func ParseAmount(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("amount %q is not a number: %w", amount, err)
	}
	if d.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q must be positive", amount)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %q exceeds token precision of %d decimals", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// BuildTransfer encodes a single token transfer: 4-byte selector, then the
// recipient padded to 32 bytes, then the base-unit amount padded to 32 bytes.
func BuildTransfer(t Transfer) (CallDescriptor, error) {
	token, err := chains.TokenFor(t.ChainID, t.Token)
	if err != nil {
		return CallDescriptor{}, err
	}
	units, err := ParseAmount(t.Amount, token.Decimals)
	if err != nil {
		return CallDescriptor{}, err
	}

	data := make([]byte, 0, 4+32+32)
	data = append(data, transferSelector...)
	data = append(data, common.LeftPadBytes(t.Recipient.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(units.Bytes(), 32)...)

	return CallDescriptor{
		To:        token.Address,
		Value:     "0",
		Data:      data,
		Operation: OperationCall,
	}, nil
}

// BuildBatch encodes every transfer independently, preserving input order.
func BuildBatch(transfers []Transfer) ([]CallDescriptor, error) {
	if len(transfers) == 0 {
		return nil, fmt.Errorf("batch has no transfers")
	}
	out := make([]CallDescriptor, 0, len(transfers))
	for i, t := range transfers {
		call, err := BuildTransfer(t)
		if err != nil {
			return nil, fmt.Errorf("transfer %d: %w", i, err)
		}
		out = append(out, call)
	}
	return out, nil
}
