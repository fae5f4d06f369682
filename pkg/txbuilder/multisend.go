package txbuilder

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// multiSendCallOnly is the canonical aggregator contract (same address on
// every supported chain). The wallet delegatecalls into it with the packed
// transaction list so a batch executes as one custody transaction.
var multiSendCallOnly = common.HexToAddress("0x40A2aCCbd92BCA938b02010E17A5b8929b49130D")

var multiSendSelector = crypto.Keccak256([]byte("multiSend(bytes)"))[:4]

// AggregateBatch packs an ordered list of calls into a single multiSend call
// descriptor. Packed element layout, per call:
// operation (1 byte) | to (20 bytes) | value (32 bytes) | len(data) (32 bytes) | data.
// The packed order is the input order; it is what executes on-chain.
func AggregateBatch(calls []CallDescriptor) (CallDescriptor, error) {
	if len(calls) == 0 {
		return CallDescriptor{}, fmt.Errorf("empty batch")
	}
	if len(calls) == 1 {
		return calls[0], nil
	}

	var packed []byte
	for i, c := range calls {
		if c.Operation != OperationCall {
			return CallDescriptor{}, fmt.Errorf("call %d: only plain calls can be aggregated", i)
		}
		value, ok := new(big.Int).SetString(c.Value, 10)
		if !ok {
			return CallDescriptor{}, fmt.Errorf("call %d: bad value %q", i, c.Value)
		}
		packed = append(packed, byte(OperationCall))
		packed = append(packed, c.To.Bytes()...)
		packed = append(packed, common.LeftPadBytes(value.Bytes(), 32)...)
		packed = append(packed, common.LeftPadBytes(big.NewInt(int64(len(c.Data))).Bytes(), 32)...)
		packed = append(packed, c.Data...)
	}

	// multiSend(bytes): selector | offset | length | payload (padded to 32).
	data := make([]byte, 0, 4+64+len(packed)+32)
	data = append(data, multiSendSelector...)
	data = append(data, common.LeftPadBytes(big.NewInt(32).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(int64(len(packed))).Bytes(), 32)...)
	data = append(data, packed...)
	if pad := len(packed) % 32; pad != 0 {
		data = append(data, make([]byte, 32-pad)...)
	}

	return CallDescriptor{
		To:        multiSendCallOnly,
		Value:     "0",
		Data:      data,
		Operation: OperationDelegateCall,
	}, nil
}
