package txbuilder

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var execTransactionSelector = crypto.Keccak256([]byte("execTransaction(address,uint256,bytes,uint8,uint256,uint256,uint256,address,address,bytes)"))[:4]

// Confirmation is one approver's signature over a transaction hash.
type Confirmation struct {
	Owner     common.Address
	Signature hexutil.Bytes
}

// AggregateSignatures concatenates confirmation signatures into the blob the
// wallet contract verifies. The contract walks owners in ascending address
// order, so the blob must be sorted by signer address; out-of-order blobs are
// rejected on-chain. The result is independent of input order.
func AggregateSignatures(confirmations []Confirmation) ([]byte, error) {
	if len(confirmations) == 0 {
		return nil, fmt.Errorf("no confirmations to aggregate")
	}
	sorted := make([]Confirmation, len(confirmations))
	copy(sorted, confirmations)
	sort.Slice(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Owner.Hex()) < strings.ToLower(sorted[j].Owner.Hex())
	})

	var blob []byte
	for _, c := range sorted {
		if len(c.Signature) == 0 {
			return nil, fmt.Errorf("confirmation from %s has no signature", c.Owner.Hex())
		}
		blob = append(blob, c.Signature...)
	}
	return blob, nil
}

// EncodeExecTransaction builds the self-contained execute-with-signatures
// payload submitted to the relay provider: the wallet's execTransaction call
// with the aggregated signature blob attached.
func EncodeExecTransaction(in HashInput, signatures []byte) ([]byte, error) {
	value, ok := new(big.Int).SetString(in.Call.Value, 10)
	if !ok {
		return nil, fmt.Errorf("bad call value %q", in.Call.Value)
	}

	// Head: 10 static slots (two of them offsets into the tail).
	const slots = 10
	head := make([]byte, 0, slots*32)
	tail := make([]byte, 0, len(in.Call.Data)+len(signatures)+128)

	appendWord := func(b []byte) { head = append(head, pad32(b)...) }
	appendBytesParam := func(b []byte) {
		offset := big.NewInt(int64(slots*32 + len(tail)))
		appendWord(offset.Bytes())
		tail = append(tail, pad32(big.NewInt(int64(len(b))).Bytes())...)
		tail = append(tail, b...)
		if pad := len(b) % 32; pad != 0 {
			tail = append(tail, make([]byte, 32-pad)...)
		}
	}

	appendWord(in.Call.To.Bytes())
	appendWord(value.Bytes())
	appendBytesParam(in.Call.Data)
	appendWord(big.NewInt(int64(in.Call.Operation)).Bytes())
	appendWord(bigOrZero(in.SafeTxGas).Bytes())
	appendWord(bigOrZero(in.BaseGas).Bytes())
	appendWord(bigOrZero(in.GasPrice).Bytes())
	appendWord(in.GasToken.Bytes())
	appendWord(in.RefundReceiver.Bytes())
	appendBytesParam(signatures)

	out := make([]byte, 0, 4+len(head)+len(tail))
	out = append(out, execTransactionSelector...)
	out = append(out, head...)
	out = append(out, tail...)
	return out, nil
}
