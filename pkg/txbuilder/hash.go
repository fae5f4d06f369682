package txbuilder

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// EIP-712 type hashes used by the custody wallet contract.
var (
	domainSeparatorTypehash = crypto.Keccak256([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypehash          = crypto.Keccak256([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// HashInput carries everything the wallet contract hashes over. Gas fields
// default to zero for relayed execution; the custody service may fill them in
// for direct broadcast.
type HashInput struct {
	ChainID        int64
	Wallet         common.Address
	Call           CallDescriptor
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          uint64
}

func pad32(b []byte) []byte { return common.LeftPadBytes(b, 32) }

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// TransactionHash computes the hash the custody wallet assigns to a proposed
// transaction: keccak256(0x19 0x01 || domainSeparator || structHash). The
// result is deterministic for a given call and wallet nonce, which is what
// makes safeTxHash a stable identity for the proposal.
func TransactionHash(in HashInput) common.Hash {
	domain := crypto.Keccak256(
		domainSeparatorTypehash,
		pad32(big.NewInt(in.ChainID).Bytes()),
		pad32(in.Wallet.Bytes()),
	)

	value, _ := new(big.Int).SetString(in.Call.Value, 10)
	structHash := crypto.Keccak256(
		safeTxTypehash,
		pad32(in.Call.To.Bytes()),
		pad32(bigOrZero(value).Bytes()),
		crypto.Keccak256(in.Call.Data),
		pad32(big.NewInt(int64(in.Call.Operation)).Bytes()),
		pad32(bigOrZero(in.SafeTxGas).Bytes()),
		pad32(bigOrZero(in.BaseGas).Bytes()),
		pad32(bigOrZero(in.GasPrice).Bytes()),
		pad32(in.GasToken.Bytes()),
		pad32(in.RefundReceiver.Bytes()),
		pad32(new(big.Int).SetUint64(in.Nonce).Bytes()),
	)

	return common.BytesToHash(crypto.Keccak256([]byte{0x19, 0x01}, domain, structHash))
}
