// Package signer produces the orchestrator's own approval signatures over
// custody transaction hashes.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/trustrails/payoutd/pkg/utils"
)

// Signer signs custody transaction hashes.
type Signer interface {
	Address() common.Address
	SignHash(hash common.Hash) ([]byte, error)
}

// Local holds the proposer key in memory. The key comes from
// PROPOSER_PRIVATE_KEY as hex.
type Local struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalFromEnv loads the proposer key from the environment.
func NewLocalFromEnv() (*Local, error) {
	hexKey := utils.Env("PROPOSER_PRIVATE_KEY", "")
	if hexKey == "" {
		return nil, fmt.Errorf("PROPOSER_PRIVATE_KEY is required")
	}
	return NewLocal(hexKey)
}

// NewLocal builds a signer from a hex-encoded private key.
func NewLocal(hexKey string) (*Local, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid proposer key: %w", err)
	}
	return &Local{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// Address returns the signer's on-chain address (a wallet owner).
func (s *Local) Address() common.Address { return s.address }

// SignHash signs the 32-byte hash directly. The recovery id is shifted to
// the 27/28 convention the wallet contract expects.
func (s *Local) SignHash(hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
