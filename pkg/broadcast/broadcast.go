// Package broadcast sends fully-signed wallet executions straight to a chain
// through JSON-RPC, for deployments that run their own relayer account
// instead of a relay provider.
package broadcast

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/utils"
)

// Sender broadcasts calldata to chains from a single relayer account.
// RPC endpoints come from RPC_URL_<chainID>; clients are dialed lazily and
// cached per chain.
type Sender struct {
	key     *ecdsa.PrivateKey
	from    common.Address
	logger  *zap.Logger
	clients *xsync.Map[int64, *ethclient.Client]
}

// NewSenderFromEnv builds a sender from BROADCASTER_PRIVATE_KEY. An empty
// key returns (nil, nil): direct broadcast is optional and the orchestrator
// treats a nil sender as relay-only.
func NewSenderFromEnv(logger *zap.Logger) (*Sender, error) {
	hexKey := utils.Env("BROADCASTER_PRIVATE_KEY", "")
	if hexKey == "" {
		return nil, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid broadcaster key: %w", err)
	}
	return &Sender{
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		logger:  logger,
		clients: xsync.NewMap[int64, *ethclient.Client](),
	}, nil
}

func (s *Sender) clientFor(chainID int64) (*ethclient.Client, error) {
	if cli, ok := s.clients.Load(chainID); ok {
		return cli, nil
	}
	url := utils.Env(fmt.Sprintf("RPC_URL_%d", chainID), "")
	if url == "" {
		return nil, fmt.Errorf("no RPC endpoint configured for chain %d", chainID)
	}
	cli, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing chain %d: %w", chainID, err)
	}
	actual, loaded := s.clients.LoadOrStore(chainID, cli)
	if loaded {
		cli.Close()
	}
	return actual, nil
}

// Broadcast signs and sends a transaction carrying the given calldata to the
// target contract, returning the transaction hash once the node accepts it.
func (s *Sender) Broadcast(ctx context.Context, chainID int64, to string, data []byte) (string, error) {
	cli, err := s.clientFor(chainID)
	if err != nil {
		return "", err
	}

	nonce, err := cli.PendingNonceAt(ctx, s.from)
	if err != nil {
		return "", fmt.Errorf("fetching nonce: %w", err)
	}
	gasPrice, err := cli.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("fetching gas price: %w", err)
	}

	target := common.HexToAddress(to)
	gasLimit, err := cli.EstimateGas(ctx, ethereum.CallMsg{
		From: s.from,
		To:   &target,
		Data: data,
	})
	if err != nil {
		return "", fmt.Errorf("estimating gas: %w", err)
	}

	tx := types.NewTransaction(nonce, target, big.NewInt(0), gasLimit, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(chainID)), s.key)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}

	if err := cli.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("sending transaction: %w", err)
	}

	s.logger.Info("transaction broadcast",
		zap.Int64("chainId", chainID),
		zap.String("to", to),
		zap.String("txHash", signedTx.Hash().Hex()))
	return signedTx.Hash().Hex(), nil
}
