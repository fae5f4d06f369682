// Package chains holds the static per-chain configuration the orchestrator
// needs: the custody transaction-service base URL, the supported stablecoins
// with their contract addresses and decimal counts, and the native-token
// sentinel used when a relay fee cannot be paid in a stablecoin.
package chains

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// NativeTokenSentinel is the conventional pseudo-address relay providers use
// to mean "pay the fee in the chain's native token".
var NativeTokenSentinel = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Token describes a supported ERC-20 stablecoin on one chain.
type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int32
}

// Chain describes one supported network.
type Chain struct {
	ID           int64
	Name         string
	TxServiceURL string // custody transaction-service base URL
	Testnet      bool
	Tokens       []Token
}

var registry = map[int64]Chain{
	1: {
		ID:           1,
		Name:         "ethereum",
		TxServiceURL: "https://safe-transaction-mainnet.safe.global/api",
		Tokens: []Token{
			{Symbol: "USDC", Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), Decimals: 6},
			{Symbol: "USDT", Address: common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), Decimals: 6},
			{Symbol: "DAI", Address: common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"), Decimals: 18},
		},
	},
	10: {
		ID:           10,
		Name:         "optimism",
		TxServiceURL: "https://safe-transaction-optimism.safe.global/api",
		Tokens: []Token{
			{Symbol: "USDC", Address: common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"), Decimals: 6},
			{Symbol: "USDT", Address: common.HexToAddress("0x94b008aA00579c1307B0EF2c499aD98a8ce58e58"), Decimals: 6},
		},
	},
	100: {
		ID:           100,
		Name:         "gnosis",
		TxServiceURL: "https://safe-transaction-gnosis-chain.safe.global/api",
		Tokens: []Token{
			{Symbol: "USDC", Address: common.HexToAddress("0xDDAfbb505ad214D7b80b1f830fcCc89B60fb7A83"), Decimals: 6},
		},
	},
	137: {
		ID:           137,
		Name:         "polygon",
		TxServiceURL: "https://safe-transaction-polygon.safe.global/api",
		Tokens: []Token{
			{Symbol: "USDC", Address: common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"), Decimals: 6},
			{Symbol: "USDT", Address: common.HexToAddress("0xc2132D05D31c914a87C6611C10748AEb04B58e8F"), Decimals: 6},
			{Symbol: "DAI", Address: common.HexToAddress("0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063"), Decimals: 18},
		},
	},
	8453: {
		ID:           8453,
		Name:         "base",
		TxServiceURL: "https://safe-transaction-base.safe.global/api",
		Tokens: []Token{
			{Symbol: "USDC", Address: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"), Decimals: 6},
		},
	},
	42161: {
		ID:           42161,
		Name:         "arbitrum",
		TxServiceURL: "https://safe-transaction-arbitrum.safe.global/api",
		Tokens: []Token{
			{Symbol: "USDC", Address: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), Decimals: 6},
			{Symbol: "USDT", Address: common.HexToAddress("0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9"), Decimals: 6},
		},
	},
	84532: {
		ID:           84532,
		Name:         "base-sepolia",
		TxServiceURL: "https://safe-transaction-base-sepolia.safe.global/api",
		Testnet:      true,
		Tokens: []Token{
			{Symbol: "USDC", Address: common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"), Decimals: 6},
		},
	},
	11155111: {
		ID:           11155111,
		Name:         "sepolia",
		TxServiceURL: "https://safe-transaction-sepolia.safe.global/api",
		Testnet:      true,
		Tokens: []Token{
			{Symbol: "USDC", Address: common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"), Decimals: 6},
		},
	},
}

// ByID returns the chain configuration for the given chain id.
func ByID(chainID int64) (Chain, error) {
	c, ok := registry[chainID]
	if !ok {
		return Chain{}, fmt.Errorf("unsupported chain id %d", chainID)
	}
	return c, nil
}

// TokenFor resolves a token symbol on a chain.
func TokenFor(chainID int64, symbol string) (Token, error) {
	c, err := ByID(chainID)
	if err != nil {
		return Token{}, err
	}
	for _, t := range c.Tokens {
		if t.Symbol == symbol {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("token %s not configured on chain %d", symbol, chainID)
}

// Stablecoins returns every configured stablecoin on the chain, in
// registry order (preference order for relay fee selection).
func Stablecoins(chainID int64) []Token {
	c, ok := registry[chainID]
	if !ok {
		return nil
	}
	return c.Tokens
}

// IDs returns all configured chain ids.
func IDs() []int64 {
	out := make([]int64, 0, len(registry))
	for id := range registry {
		out = append(out, id)
	}
	return out
}
