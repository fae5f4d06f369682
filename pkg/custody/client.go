// Package custody is the typed HTTP client for the per-chain multisig
// custody service.
package custody

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/trustrails/payoutd/pkg/chains"
	"github.com/trustrails/payoutd/pkg/rpc"
	"github.com/trustrails/payoutd/pkg/utils"
)

var (
	// ErrTransactionNotFound means the service has no record of the hash.
	// This is an authoritative answer, not an outage.
	ErrTransactionNotFound = errors.New("custody: transaction not found")

	// ErrSafeNotFound means the wallet address is unknown to the service.
	ErrSafeNotFound = errors.New("custody: safe not found")
)

// Client talks to one chain's custody transaction service.
type Client struct {
	chainID int64
	http    *rpc.HTTPClient
}

// NewClient resolves the chain's service base URL from the static registry.
// CUSTODY_SERVICE_URL overrides it for every chain (local mocks, staging).
func NewClient(chainID int64) (*Client, error) {
	chain, err := chains.ByID(chainID)
	if err != nil {
		return nil, err
	}
	endpoint := utils.Env("CUSTODY_SERVICE_URL", chain.TxServiceURL)
	return NewClientWithEndpoint(chainID, endpoint), nil
}

// NewClientWithEndpoint builds a client against an explicit base URL.
func NewClientWithEndpoint(chainID int64, endpoint string) *Client {
	return &Client{
		chainID: chainID,
		http: rpc.NewHTTPWithOpts(rpc.Opts{
			Endpoints: []string{endpoint},
			Timeout:   20 * time.Second,
			RPS:       10,
			Burst:     20,
		}),
	}
}

// ChainID returns the chain this client is bound to.
func (c *Client) ChainID() int64 { return c.chainID }

// SafeInfo fetches the wallet's owners, threshold and current nonce.
func (c *Client) SafeInfo(ctx context.Context, walletAddress string) (*SafeInfo, error) {
	var out SafeInfo
	err := c.http.DoJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/safes/%s/", walletAddress), nil, &out)
	if err != nil {
		var se *rpc.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, ErrSafeNotFound
		}
		return nil, err
	}
	return &out, nil
}

// GetTransaction fetches the live record for a proposed transaction hash.
func (c *Client) GetTransaction(ctx context.Context, safeTxHash string) (*TransactionRecord, error) {
	var out TransactionRecord
	err := c.http.DoJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/multisig-transactions/%s/", safeTxHash), nil, &out)
	if err != nil {
		var se *rpc.StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &out, nil
}

// ProposeTransaction registers a proposal with the service.
func (c *Client) ProposeTransaction(ctx context.Context, req ProposeRequest) error {
	return c.http.DoJSON(ctx, http.MethodPost, "/v1/multisig-transactions/", req, nil)
}

// ConfirmTransaction adds a signature to an existing proposal.
func (c *Client) ConfirmTransaction(ctx context.Context, safeTxHash string, signature []byte) error {
	req := ConfirmRequest{Hash: safeTxHash, Signature: signature}
	return c.http.DoJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/multisig-transactions/%s/confirmations/", safeTxHash), req, nil)
}
