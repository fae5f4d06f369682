// Package relay is the typed HTTP client for the gas-less relay provider.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/trustrails/payoutd/pkg/rpc"
	"github.com/trustrails/payoutd/pkg/utils"
)

// Client talks to the relay provider.
type Client struct {
	http *rpc.HTTPClient
}

// NewClient reads RELAY_SERVICE_URL (and optional RELAY_API_KEY).
func NewClient() *Client {
	endpoint := utils.Env("RELAY_SERVICE_URL", "https://api.gelato.digital")
	headers := map[string]string{}
	if key := utils.Env("RELAY_API_KEY", ""); key != "" {
		headers["Authorization"] = "Bearer " + key
	}
	return NewClientWithEndpoint(endpoint, headers)
}

// NewClientWithEndpoint builds a client against an explicit base URL.
func NewClientWithEndpoint(endpoint string, headers map[string]string) *Client {
	return &Client{
		http: rpc.NewHTTPWithOpts(rpc.Opts{
			Endpoints: []string{endpoint},
			Timeout:   20 * time.Second,
			RPS:       10,
			Burst:     20,
			Headers:   headers,
		}),
	}
}

// CallWithSyncFee submits a relay job and returns the task id. A 2xx response
// without a task id is still a failure: there is nothing to poll.
func (c *Client) CallWithSyncFee(ctx context.Context, req CallWithSyncFeeRequest) (string, error) {
	var out CallWithSyncFeeResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, "/relays/v2/call-with-sync-fee", req, &out); err != nil {
		return "", err
	}
	if out.TaskID == "" {
		return "", fmt.Errorf("relay accepted the call but returned no task id")
	}
	return out.TaskID, nil
}

// TaskStatus polls the provider for the task's current state.
func (c *Client) TaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var out TaskStatus
	if err := c.http.DoJSON(ctx, http.MethodGet, fmt.Sprintf("/tasks/status/%s", taskID), nil, &out); err != nil {
		return nil, err
	}
	if out.TaskID == "" {
		out.TaskID = taskID
	}
	return &out, nil
}
