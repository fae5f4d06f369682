// Package temporal wraps the durable-execution client. Its one job here is
// scheduled firing: a delayed workflow carrying (disbursementId,
// scheduledVersion) that executes at the disbursement's scheduledAt. Delivery
// is at-least-once; the version guard in the firer makes duplicates and stale
// jobs harmless.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/utils"
)

// ScheduledFireWorkflowName is the registered name of the firing workflow.
const ScheduledFireWorkflowName = "ScheduledFireWorkflow"

// Client wraps the Temporal SDK client and the queue/id conventions.
type Client struct {
	TClient   client.Client
	Namespace string

	// FireQueue is the task queue the orchestrator worker listens on.
	FireQueue string
}

// NewClient connects to TEMPORAL_HOSTPORT / TEMPORAL_NAMESPACE.
func NewClient(ctx context.Context, logger *zap.Logger) (*Client, error) {
	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", "payoutd")

	logger.Info("Connecting to Temporal", zap.String("host", host), zap.String("namespace", ns))
	tClient, err := Dial(ctx, host, ns, NewZapAdapter(logger))
	if err != nil {
		return nil, err
	}

	if _, err = tClient.CheckHealth(ctx, nil); err != nil {
		return nil, err
	}

	return &Client{
		TClient:   tClient,
		Namespace: ns,
		FireQueue: "disburse-fire",
	}, nil
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// FireWorkflowID builds the deterministic workflow id for one
// (disbursement, version) pair. Reusing the id makes a double-arm of the
// same version a no-op at the server.
func (c *Client) FireWorkflowID(disbursementID string, version int64) string {
	return fmt.Sprintf("disburse:fire:%s:%d", disbursementID, version)
}

// ScheduleFire arms the delayed firing workflow. A zero or negative delay
// starts it immediately. Already-started ids are tolerated.
func (c *Client) ScheduleFire(ctx context.Context, disbursementID string, version int64, at time.Time) error {
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	opts := client.StartWorkflowOptions{
		ID:         c.FireWorkflowID(disbursementID, version),
		TaskQueue:  c.FireQueue,
		StartDelay: delay,
	}
	// Reference by name to avoid importing the workflow package here.
	_, err := c.TClient.ExecuteWorkflow(ctx, opts, ScheduledFireWorkflowName, disbursementID, version)
	if err != nil {
		var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &alreadyStarted) {
			return nil
		}
		return err
	}
	return nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c.TClient != nil {
		c.TClient.Close()
	}
}
