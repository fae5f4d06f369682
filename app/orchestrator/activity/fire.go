package activity

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"
)

// FireInput carries the identity of one armed schedule. The version pins the
// job to the schedule it was created for.
type FireInput struct {
	DisbursementID string `json:"disbursementId"`
	Version        int64  `json:"version"`
}

// Fire executes one scheduled firing attempt. Stale jobs resolve to a
// skipped outcome rather than an error so Temporal does not retry them.
func (c *Context) Fire(ctx context.Context, in *FireInput) (string, error) {
	logger := activity.GetLogger(ctx)

	outcome, err := c.Orchestrator.FireScheduled(ctx, in.DisbursementID, in.Version)
	if err != nil {
		return string(outcome), err
	}

	logger.Info("scheduled fire attempt finished",
		zap.String("disbursement", in.DisbursementID),
		zap.Int64("version", in.Version),
		zap.String("outcome", string(outcome)))
	return string(outcome), nil
}
