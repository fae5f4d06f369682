package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/trustrails/payoutd/app/orchestrator/activity"
)

// ScheduledFire runs when a disbursement's scheduled time arrives. The
// workflow is started with a delay at proposal time; by the time it executes
// the schedule may have been superseded, which the firing activity detects
// through the version and resolves as a skip. Custody-service outages are
// retried here, everything else is final on the first attempt.
func (wc *Context) ScheduledFire(ctx workflow.Context, disbursementID string, version int64) (string, error) {
	act := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    5,
		},
		TaskQueue: wc.TemporalClient.FireQueue,
	}
	ctx = workflow.WithActivityOptions(ctx, act)

	var outcome string
	err := workflow.ExecuteActivity(ctx, wc.ActivityContext.Fire, &activity.FireInput{
		DisbursementID: disbursementID,
		Version:        version,
	}).Get(ctx, &outcome)
	if err != nil {
		return outcome, err
	}
	return outcome, nil
}
