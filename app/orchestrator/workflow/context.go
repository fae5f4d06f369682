package workflow

import (
	"github.com/trustrails/payoutd/app/orchestrator/activity"
	"github.com/trustrails/payoutd/pkg/temporal"
)

// Context holds dependencies for orchestrator workflows.
type Context struct {
	TemporalClient  *temporal.Client
	ActivityContext *activity.Context
}
