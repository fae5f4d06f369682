package activity

import (
	"github.com/trustrails/payoutd/pkg/orchestrator"
	"github.com/trustrails/payoutd/pkg/temporal"
)

// Context holds dependencies for orchestrator activities.
type Context struct {
	Orchestrator   *orchestrator.Context
	TemporalClient *temporal.Client
}
