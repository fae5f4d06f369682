package orchestrator

import (
	"context"
	"net/http"
	"time"

	"github.com/trustrails/payoutd/pkg/rpc"
	"github.com/trustrails/payoutd/pkg/utils"
)

// Enforcement is the screening service's configured posture.
type Enforcement string

const (
	EnforcementBlock Enforcement = "block"
	EnforcementWarn  Enforcement = "warn"
	EnforcementOff   Enforcement = "off"
)

// ScreeningResult is the yes/no/warn outcome the orchestrator consumes. The
// matching logic behind it lives in the external screening service.
type ScreeningResult struct {
	Enforcement Enforcement `json:"enforcement"`
	Flagged     []string    `json:"flagged"`
}

// Screener is the sanctions-screening gate consulted before create, propose,
// and execute.
type Screener interface {
	CheckBeneficiaries(ctx context.Context, beneficiaryIDs []string) (*ScreeningResult, error)
}

// gate applies the enforcement policy. skip is the caller's explicit
// "proceed anyway", honored only under warn enforcement.
func (c *Context) gate(ctx context.Context, beneficiaryIDs []string, skip bool) error {
	if c.Screener == nil || len(beneficiaryIDs) == 0 {
		return nil
	}
	res, err := c.Screener.CheckBeneficiaries(ctx, beneficiaryIDs)
	if err != nil {
		return err
	}
	if res.Enforcement == EnforcementOff || len(res.Flagged) == 0 {
		return nil
	}
	if res.Enforcement == EnforcementWarn && skip {
		return nil
	}
	return &ScreeningBlockedError{Enforcement: string(res.Enforcement), Flagged: res.Flagged}
}

// HTTPScreener calls the external screening service.
type HTTPScreener struct {
	http *rpc.HTTPClient
}

// NewHTTPScreener reads SCREENING_SERVICE_URL; empty disables the gate.
func NewHTTPScreener() *HTTPScreener {
	endpoint := utils.Env("SCREENING_SERVICE_URL", "")
	if endpoint == "" {
		return nil
	}
	return &HTTPScreener{
		http: rpc.NewHTTPWithOpts(rpc.Opts{
			Endpoints: []string{endpoint},
			Timeout:   10 * time.Second,
		}),
	}
}

// CheckBeneficiaries asks the screening service about the given ids.
func (s *HTTPScreener) CheckBeneficiaries(ctx context.Context, beneficiaryIDs []string) (*ScreeningResult, error) {
	var out ScreeningResult
	payload := map[string]any{"beneficiaryIds": beneficiaryIDs}
	if err := s.http.DoJSON(ctx, http.MethodPost, "/v1/screening/check", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
