package orchestrator

import (
	"errors"
	"fmt"
)

// ValidationError covers bad amounts and unknown token/chain combinations.
// It is surfaced synchronously with no state mutation.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation: %s: %v", e.Reason, e.Err)
	}
	return "validation: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NoLinkedWalletError means the tenant has no custody wallet on the chain.
type NoLinkedWalletError struct {
	TenantID string
	ChainID  int64
}

func (e *NoLinkedWalletError) Error() string {
	return fmt.Sprintf("no linked wallet for tenant %s on chain %d", e.TenantID, e.ChainID)
}

// InsufficientConfirmationsError means execution was refused because the
// live confirmation count is below the wallet threshold.
type InsufficientConfirmationsError struct {
	Have int
	Need int
}

func (e *InsufficientConfirmationsError) Error() string {
	return fmt.Sprintf("insufficient confirmations: have %d, need %d", e.Have, e.Need)
}

// ScreeningBlockedError aborts an operation because the screening gate
// flagged a beneficiary under block enforcement, or under warn enforcement
// without an explicit proceed.
type ScreeningBlockedError struct {
	Enforcement string
	Flagged     []string
}

func (e *ScreeningBlockedError) Error() string {
	return fmt.Sprintf("screening %s: %d beneficiaries flagged", e.Enforcement, len(e.Flagged))
}

var (
	// ErrCustodyUnavailable wraps network and 5xx failures from the custody
	// service.
	ErrCustodyUnavailable = errors.New("custody service unavailable")

	// ErrRelayFailure wraps provider rejections and missing task ids.
	ErrRelayFailure = errors.New("relay failure")
)
