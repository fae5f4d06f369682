package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a disbursement.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusProposed  Status = "proposed"
	StatusScheduled Status = "scheduled"
	StatusRelaying  Status = "relaying"
	StatusExecuted  Status = "executed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// transitions is the full edge set. The lifecycle is acyclic except for the
// explicit failed->relaying retry edge and the scheduled->scheduled reschedule
// self-edge (which bumps the version).
var transitions = map[Status][]Status{
	StatusDraft:   {StatusPending, StatusCancelled},
	StatusPending: {StatusProposed, StatusScheduled, StatusDraft, StatusCancelled},
	// proposed->executed is the direct-broadcast edge; proposed->failed is a
	// failed direct broadcast.
	StatusProposed: {StatusRelaying, StatusExecuted, StatusFailed, StatusCancelled},
	// scheduled->executed covers firing into a transaction someone already
	// executed at the custody service.
	StatusScheduled: {StatusRelaying, StatusExecuted, StatusFailed, StatusScheduled, StatusCancelled},
	StatusRelaying:  {StatusExecuted, StatusFailed},
	// failed->proposed and failed->executed are recovery re-derivations from
	// the custody service; failed->relaying is the manual retry edge.
	StatusFailed:    {StatusRelaying, StatusProposed, StatusExecuted},
	StatusExecuted:  nil,
	StatusCancelled: nil,
}

// CanTransition reports whether s -> to is a legal lifecycle edge.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Kind distinguishes single-beneficiary disbursements from batches.
type Kind string

const (
	KindSingle Kind = "single"
	KindBatch  Kind = "batch"
)

// Recipient is one beneficiary line of a batch disbursement. Position is the
// input order and is preserved through to on-chain execution.
type Recipient struct {
	ID             string    `json:"id"`
	DisbursementID string    `json:"disbursementId"`
	BeneficiaryID  string    `json:"beneficiaryId"`
	Address        string    `json:"address"`
	Amount         string    `json:"amount"`
	Position       int       `json:"position"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Disbursement is the central persisted entity. Mutations happen only through
// the store's named transitions, every one of which is guarded by a
// compare-and-set on the current status.
type Disbursement struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	ChainID  int64  `json:"chainId"`
	Token    string `json:"token"`
	Kind     Kind   `json:"kind"`

	// Single-shape fields; for batches the recipients table is authoritative
	// and TotalAmount is the validated sum.
	BeneficiaryID string `json:"beneficiaryId,omitempty"`
	Recipient     string `json:"recipient,omitempty"`
	TotalAmount   string `json:"totalAmount"`

	Status           Status     `json:"status"`
	SafeTxHash       *string    `json:"safeTxHash,omitempty"` // write-once
	TxHash           *string    `json:"txHash,omitempty"`     // write-once
	ScheduledAt      *time.Time `json:"scheduledAt,omitempty"`
	ScheduledVersion int64      `json:"scheduledVersion"`
	RelayTaskID      *string    `json:"relayTaskId,omitempty"`
	RelayStatus      *string    `json:"relayStatus,omitempty"`
	RelayError       *string    `json:"relayError,omitempty"`
	Memo             string     `json:"memo,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Event is one audit-trail row recorded alongside a status transition.
type Event struct {
	ID             int64     `json:"id"`
	DisbursementID string    `json:"disbursementId"`
	Actor          string    `json:"actor"`
	FromStatus     Status    `json:"fromStatus"`
	ToStatus       Status    `json:"toStatus"`
	Detail         string    `json:"detail,omitempty"`
	RecordedAt     time.Time `json:"recordedAt"`
}

// SumAmounts computes the batch total from recipient amounts.
func SumAmounts(recipients []Recipient) (string, error) {
	total := decimal.Zero
	for i, r := range recipients {
		d, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return "", fmt.Errorf("recipient %d: amount %q is not a number: %w", i, r.Amount, err)
		}
		if d.Sign() <= 0 {
			return "", fmt.Errorf("recipient %d: amount must be positive", i)
		}
		total = total.Add(d)
	}
	return total.String(), nil
}

// ValidateBatchTotal enforces the invariant that a stored total always equals
// the recomputed sum of recipient amounts.
func ValidateBatchTotal(total string, recipients []Recipient) error {
	if len(recipients) == 0 {
		return fmt.Errorf("batch has no recipients")
	}
	sum, err := SumAmounts(recipients)
	if err != nil {
		return err
	}
	want, err := decimal.NewFromString(total)
	if err != nil {
		return fmt.Errorf("total %q is not a number: %w", total, err)
	}
	got, _ := decimal.NewFromString(sum)
	if !want.Equal(got) {
		return fmt.Errorf("batch total %s does not match recipient sum %s", total, sum)
	}
	return nil
}
