// Package orchestrator drives a disbursement through proposal, confirmation
// gating, scheduled or immediate execution, relay submission, status
// reconciliation, and recovery. Three external systems (custody service,
// chain, relay provider) can each disagree with local state at any moment;
// every decision point re-reads the authoritative source instead of trusting
// a cached copy, and every local write is compare-and-set guarded.
package orchestrator

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/custody"
	"github.com/trustrails/payoutd/pkg/db"
	"github.com/trustrails/payoutd/pkg/db/models"
	"github.com/trustrails/payoutd/pkg/relay"
	"github.com/trustrails/payoutd/pkg/signer"
)

// CustodyClient is the per-chain custody service surface the orchestrator
// consumes.
type CustodyClient interface {
	SafeInfo(ctx context.Context, walletAddress string) (*custody.SafeInfo, error)
	GetTransaction(ctx context.Context, safeTxHash string) (*custody.TransactionRecord, error)
	ProposeTransaction(ctx context.Context, req custody.ProposeRequest) error
	ConfirmTransaction(ctx context.Context, safeTxHash string, signature []byte) error
}

// CustodyFactory resolves a custody client for a chain.
type CustodyFactory interface {
	ClientFor(chainID int64) (CustodyClient, error)
}

// RelayClient is the relay provider surface.
type RelayClient interface {
	CallWithSyncFee(ctx context.Context, req relay.CallWithSyncFeeRequest) (string, error)
	TaskStatus(ctx context.Context, taskID string) (*relay.TaskStatus, error)
}

// Broadcaster sends a fully-signed wallet execution directly to the chain.
type Broadcaster interface {
	Broadcast(ctx context.Context, chainID int64, to string, data []byte) (string, error)
}

// FireScheduler arms the durable delayed job that fires a scheduled
// disbursement.
type FireScheduler interface {
	ScheduleFire(ctx context.Context, disbursementID string, version int64, at time.Time) error
}

// Notifier publishes status transitions for live consumers. Implementations
// must be best-effort; a transition never fails because of a notification.
type Notifier interface {
	NotifyStatus(ctx context.Context, d *models.Disbursement, from, to models.Status)
}

// Context bundles the orchestrator's collaborators, mirroring how worker
// activities receive their dependencies.
type Context struct {
	Logger   *zap.Logger
	Store    db.Store
	Custody  CustodyFactory
	Relay    RelayClient
	Screener Screener
	Signer   signer.Signer
	Notifier Notifier
	Fires    FireScheduler

	// Broadcast enables the direct execution path; nil means relay-only.
	Broadcast Broadcaster
}

func (c *Context) notify(ctx context.Context, d *models.Disbursement, from, to models.Status) {
	if c.Notifier == nil || d == nil {
		return
	}
	c.Notifier.NotifyStatus(ctx, d, from, to)
}

// defaultCustodyFactory builds real custody clients, cached per chain.
type defaultCustodyFactory struct {
	clients *xsync.Map[int64, CustodyClient]
}

// NewCustodyFactory returns the production factory.
func NewCustodyFactory() CustodyFactory {
	return &defaultCustodyFactory{clients: xsync.NewMap[int64, CustodyClient]()}
}

func (f *defaultCustodyFactory) ClientFor(chainID int64) (CustodyClient, error) {
	if cli, ok := f.clients.Load(chainID); ok {
		return cli, nil
	}
	cli, err := custody.NewClient(chainID)
	if err != nil {
		return nil, err
	}
	actual, _ := f.clients.LoadOrStore(chainID, CustodyClient(cli))
	return actual, nil
}
