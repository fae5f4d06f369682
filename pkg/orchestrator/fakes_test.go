package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/trustrails/payoutd/pkg/custody"
	"github.com/trustrails/payoutd/pkg/db"
	"github.com/trustrails/payoutd/pkg/db/models"
	"github.com/trustrails/payoutd/pkg/relay"
)

// fakeStore is an in-memory Store with the same compare-and-set semantics as
// the postgres implementation. writes counts every successful mutation so
// tests can assert that an operation touched nothing.
type fakeStore struct {
	mu            sync.Mutex
	disbursements map[string]*models.Disbursement
	recipients    map[string][]models.Recipient
	wallets       map[string]*models.LinkedWallet
	events        []models.Event
	writes        int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		disbursements: map[string]*models.Disbursement{},
		recipients:    map[string][]models.Recipient{},
		wallets:       map[string]*models.LinkedWallet{},
	}
}

func (s *fakeStore) put(d *models.Disbursement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.disbursements[d.ID] = &cp
}

func (s *fakeStore) snapshot(id string) *models.Disbursement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.disbursements[id]; ok {
		cp := *d
		return &cp
	}
	return nil
}

func (s *fakeStore) setStatus(id string, status models.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disbursements[id].Status = status
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

func (s *fakeStore) Get(_ context.Context, id string) (*models.Disbursement, error) {
	if d := s.snapshot(id); d != nil {
		return d, nil
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) GetWithRecipients(ctx context.Context, id string) (*models.Disbursement, []models.Recipient, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return d, s.recipients[id], nil
}

func (s *fakeStore) ListByTenant(_ context.Context, tenantID string, _ int) ([]models.Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Disbursement
	for _, d := range s.disbursements {
		if d.TenantID == tenantID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeStore) ListRelaying(_ context.Context) ([]models.Disbursement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Disbursement
	for _, d := range s.disbursements {
		if d.Status == models.StatusRelaying {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeStore) Create(_ context.Context, d *models.Disbursement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	cp.CreatedAt = time.Now().UTC()
	s.disbursements[d.ID] = &cp
	s.writes++
	return nil
}

func (s *fakeStore) CreateBatch(_ context.Context, d *models.Disbursement, recipients []models.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.disbursements[d.ID] = &cp
	s.recipients[d.ID] = recipients
	s.writes++
	return nil
}

func (s *fakeStore) mutate(id string, from models.Status, fn func(*models.Disbursement)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disbursements[id]
	if !ok {
		return db.ErrNotFound
	}
	if d.Status != from {
		return fmt.Errorf("fake store: %w", db.ErrStale)
	}
	fn(d)
	d.UpdatedAt = time.Now().UTC()
	s.writes++
	return nil
}

func (s *fakeStore) recordEvent(id string, from, to models.Status, actor, detail string) {
	s.events = append(s.events, models.Event{
		DisbursementID: id,
		Actor:          actor,
		FromStatus:     from,
		ToStatus:       to,
		Detail:         detail,
		RecordedAt:     time.Now().UTC(),
	})
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, from, to models.Status, actor, detail string) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("illegal transition %s -> %s", from, to)
	}
	return s.mutate(id, from, func(d *models.Disbursement) {
		d.Status = to
		s.recordEvent(id, from, to, actor, detail)
	})
}

func (s *fakeStore) SetProposed(_ context.Context, id, safeTxHash string, scheduled bool, actor string) (int64, error) {
	var version int64
	err := s.mutate(id, models.StatusPending, func(d *models.Disbursement) {
		if d.SafeTxHash == nil {
			h := safeTxHash
			d.SafeTxHash = &h
		}
		if scheduled {
			d.Status = models.StatusScheduled
			d.ScheduledVersion++
			version = d.ScheduledVersion
		} else {
			d.Status = models.StatusProposed
		}
		s.recordEvent(id, models.StatusPending, d.Status, actor, "proposed")
	})
	return version, err
}

func (s *fakeStore) SetRelayTask(_ context.Context, id string, from models.Status, taskID, actor string) error {
	return s.mutate(id, from, func(d *models.Disbursement) {
		d.Status = models.StatusRelaying
		t := taskID
		d.RelayTaskID = &t
		s.recordEvent(id, from, models.StatusRelaying, actor, "relay task "+taskID)
	})
}

func (s *fakeStore) UpdateRelayStatus(_ context.Context, id, relayStatus string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disbursements[id]
	if !ok {
		return db.ErrNotFound
	}
	if d.Status != models.StatusRelaying && d.Status != models.StatusFailed {
		return fmt.Errorf("fake store: %w", db.ErrStale)
	}
	rs := relayStatus
	d.RelayStatus = &rs
	s.writes++
	return nil
}

func (s *fakeStore) MarkExecuted(_ context.Context, id string, from models.Status, txHash, actor, detail string) error {
	return s.mutate(id, from, func(d *models.Disbursement) {
		d.Status = models.StatusExecuted
		if d.TxHash == nil && txHash != "" {
			h := txHash
			d.TxHash = &h
		}
		s.recordEvent(id, from, models.StatusExecuted, actor, detail)
	})
}

func (s *fakeStore) MarkFailed(_ context.Context, id string, from models.Status, relayError, actor string) error {
	return s.mutate(id, from, func(d *models.Disbursement) {
		d.Status = models.StatusFailed
		e := relayError
		d.RelayError = &e
		s.recordEvent(id, from, models.StatusFailed, actor, relayError)
	})
}

func (s *fakeStore) Reschedule(_ context.Context, id string, at time.Time) (int64, error) {
	var version int64
	err := s.mutate(id, models.StatusScheduled, func(d *models.Disbursement) {
		t := at
		d.ScheduledAt = &t
		d.ScheduledVersion++
		version = d.ScheduledVersion
	})
	return version, err
}

func walletKey(tenantID string, chainID int64) string {
	return fmt.Sprintf("%s:%d", tenantID, chainID)
}

func (s *fakeStore) GetLinkedWallet(_ context.Context, tenantID string, chainID int64) (*models.LinkedWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[walletKey(tenantID, chainID)]; ok {
		cp := *w
		return &cp, nil
	}
	return nil, db.ErrNotFound
}

func (s *fakeStore) LinkWallet(_ context.Context, w *models.LinkedWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *w
	s.wallets[walletKey(w.TenantID, w.ChainID)] = &cp
	s.writes++
	return nil
}

func (s *fakeStore) ListEvents(_ context.Context, disbursementID string) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Event
	for _, e := range s.events {
		if e.DisbursementID == disbursementID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fakeCustody serves a single configurable wallet and transaction record.
type fakeCustody struct {
	mu         sync.Mutex
	info       *custody.SafeInfo
	infoErr    error
	record     *custody.TransactionRecord
	recordErr  error
	proposeErr error
	proposed   []custody.ProposeRequest
	confirmed  []string
}

func (f *fakeCustody) SafeInfo(context.Context, string) (*custody.SafeInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func (f *fakeCustody) GetTransaction(context.Context, string) (*custody.TransactionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	return f.record, nil
}

func (f *fakeCustody) ProposeTransaction(_ context.Context, req custody.ProposeRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.proposeErr != nil {
		return f.proposeErr
	}
	f.proposed = append(f.proposed, req)
	return nil
}

func (f *fakeCustody) ConfirmTransaction(_ context.Context, safeTxHash string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, safeTxHash)
	return nil
}

type fakeFactory struct{ cli *fakeCustody }

func (f *fakeFactory) ClientFor(int64) (CustodyClient, error) { return f.cli, nil }

// fakeRelay hands out one task id and serves configurable statuses.
type fakeRelay struct {
	mu        sync.Mutex
	taskID    string
	submitErr error
	statuses  map[string]*relay.TaskStatus
	statusErr error
	calls     []relay.CallWithSyncFeeRequest
	polls     int
}

func (f *fakeRelay) CallWithSyncFee(_ context.Context, req relay.CallWithSyncFeeRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.calls = append(f.calls, req)
	return f.taskID, nil
}

func (f *fakeRelay) TaskStatus(_ context.Context, taskID string) (*relay.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st, ok := f.statuses[taskID]
	if !ok {
		return nil, fmt.Errorf("unknown task %s", taskID)
	}
	return st, nil
}

// fakeSigner returns a fixed signature without touching a key.
type fakeSigner struct{ addr common.Address }

func (f *fakeSigner) Address() common.Address { return f.addr }

func (f *fakeSigner) SignHash(common.Hash) ([]byte, error) {
	sig := make([]byte, 65)
	sig[64] = 27
	return sig, nil
}

// fakeFires records armed jobs.
type fakeFires struct {
	mu    sync.Mutex
	calls []fireCall
}

type fireCall struct {
	ID      string
	Version int64
	At      time.Time
}

func (f *fakeFires) ScheduleFire(_ context.Context, id string, version int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fireCall{ID: id, Version: version, At: at})
	return nil
}

// fakeBroadcaster returns a fixed transaction hash.
type fakeBroadcaster struct {
	mu     sync.Mutex
	txHash string
	err    error
	calls  int
}

func (f *fakeBroadcaster) Broadcast(context.Context, int64, string, []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.txHash, nil
}

// fakeScreener serves one configured verdict.
type fakeScreener struct {
	result *ScreeningResult
	err    error
}

func (f *fakeScreener) CheckBeneficiaries(context.Context, []string) (*ScreeningResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
