package controller

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/trustrails/payoutd/pkg/db"
	"github.com/trustrails/payoutd/pkg/orchestrator"
)

func respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	respond(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor maps domain errors onto HTTP status codes. Upstream outages are
// 502 so callers can tell "you asked wrong" from "the world is broken".
func statusFor(err error) int {
	var validation *orchestrator.ValidationError
	var noWallet *orchestrator.NoLinkedWalletError
	var confirmations *orchestrator.InsufficientConfirmationsError
	var screening *orchestrator.ScreeningBlockedError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &noWallet):
		return http.StatusUnprocessableEntity
	case errors.As(err, &confirmations):
		return http.StatusConflict
	case errors.As(err, &screening):
		return http.StatusForbidden
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, db.ErrStale):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrCustodyUnavailable),
		errors.Is(err, orchestrator.ErrRelayFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HandleCreate creates a single-recipient disbursement draft.
func (c *Controller) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in orchestrator.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	d, err := c.App.Orchestrator.Create(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, d)
}

// HandleCreateBatch creates a batch disbursement draft.
func (c *Controller) HandleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var in orchestrator.CreateBatchInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	d, err := c.App.Orchestrator.CreateBatch(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, d)
}

// HandleGet returns one disbursement with its recipients.
func (c *Controller) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	d, recipients, err := c.App.Orchestrator.Store.GetWithRecipients(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{
		"disbursement": d,
		"recipients":   recipients,
	})
}

// HandleEvents returns the audit trail of one disbursement.
func (c *Controller) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	events, err := c.App.Orchestrator.Store.ListEvents(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, events)
}

// HandleListByTenant lists a tenant's disbursements, newest first.
func (c *Controller) HandleListByTenant(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}
	list, err := c.App.Orchestrator.Store.ListByTenant(r.Context(), tenantID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// HandlePropose registers the disbursement with the custody service.
func (c *Controller) HandlePropose(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	skip := r.URL.Query().Get("skipScreening") == "true"
	safeTxHash, err := c.App.Orchestrator.Propose(r.Context(), id, skip)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"safeTxHash": safeTxHash})
}

// HandleConfirm adds this service's signature to the proposal.
func (c *Controller) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := c.App.Orchestrator.Confirm(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"ok": "1"})
}

// HandleExecute pushes a fully-confirmed disbursement to the chain.
func (c *Controller) HandleExecute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		Mode string `json:"mode"`
	}
	_ = json.NewDecoder(r.Body).Decode(&in)
	mode := orchestrator.ExecRelayed
	if in.Mode != "" {
		mode = orchestrator.ExecMode(in.Mode)
	}
	if err := c.App.Orchestrator.Execute(r.Context(), id, mode); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]string{"ok": "1"})
}

// HandleCancel cancels a not-yet-executed disbursement.
func (c *Controller) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := c.App.Orchestrator.Cancel(r.Context(), id, c.currentUser(r)); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]string{"ok": "1"})
}

// HandleReschedule moves a scheduled disbursement to a new instant.
func (c *Controller) HandleReschedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var in struct {
		At time.Time `json:"at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	version, err := c.App.Orchestrator.Reschedule(r.Context(), id, in.At)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]any{"scheduledVersion": version})
}

// HandleRetry re-derives a failed disbursement's state and resubmits it.
func (c *Controller) HandleRetry(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := c.App.Orchestrator.Retry(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusAccepted, map[string]string{"ok": "1"})
}
