package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/trustrails/payoutd/app/orchestrator/types"
	"github.com/trustrails/payoutd/pkg/utils"
)

type Controller struct {
	App       *types.App
	APIToken  string
	AuthUser  string
	Users     map[string]types.User
	AuthHash  []byte
	JWTSecret []byte
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	apiToken := utils.Env("API_TOKEN", "devtoken")
	opsUser := utils.Env("OPS_USER", "operator")
	opsUsersJSON := utils.Env("OPS_USERS", "")
	opsPass := utils.Env("OPS_PASSWORD", "operator")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", "change-me-please"))

	phash, _ := utils.HashOrRead(opsPass)
	users := map[string]types.User{}
	users[opsUser] = types.User{Username: opsUser, Hash: phash, Role: "operator"}
	if opsUsersJSON != "" {
		_ = json.Unmarshal([]byte(opsUsersJSON), &users)
	}

	return &Controller{
		App:       app,
		APIToken:  apiToken,
		AuthUser:  opsUser,
		Users:     users,
		AuthHash:  phash,
		JWTSecret: jwtSecret,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodPut+", "+http.MethodPatch+", "+http.MethodDelete+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/api/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	// Login/Logout
	r.HandleFunc("/api/auth/login", c.HandleLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleLogout).Methods(http.MethodPost)

	// Chain and token catalog
	r.Handle("/api/chains", c.RequireAuth(http.HandlerFunc(c.HandleChainsList))).Methods(http.MethodGet)

	// Disbursement lifecycle
	r.Handle("/api/disbursements", c.RequireAuth(http.HandlerFunc(c.HandleCreate))).Methods(http.MethodPost)
	r.Handle("/api/disbursements/batch", c.RequireAuth(http.HandlerFunc(c.HandleCreateBatch))).Methods(http.MethodPost)
	r.Handle("/api/disbursements/{id}", c.RequireAuth(http.HandlerFunc(c.HandleGet))).Methods(http.MethodGet)
	r.Handle("/api/disbursements/{id}/events", c.RequireAuth(http.HandlerFunc(c.HandleEvents))).Methods(http.MethodGet)
	r.Handle("/api/disbursements/{id}/propose", c.RequireAuth(http.HandlerFunc(c.HandlePropose))).Methods(http.MethodPost)
	r.Handle("/api/disbursements/{id}/confirm", c.RequireAuth(http.HandlerFunc(c.HandleConfirm))).Methods(http.MethodPost)
	r.Handle("/api/disbursements/{id}/execute", c.RequireAuth(http.HandlerFunc(c.HandleExecute))).Methods(http.MethodPost)
	r.Handle("/api/disbursements/{id}/cancel", c.RequireAuth(http.HandlerFunc(c.HandleCancel))).Methods(http.MethodPost)
	r.Handle("/api/disbursements/{id}/reschedule", c.RequireAuth(http.HandlerFunc(c.HandleReschedule))).Methods(http.MethodPost)
	r.Handle("/api/disbursements/{id}/retry", c.RequireAuth(http.HandlerFunc(c.HandleRetry))).Methods(http.MethodPost)

	// Tenant-scoped views and custody wallet links
	r.Handle("/api/tenants/{tenantId}/disbursements", c.RequireAuth(http.HandlerFunc(c.HandleListByTenant))).Methods(http.MethodGet)
	r.Handle("/api/tenants/{tenantId}/wallets", c.RequireAuth(http.HandlerFunc(c.HandleLinkWallet))).Methods(http.MethodPut)
	r.Handle("/api/tenants/{tenantId}/wallets/{chainId}", c.RequireAuth(http.HandlerFunc(c.HandleGetWallet))).Methods(http.MethodGet)

	// WebSocket endpoint for real-time status events
	r.HandleFunc("/api/ws", c.HandleWebSocket).Methods(http.MethodGet)

	return r, nil
}
