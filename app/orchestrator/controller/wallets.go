package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"

	"github.com/trustrails/payoutd/pkg/chains"
	"github.com/trustrails/payoutd/pkg/db/models"
)

// HandleChainsList returns the supported chains and their stablecoins.
func (c *Controller) HandleChainsList(w http.ResponseWriter, _ *http.Request) {
	type tokenOut struct {
		Symbol   string `json:"symbol"`
		Address  string `json:"address"`
		Decimals int32  `json:"decimals"`
	}
	type chainOut struct {
		ID      int64      `json:"id"`
		Name    string     `json:"name"`
		Testnet bool       `json:"testnet"`
		Tokens  []tokenOut `json:"tokens"`
	}

	out := make([]chainOut, 0)
	for _, id := range chains.IDs() {
		ch, err := chains.ByID(id)
		if err != nil {
			continue
		}
		tokens := make([]tokenOut, 0, len(ch.Tokens))
		for _, t := range ch.Tokens {
			tokens = append(tokens, tokenOut{Symbol: t.Symbol, Address: t.Address.Hex(), Decimals: t.Decimals})
		}
		out = append(out, chainOut{ID: ch.ID, Name: ch.Name, Testnet: ch.Testnet, Tokens: tokens})
	}
	respond(w, http.StatusOK, out)
}

// HandleLinkWallet binds a custody wallet address to (tenant, chain).
func (c *Controller) HandleLinkWallet(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]
	var in struct {
		ChainID int64  `json:"chainId"`
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
		return
	}
	if _, err := chains.ByID(in.ChainID); err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !common.IsHexAddress(in.Address) {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid wallet address"})
		return
	}

	wallet := &models.LinkedWallet{
		TenantID:      tenantID,
		ChainID:       in.ChainID,
		WalletAddress: common.HexToAddress(in.Address).Hex(),
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.App.Orchestrator.Store.LinkWallet(r.Context(), wallet); err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, wallet)
}

// HandleGetWallet returns the linked wallet for (tenant, chain).
func (c *Controller) HandleGetWallet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID := vars["tenantId"]
	chainID, err := strconv.ParseInt(vars["chainId"], 10, 64)
	if err != nil {
		respond(w, http.StatusBadRequest, map[string]string{"error": "invalid chain id"})
		return
	}
	wallet, err := c.App.Orchestrator.Store.GetLinkedWallet(r.Context(), tenantID, chainID)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, wallet)
}
