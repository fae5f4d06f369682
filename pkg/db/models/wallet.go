package models

import "time"

// LinkedWallet ties a tenant to its custody wallet on one chain.
type LinkedWallet struct {
	TenantID      string    `json:"tenantId"`
	ChainID       int64     `json:"chainId"`
	WalletAddress string    `json:"walletAddress"`
	CreatedAt     time.Time `json:"createdAt"`
}
