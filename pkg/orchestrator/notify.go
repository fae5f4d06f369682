package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/db/models"
	"github.com/trustrails/payoutd/pkg/redis"
)

// StatusNotification is the wire shape published on every transition.
type StatusNotification struct {
	DisbursementID string        `json:"disbursementId"`
	TenantID       string        `json:"tenantId"`
	ChainID        int64         `json:"chainId"`
	From           models.Status `json:"from"`
	To             models.Status `json:"to"`
	At             time.Time     `json:"at"`
}

// RedisNotifier publishes status transitions to per-tenant channels so live
// consumers (the websocket feed, external subscribers) see transitions as
// they happen.
type RedisNotifier struct {
	Redis  *redis.Client
	Logger *zap.Logger
}

// StatusChannel names the per-tenant Pub/Sub channel.
func StatusChannel(tenantID string) string {
	return fmt.Sprintf("payout:%s:status", tenantID)
}

func (n *RedisNotifier) NotifyStatus(ctx context.Context, d *models.Disbursement, from, to models.Status) {
	payload, err := json.Marshal(StatusNotification{
		DisbursementID: d.ID,
		TenantID:       d.TenantID,
		ChainID:        d.ChainID,
		From:           from,
		To:             to,
		At:             time.Now().UTC(),
	})
	if err != nil {
		n.Logger.Error("failed to encode status notification", zap.Error(err))
		return
	}
	n.Redis.Publish(ctx, StatusChannel(d.TenantID), payload)
}
