package types

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/pkg/db/postgres"
	"github.com/trustrails/payoutd/pkg/orchestrator"
	"github.com/trustrails/payoutd/pkg/redis"
	"github.com/trustrails/payoutd/pkg/temporal"
)

// User is one API operator account.
type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"hash"`
	Role     string `json:"role"`
}

type App struct {
	// Database wrapper
	DB *postgres.DB

	// Orchestrator context shared by the API, the worker, and the reconciler
	Orchestrator *orchestrator.Context

	// Temporal client and the worker on the firing queue
	TemporalClient *temporal.Client
	FireWorker     worker.Worker

	// Redis client (for Pub/Sub status events)
	RedisClient *redis.Client

	// Cron drives the relay status reconciler
	Cron     *cron.Cron
	CronSpec string

	// Zap logger
	Logger *zap.Logger

	// HTTP server
	Server *http.Server
}

// Start runs every long-lived component and blocks until the context is
// canceled.
func (a *App) Start(ctx context.Context) {
	if a.FireWorker != nil {
		if err := a.FireWorker.Start(); err != nil {
			a.Logger.Fatal("Unable to start fire worker", zap.Error(err))
		}
		a.Logger.Info("Fire worker started")
	}

	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("Reconciler cron started", zap.String("cronSpec", a.CronSpec))
	}

	go func() { _ = a.Server.ListenAndServe() }()

	<-ctx.Done()
	a.Stop()
}

// Stop shuts components down in dependency order: stop accepting work, wait
// for in-flight work, then close connections.
func (a *App) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Server != nil {
		a.Logger.Info("Shutting down HTTP server")
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.Logger.Warn("HTTP server shutdown", zap.Error(err))
		}
	}

	if a.Cron != nil {
		a.Logger.Info("Stopping reconciler cron")
		<-a.Cron.Stop().Done()
	}

	if a.FireWorker != nil {
		a.Logger.Info("Stopping fire worker")
		a.FireWorker.Stop()
	}

	if a.TemporalClient != nil {
		a.TemporalClient.Close()
	}

	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Warn("Closing redis", zap.Error(err))
		}
	}

	if a.DB != nil {
		a.Logger.Info("Closing database connection")
		a.DB.Client.Close()
	}
}
