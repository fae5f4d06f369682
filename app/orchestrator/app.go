// Package orchestrator wires the disbursement service together: postgres
// persistence, the Temporal worker for scheduled firing, the cron-driven
// relay reconciler, redis status events, and the HTTP API.
package orchestrator

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/trustrails/payoutd/app/orchestrator/activity"
	"github.com/trustrails/payoutd/app/orchestrator/types"
	"github.com/trustrails/payoutd/app/orchestrator/workflow"
	"github.com/trustrails/payoutd/pkg/broadcast"
	"github.com/trustrails/payoutd/pkg/db/postgres"
	"github.com/trustrails/payoutd/pkg/logging"
	"github.com/trustrails/payoutd/pkg/orchestrator"
	"github.com/trustrails/payoutd/pkg/redis"
	"github.com/trustrails/payoutd/pkg/relay"
	"github.com/trustrails/payoutd/pkg/signer"
	"github.com/trustrails/payoutd/pkg/temporal"
	"github.com/trustrails/payoutd/pkg/utils"
)

// Initialize builds the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	pgClient, err := postgres.New(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to connect to postgres", zap.Error(err))
	}
	db, err := postgres.NewDB(ctx, pgClient)
	if err != nil {
		logger.Fatal("Unable to initialize database schema", zap.Error(err))
	}

	temporalClient, err := temporal.NewClient(ctx, logger)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	// Redis powers the live status feed; the service runs without it.
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize redis - status events will be disabled", zap.Error(err))
			redisClient = nil
		}
	} else {
		logger.Info("Redis disabled - status events will not be published")
	}

	proposerSigner, err := signer.NewLocalFromEnv()
	if err != nil {
		logger.Fatal("Unable to load proposer key", zap.Error(err))
	}

	sender, err := broadcast.NewSenderFromEnv(logger)
	if err != nil {
		logger.Fatal("Unable to load broadcaster key", zap.Error(err))
	}
	if sender == nil {
		logger.Info("No broadcaster key configured - direct execution disabled")
	}

	orch := &orchestrator.Context{
		Logger:   logger,
		Store:    db,
		Custody:  orchestrator.NewCustodyFactory(),
		Relay:    relay.NewClient(),
		Screener: orchestrator.NewHTTPScreener(),
		Signer:   proposerSigner,
		Fires:    temporalClient,
	}
	if sender != nil {
		orch.Broadcast = sender
	}
	if redisClient != nil {
		orch.Notifier = &orchestrator.RedisNotifier{Redis: redisClient, Logger: logger}
	}

	activityContext := &activity.Context{
		Orchestrator:   orch,
		TemporalClient: temporalClient,
	}
	workflowContext := workflow.Context{
		TemporalClient:  temporalClient,
		ActivityContext: activityContext,
	}

	wkr := worker.New(
		temporalClient.TClient,
		temporalClient.FireQueue,
		worker.Options{
			MaxConcurrentActivityExecutionSize: 50,
			WorkerStopTimeout:                  1 * time.Minute,
		},
	)
	wkr.RegisterWorkflowWithOptions(
		workflowContext.ScheduledFire,
		temporalworkflow.RegisterOptions{Name: temporal.ScheduledFireWorkflowName},
	)
	wkr.RegisterActivity(activityContext.Fire)

	app := &types.App{
		DB:             db,
		Orchestrator:   orch,
		TemporalClient: temporalClient,
		FireWorker:     wkr,
		RedisClient:    redisClient,
		CronSpec:       utils.Env("RECONCILE_CRON", "*/15 * * * * *"),
		Logger:         logger,
	}

	if err := SetupScheduler(ctx, app); err != nil {
		logger.Fatal("Unable to set up reconciler", zap.Error(err))
	}

	return app
}

// SetupScheduler arms the cron that polls relay task statuses.
func SetupScheduler(ctx context.Context, app *types.App) error {
	// Seconds field enabled
	app.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	_, err := app.Cron.AddFunc(app.CronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		if err := app.Orchestrator.ReconcileOnce(rctx); err != nil {
			app.Logger.Warn("Reconcile tick failed", zap.Error(err))
		}
	})
	return err
}
