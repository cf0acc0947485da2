// Command cron-worker runs the periodic maintenance jobs. Replicas compete for
// a Redis lease, so only one of them works a given cycle.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/budgetdesk-backend/internal/budgets"
	"github.com/angelmondragon/budgetdesk-backend/internal/cron"
	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db"
	"github.com/angelmondragon/budgetdesk-backend/pkg/instance"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/metrics"
	"github.com/angelmondragon/budgetdesk-backend/pkg/migrate"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox"
	"github.com/angelmondragon/budgetdesk-backend/pkg/redis"
)

const serviceName = "cron-worker"

func main() {
	bootLog := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceName,
		"instance":    instance.GetID(),
		"lease":       cfg.Cron.LeaseName,
	})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	jobs, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	lease, err := cron.NewRedisLease(redisClient, cfg.Cron.LeaseName, cfg.Cron.LeaseTTL)
	if err != nil {
		return fmt.Errorf("cron lease: %w", err)
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lease:      lease,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	metrics.ServeInBackground(ctx, cfg.App.MetricsAddr, prometheus.DefaultGatherer, logg)
	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

// buildJobs registers the maintenance jobs in the order a cycle runs them.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())

	stale, err := cron.NewStaleBudgetJob(cron.StaleBudgetJobParams{
		Logger:     logg,
		DB:         dbClient,
		Budgets:    budgets.NewRepository(dbClient.DB()),
		Outbox:     outbox.NewService(outboxRepo, logg),
		StaleAfter: cfg.Cron.StaleAfter,
		BatchSize:  cfg.Cron.StaleBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("stale budget job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		Repository:    outboxRepo,
		RetentionDays: cfg.Outbox.RetentionDays,
		BatchSize:     cfg.Outbox.RetentionBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	jobs, err := cron.NewRegistry(stale, retention)
	if err != nil {
		return nil, fmt.Errorf("register cron jobs: %w", err)
	}
	return jobs, nil
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
