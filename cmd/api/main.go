package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/budgetdesk-backend/api/routes"
	"github.com/angelmondragon/budgetdesk-backend/internal/budgets"
	"github.com/angelmondragon/budgetdesk-backend/internal/cart"
	"github.com/angelmondragon/budgetdesk-backend/internal/notifications"
	"github.com/angelmondragon/budgetdesk-backend/internal/products"
	"github.com/angelmondragon/budgetdesk-backend/internal/users"
	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db"
	"github.com/angelmondragon/budgetdesk-backend/pkg/instance"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/metrics"
	"github.com/angelmondragon/budgetdesk-backend/pkg/migrate"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/registry"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/relay"
	"github.com/angelmondragon/budgetdesk-backend/pkg/redis"
)

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	integrations, err := budgets.NewIntegrations(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap integrations", err)
		os.Exit(1)
	}
	defer integrations.Close()

	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient, products.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	budgetRepo := budgets.NewRepository(dbClient.DB())
	budgetService, err := budgets.NewService(budgets.ServiceParams{
		Repository:  budgetRepo,
		Tx:          dbClient,
		Outbox:      outbox.NewService(outboxRepo, logg),
		Documents:   integrations.Documents,
		Rates:       integrations.Rates,
		CompanyName: cfg.PDF.CompanyName,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create budget service", err)
		os.Exit(1)
	}

	notificationService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"transport": cfg.Eventing.Transport,
		"instance":  instance.GetID(),
	})

	var (
		relayDone = make(chan struct{})
		sink      *relay.LocalSink
	)
	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()

	if cfg.Eventing.UsePubSub() {
		close(relayDone)
	} else {
		effects, err := budgets.NewEffects(budgets.EffectsParams{
			Logger:        logg,
			Notifications: notificationService,
			Users:         users.NewRepository(dbClient.DB()),
			Budgets:       budgetRepo,
			Rates:         integrations.Rates,
			Documents:     integrations.Documents,
			Mailer:        integrations.Mailer,
			Mail:          cfg.Mail,
			CompanyName:   cfg.PDF.CompanyName,
			PublicURL:     cfg.App.PublicURL,
		})
		if err != nil {
			logg.Error(ctx, "failed to create budget effects", err)
			os.Exit(1)
		}
		outboxMetrics := metrics.NewOutboxMetrics(prometheus.DefaultRegisterer)
		sink, err = relay.NewLocalSink(relay.LocalSinkParams{
			Logger:    logg,
			Handler:   effects,
			Metrics:   outboxMetrics,
			Workers:   cfg.Eventing.LocalWorkers,
			QueueSize: cfg.Eventing.LocalQueueSize,
		})
		if err != nil {
			logg.Error(ctx, "failed to create local sink", err)
			os.Exit(1)
		}
		eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
		if err != nil {
			logg.Error(ctx, "failed to build event registry", err)
			os.Exit(1)
		}
		relayService, err := relay.NewService(relay.ServiceParams{
			Logger:        logg,
			DB:            dbClient,
			Repository:    outboxRepo,
			Registry:      eventRegistry,
			DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
			Sink:          sink,
			Metrics:       outboxMetrics,
			BatchSize:     cfg.Outbox.BatchSize,
			PollInterval:  cfg.Outbox.PollInterval(),
			MaxAttempts:   cfg.Outbox.MaxAttempts,
		})
		if err != nil {
			logg.Error(ctx, "failed to create outbox relay", err)
			os.Exit(1)
		}

		sink.Start()
		go func() {
			defer close(relayDone)
			if err := relayService.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error(ctx, "outbox relay stopped unexpectedly", err)
			}
		}()
	}

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Cart:          cartService,
			Budgets:       budgetService,
			Notifications: notificationService,
			HTTPMetrics:   metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		logg.Info(ctx, "api server shutting down")
	case err := <-serverErr:
		if err != nil {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "api server shutdown failed", err)
	}

	cancelRelay()
	<-relayDone
	if sink != nil {
		sink.Close()
	}

	if exitCode != 0 {
		os.Exit(exitCode)
	}
	logg.Info(ctx, "api server stopped gracefully")
}
