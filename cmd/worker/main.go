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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/appointly-backend/internal/businesses"
	"github.com/angelmondragon/appointly-backend/internal/cron"
	"github.com/angelmondragon/appointly-backend/internal/subscriptions"
	"github.com/angelmondragon/appointly-backend/pkg/config"
	"github.com/angelmondragon/appointly-backend/pkg/db"
	"github.com/angelmondragon/appointly-backend/pkg/instance"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
	"github.com/angelmondragon/appointly-backend/pkg/metrics"
	"github.com/angelmondragon/appointly-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/appointly-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(context.Background(), "worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()

	inviteJob, err := cron.NewInviteExpiryJob(cron.InviteExpiryJobParams{
		Logger:  logg,
		Invites: businesses.NewRepository(dbClient.DB()),
	})
	if err != nil {
		return err
	}
	jobs, err := cron.NewRegistry(inviteJob)
	if err != nil {
		return err
	}

	if cfg.Stripe.Enabled() {
		stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return err
		}
		reconcileJob, err := cron.NewSubscriptionReconcileJob(cron.SubscriptionReconcileJobParams{
			Logger:    logg,
			Records:   subscriptions.NewRepository(dbClient.DB()),
			Processor: subscriptions.NewStripeClient(stripeClient),
			Limit:     cfg.Worker.ReconcileBatch,
		})
		if err != nil {
			return err
		}
		if err := jobs.Register(reconcileJob); err != nil {
			return err
		}
	} else {
		logg.Warn(ctx, "stripe disabled; subscription reconcile job not registered")
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.WorkerLockKey("cron"), 0)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(registry),
		Interval:   cfg.Worker.Interval,
		JobTimeout: cfg.Worker.JobTimeout,
	})
	if err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.Worker.MetricsPort,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "worker metrics server failed", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = multierr.Append(err, metricsServer.Shutdown(shutdownCtx))
	}()

	logg.Info(logg.WithFields(ctx, map[string]any{
		"jobs":     len(jobs.Jobs()),
		"instance": instance.GetID(),
	}), "worker started")
	return service.Run(ctx)
}
