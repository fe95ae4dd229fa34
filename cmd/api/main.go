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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/appointly-backend/api/routes"
	"github.com/angelmondragon/appointly-backend/internal/access"
	"github.com/angelmondragon/appointly-backend/internal/auth"
	"github.com/angelmondragon/appointly-backend/internal/businesses"
	"github.com/angelmondragon/appointly-backend/internal/gate"
	"github.com/angelmondragon/appointly-backend/internal/subscriptions"
	"github.com/angelmondragon/appointly-backend/internal/trial"
	"github.com/angelmondragon/appointly-backend/internal/users"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	"github.com/angelmondragon/appointly-backend/pkg/config"
	"github.com/angelmondragon/appointly-backend/pkg/db"
	"github.com/angelmondragon/appointly-backend/pkg/instance"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
	"github.com/angelmondragon/appointly-backend/pkg/metrics"
	"github.com/angelmondragon/appointly-backend/pkg/migrate"
	"github.com/angelmondragon/appointly-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/appointly-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	accessMetrics := metrics.NewAccessMetrics(registry)

	subscriptionRepo := subscriptions.NewRepository(dbClient.DB())
	locker, err := subscriptions.NewRedisLocker(redisClient, cfg.Access.ReconcileLockTTL)
	if err != nil {
		return err
	}
	resolverParams := access.ResolverParams{
		Records:  subscriptionRepo,
		Locker:   locker,
		CacheTTL: cfg.Access.CacheTTL,
		Metrics:  accessMetrics,
		Logger:   logg,
	}
	if cfg.Stripe.Enabled() {
		stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return err
		}
		resolverParams.Processor = subscriptions.NewStripeClient(stripeClient)
	} else {
		logg.Warn(ctx, "stripe disabled; processor reconciliation is off")
	}
	resolver, err := access.NewResolver(resolverParams)
	if err != nil {
		return err
	}
	policy := access.NewPolicy(logg, accessMetrics)

	sessions, err := session.NewManager(cfg.Session, session.WithMetrics(accessMetrics))
	if err != nil {
		return err
	}

	businessRepo := businesses.NewRepository(dbClient.DB())
	enforcer, err := gate.NewEnforcer(gate.Params{
		Sessions: sessions,
		Resolver: resolver,
		Policy:   policy,
		Grants:   businessRepo,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	trials, err := trial.NewService(trial.ServiceParams{
		Repo:     subscriptionRepo,
		Duration: cfg.Access.TrialDuration,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	verifier, err := auth.NewInitDataVerifier(cfg.Telegram.BotToken, cfg.Telegram.InitDataMaxAge, nil)
	if err != nil {
		return err
	}
	authService, err := auth.NewService(auth.ServiceParams{
		Verifier:      verifier,
		Users:         users.NewRepository(dbClient.DB()),
		Subscriptions: subscriptionRepo,
		Resolver:      resolver,
		Policy:        policy,
		Grants:        businessRepo,
		Sessions:      sessions,
		Logger:        logg,
	})
	if err != nil {
		return err
	}

	businessService, err := businesses.NewService(businesses.ServiceParams{
		Repo:      businessRepo,
		Trials:    trials,
		Refresher: enforcer,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Sessions:   sessions,
			Enforcer:   enforcer,
			Auth:       authService,
			Businesses: businessService,
			Gatherer:   registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
