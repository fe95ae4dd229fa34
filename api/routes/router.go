package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/appointly-backend/api/controllers"
	"github.com/angelmondragon/appointly-backend/api/middleware"
	"github.com/angelmondragon/appointly-backend/internal/auth"
	"github.com/angelmondragon/appointly-backend/internal/businesses"
	"github.com/angelmondragon/appointly-backend/internal/gate"
	"github.com/angelmondragon/appointly-backend/pkg/auth/session"
	"github.com/angelmondragon/appointly-backend/pkg/config"
	"github.com/angelmondragon/appointly-backend/pkg/logger"
	"github.com/angelmondragon/appointly-backend/pkg/redis"
)

// Dependencies are the collaborators the HTTP surface needs.
type Dependencies struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         controllers.Pinger
	Redis      *redis.Client
	Sessions   *session.Manager
	Enforcer   *gate.Enforcer
	Auth       auth.Service
	Businesses businesses.Service
	Gatherer   prometheus.Gatherer
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.SessionCookies(deps.Sessions),
	)

	loginPolicy := middleware.NewRateLimitPolicy(
		"login",
		cfg.Telegram.LoginRateWindow,
		cfg.Telegram.LoginRatePerIP,
	)

	readiness := []controllers.ReadinessCheck{{Name: "db", Pinger: deps.DB}}
	if deps.Redis != nil {
		readiness = append(readiness, controllers.ReadinessCheck{Name: "redis", Pinger: deps.Redis})
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness...))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		login := r
		if deps.Redis != nil {
			login = r.With(middleware.RateLimit(loginPolicy, deps.Redis, logg))
		}
		login.Post("/telegram", controllers.AuthTelegramLogin(deps.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(deps.Sessions))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireSession(deps.Sessions, deps.Enforcer, logg))
		r.Use(middleware.CSRF(deps.Sessions, logg))

		r.Get("/subscription/status", controllers.SubscriptionStatus(deps.Enforcer, deps.Businesses, logg))
		r.Post("/businesses", controllers.BusinessCreate(deps.Businesses, logg))
		r.Post("/invites/{code}/accept", controllers.InviteAccept(deps.Businesses, logg))

		r.With(middleware.RequireAccess(deps.Enforcer, logg)).Get("/me", controllers.Me(logg))

		r.Route("/businesses/{businessId}", func(r chi.Router) {
			r.Use(middleware.RequireBusinessAccess(deps.Businesses, deps.Enforcer, logg))
			r.Get("/", controllers.BusinessGet(deps.Businesses, logg))
			r.Post("/invites", controllers.InviteCreate(deps.Businesses, logg))
		})
	})

	return r
}
