package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-affiliates/api/controllers"
	commissionctl "github.com/angelmondragon/storefront-affiliates/api/controllers/commissions"
	orderctl "github.com/angelmondragon/storefront-affiliates/api/controllers/orders"
	"github.com/angelmondragon/storefront-affiliates/api/middleware"
	"github.com/angelmondragon/storefront-affiliates/pkg/config"
	"github.com/angelmondragon/storefront-affiliates/pkg/enums"
	"github.com/angelmondragon/storefront-affiliates/pkg/logger"
	pkgredis "github.com/angelmondragon/storefront-affiliates/pkg/redis"
)

// RedisClient covers what the HTTP layer needs from redis.
type RedisClient interface {
	pkgredis.IdempotencyStore
	controllers.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps bundles what the API router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    RedisClient
	Ledger   commissionctl.Ledger
	Bridge   orderctl.StatusBridge
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    d.DB,
			"redis": d.Redis,
		}))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	referralPolicy := middleware.ReferralRateLimitPolicy{
		Window:    cfg.RateLimit.ReferralWindow,
		IPLimit:   cfg.RateLimit.ReferralIPLimit,
		CodeLimit: cfg.RateLimit.ReferralCodeLimit,
	}

	// Mutating routes replay their first response per Idempotency-Key.
	standard := middleware.Idempotent(d.Redis, middleware.StandardReplayTTL, logg)
	payout := middleware.Idempotent(d.Redis, middleware.PayoutReplayTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.With(
			middleware.RequireRole(logg, enums.RoleStorefront),
			middleware.ReferralRateLimit(referralPolicy, d.Redis, logg),
			payout,
		).Post("/referrals", commissionctl.RecordReferral(d.Ledger, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))

			r.Route("/referrals/{referralId}", func(r chi.Router) {
				r.Get("/", commissionctl.GetReferral(d.Ledger, logg))
				r.With(standard).Post("/approve", commissionctl.Approve(d.Ledger, logg))
				r.With(standard).Post("/cancel", commissionctl.Cancel(d.Ledger, logg))
				r.With(payout).Post("/pay", commissionctl.Pay(d.Ledger, logg))
			})

			r.Route("/affiliates", func(r chi.Router) {
				r.With(standard).Post("/", commissionctl.CreateAffiliate(d.Ledger, logg))
				r.Get("/drift", commissionctl.Drift(d.Ledger, logg))
				r.Get("/report.csv", commissionctl.Report(d.Ledger, logg))
				r.With(standard).Post("/repair-negative-balances", commissionctl.RepairNegativeBalances(d.Ledger, logg))
				r.Get("/{affiliateId}/summary", commissionctl.Summary(d.Ledger, logg))
				r.Get("/{affiliateId}/referrals", commissionctl.ListReferrals(d.Ledger, logg))
				r.Get("/{affiliateId}/ledger", commissionctl.AffiliateLedger(d.Ledger, logg))
			})

			r.With(standard).Post("/orders/{orderId}/status", orderctl.UpdateStatus(d.Bridge, logg))
		})
	})

	return r
}
