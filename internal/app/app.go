// Package app assembles the point-of-sale services and HTTP surface from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-apotek/internal/auth"
	"github.com/noah-isme/backend-apotek/internal/cart"
	"github.com/noah-isme/backend-apotek/internal/catalog"
	"github.com/noah-isme/backend-apotek/internal/checkout"
	"github.com/noah-isme/backend-apotek/internal/common"
	"github.com/noah-isme/backend-apotek/internal/config"
	"github.com/noah-isme/backend-apotek/internal/events"
	"github.com/noah-isme/backend-apotek/internal/health"
	"github.com/noah-isme/backend-apotek/internal/invoice"
	"github.com/noah-isme/backend-apotek/internal/lock"
	"github.com/noah-isme/backend-apotek/internal/obs"
	"github.com/noah-isme/backend-apotek/internal/queue"
	"github.com/noah-isme/backend-apotek/internal/ratelimit"
	"github.com/noah-isme/backend-apotek/internal/security"
)

// App is the assembled service graph.
type App struct {
	Config   *config.Config
	Deps     *Dependencies
	Logger   zerolog.Logger
	Catalog  *catalog.Service
	Drafts   *cart.Service
	Checkout *checkout.Service
	Invoices invoice.Repository
	Auth     *auth.Service
	Events   *events.Bus
	Limiter  ratelimit.Limiter
}

// New wires the services. Backends missing from deps fall back to in-process adapters,
// which keeps a single-terminal install free of Postgres and Redis.
func New(ctx context.Context, cfg *config.Config, deps *Dependencies, logger zerolog.Logger) (*App, error) {
	if deps == nil {
		deps = &Dependencies{}
	}
	a := &App{Config: cfg, Deps: deps, Logger: logger}

	a.Events = &events.Bus{Publishers: []events.Publisher{events.LogPublisher{Logger: &a.Logger}}}
	if deps.TaskClient != nil {
		a.Events.Publishers = append(a.Events.Publishers, queue.Publisher{Client: deps.TaskClient, Retention: cfg.IdempotencyTTL})
	}

	var (
		medicines catalog.Store
		invoices  invoice.Repository
		operators auth.OperatorStore
		drafts    cart.Store
		locker    lock.Locker
		cache     *catalog.Cache
	)
	seedOps, err := auth.ParseOperators(cfg.Operators)
	if err != nil {
		return nil, fmt.Errorf("parse OPERATORS: %w", err)
	}
	if deps.DB != nil {
		medicines = catalog.NewPostgresStore(deps.DB)
		invoices = invoice.NewPostgresRepository(deps.DB)
		pgOps := auth.NewPostgresOperators(deps.DB)
		for _, op := range seedOps {
			if err := pgOps.Upsert(ctx, op); err != nil {
				return nil, fmt.Errorf("seed operator %s: %w", op.ID, err)
			}
		}
		operators = pgOps
	} else {
		medicines = catalog.NewMemoryStore(DefaultMedicines()...)
		invoices = invoice.NewMemoryRepository()
		operators = auth.NewMemoryOperators(seedOps...)
	}
	if deps.Redis != nil {
		drafts = cart.RedisStore{R: deps.Redis, TTL: cfg.DraftTTL}
		locker = lock.Redis{R: deps.Redis, RetryBackoff: cfg.LockRetryBackoff}
		cache = catalog.NewCache(deps.Redis, cfg.CatalogCacheTTL)
	} else {
		drafts = cart.NewMemoryStore()
		locker = lock.NewLocal()
	}
	a.Invoices = invoices

	a.Catalog, err = catalog.NewService(catalog.ServiceConfig{
		Store:             medicines,
		Cache:             cache,
		LowStockThreshold: cfg.LowStockThreshold,
		Timeout:           cfg.FinalizeTimeout,
		Events:            a.Events,
		Logger:            &a.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.Drafts = &cart.Service{
		Store:   drafts,
		Catalog: a.Catalog,
		Locker:  locker,
		LockTTL: cfg.LockTTL,
		Timeout: cfg.FinalizeTimeout,
		Logger:  &a.Logger,
	}
	a.Checkout = &checkout.Service{
		Drafts:   drafts,
		Stock:    a.Catalog,
		Invoices: invoices,
		Locker:   locker,
		LockTTL:  cfg.LockTTL,
		Timeout:  cfg.FinalizeTimeout,
		Events:   a.Events,
		Logger:   &a.Logger,
	}
	a.Auth, err = auth.NewService(auth.Config{
		Operators:      operators,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
		Issuer:         cfg.JWTIssuer,
		Logger:         &a.Logger,
	})
	if err != nil {
		return nil, err
	}
	a.Limiter, err = ratelimit.NewFixed(cfg.LoginRateLimit, deps.Redis, "rl:login")
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Router builds the HTTP handler tree.
func (a *App) Router() http.Handler {
	cfg := a.Config

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
	}

	authMW := auth.Middleware{Service: a.Auth}
	authHandler := &auth.Handler{Service: a.Auth}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: a.Catalog})
	cartHandler := &cart.Handler{Svc: a.Drafts}
	checkoutHandler := &checkout.Handler{Svc: a.Checkout}
	invoiceHandler := &invoice.Handler{
		Repo: a.Invoices,
		Receipt: invoice.ReceiptOptions{
			Org: invoice.Organization{
				Title:   cfg.OrgTitle,
				Address: cfg.OrgAddress,
				Phone:   cfg.OrgPhone,
				Email:   cfg.OrgEmail,
			},
			Currency: cfg.CurrencyLabel,
			Location: cfg.Location(),
		},
	}
	idem := common.Idem{R: a.Deps.Redis, TTL: cfg.IdempotencyTTL}
	loginLimit := ratelimit.Handler{
		Limiter: a.Limiter,
		Key:     ratelimit.ByClientIP(cfg.TrustProxy),
		OnError: func(err error) { a.Logger.Warn().Err(err).Msg("login rate limiter unavailable") },
	}
	healthHandler := health.Handler{Checker: health.Deps{DB: a.Deps.DB, Redis: a.Deps.Redis}}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.TracingEnabled {
		r.Use(obs.SpanRouteMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: a.Logger}.Middleware)
	r.Use(security.CORS(corsOrigins(cfg)))
	r.Use(security.Headers{Enable: cfg.SecurityHeaders, EnableHSTS: cfg.EnableHSTS}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.MaxBodyBytes}.Middleware)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(ar chi.Router) {
			ar.With(loginLimit.Middleware).Post("/login", authHandler.Login)
			ar.With(authMW.RequireAuth).Get("/me", authHandler.Me)
		})

		v.Group(func(p chi.Router) {
			p.Use(authMW.RequireAuth)

			p.Get("/medicines", catalogHandler.List)
			p.Post("/medicines", catalogHandler.Create)
			p.Get("/medicines/low-stock", catalogHandler.LowStock)
			p.Get("/medicines/{id}", catalogHandler.Get)
			p.Patch("/medicines/{id}", catalogHandler.Update)
			p.Delete("/medicines/{id}", catalogHandler.Delete)
			p.Patch("/medicines/{id}/increment", catalogHandler.Increment)

			p.Route("/invoice", func(d chi.Router) {
				d.Get("/current", cartHandler.Current)
				d.Delete("/current", cartHandler.Discard)
				d.Post("/items", cartHandler.AddItem)
				d.Patch("/items/{medicineId}", cartHandler.UpdateItem)
				d.Delete("/items/{medicineId}", cartHandler.RemoveItem)
				d.Get("/preview", checkoutHandler.Preview)
				d.With(idem.Middleware).Post("/finalize", checkoutHandler.Finalize)
			})

			p.Get("/invoices", invoiceHandler.List)
			p.Get("/invoices/summary", invoiceHandler.Summary)
			p.Get("/invoices/{number}", invoiceHandler.Get)
			p.Get("/invoices/{number}/export", invoiceHandler.Export)
		})
	})

	if cfg.TracingEnabled {
		return otelhttp.NewHandler(r, "apotek-api")
	}
	return r
}

func corsOrigins(cfg *config.Config) string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return "*"
	}
	return strings.Join(cfg.CORSAllowedOrigins, ",")
}
