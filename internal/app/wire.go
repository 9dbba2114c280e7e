package app

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kenvote/registry/internal/accounts"
	"github.com/kenvote/registry/internal/auth"
	"github.com/kenvote/registry/internal/domain"
	"github.com/kenvote/registry/internal/guard"
	"github.com/kenvote/registry/internal/handler"
	adminhandler "github.com/kenvote/registry/internal/handler/admin"
	"github.com/kenvote/registry/internal/metrics"
	"github.com/kenvote/registry/internal/regions"
	"github.com/kenvote/registry/internal/registration"
	"github.com/kenvote/registry/internal/store"
	"github.com/kenvote/registry/internal/voting"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Store        store.Store
	Tokens       *auth.TokenManager
	LoginLimiter guard.Limiter
	PublicLimit  *guard.IPLimiter
	Events       domain.EventPublisher
	Photos       registration.PhotoStore
	Cards        registration.CardRenderer
	Allocator    *registration.Allocator
	Regions      *regions.Loader
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Health       handler.HealthCheck
	Logger       *slog.Logger

	CORSOrigins    []string
	TrustedProxies []netip.Prefix
	MaxPhotoBytes  int64
	BcryptCost     int
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	alloc := deps.Allocator
	if alloc == nil {
		alloc = registration.NewAllocator(nil, nil)
	}
	health := deps.Health
	if health == nil {
		health = func(ctx context.Context) error {
			return deps.Store.View(ctx, func(*store.Document) error { return nil })
		}
	}

	// Services
	gate := auth.NewGate(deps.Store, deps.Tokens)
	registrySvc := registration.NewService(deps.Store, alloc, deps.Photos, deps.Cards, deps.Events, deps.Metrics, logger)
	votingSvc := voting.NewService(deps.Store, deps.Events, deps.Metrics, logger)
	accountSvc := accounts.NewService(deps.Store, deps.Tokens, deps.LoginLimiter, deps.Events, deps.Metrics, logger, deps.BcryptCost)

	// Handlers
	voterHandler := handler.NewVoterHandler(registrySvc, deps.MaxPhotoBytes)
	scannerHandler := handler.NewScannerHandler(votingSvc)
	regionsHandler := handler.NewRegionsHandler(deps.Regions)
	accountAdmin := adminhandler.NewAccountHandler(accountSvc)
	registrationAdmin := adminhandler.NewRegistrationAdminHandler(registrySvc)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	if len(deps.TrustedProxies) > 0 {
		r.Use(handler.TrustedProxies(deps.TrustedProxies))
	}
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSOrigins...))
	r.Use(handler.JSONContentType)

	// Health and metrics (no auth)
	r.Get("/health", handler.HealthHandler(health))
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	// Public reads
	r.Get("/regions", regionsHandler.Get)
	r.Get("/registration/status", voterHandler.Status)
	r.Get("/lookup/{regno}", voterHandler.Lookup)
	r.Get("/voter/by-id", voterHandler.ByNationalID)

	// Public writes, throttled per client address
	r.Group(func(r chi.Router) {
		if deps.PublicLimit != nil {
			r.Use(handler.RateLimitByIP(deps.PublicLimit))
		}
		r.Post("/register", voterHandler.Register)
		r.Post("/scanner/lookup", scannerHandler.Lookup)
		r.Post("/scanner/mark-voted", scannerHandler.MarkVoted)
		r.Post("/admin/login", accountAdmin.Login)
	})

	// Session-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Authenticate(gate))

		r.Post("/admin/logout", accountAdmin.Logout)
		r.Get("/admin/my-profile", accountAdmin.MyProfile)
		r.Post("/admin/update-profile", accountAdmin.UpdateProfile)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRank(domain.RoleUser))
			r.Get("/pdf/{regno}", voterHandler.Card)
			r.Post("/voter/confirm", scannerHandler.Confirm)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRank(domain.RoleSuperuser))
			r.Get("/voter/list", voterHandler.List)
			r.Delete("/voter/{regno}", voterHandler.Delete)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRank(domain.RoleAdmin))
			r.Post("/admin/add-user", accountAdmin.AddUser)
			r.Delete("/admin/delete-user/{id}", accountAdmin.DeleteUser)
			r.Post("/admin/reset-password/{id}", accountAdmin.ResetPassword)
			r.Get("/admin/list-users", accountAdmin.ListUsers)
			r.Get("/admin/stats", accountAdmin.Stats)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRank(domain.RoleSuperadmin))
			r.Post("/admin/promote-user/{id}", accountAdmin.PromoteUser)
			r.Post("/admin/toggle-registration", registrationAdmin.Toggle)
		})
	})

	return r
}
