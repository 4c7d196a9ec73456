// Package httpapi exposes the application services as a REST API.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	app "github.com/parcellink/backend/internal/app"
	"github.com/parcellink/backend/internal/app/domain/user"
	"github.com/parcellink/backend/internal/cache"
	"github.com/parcellink/backend/internal/config"
	"github.com/parcellink/backend/internal/logging"
	"github.com/parcellink/backend/internal/metrics"
	"github.com/parcellink/backend/internal/middleware"
)

const serviceName = "parcellink"

// handler bundles the HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	cache *cache.Cache
	cfg   *config.Config
	log   *logging.Logger
}

// Deps are the router's collaborators. Metrics and RateLimiter are
// optional; a nil Cache disables read-through caching.
type Deps struct {
	App         *app.Application
	Cache       *cache.Cache
	Config      *config.Config
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	Logger      *logging.Logger
}

// NewRouter wires the full route table with the middleware chain.
func NewRouter(deps Deps) *mux.Router {
	log := deps.Logger
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(nil, log)
	}
	h := &handler{app: deps.App, cache: deps.Cache, cfg: deps.Config, log: log}

	r := mux.NewRouter()
	r.Use(middleware.LoggingMiddleware(log))
	if deps.Metrics != nil {
		r.Use(middleware.MetricsMiddleware(serviceName, deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.Config.Server.AllowedOrigins).Handler)
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Handler)
	}

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// Public surface.
	api.HandleFunc("/health", h.health).Methods(http.MethodGet)
	api.HandleFunc("/auth/login", h.login).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/admin/login", h.adminLogin).Methods(http.MethodPost, http.MethodOptions)

	// Everything else requires a valid bearer token.
	authMw := middleware.NewAuthMiddleware(deps.App.Issuer, log)

	authed := api.NewRoute().Subrouter()
	authed.Use(authMw.Handler)

	authed.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/auth/logout", h.logout).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/auth/me", h.me).Methods(http.MethodGet, http.MethodOptions)

	authed.HandleFunc("/users/telegram/{telegramID}", h.getUserByTelegramID).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/users/{id}", h.getUser).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/users/{id}", h.updateUser).Methods(http.MethodPut)

	authed.HandleFunc("/parcel-requests", h.listRequests).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/parcel-requests", h.createRequest).Methods(http.MethodPost)
	authed.HandleFunc("/parcel-requests/user/{id}", h.listRequestsByUser).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/parcel-requests/status/{status}", h.listRequestsByStatus).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/parcel-requests/{id}", h.getRequest).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/parcel-requests/{id}", h.updateRequest).Methods(http.MethodPut)
	authed.HandleFunc("/parcel-requests/{id}", h.deleteRequest).Methods(http.MethodDelete)
	authed.HandleFunc("/parcel-requests/{id}/accept", h.acceptRequest).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/parcel-requests/{id}/complete", h.completeRequest).Methods(http.MethodPost, http.MethodOptions)
	authed.HandleFunc("/parcel-requests/{id}/cancel", h.cancelRequest).Methods(http.MethodPost, http.MethodOptions)

	authed.HandleFunc("/credits/balance", h.balance).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/credits/balance/{userID}", h.balanceFor).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/credits/history", h.history).Methods(http.MethodGet, http.MethodOptions)
	authed.HandleFunc("/credits/deduct", h.deductCredits).Methods(http.MethodPost, http.MethodOptions)

	// Admin surface.
	adminRoutes := authed.NewRoute().Subrouter()
	adminRoutes.Use(middleware.RequireRole(user.RoleAdmin))

	adminRoutes.HandleFunc("/users", h.listUsers).Methods(http.MethodGet, http.MethodOptions)
	adminRoutes.HandleFunc("/users", h.createUser).Methods(http.MethodPost)
	adminRoutes.HandleFunc("/users/{id}/role", h.setUserRole).Methods(http.MethodPut, http.MethodOptions)
	adminRoutes.HandleFunc("/users/{id}", h.deleteUser).Methods(http.MethodDelete)
	adminRoutes.HandleFunc("/credits/add", h.addCredits).Methods(http.MethodPost, http.MethodOptions)
	adminRoutes.HandleFunc("/credits/history/{userID}", h.historyFor).Methods(http.MethodGet, http.MethodOptions)
	adminRoutes.HandleFunc("/admin/stats", h.stats).Methods(http.MethodGet, http.MethodOptions)

	return r
}
