package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/marketdesk/marketdesk/internal/auth"
	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/observability"
	"github.com/marketdesk/marketdesk/internal/pages"
	"github.com/marketdesk/marketdesk/internal/platform/httpx"
	"github.com/marketdesk/marketdesk/internal/rbac"
	"github.com/marketdesk/marketdesk/internal/roles"
	"github.com/marketdesk/marketdesk/internal/shared"
	"github.com/marketdesk/marketdesk/internal/stores"
	"github.com/marketdesk/marketdesk/internal/users"
	"github.com/marketdesk/marketdesk/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware
	Capabilities   *authz.Registry
	Metrics        *observability.Metrics

	AuthHandler   *auth.Handler
	UsersHandler  *users.Handler
	RolesHandler  *roles.Handler
	StoresHandler *stores.Handler
	PagesHandler  *pages.Handler
	JobHandler    *jobs.Handler
}

// NewRouter constructs the chi.Router with MarketDesk defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		params.AuthHandler.WithSignInLimiter(SignInLimiter(params.Config)).MountRoutes(r)
	}
	if params.PagesHandler != nil {
		params.PagesHandler.MountRoutes(r)
	}

	if params.Capabilities != nil {
		capabilities := rbac.NewCapabilitiesHandler(params.Capabilities, params.RBACMiddleware)
		r.Route("/api/capabilities", func(r chi.Router) {
			capabilities.MountRoutes(r, params.Capabilities.MustLookup(shared.CapCapabilitiesView))
		})
	}
	if params.RolesHandler != nil {
		r.Route("/api/roles", params.RolesHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/api/users", params.UsersHandler.MountRoutes)
	}
	if params.StoresHandler != nil {
		r.Route("/api/stores", params.StoresHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/api/jobs", params.JobHandler.MountRoutes)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "not found")
	})
	return r
}
