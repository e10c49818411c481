package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/gestion/internal/observability"
	"github.com/odyssey-erp/gestion/internal/platform/httpx"
	"github.com/odyssey-erp/gestion/internal/rbac"
	rbachttp "github.com/odyssey-erp/gestion/internal/rbac/http"
	"github.com/odyssey-erp/gestion/internal/roles"
	"github.com/odyssey-erp/gestion/internal/shared"
	"github.com/odyssey-erp/gestion/internal/users"
	"github.com/odyssey-erp/gestion/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	SessionManager     *shared.SessionManager
	RBACMiddleware     *rbac.Middleware
	PermissionsHandler *rbachttp.Handler
	RolesHandler       *roles.Handler
	UsersHandler       *users.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with the API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		RBAC:           params.RBACMiddleware,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	// Handlers register absolute paths; the matrix shares /users/{id} with
	// the directory.
	if params.UsersHandler != nil {
		params.UsersHandler.MountRoutes(r)
	}
	if params.PermissionsHandler != nil {
		params.PermissionsHandler.MountRoutes(r)
	}
	if params.RolesHandler != nil {
		params.RolesHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}
