package users

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/gestion/internal/platform/httpx"
	"github.com/odyssey-erp/gestion/internal/rbac"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// Handler manages user directory endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    *rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac *rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermUsersView, shared.PermUsersManage))
		r.Get("/users", h.listUsers)
	})
	r.Get("/users/{id}", h.showUser)
}

type userDTO struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	IsActive   bool      `json:"isActive"`
	SuperAdmin bool      `json:"superAdmin"`
	RoleLabels []string  `json:"roleLabels"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Search: q.Get("q")}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	users, err := h.service.ListUsers(r.Context(), actor, filter)
	if err != nil {
		h.fail(w, "list users", err)
		return
	}
	out := make([]userDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) showUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("user %q: %w", raw, shared.ErrNotFound))
		return
	}
	u, err := h.service.GetUser(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "show user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserDTO(u))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if kind := shared.KindOf(err); kind == shared.KindPersistenceFailure || kind == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", httpx.ErrBadRequest, raw)
	}
	return v, nil
}

func toUserDTO(u User) userDTO {
	labels := u.RoleLabels
	if labels == nil {
		labels = []string{}
	}
	return userDTO{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		IsActive:   u.IsActive,
		SuperAdmin: u.SuperAdmin,
		RoleLabels: labels,
		CreatedAt:  u.CreatedAt,
	}
}
