package roles

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/gestion/internal/matrix"
	"github.com/odyssey-erp/gestion/internal/platform/httpx"
	"github.com/odyssey-erp/gestion/internal/rbac"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      *rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac *rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView, shared.PermRolesManage))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{id}/permissions", h.showRoleMatrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesManage))
		r.Put("/roles/{id}/permissions", h.setRolePermissions)
	})
}

type roleDTO struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type roleMatrixDTO struct {
	Role    roleDTO         `json:"role"`
	Actions []columnDTO     `json:"actions"`
	Modules []roleModuleDTO `json:"modules"`
}

type columnDTO struct {
	Key   string                `json:"key"`
	Label string                `json:"label"`
	State matrix.AggregateState `json:"state"`
}

type roleModuleDTO struct {
	Key         string                `json:"key"`
	Label       string                `json:"label"`
	State       matrix.AggregateState `json:"state"`
	Permissions []rolePermissionDTO   `json:"permissions"`
}

type rolePermissionDTO struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Action  string `json:"action"`
	Granted bool   `json:"granted"`
}

type setPermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,max=1000,dive,required,max=128"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.ActorFromContext(r.Context())
	roles, err := h.service.ListRoles(r.Context(), actor)
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	out := make([]roleDTO, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleDTO(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) showRoleMatrix(w http.ResponseWriter, r *http.Request) {
	roleID, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	m, err := h.service.RoleMatrix(r.Context(), actor, roleID)
	if err != nil {
		h.fail(w, "role matrix", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleMatrixDTO(m))
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := roleIDParam(w, r)
	if !ok {
		return
	}
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			err = fmt.Errorf("field %s failed %q", fieldErrs[0].Namespace(), fieldErrs[0].Tag())
		}
		httpx.RespondError(w, fmt.Errorf("%w: %v", shared.ErrValidation, err))
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	m, err := h.service.SetRolePermissions(r.Context(), actor, roleID, req.Permissions)
	if err != nil {
		h.fail(w, "set role permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleMatrixDTO(m))
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if kind := shared.KindOf(err); kind == shared.KindPersistenceFailure || kind == shared.KindInternal {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func roleIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("role %q: %w", raw, shared.ErrNotFound))
		return 0, false
	}
	return id, true
}

func toRoleDTO(role Role) roleDTO {
	return roleDTO{ID: role.ID, Name: role.Name, Description: role.Description, Permissions: role.Permissions.Sorted()}
}

func toRoleMatrixDTO(m RoleMatrix) roleMatrixDTO {
	out := roleMatrixDTO{Role: toRoleDTO(m.Role)}
	for _, c := range m.Grid.Columns {
		out.Actions = append(out.Actions, columnDTO{Key: c.Key, Label: c.Label, State: c.State})
	}
	for _, row := range m.Grid.Rows {
		module := roleModuleDTO{Key: row.Key, Label: row.Label, State: row.State, Permissions: []rolePermissionDTO{}}
		for _, cell := range row.Cells {
			if cell == nil {
				continue
			}
			module.Permissions = append(module.Permissions, rolePermissionDTO{
				Name:    cell.Permission.Name,
				Label:   cell.Permission.Label,
				Action:  cell.Permission.ActionKey,
				Granted: cell.State == matrix.StateActive,
			})
		}
		out.Modules = append(out.Modules, module)
	}
	return out
}
