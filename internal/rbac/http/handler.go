package rbachttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/platform/httpx"
	"github.com/odyssey-erp/gestion/internal/rbac"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// Service is the permission matrix use case consumed by the handler.
type Service interface {
	Catalog() *catalog.Catalog
	LoadMatrix(ctx context.Context, actor shared.Actor, userID int64) (rbac.Resolution, error)
	SaveDirectGrants(ctx context.Context, actor shared.Actor, userID int64, sub rbac.Submission) (rbac.Resolution, error)
}

// Handler serves a user's permission matrix.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

func (h *Handler) loadMatrix(w http.ResponseWriter, r *http.Request) {
	actor, userID, ok := h.target(w, r)
	if !ok {
		return
	}
	res, err := h.service.LoadMatrix(r.Context(), actor, userID)
	if err != nil {
		h.fail(w, "load matrix", userID, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewMatrixResponse(h.service.Catalog(), res))
}

// saveDirectGrants handles PUT /users/{id}/permissions. The body carries
// "permissions", the full checked set, and "inherited", the inherited set the
// editor loaded. Both are required; "inherited" extends the original save
// contract so that a role losing permissions while the matrix was open is
// reported as a conflict instead of silently dropping grants. A missing
// "inherited" is a validation failure.
func (h *Handler) saveDirectGrants(w http.ResponseWriter, r *http.Request) {
	actor, userID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req SaveRequest
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
	sub := rbac.Submission{
		Permissions:   permset.New(req.Permissions...),
		BaseInherited: permset.New(req.Inherited...),
	}
	res, err := h.service.SaveDirectGrants(r.Context(), actor, userID, sub)
	if err != nil {
		h.fail(w, "save direct grants", userID, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewMatrixResponse(h.service.Catalog(), res))
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return shared.Actor{}, 0, false
	}
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.RespondError(w, fmt.Errorf("user %q: %w", chi.URLParam(r, "id"), shared.ErrNotFound))
		return shared.Actor{}, 0, false
	}
	return actor, userID, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, userID int64, err error) {
	switch shared.KindOf(err) {
	case shared.KindPersistenceFailure, shared.KindInternal:
		h.logger.Error(op, slog.Int64("user_id", userID), slog.Any("error", err))
	default:
		h.logger.Debug(op, slog.Int64("user_id", userID), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
