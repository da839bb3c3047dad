package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/marketdesk/marketdesk/internal/platform/httpx"
	"github.com/marketdesk/marketdesk/internal/rbac"
	"github.com/marketdesk/marketdesk/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	capabilities := shared.Capabilities()
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAPI(capabilities.MustLookup(shared.CapUsersView), rbac.Platform()))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAPI(capabilities.MustLookup(shared.CapUsersAssignRole), rbac.Platform()))
		r.Put("/{userID}/role", h.assignRole)
	})
}

type userPage struct {
	Users      []User            `json:"users"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageParams(r)
	users, pagination, err := h.service.ListUsers(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusOK, userPage{Users: users, Pagination: pagination})
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required,max=32"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		httpx.Fail(w, http.StatusBadRequest, "invalid user id")
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.AssignRole(r.Context(), shared.PrincipalFromContext(r.Context()), userID, req.Role)
	switch {
	case err == nil:
		h.logger.Info("role assigned", slog.Int64("user_id", userID), slog.String("role", user.Role))
		httpx.OK(w, http.StatusOK, user)
	case errors.Is(err, ErrInvalidRole):
		httpx.Fail(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrSelfAssignment):
		httpx.Fail(w, http.StatusConflict, err.Error())
	default:
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Error("assign role failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
