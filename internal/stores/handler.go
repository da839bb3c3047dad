package stores

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/marketdesk/marketdesk/internal/platform/httpx"
	"github.com/marketdesk/marketdesk/internal/rbac"
	"github.com/marketdesk/marketdesk/internal/shared"
)

// Handler exposes store endpoints.
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

// MountRoutes registers store routes.
func (h *Handler) MountRoutes(r chi.Router) {
	caps := shared.Capabilities()
	store := rbac.TenantParam("storeID")

	r.With(h.rbac.RequireAPI(caps.MustLookup(shared.CapStoresList), rbac.Platform())).Get("/", h.list)
	r.Route("/{storeID}", func(r chi.Router) {
		r.With(h.rbac.RequireAPI(caps.MustLookup(shared.CapStoresView), store)).Get("/", h.show)
		r.With(h.rbac.RequireAPI(caps.MustLookup(shared.CapStoresEdit), store)).Patch("/", h.update)
		r.With(h.rbac.RequireAPI(caps.MustLookup(shared.CapStoreMembersView), store)).Get("/members", h.members)
		r.With(h.rbac.RequireAPI(caps.MustLookup(shared.CapStoreMembersAdd), store)).Post("/members", h.addMember)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	stores, err := h.service.ListVisible(r.Context(), rbac.PrincipalFromContext(r.Context()))
	if err != nil {
		h.fail(w, "list stores", err)
		return
	}
	httpx.OK(w, http.StatusOK, stores)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	store, err := h.service.Get(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		h.fail(w, "get store", err)
		return
	}
	httpx.OK(w, http.StatusOK, store)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var upd StoreUpdate
	if !h.decode(w, r, &upd) {
		return
	}
	if upd.Name == nil && upd.Status == nil {
		httpx.Fail(w, http.StatusBadRequest, "nothing to update")
		return
	}
	store, err := h.service.Update(r.Context(), rbac.PrincipalFromContext(r.Context()), chi.URLParam(r, "storeID"), upd)
	if err != nil {
		h.fail(w, "update store", err)
		return
	}
	httpx.OK(w, http.StatusOK, store)
}

func (h *Handler) members(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.Members(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		h.fail(w, "list store members", err)
		return
	}
	httpx.OK(w, http.StatusOK, members)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	var in MemberInput
	if !h.decode(w, r, &in) {
		return
	}
	member, err := h.service.AddMember(r.Context(), rbac.PrincipalFromContext(r.Context()), chi.URLParam(r, "storeID"), in)
	if err != nil {
		h.fail(w, "add store member", err)
		return
	}
	httpx.OK(w, http.StatusCreated, member)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrStatusChange), errors.Is(err, ErrOwnerAssignment):
		httpx.Fail(w, http.StatusForbidden, err.Error())
		return
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrConflict):
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
