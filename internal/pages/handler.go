// Package pages serves the role landing pages as JSON manifests. Rendering
// is left to the client.
package pages

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/platform/httpx"
	"github.com/marketdesk/marketdesk/internal/rbac"
	"github.com/marketdesk/marketdesk/internal/shared"
	"github.com/marketdesk/marketdesk/internal/stores"
)

// StoreLookup fetches the store shown on a store dashboard.
type StoreLookup interface {
	Get(ctx context.Context, id string) (stores.Store, error)
}

// Manifest describes a page for the client to render.
type Manifest struct {
	Page     string               `json:"page"`
	Title    string               `json:"title"`
	Viewer   Viewer               `json:"viewer"`
	Sections []string             `json:"sections"`
	Store    *stores.Store        `json:"store,omitempty"`
	Flash    *shared.FlashMessage `json:"flash,omitempty"`
}

// Viewer is the signed-in principal as shown on a page.
type Viewer struct {
	ID     string   `json:"id"`
	Role   string   `json:"role"`
	Stores []string `json:"stores"`
}

// Handler serves the pages.
type Handler struct {
	logger *slog.Logger
	stores StoreLookup
	rbac   rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, stores StoreLookup, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, stores: stores, rbac: rbac}
}

// MountRoutes registers page routes at the router root.
func (h *Handler) MountRoutes(r chi.Router) {
	caps := shared.Capabilities()
	page := func(capName string, resource rbac.ResourceFunc) func(http.Handler) http.Handler {
		return h.rbac.RequirePage(caps.MustLookup(capName), resource)
	}

	r.Get("/", h.home)
	r.With(page(shared.CapPageAccount, rbac.Platform())).Get("/account", h.static("account", "Your account", "orders", "addresses", "profile"))
	r.With(page(shared.CapPageModeration, rbac.Platform())).Get("/moderation", h.static("moderation", "Moderation queue", "reports", "reviews", "listings"))
	r.With(page(shared.CapPageVendor, rbac.Platform())).Get("/vendor/dashboard", h.static("vendor_dashboard", "Vendor dashboard", "stores", "orders", "payouts"))
	r.With(page(shared.CapStoreDashboard, rbac.TenantParam("storeID"))).Get("/vendor/stores/{storeID}", h.storeDashboard)
	r.With(page(shared.CapPageAdmin, rbac.Platform())).Get("/admin/dashboard", h.static("admin_dashboard", "Administration", "users", "stores", "capabilities", "jobs"))
}

// home sends visitors to the page that fits them.
func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	p, err := h.rbac.Resolver.Resolve(r)
	if err != nil {
		h.logger.Error("resolve principal", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	role, err := p.CanonicalRole()
	if err != nil {
		signIn := h.rbac.SignInPath
		if signIn == "" {
			signIn = rbac.DefaultSignInPath
		}
		http.Redirect(w, r, signIn, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, authz.LandingFor(role), http.StatusSeeOther)
}

func (h *Handler) static(name, title string, sections ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.OK(w, http.StatusOK, h.manifest(r, name, title, sections))
	}
}

func (h *Handler) storeDashboard(w http.ResponseWriter, r *http.Request) {
	store, err := h.stores.Get(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load store for dashboard", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	m := h.manifest(r, "store_dashboard", store.Name, []string{"catalog", "orders", "staff"})
	m.Store = &store
	httpx.OK(w, http.StatusOK, m)
}

func (h *Handler) manifest(r *http.Request, name, title string, sections []string) Manifest {
	p := rbac.PrincipalFromContext(r.Context())
	role, _ := p.CanonicalRole()
	m := Manifest{
		Page:     name,
		Title:    title,
		Viewer:   Viewer{ID: p.ID, Role: role.String(), Stores: p.TenantIDs()},
		Sections: sections,
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		m.Flash = sess.PopFlash()
	}
	return m
}
