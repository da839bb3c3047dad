package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/platform/httpx"
)

// CapabilitiesHandler lists the declared capabilities.
type CapabilitiesHandler struct {
	registry *authz.Registry
	rbac     Middleware
}

// NewCapabilitiesHandler builds CapabilitiesHandler instance.
func NewCapabilitiesHandler(registry *authz.Registry, rbac Middleware) *CapabilitiesHandler {
	return &CapabilitiesHandler{registry: registry, rbac: rbac}
}

// MountRoutes registers capability routes; view requires the named capability.
func (h *CapabilitiesHandler) MountRoutes(r chi.Router, view authz.Capability) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAPI(view, Platform()))
		r.Get("/", h.list)
	})
}

func (h *CapabilitiesHandler) list(w http.ResponseWriter, _ *http.Request) {
	httpx.OK(w, http.StatusOK, h.registry.All())
}
