package pages

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/rbac"
	"github.com/marketdesk/marketdesk/internal/stores"
	_ "github.com/marketdesk/marketdesk/testing"
)

const ownStore = "0b8a7c9e-1111-4a2b-8c3d-000000000001"

type storeMap map[string]stores.Store

func (s storeMap) Get(_ context.Context, id string) (stores.Store, error) {
	store, ok := s[id]
	if !ok {
		return stores.Store{}, stores.ErrNotFound
	}
	return store, nil
}

type roleHeader struct{}

func (roleHeader) Resolve(r *http.Request) (*authz.Principal, error) {
	role := r.Header.Get("X-Role")
	if role == "" {
		return nil, nil
	}
	return authz.NewPrincipal("1", role, r.Header.Get("X-Store")), nil
}

func newPages() chi.Router {
	mw := rbac.Middleware{Guard: authz.NewGuard(), Resolver: roleHeader{}}
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), storeMap{ownStore: {ID: ownStore, Name: "Own Store"}}, mw).MountRoutes(r)
	return r
}

func visit(r http.Handler, path, role, store string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if role != "" {
		req.Header.Set("X-Role", role)
	}
	if store != "" {
		req.Header.Set("X-Store", store)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPageAccessMatrix(t *testing.T) {
	r := newPages()
	pages := []struct {
		path    string
		minimum authz.Role
	}{
		{"/account", authz.RoleCustomer},
		{"/moderation", authz.RoleModerator},
		{"/vendor/dashboard", authz.RoleVendor},
		{"/admin/dashboard", authz.RoleAdmin},
	}
	for _, page := range pages {
		rec := visit(r, page.path, "", "")
		assert.Equal(t, http.StatusSeeOther, rec.Code, page.path)
		assert.Equal(t, "/auth/signin", rec.Header().Get("Location"), page.path)

		for _, role := range authz.Roles() {
			rec := visit(r, page.path, string(role), "")
			if authz.AtLeast(role, page.minimum) {
				assert.Equal(t, http.StatusOK, rec.Code, "%s as %s", page.path, role)
				continue
			}
			assert.Equal(t, http.StatusSeeOther, rec.Code, "%s as %s", page.path, role)
			assert.Equal(t, authz.LandingFor(role), rec.Header().Get("Location"), "%s as %s", page.path, role)
		}
	}
}

func TestStoreDashboard(t *testing.T) {
	r := newPages()

	rec := visit(r, "/vendor/stores/"+ownStore, "vendor", ownStore)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data Manifest
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "store_dashboard", body.Data.Page)
	require.NotNil(t, body.Data.Store)
	assert.Equal(t, "Own Store", body.Data.Store.Name)
	assert.Equal(t, []string{ownStore}, body.Data.Viewer.Stores)

	rec = visit(r, "/vendor/stores/"+ownStore, "vendor", "other")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/vendor/dashboard", rec.Header().Get("Location"))

	assert.Equal(t, http.StatusOK, visit(r, "/vendor/stores/"+ownStore, "super_admin", "").Code)
	assert.Equal(t, http.StatusNotFound, visit(r, "/vendor/stores/missing", "admin", "").Code)
}

func TestHomeRedirectsToLanding(t *testing.T) {
	r := newPages()
	assert.Equal(t, "/auth/signin", visit(r, "/", "", "").Header().Get("Location"))
	assert.Equal(t, "/moderation", visit(r, "/", "Moderator", "").Header().Get("Location"))
	assert.Equal(t, "/admin/dashboard", visit(r, "/", "super_admin", "").Header().Get("Location"))
	assert.Equal(t, "/auth/signin", visit(r, "/", "root", "").Header().Get("Location"))
}
