package stores

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdesk/marketdesk/internal/authz"
	"github.com/marketdesk/marketdesk/internal/rbac"
	_ "github.com/marketdesk/marketdesk/testing"
)

type headerResolver map[string]*authz.Principal

func (h headerResolver) Resolve(r *http.Request) (*authz.Principal, error) {
	return h[r.Header.Get("X-Test-User")], nil
}

func newStoreRouter(t *testing.T) chi.Router {
	t.Helper()
	mw := rbac.Middleware{
		Guard: authz.NewGuard(),
		Resolver: headerResolver{
			"owner":    authz.NewPrincipal("3", "vendor", storeA),
			"staff":    authz.NewPrincipal("6", "vendor", storeA),
			"rival":    authz.NewPrincipal("4", "vendor", storeB),
			"customer": authz.NewPrincipal("5", "customer", storeA),
			"admin":    authz.NewPrincipal("1", "admin"),
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Route("/api/stores", NewHandler(logger, NewService(newMemRepo(), &invalidations{}, &auditTrail{}, logger), mw).MountRoutes)
	return r
}

func call(r http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStoreRoutesEnforceTenant(t *testing.T) {
	r := newStoreRouter(t)
	path := "/api/stores/" + storeA

	tests := []struct {
		user   string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"customer", http.StatusForbidden},
		{"rival", http.StatusForbidden},
		{"owner", http.StatusOK},
		{"admin", http.StatusOK},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.status, call(r, http.MethodGet, path, tc.user, "").Code, tc.user)
		assert.Equal(t, tc.status, call(r, http.MethodGet, path+"/members", tc.user, "").Code, tc.user)
	}
}

func TestStoreListShowsOwnStores(t *testing.T) {
	r := newStoreRouter(t)

	rec := call(r, http.MethodGet, "/api/stores", "rival", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []Store
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, storeB, body.Data[0].ID)

	rec = call(r, http.MethodGet, "/api/stores", "admin", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Data, 2)
}

func TestStorePatch(t *testing.T) {
	r := newStoreRouter(t)
	path := "/api/stores/" + storeA

	assert.Equal(t, http.StatusOK, call(r, http.MethodPatch, path, "owner", `{"name":"Alpha Prime"}`).Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodPatch, path, "owner", `{"status":"suspended"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodPatch, path, "owner", `{"status":"closed"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodPatch, path, "owner", `{}`).Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodPatch, path, "rival", `{"name":"Mine"}`).Code)
	assert.Equal(t, http.StatusOK, call(r, http.MethodPatch, path, "admin", `{"status":"suspended"}`).Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodPatch, "/api/stores/not-a-uuid", "admin", `{"name":"Ghost"}`).Code)
}

func TestStoreAddMember(t *testing.T) {
	r := newStoreRouter(t)
	path := "/api/stores/" + storeA + "/members"

	assert.Equal(t, http.StatusCreated, call(r, http.MethodPost, path, "owner", `{"user_id":6,"role":"staff"}`).Code)
	assert.Equal(t, http.StatusConflict, call(r, http.MethodPost, path, "owner", `{"user_id":6,"role":"staff"}`).Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodPost, path, "owner", `{"user_id":77,"role":"staff"}`).Code)
	assert.Equal(t, http.StatusBadRequest, call(r, http.MethodPost, path, "owner", `{"user_id":6,"role":"boss"}`).Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodPost, path, "rival", `{"user_id":6,"role":"staff"}`).Code)
}

func TestStoreAddOwnerNeedsOwner(t *testing.T) {
	r := newStoreRouter(t)
	path := "/api/stores/" + storeA + "/members"

	require.Equal(t, http.StatusCreated, call(r, http.MethodPost, path, "owner", `{"user_id":6,"role":"staff"}`).Code)
	assert.Equal(t, http.StatusForbidden, call(r, http.MethodPost, path, "staff", `{"user_id":8,"role":"owner"}`).Code)
	assert.Equal(t, http.StatusCreated, call(r, http.MethodPost, path, "owner", `{"user_id":8,"role":"owner"}`).Code)
}
