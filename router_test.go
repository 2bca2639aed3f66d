package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httpapi "github.com/yourorg/inventory-api/http"
	"github.com/yourorg/inventory-api/internal/auth"
)

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	admin, err := auth.NewAuthenticator("admin", "admin-secret", nil)
	require.NoError(t, err)
	return BuildRouter(RouterDeps{
		Log:       zap.NewNop(),
		AdminAuth: admin,
		Feed:      httpapi.FeedDeps{},
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthAndMetrics(t *testing.T) {
	h := testRouter(t)
	assert.Equal(t, http.StatusOK, serve(h, httptest.NewRequest(http.MethodGet, "/health", nil)).Code)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "inventory_feed_generation_seconds")
}

func TestRouterAdminRequiresKey(t *testing.T) {
	h := testRouter(t)

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/admin/stores", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "MISSING_API_KEY")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stores", nil)
	req.Header.Set(auth.HeaderName, "nope")
	rec = serve(h, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_API_KEY")
}

func TestRouterFeedWithoutSecret(t *testing.T) {
	h := testRouter(t)
	rec := serve(h, httptest.NewRequest(http.MethodGet, "/api/feeds/cdk?key=x", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFIG_ERROR")
}
