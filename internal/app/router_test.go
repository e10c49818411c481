package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/observability"
	"github.com/odyssey-erp/gestion/internal/rbac"
	rbachttp "github.com/odyssey-erp/gestion/internal/rbac/http"
	"github.com/odyssey-erp/gestion/internal/shared"
)

type unusedService struct{ calls int }

func (s *unusedService) Catalog() *catalog.Catalog { return catalog.Default() }

func (s *unusedService) LoadMatrix(context.Context, shared.Actor, int64) (rbac.Resolution, error) {
	s.calls++
	return rbac.Resolution{}, nil
}

func (s *unusedService) SaveDirectGrants(context.Context, shared.Actor, int64, rbac.Submission) (rbac.Resolution, error) {
	s.calls++
	return rbac.Resolution{}, nil
}

func newTestRouter(t *testing.T, svc rbachttp.Service) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:             logger,
		Config:             &Config{AppEnv: "test"},
		SessionManager:     shared.NewSessionManager(client, "gestion_session", 0, false),
		PermissionsHandler: rbachttp.NewHandler(logger, svc),
		Metrics:            observability.NewMetrics(),
	})
}

func TestHealthzWithSecureHeaders(t *testing.T) {
	router := newTestRouter(t, &unusedService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAnonymousMatrixRequestRejected(t *testing.T) {
	svc := &unusedService{}
	router := newTestRouter(t, svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/users/3/permissions", strings.NewReader(`{"permissions":[],"inherited":[]}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, svc.calls)
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	router := newTestRouter(t, &unusedService{})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `gestion_http_requests_total{code="200",method="GET",route="/healthz"} 1`)
}
