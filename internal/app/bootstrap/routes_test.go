package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"testing"

	authapifeature "github.com/dalemusser/stratagate/internal/app/features/authapi"
	healthfeature "github.com/dalemusser/stratagate/internal/app/features/health"
	"github.com/dalemusser/stratagate/internal/app/system/auth/authtest"
	"github.com/dalemusser/stratagate/internal/app/system/metrics"
	"github.com/dalemusser/stratagate/internal/domain/models"
	"github.com/dalemusser/stratagate/internal/testutil"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, withMetrics bool, checks ...healthfeature.Check) (chi.Router, *authtest.Harness) {
	t.Helper()
	var reg *prometheus.Registry
	var opts []authtest.Option
	if withMetrics {
		reg = metrics.NewRegistry()
		opts = append(opts, authtest.WithMetrics(metrics.New(reg)))
	}
	h := authtest.New(t, opts...)

	r := chi.NewRouter()
	mountRoutes(r, routeDeps{
		svc:      h.Service,
		registry: reg,
		checks:   checks,
	}, zap.NewNop())
	return r, h
}

func serve(r http.Handler, req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestMountRoutes_LoginFlow(t *testing.T) {
	r, h := newTestRouter(t, false)
	h.AddUser(1001, models.RoleAdmin)

	rec := serve(r, testutil.NewJSONRequest(t, http.MethodPost, "/auth/telegram", h.Assertion(1001)))
	rec.AssertStatus(t, http.StatusOK)
	var login authapifeature.LoginResponse
	rec.DecodeJSON(t, &login)
	if !login.Success || login.AccessToken == "" || login.RefreshToken == "" {
		t.Fatalf("login response = %+v", login)
	}

	rec = serve(r, testutil.WithBearer(testutil.NewRequest(http.MethodGet, "/auth/me"), login.AccessToken))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `"telegramId":1001`)

	rec = serve(r, testutil.WithBearer(testutil.NewRequest(http.MethodPost, "/auth/logout"), login.AccessToken))
	rec.AssertStatus(t, http.StatusOK)

	rec = serve(r, testutil.WithBearer(testutil.NewRequest(http.MethodGet, "/auth/me"), login.AccessToken))
	rec.AssertStatus(t, http.StatusUnauthorized)
}

func TestMountRoutes_Health(t *testing.T) {
	ok := healthfeature.Check{Name: "mongodb", Ping: func(context.Context) error { return nil }}
	r, _ := newTestRouter(t, false, ok)

	for _, path := range []string{"/health", "/health/ready", "/health/live", "/readyz", "/livez"} {
		serve(r, testutil.NewRequest(http.MethodGet, path)).AssertStatus(t, http.StatusOK)
	}
}

func TestMountRoutes_HealthDegraded(t *testing.T) {
	down := healthfeature.Check{Name: "mongodb", Ping: func(context.Context) error { return errors.New("no primary") }}
	r, _ := newTestRouter(t, false, down)

	serve(r, testutil.NewRequest(http.MethodGet, "/readyz")).AssertStatus(t, http.StatusServiceUnavailable)
	serve(r, testutil.NewRequest(http.MethodGet, "/livez")).AssertStatus(t, http.StatusOK)
}

func TestMountRoutes_Metrics(t *testing.T) {
	r, h := newTestRouter(t, true)
	h.AddUser(1001, models.RoleAdmin)

	serve(r, testutil.NewJSONRequest(t, http.MethodPost, "/auth/telegram", h.Forged(1001))).
		AssertStatus(t, http.StatusBadRequest)

	rec := serve(r, testutil.NewRequest(http.MethodGet, "/metrics"))
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, `stratagate_auth_logins_total{outcome="bad_signature"} 1`)
	rec.AssertContains(t, "stratagate_http_requests_total")
}

func TestMountRoutes_MetricsDisabled(t *testing.T) {
	r, _ := newTestRouter(t, false)
	rec := serve(r, testutil.NewRequest(http.MethodGet, "/metrics"))
	rec.AssertStatus(t, http.StatusNotFound)
	rec.AssertContains(t, `"success":false`)
}

func TestMountRoutes_MethodNotAllowed(t *testing.T) {
	r, _ := newTestRouter(t, false)
	serve(r, testutil.NewRequest(http.MethodGet, "/auth/telegram")).AssertStatus(t, http.StatusMethodNotAllowed)
}
