// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"
	"time"

	authapifeature "github.com/dalemusser/stratagate/internal/app/features/authapi"
	healthfeature "github.com/dalemusser/stratagate/internal/app/features/health"
	"github.com/dalemusser/stratagate/internal/app/system/auth"
	"github.com/dalemusser/stratagate/internal/app/system/jsonutil"
	"github.com/dalemusser/stratagate/internal/app/system/metrics"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler for this WAFFLE app.
//
// WAFFLE calls this after Startup, so the auth core is already built. The
// global middleware is WAFFLE's CORS and security headers plus request
// metrics; everything below it is JSON.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if core == nil {
		return nil, errors.New("auth core not initialised; Startup must run before BuildHandler")
	}

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	mountRoutes(r, routeDeps{
		svc:        core.service,
		registry:   core.registry,
		checks:     []healthfeature.Check{healthfeature.MongoCheck(deps.MongoClient)},
		trustProxy: appCfg.TrustProxyHeaders,
	}, logger)

	return r, nil
}

// routeDeps is what mountRoutes needs from the auth core.
type routeDeps struct {
	svc        authService
	registry   *prometheus.Registry // nil disables /metrics
	checks     []healthfeature.Check
	trustProxy bool
}

// authService is the auth core as seen by the router: the handler calls plus
// bearer authentication.
type authService interface {
	authapifeature.Service
	auth.Authenticator
}

// Routes mounted by mountRoutes:
//   - /auth/*           - Telegram login, refresh, logout, sessions
//   - /health, /health/ready, /health/live, /readyz, /livez
//   - /metrics          - Prometheus exposition (when enabled)
func mountRoutes(r chi.Router, d routeDeps, logger *zap.Logger) {
	var reg prometheus.Registerer
	if d.registry != nil {
		reg = d.registry
	}
	r.Use(metrics.HTTPMiddleware(reg))

	authHandler := authapifeature.NewHandler(d.svc, logger, d.trustProxy)
	r.Mount("/auth", authapifeature.Routes(authHandler, d.svc, logger))

	healthHandler := healthfeature.NewHandler(logger, d.checks...)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	healthfeature.MountRootEndpoints(r, healthHandler)

	if d.registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.registry))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonutil.NotFound(w, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonutil.Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
}
