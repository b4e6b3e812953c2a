// Package httptransport assembles the public HTTP surface: the shared
// middleware chain, platform-admin routes and the estate-scoped API.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	blacklisthandler "gatepass/internal/blacklist/handler"
	emergencyhandler "gatepass/internal/emergency/handler"
	estatehandler "gatepass/internal/estate/handler"
	movementhandler "gatepass/internal/movement/handler"
	passhandler "gatepass/internal/pass/handler"
	"gatepass/pkg/platform/clock"
	"gatepass/pkg/platform/httputil"
	adminmw "gatepass/pkg/platform/middleware/admin"
	authmw "gatepass/pkg/platform/middleware/auth"
	"gatepass/pkg/platform/middleware/metadata"
	"gatepass/pkg/platform/middleware/request"
	"gatepass/pkg/platform/middleware/requesttime"
)

// Handlers are the domain handlers mounted by the router.
type Handlers struct {
	Estates   *estatehandler.Handler
	Passes    *passhandler.Handler
	Blacklist *blacklisthandler.Handler
	Movements *movementhandler.Handler
	Panic     *emergencyhandler.Handler
}

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Logger         *slog.Logger
	Validator      authmw.JWTValidator
	AdminToken     string
	AllowedOrigins []string
	RequestTimeout time.Duration
	Clock          clock.Clock
	Latency        request.LatencyObserver
	Metrics        http.Handler
	Health         map[string]HealthCheck
}

func NewRouter(opts Options, h Handlers) http.Handler {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	logger := opts.Logger

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Admin-Token"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(logger))
	r.Use(request.Latency(opts.Latency, routePattern))

	r.Get("/healthz", healthHandler(opts.Health))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(request.Timeout(opts.RequestTimeout))
		}
		r.Use(request.ContentTypeJSON)
		r.Use(requesttime.WithClock(opts.Clock))

		r.Group(func(r chi.Router) {
			r.Use(adminmw.RequireAdminToken(opts.AdminToken, logger))
			h.Estates.RegisterAdmin(r)
		})

		r.Route("/estates/{estateID}", func(r chi.Router) {
			r.Use(authmw.RequireAuth(opts.Validator, logger))
			r.Use(authmw.RequireEstate(logger, "estateID"))
			h.Estates.Register(r)
			h.Passes.Register(r)
			h.Blacklist.Register(r)
			h.Movements.Register(r)
			h.Panic.Register(r)
		})
	})
	return r
}

// routePattern labels latency by route template so IDs don't explode the
// metric's cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
