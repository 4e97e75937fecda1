package handler

import (
	"net/http"
	"time"

	"github.com/kardexsoft/kardex-gateway/internal/domain"
	"github.com/kardexsoft/kardex-gateway/internal/infra/observability"
	"github.com/kardexsoft/kardex-gateway/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
// Routes follow the API contract expected by the KARDEX SPA.
func NewRouter(svc *service.SessionService, sealer *Sealer, sessionTTL time.Duration, allowedOrigins []string, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler(svc))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Use(SessionCookie(sealer, sessionTTL))

		// =============================================
		// 1. 🔐 Autenticación
		// =============================================
		r.Post("/auth/login", loginHandler(svc, logger))
		r.Post("/auth/logout", logoutHandler(svc, logger))
		r.Get("/auth/callback", callbackHandler(svc, logger))

		// =============================================
		// 2. 🪪 Sesión y permisos
		// =============================================
		r.Get("/session", sessionHandler(svc, logger))
		r.Get("/permissions", permissionsHandler(svc, logger))
		r.Get("/permissions/check", permissionCheckHandler(svc, logger))

		// =============================================
		// 3. 📊 Métricas de sesión
		// =============================================
		r.Get("/metrics/session", sessionMetricsHandler(metrics, logger))

		// =============================================
		// 4. 🛒 Portal de clientes (protegido)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(SessionGuard(svc, true, logger, domain.RoleCustomer))
			r.Get("/portal/perfil", profileHandler(logger))
		})

		// =============================================
		// 5. 🗂 Panel interno (protegido, cualquier rol de personal)
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(SessionGuard(svc, false, logger,
				domain.RoleAdmin, domain.RoleVendor, domain.RoleWarehouse, domain.RoleAccountant))
			r.Get("/panel/perfil", profileHandler(logger))
		})
	})

	return r
}

// ============================================================
// Operational handlers
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// readyzHandler reports ready once the session service exists. The
// remote KARDEX API is deliberately not probed here: the gateway stays
// up and degrades per-request while the API is down.
func readyzHandler(svc *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func sessionMetricsHandler(metrics *observability.Metrics, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "GET /v1/metrics/session")
		defer span.End()

		writeJSON(w, http.StatusOK, metrics.GetSessionSnapshot())
	}
}

// profileHandler echoes the identity the guard attached. The SPA uses it
// as the "who am I on this page" probe behind protected routes.
func profileHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			writeError(w, http.StatusUnauthorized, "sesión no autenticada")
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
