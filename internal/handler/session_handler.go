package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kardexsoft/kardex-gateway/internal/authz"
	"github.com/kardexsoft/kardex-gateway/internal/domain"
	"github.com/kardexsoft/kardex-gateway/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// 1. Autenticación: login / logout / callback OAuth
// ============================================================

type loginRequest struct {
	Username string `json:"usuario"`
	Password string `json:"clave"`
}

func loginHandler(svc *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Username == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "usuario y clave son obligatorios")
			return
		}

		sid := SessionIDFromContext(ctx)
		user, err := svc.Login(ctx, sid, req.Username, req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

func logoutHandler(svc *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/logout")
		defer span.End()

		svc.Logout(ctx, SessionIDFromContext(ctx))
		w.WriteHeader(http.StatusNoContent)
	}
}

// callbackResponse is the JSON surface of a resolved callback. The delay
// is exposed in milliseconds because the SPA schedules the redirect.
type callbackResponse struct {
	State           domain.CallbackState `json:"state"`
	Message         string               `json:"message,omitempty"`
	User            *domain.User         `json:"user,omitempty"`
	RedirectTo      string               `json:"redirectTo"`
	RedirectAfterMs int64                `json:"redirectAfterMs"`
}

func callbackHandler(svc *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/auth/callback")
		defer span.End()

		q := r.URL.Query()
		params := domain.CallbackParams{
			Token: q.Get("token"),
			User:  q.Get("user"),
			Error: q.Get("error"),
		}

		sid := SessionIDFromContext(ctx)
		outcome := svc.IngestorFor(sid).Ingest(ctx, params)
		span.SetAttributes(attribute.String("callback.state", string(outcome.State)))

		status := http.StatusOK
		if outcome.State == domain.CallbackError {
			status = http.StatusUnprocessableEntity
		}

		writeJSON(w, status, callbackResponse{
			State:           outcome.State,
			Message:         outcome.Message,
			User:            outcome.User,
			RedirectTo:      outcome.RedirectTo,
			RedirectAfterMs: outcome.RedirectAfterMs(),
		})
	}
}

// ============================================================
// 2. Sesión: verdict de reconciliación
// ============================================================

func sessionHandler(svc *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/session")
		defer span.End()

		q := r.URL.Query()

		required := domain.Role("")
		if raw := q.Get("role"); raw != "" {
			role, ok := domain.ParseRole(raw)
			if !ok {
				writeError(w, http.StatusBadRequest, "rol desconocido")
				return
			}
			required = role
		}
		requireActive := q.Get("requireActive") == "true"

		sid := SessionIDFromContext(ctx)
		verdict := svc.Resolve(ctx, sid, required, requireActive)
		writeJSON(w, http.StatusOK, verdict)
	}
}

// ============================================================
// 3. Permisos: matriz rol/recurso/acción
// ============================================================

type permissionCheckResponse struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Allowed  bool   `json:"allowed"`
}

func permissionsHandler(svc *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/permissions")
		defer span.End()

		sess := currentSession(ctx, svc)
		if !sess.Authenticated() {
			writeError(w, http.StatusUnauthorized, "sesión no autenticada")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"role":        sess.User.Role,
			"permissions": authz.PermissionsFor(sess.User.Role),
		})
	}
}

func permissionCheckHandler(svc *service.SessionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/permissions/check")
		defer span.End()

		q := r.URL.Query()
		resource, okRes := authz.ParseResource(q.Get("resource"))
		action, okAct := authz.ParseAction(q.Get("action"))
		if !okRes || !okAct {
			writeError(w, http.StatusBadRequest, "recurso o acción desconocidos")
			return
		}

		sess := currentSession(ctx, svc)
		if !sess.Authenticated() {
			writeError(w, http.StatusUnauthorized, "sesión no autenticada")
			return
		}

		writeJSON(w, http.StatusOK, permissionCheckResponse{
			Resource: string(resource),
			Action:   string(action),
			Allowed:  authz.UserCan(sess.User, resource, action),
		})
	}
}

// currentSession rehydrates from persisted storage before answering so a
// fresh browser tab sees its permissions without visiting a guarded page
// first.
func currentSession(ctx context.Context, svc *service.SessionService) *domain.Session {
	sid := SessionIDFromContext(ctx)
	svc.Refresh(ctx, sid)
	return svc.Current(sid)
}
