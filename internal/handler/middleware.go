package handler

import (
	"context"
	"net/http"

	"github.com/kardexsoft/kardex-gateway/internal/domain"
	"github.com/kardexsoft/kardex-gateway/internal/service"

	"go.uber.org/zap"
)

const verdictUserKey ctxKey = "verdictUser"

// UserFromContext returns the identity attached by SessionGuard.
func UserFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(verdictUserKey).(*domain.User); ok {
		return u
	}
	return nil
}

// SessionGuard protects a route group. Every request is reconciled into
// a verdict; denied requests are sent to the verdict's redirect target
// with 303, the way the SPA expects protected pages to bounce.
//
// With exactly one role the check is delegated to reconciliation. With
// several, any of them passes.
func SessionGuard(svc *service.SessionService, requireActive bool, logger *zap.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	required := domain.Role("")
	if len(roles) == 1 {
		required = roles[0]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := SessionIDFromContext(r.Context())
			verdict := svc.Resolve(r.Context(), sid, required, requireActive)

			if verdict.IsAuthorized && len(roles) > 1 && !roleAllowed(verdict.User, roles) {
				verdict.IsAuthorized = false
				verdict.RedirectTo = svc.Landing()
			}

			if !verdict.IsAuthorized {
				logger.Debug("guard denied request",
					zap.String("path", r.URL.Path),
					zap.Bool("authenticated", verdict.IsAuthenticated),
				)
				target := verdict.RedirectTo
				if target == "" {
					target = svc.Landing()
				}
				http.Redirect(w, r, target, http.StatusSeeOther)
				return
			}

			ctx := context.WithValue(r.Context(), verdictUserKey, verdict.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func roleAllowed(u *domain.User, roles []domain.Role) bool {
	if u == nil {
		return false
	}
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}
