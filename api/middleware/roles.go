package middleware

import (
	"net/http"

	"github.com/angelmondragon/bagflow-backend/api/responses"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

// RequireRole admits callers holding any of roles.
func RequireRole(logg *logger.Logger, roles ...enums.ActorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if ok {
				for _, role := range roles {
					if p.Role == role {
						next.ServeHTTP(w, r)
						return
					}
				}
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required").
				WithDetails(map[string]any{"roles": roles}))
		})
	}
}
