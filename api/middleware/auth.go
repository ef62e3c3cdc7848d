package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/bagflow-backend/api/responses"
	pkgAuth "github.com/angelmondragon/bagflow-backend/pkg/auth"
	"github.com/angelmondragon/bagflow-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

// Auth validates the bearer token minted by the identity service and seeds
// the request context with the caller.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := WithPrincipal(r.Context(), Principal{
				UserID:  claims.UserID,
				Role:    claims.Role,
				StoreID: claims.StoreID,
			})
			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				ctx = logg.WithActorRole(ctx, string(claims.Role))
				if claims.StoreID != nil {
					ctx = logg.WithStoreID(ctx, claims.StoreID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header, or the access_token query
// parameter browsers must use for websocket upgrades.
func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return strings.TrimSpace(r.URL.Query().Get("access_token"))
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
