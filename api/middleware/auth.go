package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/inventory-backoffice/api/responses"
	pkgAuth "github.com/angelmondragon/inventory-backoffice/pkg/auth"
	"github.com/angelmondragon/inventory-backoffice/pkg/auth/session"
	"github.com/angelmondragon/inventory-backoffice/pkg/config"
	pkgerrors "github.com/angelmondragon/inventory-backoffice/pkg/errors"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the actor.
func Auth(cfg config.JWTConfig, revocations session.RevocationChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if revocations != nil && claims.ID != "" {
				revoked, err := revocations.IsRevoked(r.Context(), claims.ID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check token revocation"))
					return
				}
				if revoked {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token revoked"))
					return
				}
			}

			ctx := pkgAuth.WithActor(r.Context(), pkgAuth.Actor{ID: claims.Subject, Role: claims.Role})
			ctx = context.WithValue(ctx, ctxTokenID, claims.ID)
			if claims.ExpiresAt != nil {
				ctx = context.WithValue(ctx, ctxTokenExpiry, claims.ExpiresAt.Time)
			}

			if logg != nil {
				ctx = logg.WithActorID(ctx, claims.Subject)
				ctx = logg.WithField(ctx, "actor_role", string(claims.Role))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	token := strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}
