package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/inventory-backoffice/api/middleware"
	"github.com/angelmondragon/inventory-backoffice/api/responses"
	"github.com/angelmondragon/inventory-backoffice/api/validators"
	pkgerrors "github.com/angelmondragon/inventory-backoffice/pkg/errors"
	"github.com/angelmondragon/inventory-backoffice/pkg/logger"
)

// TokenRevoker withdraws access tokens before they expire.
type TokenRevoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

type revokeTokenRequest struct {
	TokenID   string     `json:"token_id" validate:"notblank,max=128"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RevokeCurrentToken revokes the bearer token used for the request.
func RevokeCurrentToken(revoker TokenRevoker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jti := middleware.TokenIDFromContext(r.Context())
		if jti == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "token has no id"))
			return
		}
		if err := revoker.Revoke(r.Context(), jti, middleware.TokenExpiryFromContext(r.Context())); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke token"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// AdminRevokeToken revokes any token by id.
func AdminRevokeToken(revoker TokenRevoker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req revokeTokenRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var expiresAt time.Time
		if req.ExpiresAt != nil {
			expiresAt = *req.ExpiresAt
		}
		if err := revoker.Revoke(r.Context(), req.TokenID, expiresAt); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revoke token"))
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "token_id", req.TokenID), "access token revoked")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
