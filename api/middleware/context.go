package middleware

import (
	"context"
	"time"
)

type contextKey string

const (
	ctxTokenID     contextKey = "token_id"
	ctxTokenExpiry contextKey = "token_expiry"
)

// TokenIDFromContext returns the jti of the bearer token that authenticated the request.
func TokenIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxTokenID).(string); ok {
		return v
	}
	return ""
}

// TokenExpiryFromContext returns the expiry of the bearer token, zero when unknown.
func TokenExpiryFromContext(ctx context.Context) time.Time {
	if ctx == nil {
		return time.Time{}
	}
	if v, ok := ctx.Value(ctxTokenExpiry).(time.Time); ok {
		return v
	}
	return time.Time{}
}
