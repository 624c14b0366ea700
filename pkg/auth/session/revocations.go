package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redislib "github.com/redis/go-redis/v9"

	redisclient "github.com/angelmondragon/inventory-backoffice/pkg/redis"
)

// ErrTokenIDRequired is returned when a revocation is requested without a jti.
var ErrTokenIDRequired = errors.New("token id is required")

type revocationStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
}

type revocationKeyer interface {
	RevokedTokenKey(jti string) string
}

// RevocationChecker exposes the read-only surface needed by middleware.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Revocations tracks access tokens that were withdrawn before they expire.
// Entries live only as long as the token could still be presented.
type Revocations struct {
	store  revocationStore
	keyer  revocationKeyer
	maxTTL time.Duration
	now    func() time.Time
}

// NewRevocations builds a revocation list backed by Redis. maxTTL bounds how long
// an entry is kept when the token expiry is unknown.
func NewRevocations(client *redisclient.Client, maxTTL time.Duration) (*Revocations, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if maxTTL <= 0 {
		return nil, fmt.Errorf("revocation ttl must be positive")
	}
	return &Revocations{store: client, keyer: client, maxTTL: maxTTL, now: time.Now}, nil
}

// Revoke marks jti as revoked until expiresAt. A zero expiresAt keeps the entry for maxTTL.
func (r *Revocations) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return ErrTokenIDRequired
	}
	ttl := r.maxTTL
	if !expiresAt.IsZero() {
		remaining := expiresAt.Sub(r.now())
		if remaining <= 0 {
			return nil
		}
		if remaining < ttl {
			ttl = remaining
		}
	}
	return r.store.Set(ctx, r.keyer.RevokedTokenKey(jti), r.now().UTC().Format(time.RFC3339), ttl)
}

// IsRevoked reports whether jti was revoked and the revocation has not lapsed.
func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return false, ErrTokenIDRequired
	}
	if _, err := r.store.Get(ctx, r.keyer.RevokedTokenKey(jti)); err != nil {
		if errors.Is(err, redislib.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
