package auth

import (
	"context"
	"time"

	"docsync-api/internal/cache"
	"docsync-api/internal/realtime"
)

const maxCachedIdentities = 10000

// Verifier turns bearer tokens into verified identities. Successful
// verifications are cached until the earlier of cacheTTL and token expiry.
type Verifier struct {
	tokens   *TokenManager
	cache    *cache.TTLCache[string, realtime.Identity]
	cacheTTL time.Duration
}

// NewVerifier creates a verifier; a cacheTTL of 0 disables caching.
func NewVerifier(tokens *TokenManager, cacheTTL time.Duration) *Verifier {
	return &Verifier{
		tokens:   tokens,
		cache:    cache.NewTTLCache[string, realtime.Identity](maxCachedIdentities),
		cacheTTL: cacheTTL,
	}
}

// Verify validates token and returns the identity it carries.
func (v *Verifier) Verify(token string) (realtime.Identity, error) {
	if v.cacheTTL > 0 {
		if id, ok := v.cache.Get(token); ok {
			return id, nil
		}
	}

	claims, err := v.tokens.ValidateToken(token)
	if err != nil {
		return realtime.Identity{}, err
	}
	id := claims.Identity()

	if v.cacheTTL > 0 {
		ttl := v.cacheTTL
		if claims.ExpiresAt != nil {
			if left := time.Until(claims.ExpiresAt.Time); left < ttl {
				ttl = left
			}
		}
		if ttl > 0 {
			v.cache.Set(token, id, ttl)
		}
	}
	return id, nil
}

// Tokens returns the underlying token manager.
func (v *Verifier) Tokens() *TokenManager { return v.tokens }

// Run purges expired cache entries until ctx is done.
func (v *Verifier) Run(ctx context.Context) {
	interval := v.cacheTTL
	if interval <= 0 {
		return
	}
	v.cache.Janitor(ctx, interval)
}
