package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docsync-api/internal/realtime"
)

func newTestTokens() *TokenManager {
	return NewTokenManager("test-secret", "docsync-api", "docsync-clients", time.Hour)
}

func TestGenerateAndValidateToken(t *testing.T) {
	tokens := newTestTokens()
	token, err := tokens.GenerateToken(realtime.Identity{UserID: "u-1", Email: "alice@example.com", DisplayName: "Alice"})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tokens.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "u-1", claims.UserID)
	require.Equal(t, "alice@example.com", claims.Email)
	require.Equal(t, realtime.Identity{UserID: "u-1", Email: "alice@example.com", DisplayName: "Alice"}, claims.Identity())
}

func TestValidateToken_Invalid(t *testing.T) {
	_, err := newTestTokens().ValidateToken("invalid.token")
	require.Error(t, err)
}

func TestValidateToken_WrongIssuerOrAudience(t *testing.T) {
	id := realtime.Identity{UserID: "u-1"}

	other, err := NewTokenManager("test-secret", "someone-else", "docsync-clients", time.Hour).GenerateToken(id)
	require.NoError(t, err)
	_, err = newTestTokens().ValidateToken(other)
	require.ErrorContains(t, err, "issuer")

	other, err = NewTokenManager("test-secret", "docsync-api", "other-clients", time.Hour).GenerateToken(id)
	require.NoError(t, err)
	_, err = newTestTokens().ValidateToken(other)
	require.ErrorContains(t, err, "audience")
}

func TestValidateToken_WrongSecretOrExpired(t *testing.T) {
	id := realtime.Identity{UserID: "u-1"}

	forged, err := NewTokenManager("other-secret", "docsync-api", "docsync-clients", time.Hour).GenerateToken(id)
	require.NoError(t, err)
	_, err = newTestTokens().ValidateToken(forged)
	require.Error(t, err)

	expired, err := NewTokenManager("test-secret", "docsync-api", "docsync-clients", -time.Minute).GenerateToken(id)
	require.NoError(t, err)
	_, err = newTestTokens().ValidateToken(expired)
	require.Error(t, err)
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	require.True(t, CheckPassword(hash, "s3cret"))
	require.False(t, CheckPassword(hash, "wrong"))
}

func TestVerifier_CachesIdentity(t *testing.T) {
	tokens := newTestTokens()
	v := NewVerifier(tokens, time.Minute)

	token, err := tokens.GenerateToken(realtime.Identity{UserID: "u-1", Email: "a@example.com"})
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u-1", id.UserID)
	require.Equal(t, 1, v.cache.Len())

	id, err = v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u-1", id.UserID)

	_, err = v.Verify("garbage")
	require.Error(t, err)
	require.Equal(t, 1, v.cache.Len())
}

func TestVerifier_NoCache(t *testing.T) {
	tokens := newTestTokens()
	v := NewVerifier(tokens, 0)

	token, err := tokens.GenerateToken(realtime.Identity{UserID: "u-1"})
	require.NoError(t, err)
	_, err = v.Verify(token)
	require.NoError(t, err)
	require.Zero(t, v.cache.Len())
}
