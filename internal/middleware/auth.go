package middleware

import (
	"net/http"
	"strings"

	"docsync-api/internal/auth"
	"docsync-api/internal/realtime"

	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// JWTAuthMiddleware validates the bearer token and stores the verified
// identity in the context.
func JWTAuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString := ""
		if authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
		// Fallback for WebSocket/browser where custom headers cannot be set: allow token in query param
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is required",
			})
			return
		}

		identity, err := verifier.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(identityKey, identity)
		c.Set("user_id", identity.UserID)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by JWTAuthMiddleware.
func IdentityFrom(c *gin.Context) (realtime.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return realtime.Identity{}, false
	}
	id, ok := v.(realtime.Identity)
	return id, ok && id.Valid()
}
