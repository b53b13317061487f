package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docsync-api/internal/auth"
	"docsync-api/internal/database"
	"docsync-api/internal/realtime"
	"docsync-api/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	database.DB = db
}

func newTokens() *auth.TokenManager {
	return auth.NewTokenManager("test-secret", "docsync-api", "docsync-clients", time.Hour)
}

// withIdentity stands in for JWTAuthMiddleware in handler tests.
func withIdentity(id realtime.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("identity", id)
		c.Set("user_id", id.UserID)
		c.Next()
	}
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
