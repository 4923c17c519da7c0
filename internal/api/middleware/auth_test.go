package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formsevo/backend/internal/auth"
)

const testSecret = "test-secret"

func newAuthedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/admin/:tenant/questions", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func adminRequest(r *gin.Engine, tenant, header string) int {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/admin/"+tenant+"/questions", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w.Code
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	r := newAuthedRouter()
	token, err := auth.GenerateJWT("acme", testSecret, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, adminRequest(r, "acme", "Bearer "+token))
}

func TestAuthMiddleware_MissingOrMalformedHeader(t *testing.T) {
	r := newAuthedRouter()

	assert.Equal(t, http.StatusUnauthorized, adminRequest(r, "acme", ""))
	assert.Equal(t, http.StatusUnauthorized, adminRequest(r, "acme", "Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, adminRequest(r, "acme", "Bearer"))
	assert.Equal(t, http.StatusUnauthorized, adminRequest(r, "acme", "Bearer not-a-token"))
}

func TestAuthMiddleware_TenantScope(t *testing.T) {
	r := newAuthedRouter()
	token, err := auth.GenerateJWT("acme", testSecret, time.Hour)
	require.NoError(t, err)

	// A token scoped to acme cannot administer globex
	assert.Equal(t, http.StatusForbidden, adminRequest(r, "globex", "Bearer "+token))

	// Operator tokens (no tenant) administer everything
	operator, err := auth.GenerateJWT("", testSecret, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, adminRequest(r, "acme", "Bearer "+operator))
	assert.Equal(t, http.StatusOK, adminRequest(r, "globex", "Bearer "+operator))
}

func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	r := newAuthedRouter()
	token, err := auth.GenerateJWT("acme", testSecret, -time.Minute)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, adminRequest(r, "acme", "Bearer "+token))
}
