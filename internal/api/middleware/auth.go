package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"formsevo/backend/internal/auth"
)

const (
	// ContextKeyClaims holds the validated admin claims in the Gin context.
	ContextKeyClaims = "adminClaims"
)

// AuthMiddleware creates a Gin middleware validating admin JWTs. Routes
// carrying a :tenant parameter additionally require the token's tenant
// scope to match.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Invalid or expired token: %v", err)})
			return
		}

		if tenant := c.Param("tenant"); tenant != "" && !claims.AllowsTenant(tenant) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Token not valid for this tenant"})
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}
