package middleware

import (
	"net/http"
	"strings"

	"github.com/convo/backend/internal/infrastructure/auth"
	"github.com/convo/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Auth context keys
const (
	AuthSubjectKey   = "auth_subject"
	AuthNameKey      = "auth_name"
	AuthenticatedKey = "authenticated"

	authHeaderKey = "Authorization"
	bearerPrefix  = "Bearer "
)

// OptionalAuth verifies a bearer token when one is present. Guests pass
// through unauthenticated; a present but invalid token is rejected rather
// than silently downgraded to guest.
func OptionalAuth(verifier *auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(authHeaderKey)
		if header == "" {
			c.Next()
			return
		}

		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeTokenInvalid, "Invalid authorization header format"))
			return
		}

		claims, err := verifier.Verify(strings.TrimPrefix(header, bearerPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				dto.NewErrorResponse(dto.ErrCodeTokenInvalid, "Token validation failed"))
			return
		}

		c.Set(AuthSubjectKey, claims.Subject)
		c.Set(AuthNameKey, claims.Name)
		c.Set(AuthenticatedKey, true)
		c.Next()
	}
}

// GetAuthSubject returns the verified token subject, or empty for guests
func GetAuthSubject(c *gin.Context) string {
	return c.GetString(AuthSubjectKey)
}

// GetAuthName returns the display name claim, or empty
func GetAuthName(c *gin.Context) string {
	return c.GetString(AuthNameKey)
}

// IsAuthenticated reports whether the request carried a valid token
func IsAuthenticated(c *gin.Context) bool {
	return c.GetBool(AuthenticatedKey)
}
