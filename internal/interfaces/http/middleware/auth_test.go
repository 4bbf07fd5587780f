package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/convo/backend/internal/infrastructure/auth"
	"github.com/convo/backend/internal/infrastructure/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, secret, subject, name string) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Name: name,
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestOptionalAuth(t *testing.T) {
	secret := "test-secret-for-tokens"
	verifier := auth.NewTokenVerifier(config.JWTConfig{Secret: secret})

	serve := func(t *testing.T, authHeader string) (*httptest.ResponseRecorder, *gin.Context) {
		t.Helper()
		gin.SetMode(gin.TestMode)
		engine := gin.New()
		engine.Use(OptionalAuth(verifier))

		var captured *gin.Context
		engine.GET("/probe", func(c *gin.Context) {
			captured = c.Copy()
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		recorder := httptest.NewRecorder()
		engine.ServeHTTP(recorder, req)
		return recorder, captured
	}

	t.Run("no header passes through as guest", func(t *testing.T) {
		recorder, c := serve(t, "")

		assert.Equal(t, http.StatusOK, recorder.Code)
		require.NotNil(t, c)
		assert.False(t, IsAuthenticated(c))
		assert.Empty(t, GetAuthSubject(c))
	})

	t.Run("valid token marks the request authenticated", func(t *testing.T) {
		token := signTestToken(t, secret, "user-789", "María")
		recorder, c := serve(t, "Bearer "+token)

		assert.Equal(t, http.StatusOK, recorder.Code)
		require.NotNil(t, c)
		assert.True(t, IsAuthenticated(c))
		assert.Equal(t, "user-789", GetAuthSubject(c))
		assert.Equal(t, "María", GetAuthName(c))
	})

	t.Run("invalid token is rejected, not downgraded", func(t *testing.T) {
		token := signTestToken(t, "a-different-secret", "user-789", "")
		recorder, c := serve(t, "Bearer "+token)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Nil(t, c)
	})

	t.Run("malformed header is rejected", func(t *testing.T) {
		recorder, c := serve(t, "Token abc")

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		assert.Nil(t, c)
	})
}
