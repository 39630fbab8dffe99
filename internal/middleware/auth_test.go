package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Conceptual-Machines/melody-api/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func validClaims(userID string) *Claims {
	return &Claims{
		UserID: userID,
		Email:  userID + "@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", JWTAuth(&config.Config{JWTSecret: testSecret}), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "email": c.GetString("user_email")})
	})
	return router
}

func TestParseToken(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("u1"))

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "u1@example.com", claims.Email)

	_, err = ParseToken(token, "other-secret")
	assert.Error(t, err)

	expired := validClaims("u1")
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, err = ParseToken(signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired), testSecret)
	assert.Error(t, err)

	_, err = ParseToken("not-a-token", testSecret)
	assert.Error(t, err)
}

func TestParseTokenRejectsUnsignedTokens(t *testing.T) {
	token := signToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims("u1"))
	_, err := ParseToken(token, testSecret)
	assert.Error(t, err)
}

func TestJWTAuth(t *testing.T) {
	router := newAuthRouter()
	good := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("u2"))

	subjectOnly := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u3",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	noUser := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}

	tests := []struct {
		name   string
		header string
		cookie string
		status int
		body   string
	}{
		{name: "missing token", status: http.StatusUnauthorized},
		{name: "bearer header", header: "Bearer " + good, status: http.StatusOK, body: `"user_id":"u2"`},
		{name: "cookie", cookie: good, status: http.StatusOK, body: `"user_id":"u2"`},
		{name: "wrong scheme", header: "Token " + good, status: http.StatusUnauthorized},
		{name: "bad signature", header: "Bearer " + good + "x", status: http.StatusUnauthorized},
		{
			name:   "subject fallback",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), subjectOnly),
			status: http.StatusOK,
			body:   `"user_id":"u3"`,
		},
		{
			name:   "no user",
			header: "Bearer " + signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noUser),
			status: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Contains(t, w.Body.String(), tt.body)
			}
		})
	}
}
