package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"user_id": "u1",
		"email":   "driver@shuttleops.com",
		"role":    "driver",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
}

func TestParseToken(t *testing.T) {
	t.Setenv("APP_JWT_SECRET", testSecret)

	claims, err := ParseToken(signToken(t, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "driver", claims.Role)

	_, err = ParseToken("not-a-token")
	assert.Error(t, err)

	expired := validClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	_, err = ParseToken(signToken(t, expired))
	assert.Error(t, err)

	noUser := validClaims()
	delete(noUser, "user_id")
	_, err = ParseToken(signToken(t, noUser))
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	t.Setenv("APP_JWT_SECRET", testSecret)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetUserFromContext(r)
		require.True(t, ok)
		assert.Equal(t, "u1", claims.UserID)
		w.WriteHeader(http.StatusOK)
	})

	handler := Auth(next)

	// Missing header
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Malformed header
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid token passes and claims reach the handler
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims()))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRole(t *testing.T) {
	t.Setenv("APP_JWT_SECRET", testSecret)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := Auth(RequireRole("driver")(next))

	// Matching role passes
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, validClaims()))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Wrong role is forbidden
	dispatcher := validClaims()
	dispatcher["role"] = "dispatcher"
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, dispatcher))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
