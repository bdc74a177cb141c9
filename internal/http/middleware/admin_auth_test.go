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

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func serveAdmin(t *testing.T, secret, authHeader string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	called := false
	AdminJWT(secret)(okHandler(&called)).ServeHTTP(rec, req)
	return rec, called
}

func TestAdminJWTRejects(t *testing.T) {
	valid, err := SignAdminToken("secret", "owner", time.Minute)
	require.NoError(t, err)
	wrongKey, err := SignAdminToken("other", "owner", time.Minute)
	require.NoError(t, err)
	expired, err := SignAdminToken("secret", "owner", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		header string
		code   int
	}{
		{"auth disabled", "", "Bearer " + valid, http.StatusUnauthorized},
		{"missing header", "secret", "", http.StatusUnauthorized},
		{"not bearer", "secret", "Basic abc", http.StatusUnauthorized},
		{"wrong key", "secret", "Bearer " + wrongKey, http.StatusUnauthorized},
		{"expired", "secret", "Bearer " + expired, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, called := serveAdmin(t, tt.secret, tt.header)
			assert.False(t, called)
			assert.Equal(t, tt.code, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestAdminJWTRequiresRole(t *testing.T) {
	claims := AdminClaims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "intern",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	rec, called := serveAdmin(t, "secret", "Bearer "+token)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminJWTRequiresExpiry(t *testing.T) {
	claims := AdminClaims{Role: AdminRole, RegisteredClaims: jwt.RegisteredClaims{Subject: "owner"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	rec, called := serveAdmin(t, "secret", "Bearer "+token)
	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminJWTValidToken(t *testing.T) {
	token, err := SignAdminToken("secret", "owner", time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	var subject string
	AdminJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := AdminClaimsFromContext(r.Context())
		require.True(t, ok)
		subject = claims.Subject
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner", subject)

	_, err = SignAdminToken("", "owner", time.Minute)
	assert.Error(t, err)
}
