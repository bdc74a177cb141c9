package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(origins []string, method, origin string, preflight bool) (*httptest.ResponseRecorder, bool) {
	called := false
	req := httptest.NewRequest(method, "/api/appointments", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	CORS(origins)(okHandler(&called)).ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	rec, called := corsRequest([]string{"https://prestige-auto.fr/"}, http.MethodGet, "https://prestige-auto.fr", false)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://prestige-auto.fr", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	rec, called := corsRequest([]string{"https://prestige-auto.fr"}, http.MethodGet, "https://evil.example", false)

	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec, called = corsRequest([]string{"https://prestige-auto.fr"}, http.MethodOptions, "https://evil.example", true)
	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	rec, _ := corsRequest([]string{"*"}, http.MethodGet, "https://random.example", false)
	assert.Equal(t, "https://random.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSHandlesPreflight(t *testing.T) {
	rec, called := corsRequest([]string{"https://prestige-auto.fr"}, http.MethodOptions, "https://prestige-auto.fr", true)

	assert.False(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORSWithoutOriginPassesThrough(t *testing.T) {
	rec, called := corsRequest(nil, http.MethodGet, "", false)
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
