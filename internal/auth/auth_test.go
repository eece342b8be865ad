package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoistscout/hoistscout-core/internal/models"
)

func TestAuthenticateBasic_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if ok && user == "alice" && pass == "s3cret" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := New(nil)
	outcome, err := e.authenticateBasic(t.Context(), srv.URL, models.Credentials{Username: "alice", Password: "s3cret"})
	require.NoError(t, err)
	assert.True(t, outcome.OK)
	assert.Contains(t, outcome.Headers["Authorization"], "Basic ")
}

func TestAuthenticateBasic_WrongCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := New(nil)
	outcome, err := e.authenticateBasic(t.Context(), srv.URL, models.Credentials{Username: "bob", Password: "wrong"})
	require.Error(t, err)
	assert.False(t, outcome.OK)
	var failure *AuthFailure
	assert.ErrorAs(t, err, &failure)
}

func TestAuthenticateAPIKey_HeaderStrategy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") == "topsecret" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	e := New(nil)
	cfg := models.AuthConfig{Type: models.AuthTypeAPIKey, HeaderName: "X-Api-Key", TestEndpoint: srv.URL}
	outcome, err := e.authenticateAPIKey(t.Context(), cfg, models.Credentials{APIKey: "topsecret"})
	require.NoError(t, err)
	assert.True(t, outcome.OK)
}

func TestAuthenticateCookie_InjectsConfiguredCookies(t *testing.T) {
	e := New(nil)
	cfg := models.AuthConfig{
		Type: models.AuthTypeCookie,
		Cookies: []models.CookieSpec{
			{Name: "session", Value: "abc123", Domain: "example.com"},
		},
	}
	outcome, err := e.authenticateCookie(cfg)
	require.NoError(t, err)
	assert.True(t, outcome.OK)
	require.Len(t, outcome.Cookies, 1)
	assert.Equal(t, "session", outcome.Cookies[0].Name)
}

func TestAuthenticate_OAuthStubNotImplemented(t *testing.T) {
	e := New(nil)
	_, err := e.Authenticate(t.Context(), nil, "https://example.com", models.AuthConfig{Type: models.AuthTypeOAuth}, models.Credentials{})
	assert.ErrorIs(t, err, ErrNotImplemented)
}
