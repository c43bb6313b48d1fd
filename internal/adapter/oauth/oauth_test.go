package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func newProviderServer(t *testing.T, routes map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code_verifier") == "" || r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	})
	for path, body := range routes {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(body)
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProvider_AuthCodeURL(t *testing.T) {
	t.Parallel()

	p := NewGoogle("cid", "secret", "http://localhost:8080/v1/oauth/google/callback")
	raw := p.AuthCodeURL("state-1", oauth2.GenerateVerifier())
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "state-1", q.Get("state"))
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, "google", p.Name())
}

func TestGoogle_Exchange(t *testing.T) {
	t.Parallel()

	srv := newProviderServer(t, map[string]any{
		"/userinfo": map[string]any{"email": "ana@example.com", "email_verified": true, "name": "Ana Lima", "given_name": "Ana"},
	})
	p := newGoogle("cid", "secret", "http://cb", oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}, srv.URL+"/userinfo")

	prof, err := p.Exchange(context.Background(), "good-code", oauth2.GenerateVerifier())
	require.NoError(t, err)
	assert.Equal(t, "google", prof.Provider)
	assert.Equal(t, "ana@example.com", prof.Email)
	assert.True(t, prof.EmailVerified)
	assert.Equal(t, "Ana", prof.Login)

	_, err = p.Exchange(context.Background(), "bad-code", oauth2.GenerateVerifier())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=oauth.google.Exchange")
}

func TestGitHub_Exchange_UsesPrimaryEmail(t *testing.T) {
	t.Parallel()

	srv := newProviderServer(t, map[string]any{
		"/user": map[string]any{"login": "octo", "name": "Octo Cat"},
		"/user/emails": []map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		},
	})
	p := newGitHub("cid", "secret", "http://cb", oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}, srv.URL)

	prof, err := p.Exchange(context.Background(), "good-code", oauth2.GenerateVerifier())
	require.NoError(t, err)
	assert.Equal(t, "github", prof.Provider)
	assert.Equal(t, "octo@example.com", prof.Email)
	assert.True(t, prof.EmailVerified)
	assert.Equal(t, "octo", prof.Login)
}

func TestGitHub_ProfileError(t *testing.T) {
	t.Parallel()

	srv := newProviderServer(t, map[string]any{})
	p := newGitHub("cid", "secret", "http://cb", oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}, srv.URL)

	_, err := p.Exchange(context.Background(), "good-code", oauth2.GenerateVerifier())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=oauth.github.Profile")
}
