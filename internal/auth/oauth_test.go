package auth

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

func TestGitHubProvider_AuthURL(t *testing.T) {
	p := NewGitHubProvider("client-id", "client-secret", "http://localhost/cb")

	u, err := url.Parse(p.AuthURL("state-123"))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
}

// newFakeGitHub serves the token and /user endpoints.
func newFakeGitHub(t *testing.T, user any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gh-token", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gh-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(user)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testProvider(srv *httptest.Server) *GitHubProvider {
	p := NewGitHubProvider("id", "secret", "http://localhost/cb")
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	p.userURL = srv.URL + "/user"
	return p
}

func TestGitHubProvider_Exchange(t *testing.T) {
	srv := newFakeGitHub(t, map[string]any{"id": 42, "login": "octocat", "email": "o@example.com"})

	identity, err := testProvider(srv).Exchange(context.Background(), "code")
	require.NoError(t, err)
	assert.Equal(t, &ExternalIdentity{ID: 42, Username: "octocat", Email: "o@example.com"}, identity)
}

func TestGitHubProvider_Exchange_IncompleteUser(t *testing.T) {
	srv := newFakeGitHub(t, map[string]any{"id": 0})

	_, err := testProvider(srv).Exchange(context.Background(), "code")
	assert.Error(t, err)
}
