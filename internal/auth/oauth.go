package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// ExternalIdentity is the profile an external provider vouches for.
type ExternalIdentity struct {
	ID       int64
	Username string
	Email    string
}

// ExternalIdentityProvider is an optional login path through a third party.
// It is disabled unless the server is configured with provider credentials.
type ExternalIdentityProvider interface {
	// AuthURL is where to send the browser; state is echoed back on callback.
	AuthURL(state string) string
	// Exchange trades the callback code for the user's identity.
	Exchange(ctx context.Context, code string) (*ExternalIdentity, error)
}

// githubUser is the portion of the GitHub /user response we read.
type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

// GitHubProvider implements ExternalIdentityProvider with the OAuth 2.0
// authorization code flow against GitHub.
type GitHubProvider struct {
	config  *oauth2.Config
	userURL string
}

var _ ExternalIdentityProvider = (*GitHubProvider)(nil)

// NewGitHubProvider creates a GitHubProvider. callbackURL must match the
// callback registered with the GitHub OAuth app exactly.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		userURL: "https://api.github.com/user",
	}
}

// AuthURL returns the GitHub authorization URL.
func (p *GitHubProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the flow: code → access token → GitHub profile.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*ExternalIdentity, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building GitHub /user request: %w", err)
	}
	resp, err := p.config.Client(ctx, oauthToken).Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode)
	}

	var gh githubUser
	if err := json.NewDecoder(resp.Body).Decode(&gh); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}
	if gh.ID == 0 || gh.Login == "" {
		return nil, fmt.Errorf("auth: GitHub returned an incomplete user")
	}

	return &ExternalIdentity{ID: gh.ID, Username: gh.Login, Email: gh.Email}, nil
}
