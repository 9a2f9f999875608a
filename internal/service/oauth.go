package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/msomdec/book-catalog/internal/domain"
	"golang.org/x/oauth2"
)

const (
	GoogleProviderName = "google"

	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// OAuthProvider runs the authorization code flow against an OpenID Connect
// provider and reports who signed in.
type OAuthProvider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
}

// NewOAuthProvider creates a provider from an explicit client config and
// userinfo endpoint.
func NewOAuthProvider(name string, config *oauth2.Config, userInfoURL string) *OAuthProvider {
	return &OAuthProvider{name: name, config: config, userInfoURL: userInfoURL}
}

// NewGoogleOAuth creates the Google sign-in provider.
func NewGoogleOAuth(clientID, clientSecret, redirectURL string) *OAuthProvider {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
	}
	return NewOAuthProvider(GoogleProviderName, config, googleUserInfoURL)
}

// Name returns the provider key stored alongside linked users.
func (p *OAuthProvider) Name() string {
	return p.name
}

// AuthCodeURL returns the consent page URL carrying the CSRF state value.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

type userInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

// Identify exchanges the authorization code and fetches the user's profile.
func (p *OAuthProvider) Identify(ctx context.Context, code string) (domain.ProviderIdentity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return domain.ProviderIdentity{}, fmt.Errorf("exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return domain.ProviderIdentity{}, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return domain.ProviderIdentity{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.ProviderIdentity{}, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.ProviderIdentity{}, fmt.Errorf("decode userinfo: %w", err)
	}
	if info.Subject == "" {
		return domain.ProviderIdentity{}, fmt.Errorf("userinfo response has no subject")
	}

	return domain.ProviderIdentity{
		Provider:      p.name,
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
	}, nil
}
