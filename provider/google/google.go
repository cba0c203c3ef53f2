// Package google implements the [authkit.IdentityProvider] capability for
// Google. It exchanges an authorization code, fetches the userinfo
// document, and returns a verified profile for identity linking.
package google

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"

	authkit "github.com/opennotebook/authkit"
)

const userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Provider completes the Google OAuth handshake.
type Provider struct {
	conf *oauth2.Config
}

// New creates a Provider for the given client registration.
func New(cfg Config) (*Provider, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil, errors.New("google oauth client id, secret, and redirect url required")
	}
	return &Provider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
	}, nil
}

// StateToken returns a fresh random CSRF state value for the redirect.
func (p *Provider) StateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthURL returns the Google consent URL carrying the given state.
func (p *Provider) AuthURL(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

type userInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Complete exchanges the authorization code and fetches the user's
// profile. invalid_grant-class exchange failures (expired or reused
// codes) are wrapped with [authkit.ErrInvalidGrant] so callers can
// redirect for a fresh consent instead of failing hard.
func (p *Provider) Complete(ctx context.Context, code string) (*authkit.VerifiedProfile, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			return nil, fmt.Errorf("%w: %v", authkit.ErrInvalidGrant, err)
		}
		return nil, fmt.Errorf("google oauth exchange: %w", err)
	}

	resp, err := p.conf.Client(ctx, tok).Get(userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("google userinfo fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("google userinfo status %d: %s", resp.StatusCode, body)
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("google userinfo decode: %w", err)
	}
	if info.Email == "" {
		return nil, errors.New("google userinfo missing email")
	}
	if !info.VerifiedEmail {
		return nil, errors.New("google account email not verified")
	}

	return &authkit.VerifiedProfile{
		Provider:  authkit.ProviderGoogle,
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.Picture,
	}, nil
}
