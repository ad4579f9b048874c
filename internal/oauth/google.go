// Package oauth runs the Google authorization-code handshake (with PKCE) and
// turns the result into a federated.Profile.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/redmonkez12/devhub-api/internal/config"
	"github.com/redmonkez12/devhub-api/internal/federated"
)

const (
	ProviderGoogle = "google"

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

var (
	ErrUnverifiedProviderEmail = errors.New("identity provider has not verified the email")
	ErrExchangeFailed          = errors.New("oauth code exchange failed")
)

type Google struct {
	config      *oauth2.Config
	userInfoURL string
	states      *StateStore
}

type Option func(*Google)

// WithEndpoint points the handshake at another authorization server
func WithEndpoint(endpoint oauth2.Endpoint, userInfoURL string) Option {
	return func(g *Google) {
		g.config.Endpoint = endpoint
		g.userInfoURL = userInfoURL
	}
}

func NewGoogle(cfg config.OAuthConfig, states *StateStore, opts ...Option) *Google {
	g := &Google{
		config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: googleUserInfoURL,
		states:      states,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Begin starts a handshake and returns the consent page URL to redirect to
func (g *Google) Begin(ctx context.Context) (string, error) {
	state, err := randomState()
	if err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}

	verifier := oauth2.GenerateVerifier()
	if err := g.states.Save(ctx, state, verifier); err != nil {
		return "", err
	}

	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline, oauth2.S256ChallengeOption(verifier)), nil
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Complete finishes a handshake started by Begin and returns the user's profile
func (g *Google) Complete(ctx context.Context, state, code string) (federated.Profile, error) {
	verifier, err := g.states.Consume(ctx, state)
	if err != nil {
		return federated.Profile{}, err
	}

	tok, err := g.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return federated.Profile{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return federated.Profile{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.config.Client(ctx, tok).Do(req)
	if err != nil {
		return federated.Profile{}, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return federated.Profile{}, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return federated.Profile{}, fmt.Errorf("failed to decode userinfo: %w", err)
	}

	if info.Email != "" && !info.EmailVerified {
		return federated.Profile{}, ErrUnverifiedProviderEmail
	}

	return federated.Profile{
		Provider:  ProviderGoogle,
		Subject:   info.Sub,
		Email:     info.Email,
		Name:      info.Name,
		AvatarURL: info.Picture,
	}, nil
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
