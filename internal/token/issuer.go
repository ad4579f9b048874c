package token

import (
	"fmt"
	"time"

	"github.com/redmonkez12/devhub-api/internal/account"
	"github.com/redmonkez12/devhub-api/internal/config"
)

const (
	FormatPaseto = "paseto"
	FormatJWT    = "jwt"
)

// Issuer creates access and refresh tokens. The two kinds use different keys,
// so one can never be accepted as the other.
type Issuer struct {
	access     Manager
	refresh    Manager
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(access, refresh Manager, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		access:     access,
		refresh:    refresh,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// NewIssuerFromConfig builds both managers in the configured format
func NewIssuerFromConfig(cfg config.AuthConfig) (*Issuer, error) {
	access, err := NewManager(cfg.TokenFormat, []byte(cfg.AccessTokenKey))
	if err != nil {
		return nil, fmt.Errorf("access token manager: %w", err)
	}

	refresh, err := NewManager(cfg.TokenFormat, []byte(cfg.RefreshTokenKey))
	if err != nil {
		return nil, fmt.Errorf("refresh token manager: %w", err)
	}

	return NewIssuer(access, refresh, cfg.AccessTokenDuration, cfg.RefreshTokenDuration), nil
}

func NewManager(format string, key []byte) (Manager, error) {
	switch format {
	case FormatPaseto:
		return NewPasetoManager(key)
	case FormatJWT:
		return NewJWTManager(key)
	default:
		return nil, fmt.Errorf("unknown token format %q", format)
	}
}

// WithClock replaces the time source
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess creates a short-lived bearer token for the account's current generation
func (i *Issuer) IssueAccess(a *account.Account) (string, *Claims, error) {
	return i.issue(i.access, a, i.accessTTL)
}

// IssueRefresh creates a long-lived token used only to mint new access tokens
func (i *Issuer) IssueRefresh(a *account.Account) (string, *Claims, error) {
	return i.issue(i.refresh, a, i.refreshTTL)
}

// ParseAccess authenticates an access token and checks its expiry.
// The generation still has to be compared with the stored account.
func (i *Issuer) ParseAccess(tokenStr string) (*Claims, error) {
	return i.parse(i.access, tokenStr)
}

func (i *Issuer) ParseRefresh(tokenStr string) (*Claims, error) {
	return i.parse(i.refresh, tokenStr)
}

func (i *Issuer) issue(m Manager, a *account.Account, ttl time.Duration) (string, *Claims, error) {
	// token timestamps have second precision
	now := i.now().UTC().Truncate(time.Second)

	claims := Claims{
		AccountID:  a.ID,
		Generation: a.TokenGeneration,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
	}

	tokenStr, err := m.Encode(claims)
	if err != nil {
		return "", nil, err
	}

	return tokenStr, &claims, nil
}

func (i *Issuer) parse(m Manager, tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	claims, err := m.Decode(tokenStr)
	if err != nil {
		return nil, err
	}

	if !i.now().Before(claims.ExpiresAt) {
		return nil, ErrExpiredToken
	}

	return claims, nil
}

// Current reports whether claims still match the account: same generation and
// issued no earlier than the last credential change (compared in whole seconds).
func Current(claims *Claims, a *account.Account) bool {
	if claims.AccountID != a.ID || claims.Generation != a.TokenGeneration {
		return false
	}
	return claims.IssuedAt.Unix() >= a.CredentialChangedAt.Unix()
}
