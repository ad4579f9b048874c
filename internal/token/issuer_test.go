package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/devhub-api/internal/account"
	"github.com/redmonkez12/devhub-api/internal/config"
)

var (
	accessKey  = []byte("0123456789abcdef0123456789abcdef")
	refreshKey = []byte("fedcba9876543210fedcba9876543210")
)

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time { return c.t }

func newTestIssuer(t *testing.T, format string, clock *testClock) *Issuer {
	t.Helper()
	access, err := NewManager(format, accessKey)
	require.NoError(t, err)
	refresh, err := NewManager(format, refreshKey)
	require.NoError(t, err)

	return NewIssuer(access, refresh, 15*time.Minute, 7*24*time.Hour).WithClock(clock.Now)
}

func testAccount(generation int64) *account.Account {
	return &account.Account{
		ID:                  uuid.New(),
		TokenGeneration:     generation,
		CredentialChangedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestIssueAndParse(t *testing.T) {
	for _, format := range []string{FormatPaseto, FormatJWT} {
		t.Run(format, func(t *testing.T) {
			clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 500_000_000, time.UTC)}
			issuer := newTestIssuer(t, format, clock)
			a := testAccount(3)

			tok, issued, err := issuer.IssueAccess(a)
			require.NoError(t, err)

			claims, err := issuer.ParseAccess(tok)
			require.NoError(t, err)
			assert.Equal(t, a.ID, claims.AccountID)
			assert.Equal(t, int64(3), claims.Generation)
			assert.True(t, issued.IssuedAt.Equal(claims.IssuedAt))
			assert.True(t, issued.ExpiresAt.Equal(claims.ExpiresAt))
			assert.Equal(t, 15*time.Minute, claims.ExpiresAt.Sub(claims.IssuedAt))
			assert.True(t, Current(claims, a))
		})
	}
}

func TestAccessAndRefreshKeysAreSeparate(t *testing.T) {
	for _, format := range []string{FormatPaseto, FormatJWT} {
		t.Run(format, func(t *testing.T) {
			clock := &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
			issuer := newTestIssuer(t, format, clock)
			a := testAccount(0)

			access, _, err := issuer.IssueAccess(a)
			require.NoError(t, err)
			refresh, _, err := issuer.IssueRefresh(a)
			require.NoError(t, err)

			_, err = issuer.ParseRefresh(access)
			assert.ErrorIs(t, err, ErrInvalidToken)
			_, err = issuer.ParseAccess(refresh)
			assert.ErrorIs(t, err, ErrInvalidToken)

			claims, err := issuer.ParseRefresh(refresh)
			require.NoError(t, err)
			assert.Equal(t, 7*24*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt))
		})
	}
}

func TestExpiry(t *testing.T) {
	for _, format := range []string{FormatPaseto, FormatJWT} {
		t.Run(format, func(t *testing.T) {
			start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
			clock := &testClock{t: start}
			issuer := newTestIssuer(t, format, clock)

			tok, _, err := issuer.IssueAccess(testAccount(0))
			require.NoError(t, err)

			clock.t = start.Add(15*time.Minute - time.Millisecond)
			_, err = issuer.ParseAccess(tok)
			assert.NoError(t, err)

			clock.t = start.Add(15 * time.Minute)
			_, err = issuer.ParseAccess(tok)
			assert.ErrorIs(t, err, ErrExpiredToken)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	clock := &testClock{t: time.Now()}
	for _, format := range []string{FormatPaseto, FormatJWT} {
		issuer := newTestIssuer(t, format, clock)
		for _, tok := range []string{"", "garbage", "v4.local.AAAA", "a.b.c"} {
			_, err := issuer.ParseAccess(tok)
			assert.ErrorIs(t, err, ErrInvalidToken, "%s %q", format, tok)
		}
	}
}

func TestJWTRejectsOtherAlgorithms(t *testing.T) {
	m, err := NewJWTManager(accessKey)
	require.NoError(t, err)

	// alg "none"
	_, err = m.Decode("eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiJ4In0.")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestCurrent(t *testing.T) {
	a := testAccount(2)
	claims := &Claims{AccountID: a.ID, Generation: 2, IssuedAt: a.CredentialChangedAt}
	assert.True(t, Current(claims, a))

	// same second as the credential change still counts as after it
	a.CredentialChangedAt = claims.IssuedAt.Add(900 * time.Millisecond)
	assert.True(t, Current(claims, a))

	a.CredentialChangedAt = claims.IssuedAt.Add(time.Second)
	assert.False(t, Current(claims, a))

	a.CredentialChangedAt = claims.IssuedAt
	a.BumpGeneration()
	assert.False(t, Current(claims, a))

	other := testAccount(2)
	assert.False(t, Current(&Claims{AccountID: other.ID, Generation: 2, IssuedAt: claims.IssuedAt}, a))
}

func TestNewIssuerFromConfig(t *testing.T) {
	issuer, err := NewIssuerFromConfig(config.AuthConfig{
		TokenFormat:          FormatJWT,
		AccessTokenKey:       string(accessKey),
		RefreshTokenKey:      string(refreshKey),
		AccessTokenDuration:  time.Minute,
		RefreshTokenDuration: time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, time.Minute, issuer.AccessTTL())
	assert.Equal(t, time.Hour, issuer.RefreshTTL())

	_, err = NewIssuerFromConfig(config.AuthConfig{TokenFormat: FormatPaseto, AccessTokenKey: "short"})
	assert.Error(t, err)
}
