// Package verification implements the single-use tickets behind email
// verification, password reset and email change.
//
// A ticket lives on the account record itself: only the SHA-256 digest of the
// token and its expiry are stored. Issuing a ticket overwrites the previous one of
// the same kind, so at most one token per kind is ever valid.
package verification

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redmonkez12/devhub-api/internal/account"
)

var ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

// attempts made to consume a ticket when the account is saved concurrently
const maxConsumeAttempts = 3

type TTLs struct {
	Registration  time.Duration
	PasswordReset time.Duration
	EmailChange   time.Duration
}

var DefaultTTLs = TTLs{
	Registration:  24 * time.Hour,
	PasswordReset: 30 * time.Minute,
	EmailChange:   24 * time.Hour,
}

type Engine struct {
	store account.Store
	ttls  TTLs
	now   func() time.Time
}

func NewEngine(store account.Store, ttls TTLs) *Engine {
	return &Engine{store: store, ttls: ttls, now: time.Now}
}

// WithClock replaces the time source
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) ttl(kind account.TicketKind) time.Duration {
	switch kind {
	case account.TicketPasswordReset:
		return e.ttls.PasswordReset
	case account.TicketEmailChange:
		return e.ttls.EmailChange
	default:
		return e.ttls.Registration
	}
}

// Issue puts a fresh ticket of the given kind on the account and returns the
// token to send. The caller persists the account together with whatever change
// triggered the ticket.
func (e *Engine) Issue(a *account.Account, kind account.TicketKind) (string, error) {
	token, err := generateRandomToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate %s token: %w", kind, err)
	}

	a.SetTicket(kind, &account.Ticket{
		Digest:    hashToken(token),
		ExpiresAt: e.now().Add(e.ttl(kind)),
	})

	return token, nil
}

// VerifyRegistration consumes a registration ticket and marks the account verified
func (e *Engine) VerifyRegistration(ctx context.Context, token string) (*account.Account, error) {
	return e.Consume(ctx, account.TicketRegistration, token, func(a *account.Account) error {
		a.IsVerified = true
		return nil
	})
}

// ResetPassword consumes a reset ticket, stages the new password and
// invalidates every token issued so far
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) (*account.Account, error) {
	return e.Consume(ctx, account.TicketPasswordReset, token, func(a *account.Account) error {
		if err := a.SetPassword(newPassword); err != nil {
			return err
		}
		a.BumpGeneration()
		return nil
	})
}

// ConfirmEmailChange consumes an email-change ticket and swaps in the pending address
func (e *Engine) ConfirmEmailChange(ctx context.Context, token string) (*account.Account, error) {
	return e.Consume(ctx, account.TicketEmailChange, token, func(a *account.Account) error {
		if a.PendingEmail == "" {
			return ErrInvalidOrExpiredToken
		}
		a.Email = a.PendingEmail
		a.PendingEmail = ""
		a.IsVerified = true
		return nil
	})
}

// Consume finds the account holding token, clears the ticket, applies mutate and
// saves, all as one write. Unknown, expired and already used tokens all fail with
// ErrInvalidOrExpiredToken.
func (e *Engine) Consume(ctx context.Context, kind account.TicketKind, token string, mutate func(*account.Account) error) (*account.Account, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}
	digest := hashToken(token)

	for attempt := 1; ; attempt++ {
		a, err := e.store.FindByTicket(ctx, kind, digest)
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				return nil, ErrInvalidOrExpiredToken
			}
			return nil, fmt.Errorf("failed to find %s ticket: %w", kind, err)
		}

		ticket := a.Ticket(kind)
		if ticket == nil || subtle.ConstantTimeCompare([]byte(ticket.Digest), []byte(digest)) != 1 {
			return nil, ErrInvalidOrExpiredToken
		}
		if !e.now().Before(ticket.ExpiresAt) {
			return nil, ErrInvalidOrExpiredToken
		}

		a.SetTicket(kind, nil)
		if err := mutate(a); err != nil {
			return nil, err
		}

		err = e.store.Save(ctx, a)
		if err == nil {
			return a, nil
		}
		// someone else wrote the account; reload and look at the ticket again
		if errors.Is(err, account.ErrStaleAccount) && attempt < maxConsumeAttempts {
			continue
		}
		return nil, fmt.Errorf("failed to consume %s ticket: %w", kind, err)
	}
}

// generateRandomToken creates a URL-safe token carrying 32 random bytes
func generateRandomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
