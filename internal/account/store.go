package account

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrStaleAccount means another writer saved the account after it was loaded
	ErrStaleAccount = errors.New("account was modified concurrently")
)

// Store persists accounts. Every write of a single account is atomic.
type Store interface {
	Create(ctx context.Context, a *Account) error
	Save(ctx context.Context, a *Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByProvider(ctx context.Context, provider, subject string) (*Account, error)
	FindByTicket(ctx context.Context, kind TicketKind, digest string) (*Account, error)
}

// PasswordHasher turns a staged plaintext into the stored credential hash
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}
