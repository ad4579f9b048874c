package federated

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redmonkez12/devhub-api/internal/account"
)

var (
	ErrMissingProviderEmail = errors.New("identity provider did not return an email")
	// ErrEmailOwnedByManualAccount stops a provider login from taking over a
	// password account that happens to share the address
	ErrEmailOwnedByManualAccount = errors.New("email belongs to a password account")
)

// Profile is what an identity provider tells us about the user
type Profile struct {
	Provider  string
	Subject   string
	Email     string
	Name      string
	AvatarURL string
}

// Linker maps provider identities to accounts
type Linker struct {
	store account.Store
}

func NewLinker(store account.Store) *Linker {
	return &Linker{store: store}
}

// LinkOrCreate returns the account linked to the provider identity. Accounts
// keep their link after an email change, so the subject is looked up first and
// the email only for identities not seen before. First login creates the account.
func (l *Linker) LinkOrCreate(ctx context.Context, p Profile) (*account.Account, error) {
	linked, err := l.findLinked(ctx, p)
	if err != nil || linked != nil {
		return linked, err
	}

	email := account.NormalizeEmail(p.Email)
	if email == "" {
		return nil, ErrMissingProviderEmail
	}

	existing, err := l.findByEmail(ctx, email)
	if err != nil || existing != nil {
		return existing, err
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	a := account.NewFederated(name, email, p.Provider, p.Subject)
	if p.AvatarURL != "" {
		a.Photo = &account.PhotoRef{URL: p.AvatarURL}
	}

	if err := l.store.Create(ctx, a); err != nil {
		if errors.Is(err, account.ErrDuplicateEmail) {
			// lost a race with a concurrent first login or registration
			return l.retryExisting(ctx, p, email)
		}
		return nil, fmt.Errorf("failed to create federated account: %w", err)
	}

	return a, nil
}

func (l *Linker) findLinked(ctx context.Context, p Profile) (*account.Account, error) {
	a, err := l.store.FindByProvider(ctx, p.Provider, p.Subject)
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, account.ErrNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to look up linked account: %w", err)
	}
}

func (l *Linker) findByEmail(ctx context.Context, email string) (*account.Account, error) {
	a, err := l.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if a.IsManual() {
			return nil, ErrEmailOwnedByManualAccount
		}
		return a, nil
	case errors.Is(err, account.ErrNotFound):
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
}

func (l *Linker) retryExisting(ctx context.Context, p Profile, email string) (*account.Account, error) {
	linked, err := l.findLinked(ctx, p)
	if err != nil || linked != nil {
		return linked, err
	}

	existing, err := l.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("failed to look up account: %w", account.ErrNotFound)
	}
	return existing, nil
}
