package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/devhub-api/internal/database"
)

// Repository handles account persistence on bun
type Repository struct {
	db     *bun.DB
	hasher PasswordHasher
	now    func() time.Time
}

func NewRepository(db *bun.DB, hasher PasswordHasher) *Repository {
	return &Repository{db: db, hasher: hasher, now: time.Now}
}

// WithClock replaces the time source used for CreatedAt, UpdatedAt and CredentialChangedAt
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

func (r *Repository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// Create inserts a new account. A staged password is hashed here.
func (r *Repository) Create(ctx context.Context, a *Account) error {
	now := r.timestamp()

	row := toRow(a)
	row.Revision = 1
	row.CreatedAt = now
	row.UpdatedAt = now
	row.CredentialChangedAt = now

	hash, err := r.stagedHash(a)
	if err != nil {
		return err
	}
	if hash != "" {
		row.PasswordHash = &hash
	}
	if a.IsManual() && row.PasswordHash == nil {
		return errors.New("manual account requires a password")
	}

	if _, err := r.db.NewInsert().Model(row).Exec(ctx); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create account: %w", err)
	}

	a.Revision = row.Revision
	a.CreatedAt = now
	a.UpdatedAt = now
	a.CredentialChangedAt = now
	if hash != "" {
		a.Credential = ManualCredential{Hash: hash}
		a.pendingPassword = ""
	}

	return nil
}

// Save writes every mutable field of a loaded account. The write only applies if
// nobody else saved the account since it was read; otherwise ErrStaleAccount.
func (r *Repository) Save(ctx context.Context, a *Account) error {
	now := r.timestamp()

	row := toRow(a)
	row.Revision = a.Revision + 1
	row.UpdatedAt = now

	hash, err := r.stagedHash(a)
	if err != nil {
		return err
	}
	if hash != "" {
		row.PasswordHash = &hash
		row.CredentialChangedAt = now
	}

	result, err := r.db.NewUpdate().
		Model(row).
		WherePK().
		Where("revision = ?", a.Revision).
		Exec(ctx)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to save account: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		exists, err := r.db.NewSelect().
			Model((*database.Account)(nil)).
			Where("id = ?", a.ID).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check account: %w", err)
		}
		if exists {
			return ErrStaleAccount
		}
		return ErrNotFound
	}

	a.Revision = row.Revision
	a.UpdatedAt = now
	if hash != "" {
		a.Credential = ManualCredential{Hash: hash}
		a.CredentialChangedAt = now
		a.pendingPassword = ""
	}

	return nil
}

// FindByID retrieves an account by ID
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByEmail retrieves an account by its (case-insensitive) email
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findOne(ctx, "email = ?", NormalizeEmail(email))
}

// FindByProvider retrieves the federated account linked to a provider identity
func (r *Repository) FindByProvider(ctx context.Context, provider, subject string) (*Account, error) {
	if provider == "" || subject == "" {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, "provider = ? AND provider_subject = ?", provider, subject)
}

// FindByTicket retrieves the account holding a ticket with the given digest.
// Expiry is not checked here.
func (r *Repository) FindByTicket(ctx context.Context, kind TicketKind, digest string) (*Account, error) {
	var column string
	switch kind {
	case TicketRegistration:
		column = "registration_token_hash"
	case TicketPasswordReset:
		column = "password_reset_token_hash"
	case TicketEmailChange:
		column = "email_change_token_hash"
	default:
		return nil, fmt.Errorf("unknown ticket kind %q", kind)
	}
	if digest == "" {
		return nil, ErrNotFound
	}

	return r.findOne(ctx, "? = ?", bun.Ident(column), digest)
}

func (r *Repository) findOne(ctx context.Context, query string, args ...any) (*Account, error) {
	row := new(database.Account)
	err := r.db.NewSelect().
		Model(row).
		Where(query, args...).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return fromRow(row), nil
}

func (r *Repository) stagedHash(a *Account) (string, error) {
	if a.pendingPassword == "" {
		return "", nil
	}
	if !a.IsManual() {
		return "", ErrFederatedAccountNoPassword
	}

	hash, err := r.hasher.Hash(a.pendingPassword)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func toRow(a *Account) *database.Account {
	row := &database.Account{
		ID:                  a.ID,
		Name:                a.Name,
		Email:               NormalizeEmail(a.Email),
		AccountType:         string(a.Type()),
		IsVerified:          a.IsVerified,
		TokenGeneration:     a.TokenGeneration,
		CredentialChangedAt: a.CredentialChangedAt.UTC(),
		PendingEmail:        optional(a.PendingEmail),
		Revision:            a.Revision,
		CreatedAt:           a.CreatedAt.UTC(),
		UpdatedAt:           a.UpdatedAt.UTC(),
	}

	switch c := a.Credential.(type) {
	case ManualCredential:
		row.PasswordHash = optional(c.Hash)
	case FederatedCredential:
		row.Provider = optional(c.Provider)
		row.ProviderSubject = optional(c.Subject)
	}

	row.RegistrationTokenHash, row.RegistrationExpiresAt = ticketColumns(a.registration)
	row.PasswordResetTokenHash, row.PasswordResetExpiresAt = ticketColumns(a.passwordReset)
	row.EmailChangeTokenHash, row.EmailChangeExpiresAt = ticketColumns(a.emailChange)

	if a.Photo != nil {
		row.PhotoURL = optional(a.Photo.URL)
		row.PhotoID = optional(a.Photo.StorageID)
	}

	return row
}

func fromRow(row *database.Account) *Account {
	a := &Account{
		ID:                  row.ID,
		Name:                row.Name,
		Email:               row.Email,
		IsVerified:          row.IsVerified,
		TokenGeneration:     row.TokenGeneration,
		CredentialChangedAt: row.CredentialChangedAt,
		PendingEmail:        value(row.PendingEmail),
		Revision:            row.Revision,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}

	if Type(row.AccountType) == TypeFederated {
		a.Credential = FederatedCredential{Provider: value(row.Provider), Subject: value(row.ProviderSubject)}
	} else {
		a.Credential = ManualCredential{Hash: value(row.PasswordHash)}
	}

	a.registration = ticketFrom(row.RegistrationTokenHash, row.RegistrationExpiresAt)
	a.passwordReset = ticketFrom(row.PasswordResetTokenHash, row.PasswordResetExpiresAt)
	a.emailChange = ticketFrom(row.EmailChangeTokenHash, row.EmailChangeExpiresAt)

	if row.PhotoURL != nil {
		a.Photo = &PhotoRef{URL: *row.PhotoURL, StorageID: value(row.PhotoID)}
	}

	return a
}

func ticketColumns(t *Ticket) (*string, *time.Time) {
	if t == nil {
		return nil, nil
	}
	expires := t.ExpiresAt.UTC()
	return optional(t.Digest), &expires
}

func ticketFrom(digest *string, expires *time.Time) *Ticket {
	if digest == nil || expires == nil {
		return nil
	}
	return &Ticket{Digest: *digest, ExpiresAt: *expires}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
