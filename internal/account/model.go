package account

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrFederatedAccountNoPassword = errors.New("federated accounts have no password")

// Type tells how an account authenticates
type Type string

const (
	TypeManual    Type = "manual"
	TypeFederated Type = "federated"
)

// Credential is either ManualCredential or FederatedCredential
type Credential interface {
	accountType() Type
}

// ManualCredential holds the one-way hash of an email+password account
type ManualCredential struct {
	Hash string
}

// FederatedCredential records which identity provider vouches for the account
type FederatedCredential struct {
	Provider string
	Subject  string
}

func (ManualCredential) accountType() Type    { return TypeManual }
func (FederatedCredential) accountType() Type { return TypeFederated }

// TicketKind identifies one of the single-use confirmation flows
type TicketKind string

const (
	TicketRegistration  TicketKind = "registration"
	TicketPasswordReset TicketKind = "password_reset"
	TicketEmailChange   TicketKind = "email_change"
)

// Ticket is a pending confirmation. Digest is the SHA-256 of the token sent by email.
type Ticket struct {
	Digest    string
	ExpiresAt time.Time
}

// PhotoRef points at an avatar owned by the blob store
type PhotoRef struct {
	URL       string `json:"url"`
	StorageID string `json:"storage_id,omitempty"`
}

// Account is the only persistent entity of the service
type Account struct {
	ID                  uuid.UUID
	Name                string
	Email               string
	Credential          Credential
	IsVerified          bool
	TokenGeneration     int64
	CredentialChangedAt time.Time
	PendingEmail        string
	Photo               *PhotoRef
	Revision            int64
	CreatedAt           time.Time
	UpdatedAt           time.Time

	registration  *Ticket
	passwordReset *Ticket
	emailChange   *Ticket

	// staged plaintext, hashed by the store on the next Create/Save
	pendingPassword string
}

// NewManual builds an unverified email+password account. The password is hashed
// when the account is created in the store.
func NewManual(name, email, plaintext string) *Account {
	a := &Account{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(name),
		Email:      NormalizeEmail(email),
		Credential: ManualCredential{},
	}
	a.pendingPassword = plaintext
	return a
}

// NewFederated builds an account vouched for by an identity provider. It is
// verified from the start.
func NewFederated(name, email, provider, subject string) *Account {
	return &Account{
		ID:         uuid.New(),
		Name:       strings.TrimSpace(name),
		Email:      NormalizeEmail(email),
		Credential: FederatedCredential{Provider: provider, Subject: subject},
		IsVerified: true,
	}
}

// NormalizeEmail lower-cases and trims an address; uniqueness is case-insensitive
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Account) Type() Type {
	if a.Credential == nil {
		return TypeManual
	}
	return a.Credential.accountType()
}

func (a *Account) IsManual() bool { return a.Type() == TypeManual }

// PasswordHash returns the stored hash of a manual account
func (a *Account) PasswordHash() (string, bool) {
	c, ok := a.Credential.(ManualCredential)
	if !ok || c.Hash == "" {
		return "", false
	}
	return c.Hash, true
}

// SetPassword stages a new plaintext credential. The store hashes it exactly
// once when the account is next written.
func (a *Account) SetPassword(plaintext string) error {
	if !a.IsManual() {
		return ErrFederatedAccountNoPassword
	}
	a.pendingPassword = plaintext
	return nil
}

// HasPendingPassword reports whether SetPassword was called since the last write
func (a *Account) HasPendingPassword() bool {
	return a.pendingPassword != ""
}

// BumpGeneration invalidates every token issued so far
func (a *Account) BumpGeneration() {
	a.TokenGeneration++
}

// Ticket returns the pending ticket of the given kind, or nil
func (a *Account) Ticket(kind TicketKind) *Ticket {
	switch kind {
	case TicketRegistration:
		return a.registration
	case TicketPasswordReset:
		return a.passwordReset
	case TicketEmailChange:
		return a.emailChange
	}
	return nil
}

// SetTicket replaces the ticket of the given kind; nil clears it
func (a *Account) SetTicket(kind TicketKind, t *Ticket) {
	switch kind {
	case TicketRegistration:
		a.registration = t
	case TicketPasswordReset:
		a.passwordReset = t
	case TicketEmailChange:
		a.emailChange = t
	}
}

// Summary is the public view of an account; credential fields never leave the service
type Summary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	AccountType  Type      `json:"account_type"`
	IsVerified   bool      `json:"is_verified"`
	PendingEmail string    `json:"pending_email,omitempty"`
	Photo        *PhotoRef `json:"photo,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (a *Account) Summary() Summary {
	return Summary{
		ID:           a.ID,
		Name:         a.Name,
		Email:        a.Email,
		AccountType:  a.Type(),
		IsVerified:   a.IsVerified,
		PendingEmail: a.PendingEmail,
		Photo:        a.Photo,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
