package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the row layout of the accounts table
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID                     uuid.UUID  `bun:"id,pk,type:uuid"`
	Name                   string     `bun:"name,notnull"`
	Email                  string     `bun:"email,notnull,unique"`
	AccountType            string     `bun:"account_type,notnull"`
	PasswordHash           *string    `bun:"password_hash"`
	Provider               *string    `bun:"provider"`
	ProviderSubject        *string    `bun:"provider_subject"`
	IsVerified             bool       `bun:"is_verified,notnull"`
	TokenGeneration        int64      `bun:"token_generation,notnull"`
	CredentialChangedAt    time.Time  `bun:"credential_changed_at,notnull"`
	PendingEmail           *string    `bun:"pending_email"`
	RegistrationTokenHash  *string    `bun:"registration_token_hash"`
	RegistrationExpiresAt  *time.Time `bun:"registration_expires_at"`
	PasswordResetTokenHash *string    `bun:"password_reset_token_hash"`
	PasswordResetExpiresAt *time.Time `bun:"password_reset_expires_at"`
	EmailChangeTokenHash   *string    `bun:"email_change_token_hash"`
	EmailChangeExpiresAt   *time.Time `bun:"email_change_expires_at"`
	PhotoURL               *string    `bun:"photo_url"`
	PhotoID                *string    `bun:"photo_id"`
	Revision               int64      `bun:"revision,notnull"`
	CreatedAt              time.Time  `bun:"created_at,notnull"`
	UpdatedAt              time.Time  `bun:"updated_at,notnull"`
}
