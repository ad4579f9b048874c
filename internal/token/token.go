// Package token creates and reads the bearer tokens handed to clients.
//
// A Manager is a pure codec. Issuer stamps issue and expiry times, checks
// expiry against its clock and keeps access and refresh tokens under separate keys.
package token

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are carried by every access and refresh token
type Claims struct {
	AccountID  uuid.UUID
	Generation int64
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// Manager encodes claims into an authenticated token and back.
// Decode fails with ErrInvalidToken for anything it cannot authenticate; it does
// not look at expiry.
type Manager interface {
	Encode(claims Claims) (string, error)
	Decode(token string) (*Claims, error)
}
