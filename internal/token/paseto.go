package token

import (
	"fmt"

	"aidanwoods.dev/go-paseto"
	"github.com/google/uuid"
)

// PasetoManager handles PASETO v4.local tokens
// (symmetric encryption with XChaCha20-Poly1305)
type PasetoManager struct {
	symmetricKey paseto.V4SymmetricKey
}

func NewPasetoManager(symmetricKey []byte) (*PasetoManager, error) {
	if len(symmetricKey) != 32 {
		return nil, fmt.Errorf("symmetric key must be exactly 32 bytes, got %d", len(symmetricKey))
	}

	key, err := paseto.V4SymmetricKeyFromBytes(symmetricKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create symmetric key: %w", err)
	}

	return &PasetoManager{symmetricKey: key}, nil
}

func (m *PasetoManager) Encode(claims Claims) (string, error) {
	token := paseto.NewToken()
	token.SetIssuedAt(claims.IssuedAt)
	token.SetExpiration(claims.ExpiresAt)
	token.SetSubject(claims.AccountID.String())
	if err := token.Set("gen", claims.Generation); err != nil {
		return "", fmt.Errorf("failed to set generation: %w", err)
	}

	return token.V4Encrypt(m.symmetricKey, nil), nil
}

func (m *PasetoManager) Decode(tokenStr string) (*Claims, error) {
	// expiry is checked by the Issuer against its own clock
	parser := paseto.NewParserWithoutExpiryCheck()

	token, err := parser.ParseV4Local(m.symmetricKey, tokenStr, nil)
	if err != nil {
		return nil, ErrInvalidToken
	}

	subject, err := token.GetSubject()
	if err != nil {
		return nil, ErrInvalidToken
	}
	accountID, err := uuid.Parse(subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var generation int64
	if err := token.Get("gen", &generation); err != nil {
		return nil, ErrInvalidToken
	}

	issuedAt, err := token.GetIssuedAt()
	if err != nil {
		return nil, ErrInvalidToken
	}

	expiresAt, err := token.GetExpiration()
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		AccountID:  accountID,
		Generation: generation,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
	}, nil
}
