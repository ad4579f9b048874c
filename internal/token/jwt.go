package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtClaims struct {
	jwt.RegisteredClaims
	Generation int64 `json:"gen"`
}

// JWTManager handles HS256-signed JWTs
type JWTManager struct {
	secretKey []byte
}

func NewJWTManager(secretKey []byte) (*JWTManager, error) {
	if len(secretKey) != 32 {
		return nil, fmt.Errorf("secret key must be exactly 32 bytes, got %d", len(secretKey))
	}

	return &JWTManager{secretKey: secretKey}, nil
}

func (m *JWTManager) Encode(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.AccountID.String(),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
		Generation: claims.Generation,
	})

	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (m *JWTManager) Decode(tokenStr string) (*Claims, error) {
	var parsed jwtClaims
	_, err := jwt.ParseWithClaims(tokenStr, &parsed, func(t *jwt.Token) (any, error) {
		return m.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if parsed.IssuedAt == nil || parsed.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}

	accountID, err := uuid.Parse(parsed.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		AccountID:  accountID,
		Generation: parsed.Generation,
		IssuedAt:   parsed.IssuedAt.Time,
		ExpiresAt:  parsed.ExpiresAt.Time,
	}, nil
}
