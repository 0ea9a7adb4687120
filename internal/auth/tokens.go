package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mbd888/riskproxy/internal/account"
)

// ErrInvalidToken is returned for bearer tokens that fail verification.
var ErrInvalidToken = errors.New("invalid or expired bearer token")

const tokenIssuer = "riskproxy"

// TokenService issues and verifies HS256 bearer tokens whose subject is the
// caller account.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a token service. ttl is the default lifetime of
// issued tokens.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("jwt secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for id. A non-positive ttl uses the default.
func (s *TokenService) Issue(id account.ID, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = s.ttl
	}
	now := time.Now()
	expires := now.Add(ttl)

	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   id.String(),
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks a token and returns the account it speaks for.
func (s *TokenService) Verify(raw string) (account.ID, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return "", ErrInvalidToken
	}

	id, err := account.Parse(claims.Subject)
	if err != nil {
		return "", ErrInvalidToken
	}
	return id, nil
}
