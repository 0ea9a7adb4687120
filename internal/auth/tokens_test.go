package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/riskproxy/internal/account"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	assert.Error(t, err)
}

func TestTokenService_RoundTrip(t *testing.T) {
	ts, err := NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	token, expires, err := ts.Issue("alice", 0)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	id, err := ts.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, account.ID("alice"), id)
}

func TestTokenService_Rejects(t *testing.T) {
	ts, err := NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)

	other, err := NewTokenService("ffffffffffffffffffffffffffffffff", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue("alice", time.Hour)
	require.NoError(t, err)

	sign := func(claims jwt.Claims, method jwt.SigningMethod) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return s
	}
	now := time.Now()

	tests := map[string]string{
		"garbage":       "not.a.token",
		"wrong secret":  foreign,
		"expired":       sign(jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))}, jwt.SigningMethodHS256),
		"no expiry":     sign(jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "alice"}, jwt.SigningMethodHS256),
		"wrong issuer":  sign(jwt.RegisteredClaims{Issuer: "someone", Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}, jwt.SigningMethodHS256),
		"wrong alg":     sign(jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "alice", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}, jwt.SigningMethodHS512),
		"bad subject":   sign(jwt.RegisteredClaims{Issuer: tokenIssuer, Subject: "Not Valid", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}, jwt.SigningMethodHS256),
		"empty subject": sign(jwt.RegisteredClaims{Issuer: tokenIssuer, ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}, jwt.SigningMethodHS256),
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ts.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
