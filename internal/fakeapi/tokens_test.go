package fakeapi

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSigningKey = []byte("test-signing-key-0123456789")

func TestNewTokenIssuer(t *testing.T) {
	_, err := NewTokenIssuer([]byte("short"), time.Hour)
	assert.EqualError(t, err, "signing key too short")

	_, err = NewTokenIssuer(testSigningKey, 0)
	assert.EqualError(t, err, "invalid token ttl: 0s")
}

func TestTokenIssuer_IssueAndParse(t *testing.T) {
	issuer, err := NewTokenIssuer(testSigningKey, time.Hour)
	require.NoError(t, err)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	token, expiresAt, err := issuer.Issue("2", RoleSuperAdmin)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "2", claims.Subject)
	assert.Equal(t, RoleSuperAdmin, claims.Role)
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)

	subject, err := issuer.CheckToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "2", subject)

	other, _, err := issuer.Issue("2", RoleSuperAdmin)
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "every token gets its own id")
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer, err := NewTokenIssuer(testSigningKey, time.Hour)
	require.NoError(t, err)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	token, _, err := issuer.Issue("1", RoleAdmin)
	require.NoError(t, err)

	now = now.Add(time.Hour + time.Second)
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	issuer, err := NewTokenIssuer(testSigningKey, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewTokenIssuer([]byte("another-signing-key-987654321"), time.Hour)
	require.NoError(t, err)
	foreign, _, err := otherIssuer.Issue("1", RoleAdmin)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(testSigningKey)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  tokenIssuer,
			Subject: "1",
		},
	}).SignedString(testSigningKey)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":      "not-a-jwt",
		"foreign key":  foreign,
		"alg none":     noneAlg,
		"wrong issuer": wrongIssuer,
		"no expiry":    noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(token)
			assert.Error(t, err)
		})
	}
}

func TestTokenIssuer_Revoke(t *testing.T) {
	issuer, err := NewTokenIssuer(testSigningKey, time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.Issue("1", RoleAdmin)
	require.NoError(t, err)
	other, _, err := issuer.Issue("1", RoleAdmin)
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(token))

	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	assert.ErrorIs(t, issuer.Revoke(token), ErrTokenRevoked)

	_, err = issuer.Parse(other)
	assert.NoError(t, err, "revoking one token leaves the others alone")
}

func TestTokenIssuer_RevokePrunesExpired(t *testing.T) {
	issuer, err := NewTokenIssuer(testSigningKey, time.Hour)
	require.NoError(t, err)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	first, _, err := issuer.Issue("1", RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, issuer.Revoke(first))

	now = now.Add(2 * time.Hour)
	second, _, err := issuer.Issue("1", RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, issuer.Revoke(second))

	issuer.mu.Lock()
	defer issuer.mu.Unlock()
	assert.Len(t, issuer.revoked, 1)
}
