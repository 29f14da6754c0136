package fakeapi

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenIssuer = "cutroom-fake-backend"

var ErrTokenRevoked = errors.New("token revoked")

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenIssuer hands out HS256 tokens and remembers the ones revoked by a
// logout until they would have expired anyway.
type TokenIssuer struct {
	signingKey []byte
	ttl        time.Duration
	now        func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> expiry
}

func NewTokenIssuer(signingKey []byte, ttl time.Duration) (*TokenIssuer, error) {
	if len(signingKey) < 16 {
		return nil, errors.New("signing key too short")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("invalid token ttl: %s", ttl)
	}
	return &TokenIssuer{
		signingKey: signingKey,
		ttl:        ttl,
		now:        time.Now,
		revoked:    map[string]time.Time{},
	}, nil
}

func (ti *TokenIssuer) Issue(subject, role string) (string, time.Time, error) {
	now := ti.now()
	expiresAt := now.Add(ti.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.signingKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (ti *TokenIssuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (any, error) { return ti.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, err
	}

	ti.mu.Lock()
	_, revoked := ti.revoked[claims.ID]
	ti.mu.Unlock()
	if revoked {
		return nil, ErrTokenRevoked
	}
	return claims, nil
}

// CheckToken makes the issuer usable as the bearer auth middleware checker.
func (ti *TokenIssuer) CheckToken(_ context.Context, token string) (string, error) {
	claims, err := ti.Parse(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (ti *TokenIssuer) Revoke(token string) error {
	claims, err := ti.Parse(token)
	if err != nil {
		return err
	}

	ti.mu.Lock()
	defer ti.mu.Unlock()
	now := ti.now()
	for jti, exp := range ti.revoked {
		if now.After(exp) {
			delete(ti.revoked, jti)
		}
	}
	ti.revoked[claims.ID] = claims.ExpiresAt.Time
	return nil
}
