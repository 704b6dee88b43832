package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token failure taxonomy. The gate and the rotation flow need to tell
// "no token supplied" apart from "token supplied but unusable".
var (
	ErrTokenMissing       = errors.New("no token supplied")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrCredentialNotFound = errors.New("refresh credential not found")
)

// KeyClass selects which signing secret a token is bound to.
type KeyClass int

const (
	KeyAccess KeyClass = iota
	KeyRefresh
)

// Access tokens issued at profile creation are short-lived; tokens issued
// at login and at rotation get the long TTL. The asymmetry is inherited
// behavior and is kept as-is.
const (
	accessTTLOnCreate = 15 * time.Minute
	accessTTLOnLogin  = 7 * 24 * time.Hour
)

// IdentityClaims is the payload embedded in every issued token.
type IdentityClaims struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	InternalID string `json:"internalId,omitempty"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies access and refresh tokens with two
// independent HMAC secrets. It holds no mutable state and is safe for
// concurrent use.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
}

func NewTokenService(accessSecret, refreshSecret []byte) *TokenService {
	return &TokenService{accessSecret: accessSecret, refreshSecret: refreshSecret}
}

func (s *TokenService) secret(class KeyClass) []byte {
	if class == KeyRefresh {
		return s.refreshSecret
	}
	return s.accessSecret
}

// Issue signs claims under the given key class. A zero ttl produces a token
// without an expiry claim; refresh tokens are issued that way.
func (s *TokenService) Issue(class KeyClass, claims IdentityClaims, ttl time.Duration) (string, error) {
	claims.IssuedAt = jwt.NewNumericDate(time.Now())
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	} else {
		claims.ExpiresAt = nil
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret(class))
}

// Verify checks signature and expiry under the given key class and returns
// the embedded claims. Any failure is reported as ErrTokenInvalid.
func (s *TokenService) Verify(class KeyClass, tokenString string) (*IdentityClaims, error) {
	claims := &IdentityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret(class), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Rotate exchanges a persisted refresh token for a new long-TTL access token.
// The credential must still exist in the store (logout deletes it) and the
// refresh token itself must verify. The refresh token is reused unchanged;
// no refresh rotation happens here.
func (s *TokenService) Rotate(store Store, refreshToken string) (string, error) {
	cred, err := store.GetRefreshCredential(refreshToken)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", ErrCredentialNotFound
	}
	claims, err := s.Verify(KeyRefresh, refreshToken)
	if err != nil {
		return "", err
	}
	fresh := IdentityClaims{
		ID:         claims.ID,
		Name:       claims.Name,
		Email:      claims.Email,
		InternalID: claims.InternalID,
	}
	return s.Issue(KeyAccess, fresh, accessTTLOnLogin)
}
