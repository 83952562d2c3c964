// Package auth is the identity layer: JWT issuing and validation, bcrypt
// password hashing, GitHub sign-in and the HTTP middleware that resolves the
// authenticated user for a request.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Client POSTs username/password to /api/token/
//  2. Server verifies the bcrypt hash and returns an access token (15 min)
//     and a refresh token (24 h)
//  3. Client sends "Authorization: Bearer <access>" on protected calls;
//     RequireAuth validates it and stores the userID in the request context
//  4. When the access token expires the client POSTs the refresh token to
//     /api/token/refresh/ and receives a new access token
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"userID","exp":1234567890,"token_type":"access"}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// AccessTokenTTL is how long an access token stays valid.
	AccessTokenTTL = 15 * time.Minute
	// RefreshTokenTTL is how long a refresh token can mint new access tokens.
	RefreshTokenTTL = 24 * time.Hour

	issuer = "study-timer"
)

// TokenKind tells access tokens and refresh tokens apart. Both are signed
// with the same secret, so without this claim a refresh token would be
// accepted on every protected route.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// claims is the JWT payload. "sub" holds the internal user ID.
type claims struct {
	Kind TokenKind `json:"token_type"`
	jwt.RegisteredClaims
}

// Generate creates a signed access token for userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, KindAccess, AccessTokenTTL)
}

// GenerateRefresh creates a signed refresh token for userID.
func (s *TokenService) GenerateRefresh(userID string) (string, error) {
	return s.GenerateWithDuration(userID, KindRefresh, RefreshTokenTTL)
}

// GenerateWithDuration creates a token of the given kind with a custom expiry.
// Tests use a negative duration to produce an already-expired token.
func (s *TokenService) GenerateWithDuration(userID string, kind TokenKind, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate verifies an access token and returns the userID in its subject.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	return s.validate(tokenStr, KindAccess)
}

// ValidateRefresh verifies a refresh token and returns its userID.
func (s *TokenService) ValidateRefresh(tokenStr string) (string, error) {
	return s.validate(tokenStr, KindRefresh)
}

// validate parses and verifies a JWT string.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid (wasn't tampered with)
//   - Token is not expired, and has an expiry at all
//   - Issuer matches
//   - Algorithm is HS256 (prevents the "alg: none" confusion attack)
//
// On top of that the token_type claim must match want.
func (s *TokenService) validate(tokenStr string, want TokenKind) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.Kind != want {
		return "", fmt.Errorf("auth: expected %s token, got %q", want, c.Kind)
	}

	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
