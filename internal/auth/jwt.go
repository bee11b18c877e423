// Package auth provides JWT token generation and validation, bcrypt
// password hashing, and the bearer-token HTTP middleware.
//
// WHY JWT?
// JWT is stateless — the server doesn't store session data. Everything
// needed (userID as the "sub" claim, expiry) lives inside the signed
// token, and the HMAC signature ensures nobody can tamper with it
// without the secret key. Verification needs no DB lookup.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sakif/llm-relay/internal/apperror"
)

// TokenService handles JWT creation and validation.
//
// The secret, issuer, and token lifetime all come from process
// configuration — there are no baked-in defaults, so the same binary can
// run with different expiry policies per deployment.
type TokenService struct {
	secret    []byte
	issuer    string
	expiresIn time.Duration
}

// NewTokenService creates a TokenService.
// The secret should be at least 32 bytes of random data in production.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret, issuer string, expiresIn time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if expiresIn <= 0 {
		return nil, errors.New("auth: token lifetime must be positive")
	}
	return &TokenService{
		secret:    []byte(secret),
		issuer:    issuer,
		expiresIn: expiresIn,
	}, nil
}

// claims is the JWT payload. jwt.RegisteredClaims carries the standard
// fields; we use "sub" (Subject) for the internal user ID.
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates and signs a new HS256 access token for the given userID.
func (s *TokenService) Generate(userID string) (string, error) {
	return s.GenerateWithDuration(userID, s.expiresIn)
}

// GenerateWithDuration creates a token with a custom expiry duration.
// Used in tests to mint already-expired or long-lived tokens.
func (s *TokenService) GenerateWithDuration(userID string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    s.issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a JWT string, returning the userID stored
// in the "sub" claim.
//
// All failure modes (bad signature, expired, wrong issuer, malformed,
// missing subject) come back as apperror.ErrUnauthorized so handlers map
// them uniformly to 401. Pinning the accepted methods to HS256 prevents
// algorithm-confusion attacks ("alg":"none" tokens are rejected).
func (s *TokenService) Validate(tokenStr string) (string, error) {
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
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperror.Unauthorized("token expired")
		}
		return "", apperror.Unauthorized("invalid token")
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", apperror.Unauthorized("invalid token claims")
	}

	if c.Subject == "" {
		return "", apperror.Unauthorized("token has no subject")
	}

	return c.Subject, nil
}
