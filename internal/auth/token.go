// Package auth provides the building blocks of login sessions: password
// hashing, signed session tokens, the route and ownership guards, and the
// middleware that turns a session cookie into an explicit user value.
//
// SESSION TOKEN FLOW:
//  1. After login or registration the service stores a session row and asks
//     TokenService to sign a token naming that row (jti) and the user (sub).
//  2. The token travels in the HttpOnly "session" cookie.
//  3. On each request the middleware parses the token, then the service checks
//     that the session row still exists and has not expired.
//
// The signature only proves the token was minted by this server. The session
// row is the authority, which is what makes logout immediate.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "photoshare"

// TokenService signs and parses session tokens with HS256.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService with the given secret.
// The secret should be at least 32 bytes of random data in production.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: session secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

// SessionClaims are the identifiers carried by a session token.
type SessionClaims struct {
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

// Issue signs a token for the given session, valid until expiresAt.
func (s *TokenService) Issue(sessionID, userID string, expiresAt time.Time) (string, error) {
	if sessionID == "" || userID == "" {
		return "", errors.New("auth: session and user IDs are required")
	}

	c := jwt.RegisteredClaims{
		ID:        sessionID,
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature, issuer and expiry of a token and returns its
// claims. Tokens signed with any algorithm other than HS256 are rejected.
func (s *TokenService) Parse(tokenStr string) (*SessionClaims, error) {
	c := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if c.ID == "" || c.Subject == "" {
		return nil, errors.New("auth: token is missing session or subject")
	}

	return &SessionClaims{
		SessionID: c.ID,
		UserID:    c.Subject,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// SessionID extracts the session id from a token without checking expiry.
// Logout uses it so an expired cookie still deletes its session row; the
// signature is still verified.
func (s *TokenService) SessionID(tokenStr string) (string, error) {
	c := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		tokenStr,
		c,
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}
	if c.ID == "" {
		return "", errors.New("auth: token has no session id")
	}
	return c.ID, nil
}
