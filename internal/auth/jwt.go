// Package auth is the credential layer: password hashing, JWT access/refresh
// tokens, bearer-token middleware and the third-party identity providers
// (Google ID tokens, GitHub OAuth).
//
// TOKEN PAIR:
// A successful login returns two signed JWTs. The short-lived access token is
// sent as "Authorization: Bearer <token>" on every protected request. The
// longer-lived refresh token is only ever sent to POST /token/refresh to mint
// a new access token. The "token_type" claim keeps the two from being used
// interchangeably: a stolen refresh token cannot call the API directly.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "fountainhead"

// Token types carried in the "token_type" claim.
const (
	AccessToken  = "access"
	RefreshToken = "refresh"
)

// TokenPair is what login and registration hand back to the client.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenService signs and validates HS256 tokens with a shared secret.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService. The secret must be at least 16
// characters; generate one with `openssl rand -hex 32`.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// claims is the JWT payload. "sub" holds the internal user ID and "jti" a
// random UUID so that two tokens issued in the same second still differ.
type claims struct {
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// IssuePair creates a fresh access/refresh pair for userID.
func (s *TokenService) IssuePair(userID string) (TokenPair, error) {
	access, err := s.generate(userID, AccessToken, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.generate(userID, RefreshToken, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// Refresh validates a refresh token and returns a new access token for the
// same user. The refresh token itself is not rotated.
func (s *TokenService) Refresh(refreshToken string) (string, error) {
	userID, err := s.validate(refreshToken, RefreshToken)
	if err != nil {
		return "", err
	}
	return s.generate(userID, AccessToken, s.accessTTL)
}

// ValidateAccess returns the user ID of a valid access token.
func (s *TokenService) ValidateAccess(tokenStr string) (string, error) {
	return s.validate(tokenStr, AccessToken)
}

func (s *TokenService) generate(userID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing %s token: %w", tokenType, err)
	}
	return signed, nil
}

// validate parses tokenStr, checks signature, expiry, issuer and type, and
// returns the subject.
//
// jwt.WithValidMethods pins HS256 so a token claiming "alg":"none" (or an
// RSA algorithm, to trick us into using the secret as a public key) is
// rejected before the signature is even looked at.
func (s *TokenService) validate(tokenStr, wantType string) (string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	if c.TokenType != wantType {
		return "", fmt.Errorf("auth: expected %s token, got %q", wantType, c.TokenType)
	}
	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}
	return c.Subject, nil
}
