// Package auth resolves the user behind a request.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingUser  = errors.New("missing user")
)

// TokenService signs and verifies HS256 tokens. The user id travels in the
// sub claim; tokens that only carry user_id are accepted too.
type TokenService struct {
	secretKey []byte
	expiresIn time.Duration
	now       func() time.Time
}

func NewTokenService(secret string, expiresIn time.Duration) *TokenService {
	if expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	return &TokenService{
		secretKey: []byte(secret),
		expiresIn: expiresIn,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for issuing and expiry checks.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Enabled reports whether a secret is configured. Without one, requests
// name their user through the X-User-ID header.
func (s *TokenService) Enabled() bool {
	return s != nil && len(s.secretKey) > 0
}

// Issue returns a signed token for userID.
func (s *TokenService) Issue(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", ErrMissingUser
	}
	if !s.Enabled() {
		return "", errors.New("no signing secret configured")
	}
	issuedAt := s.now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": issuedAt.Unix(),
		"exp": issuedAt.Add(s.expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	slog.Debug("JWT issued", "user_id", userID, "expires_at", issuedAt.Add(s.expiresIn).Format(time.RFC3339))
	return tokenStr, nil
}

// Parse verifies tokenStr and returns its user id.
func (s *TokenService) Parse(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	for _, key := range []string{"sub", "user_id"} {
		if id, ok := claims[key].(string); ok && strings.TrimSpace(id) != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: no user claim", ErrInvalidToken)
}

// BearerToken extracts the token of an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
