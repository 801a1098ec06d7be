// Package auth reads the session issued by the external auth provider.
//
// Tokens are verified by the provider and the services they are sent to; this
// client only decodes the claims to learn who the user is and when the
// session ends.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const claimEmail = "email"

// Static errors.
var (
	ErrNoSession      = errors.New("not signed in")
	ErrInvalidSession = errors.New("invalid session token")
	ErrSessionExpired = errors.New("session expired")
)

// Session is the signed-in user.
type Session struct {
	Raw       string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// ParseSession decodes the claims of token without verifying its signature.
func ParseSession(token string) (*Session, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrNoSession
	}

	claims := jwt.MapClaims{}

	_, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}

	session := &Session{Raw: token, UserID: subject}

	if email, ok := claims[claimEmail].(string); ok {
		session.Email = email
	}

	expiresAt, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}

	if expiresAt != nil {
		session.ExpiresAt = expiresAt.Time
	}

	return session, nil
}

// Expired reports whether the session has ended at now. Sessions without an
// expiry never expire.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Valid returns ErrSessionExpired once the session has ended.
func (s *Session) Valid(now time.Time) error {
	if s.Expired(now) {
		return fmt.Errorf("%w at %s", ErrSessionExpired, s.ExpiresAt.Format(time.RFC3339))
	}

	return nil
}

// Token implements core.TokenSource, refusing to hand out an expired token.
func (s *Session) Token(_ context.Context) (string, error) {
	err := s.Valid(time.Now())
	if err != nil {
		return "", err
	}

	return s.Raw, nil
}
