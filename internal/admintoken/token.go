// Package admintoken issues and verifies the access tokens used by the
// pack management endpoints (HS256, single shared secret).
package admintoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer = "riverreader-admin"
	defaultTTL    = 12 * time.Hour
	defaultLeeway = 30 * time.Second
)

var ErrInvalidToken = errors.New("invalid token")

// Manager issues and verifies admin tokens.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	leeway time.Duration
}

// NewManager creates a Manager from the shared secret.
func NewManager(secret string) (*Manager, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("admin token secret is required")
	}
	return &Manager{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    defaultTTL,
		leeway: defaultLeeway,
	}, nil
}

// Issue creates a signed token for the subject.
func (m *Manager) Issue(subject string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a token and returns its subject.
func (m *Manager) Verify(tokenString string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithLeeway(m.leeway),
		jwt.WithExpirationRequired(),
	)
	claims := jwt.RegisteredClaims{}
	_, err := parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrInvalidToken
	}
	return subject, nil
}
