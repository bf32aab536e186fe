// Package auth issues and verifies the signed session tokens that carry a
// staff member's identity and role between requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrEmptySecret    = errors.New("session secret is empty")
)

const issuer = "portaria"

// Session is the authenticated caller of a request.
type Session struct {
	UserID    string
	Role      types.Role
	ExpiresAt time.Time
}

// HasRole reports whether the session's role is one of roles.
func (s Session) HasRole(roles ...types.Role) bool {
	for _, r := range roles {
		if s.Role == r {
			return true
		}
	}
	return false
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and parses HS256 session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for userID and the time it stops being
// accepted.
func (m *Manager) Issue(userID string, role types.Role) (string, time.Time, error) {
	now := m.now()
	exp := now.Add(m.ttl)

	c := claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies raw and returns its session. Any failure is
// ErrInvalidSession.
func (m *Manager) Parse(raw string) (Session, error) {
	var c claims
	tkn, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return m.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tkn.Valid {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	role := types.Role(c.Role)
	if c.Subject == "" || !role.Valid() {
		return Session{}, ErrInvalidSession
	}
	return Session{UserID: c.Subject, Role: role, ExpiresAt: c.ExpiresAt.Time}, nil
}

type ctxKey struct{}

func IntoContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
