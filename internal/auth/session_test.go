package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portaria/server/internal/portaria/types"
)

func TestManager_IssueAndParse(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)

	raw, exp, err := m.Issue("u1", types.RolePorter)
	require.NoError(t, err)

	s, err := m.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", s.UserID)
	assert.Equal(t, types.RolePorter, s.Role)
	assert.Equal(t, exp.Unix(), s.ExpiresAt.Unix())
	assert.True(t, s.HasRole(types.RoleAdmin, types.RolePorter))
	assert.False(t, s.HasRole(types.RoleAdmin))
}

func TestManager_RejectsExpired(t *testing.T) {
	m, err := NewManager("test-secret", time.Minute)
	require.NoError(t, err)

	base := time.Now()
	m.now = func() time.Time { return base }
	raw, _, err := m.Issue("u1", types.RoleStaff)
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestManager_RejectsWrongSecretAndGarbage(t *testing.T) {
	a, err := NewManager("secret-a", time.Hour)
	require.NoError(t, err)
	b, err := NewManager("secret-b", time.Hour)
	require.NoError(t, err)

	raw, _, err := a.Issue("u1", types.RoleAdmin)
	require.NoError(t, err)

	_, err = b.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidSession)
	_, err = a.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestManager_RejectsUnknownRole(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)

	c := claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestNewManager_EmptySecret(t *testing.T) {
	_, err := NewManager("", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := IntoContext(context.Background(), Session{UserID: "u1", Role: types.RoleVendor})
	s, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", s.UserID)
}
