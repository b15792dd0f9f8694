package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIssuer_Invalid(t *testing.T) {
	_, err := NewIssuer("", "orders-api", time.Hour)
	require.Error(t, err)

	_, err = NewIssuer("secret", "orders-api", 0)
	require.Error(t, err)
}

func TestIssuer_RoundTrip(t *testing.T) {
	iss, err := NewIssuer("secret", "orders-api", time.Hour)
	require.NoError(t, err)
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return now }

	token, err := iss.Issue("admin@example.com")
	require.NoError(t, err)

	var claims jwt.RegisteredClaims
	_, _, err = jwt.NewParser().ParseUnverified(token, &claims)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", claims.Subject)
	assert.Equal(t, "orders-api", claims.Issuer)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())

	sub, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", sub)
}

func TestIssuer_Parse_Rejects(t *testing.T) {
	iss, err := NewIssuer("secret", "orders-api", time.Minute)
	require.NoError(t, err)
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	iss.now = func() time.Time { return now }

	token, err := iss.Issue("a@b.c")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		iss.now = func() time.Time { return now.Add(2 * time.Minute) }
		defer func() { iss.now = func() time.Time { return now } }()
		_, err := iss.Parse(token)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewIssuer("other", "orders-api", time.Minute)
		require.NoError(t, err)
		other.now = iss.now
		_, err = other.Parse(token)
		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other, err := NewIssuer("secret", "someone-else", time.Minute)
		require.NoError(t, err)
		other.now = iss.now
		_, err = other.Parse(token)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})
}
