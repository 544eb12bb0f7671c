package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", 3600)
	token, err := m.GenerateToken(7, "admin")
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "7", claims.Subject)
}

func TestTokenRejected(t *testing.T) {
	m := NewTokenManager("secret", 60)
	token, err := m.GenerateToken(1, "admin")
	require.NoError(t, err)

	_, err = NewTokenManager("other", 60).ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	later := NewTokenManager("secret", 60)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = later.ParseToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
