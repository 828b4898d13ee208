package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"funnelcrm/models"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef0123456789abcdef", 15*time.Minute, 24*time.Hour)
	user := &models.User{Role: models.RoleCommercial, TokenVersion: 3}
	user.ID = 42

	pair, err := tm.GenerateTokens(user)
	require.NoError(t, err)

	claims, err := tm.ParseToken(pair.AccessToken, TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, models.RoleCommercial, claims.Role)
	assert.Equal(t, 3, claims.TokenVersion)

	_, err = tm.ParseToken(pair.AccessToken, TokenRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = tm.ParseToken(pair.RefreshToken, TokenRefresh)
	assert.NoError(t, err)
}

func TestTokenExpiredAndForeignSecret(t *testing.T) {
	tm := NewTokenManager("0123456789abcdef0123456789abcdef", time.Minute, time.Hour)
	user := &models.User{Role: models.RoleAdmin}
	user.ID = 1
	pair, err := tm.GenerateTokens(user)
	require.NoError(t, err)

	later := *tm
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = later.ParseToken(pair.AccessToken, TokenAccess)
	assert.Error(t, err)

	other := NewTokenManager("another-secret-another-secret-xx", time.Minute, time.Hour)
	_, err = other.ParseToken(pair.AccessToken, TokenAccess)
	assert.Error(t, err)
}
