package security_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatcore/internal/security"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)
	userID := uuid.New()

	token, err := svc.CreateForUser(userID)
	require.NoError(t, err)

	got, err := svc.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, userID, got)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	token, err := security.NewTokenService("secret", time.Hour).CreateForUser(uuid.New())
	require.NoError(t, err)

	_, err = security.NewTokenService("other", time.Hour).Parse(token)
	assert.Error(t, err)
}

func TestTokenRejectsExpired(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)
	token, err := svc.CreateWithTTL(uuid.New(), -time.Minute)
	require.NoError(t, err)

	_, err = svc.Parse(token)
	assert.Error(t, err)
}

func TestPasswordHasher(t *testing.T) {
	hasher := security.NewPasswordHasher(4)

	hashed, err := hasher.Hash("Password1!")
	require.NoError(t, err)
	assert.NotEqual(t, "Password1!", hashed)

	assert.NoError(t, hasher.Verify("Password1!", hashed))
	assert.Error(t, hasher.Verify("wrong", hashed))
}
