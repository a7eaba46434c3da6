package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/pkg/auth"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := auth.NewJWTService("test-secret", time.Hour)

	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	id, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, model.Identity("alice"), id)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := auth.NewJWTService("secret-a", time.Hour)
	verifier := auth.NewJWTService("secret-b", time.Hour)

	token, err := issuer.GenerateToken("alice")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := auth.NewJWTService("test-secret", -time.Minute)

	token, err := svc.GenerateToken("alice")
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := auth.NewJWTService("test-secret", time.Hour)

	_, err := svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}
