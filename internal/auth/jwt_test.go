package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := NewTokenManager("test-secret-key")
	accountID := uuid.NewString()

	token, err := mgr.GenerateToken(accountID, "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.NotEmpty(t, claims.ID)
	assert.Nil(t, claims.ExpiresAt, "session tokens carry no expiry")
}

func TestTokensAreUniquePerLogin(t *testing.T) {
	mgr := NewTokenManager("test-secret-key")
	a, err := mgr.GenerateToken("id-1", "alice")
	require.NoError(t, err)
	b, err := mgr.GenerateToken("id-1", "alice")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewTokenManager("secret-1")
	mgr2 := NewTokenManager("secret-2")

	token, err := mgr1.GenerateToken(uuid.NewString(), "")
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestGarbageTokenRejected(t *testing.T) {
	mgr := NewTokenManager("secret")
	_, err := mgr.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestNoneAlgorithmRejected(t *testing.T) {
	mgr := NewTokenManager("secret")
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "id-1", IssuedAt: jwt.NewNumericDate(time.Now())},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenWithoutSubjectRejected(t *testing.T) {
	mgr := NewTokenManager("secret")
	token, err := mgr.GenerateToken("", "ghost")
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}
