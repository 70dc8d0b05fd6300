package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)

	access, err := m.GenerateToken(7, "asha", "USER")
	require.NoError(t, err)

	claims, err := m.VerifyTyped(access, TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "asha", claims.Username)
}

func TestJWTManager_RejectsWrongType(t *testing.T) {
	m := NewJWTManager("secret", 1, 7)

	refresh, err := m.GenerateRefreshToken(7, "asha", "USER")
	require.NoError(t, err)

	_, err = m.VerifyTyped(refresh, TypeAccess)
	assert.ErrorIs(t, err, ErrWrongTokenType)
	_, err = m.VerifyTyped(refresh, TypeRefresh)
	assert.NoError(t, err)
}

func TestJWTManager_RejectsForeignSignature(t *testing.T) {
	issued, err := NewJWTManager("one", 1, 7).GenerateToken(1, "a", "USER")
	require.NoError(t, err)

	_, err = NewJWTManager("two", 1, 7).VerifyToken(issued)
	assert.Error(t, err)
}

func TestJWTManager_RejectsExpired(t *testing.T) {
	m := NewJWTManager("secret", 0, 0)
	issued, err := m.GenerateToken(1, "a", "USER")
	require.NoError(t, err)

	_, err = m.VerifyToken(issued)
	assert.Error(t, err)
}

func TestGenerateRandomString(t *testing.T) {
	a := GenerateRandomString(16)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, GenerateRandomString(16))
}
