package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndVerifyPassword(t *testing.T) {
	tokens := testTokens()
	hash, err := tokens.HashPassword("abc12345")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$"))
	assert.True(t, tokens.VerifyPassword("abc12345", hash))
	assert.False(t, tokens.VerifyPassword("abc12346", hash))
	assert.False(t, tokens.VerifyPassword("abc12345", "$argon2id$broken"))
}

func TestVerifyPasswordAcceptsBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-pass1"), bcrypt.MinCost)
	require.NoError(t, err)
	tokens := testTokens()
	assert.True(t, tokens.VerifyPassword("legacy-pass1", string(legacy)))
	assert.False(t, tokens.VerifyPassword("other-pass1", string(legacy)))
}

func TestSessionTokenRoundTrip(t *testing.T) {
	tokens := testTokens()
	signed, exp, err := tokens.CreateSessionToken(42)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	userID, err := tokens.ParseSessionToken(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestSessionTokenRejectsForeignSignatures(t *testing.T) {
	signed, _, err := testTokens().CreateSessionToken(7)
	require.NoError(t, err)

	other := testTokens()
	other.Secret = []byte("different")
	_, err = other.ParseSessionToken(signed)
	assert.Error(t, err)

	otherIssuer := testTokens()
	otherIssuer.Issuer = "someone-else"
	_, err = otherIssuer.ParseSessionToken(signed)
	assert.Error(t, err)
}

func TestSessionTokenRejectsExpired(t *testing.T) {
	tokens := testTokens()
	tokens.TTL = -time.Minute
	signed, _, err := tokens.CreateSessionToken(7)
	require.NoError(t, err)
	_, err = tokens.ParseSessionToken(signed)
	assert.Error(t, err)
}
