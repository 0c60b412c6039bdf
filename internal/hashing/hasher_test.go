package hashing

import (
	"testing"

	"wallet-engine/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHasher(pepper string) *Hasher {
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            pepper,
		},
	})
}

func TestHashAndVerifyPIN(t *testing.T) {
	h := testHasher("pepper")

	cred, err := h.HashPIN("+14155550123", "1234")
	require.NoError(t, err)
	assert.Equal(t, "argon2id-v1", cred.Algorithm)
	assert.NotEmpty(t, cred.Hash)
	assert.NotEmpty(t, cred.Salt)

	match, err := h.VerifyPIN("+14155550123", "1234", cred)
	require.NoError(t, err)
	assert.True(t, match)

	match, err = h.VerifyPIN("+14155550123", "4321", cred)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestCredentialIsBoundToPhone(t *testing.T) {
	h := testHasher("pepper")

	cred, err := h.HashPIN("+14155550123", "1234")
	require.NoError(t, err)

	match, err := h.VerifyPIN("+14155550124", "1234", cred)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestCredentialSaltsDiffer(t *testing.T) {
	h := testHasher("pepper")

	a, err := h.HashPIN("+14155550123", "1234")
	require.NoError(t, err)
	b, err := h.HashPIN("+14155550123", "1234")
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestVerifyRequiresMatchingPepper(t *testing.T) {
	cred, err := testHasher("pepper-a").HashPIN("+14155550123", "1234")
	require.NoError(t, err)

	match, err := testHasher("pepper-b").VerifyPIN("+14155550123", "1234", cred)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestVerifyRejectsCorruptCredential(t *testing.T) {
	h := testHasher("pepper")

	_, err := h.VerifyPIN("+14155550123", "1234", &Credential{Hash: "!!", Salt: "!!"})
	assert.ErrorIs(t, err, ErrInvalidHash)
}
