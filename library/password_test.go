package library

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, salt, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.Len(t, salt, 32, "16 random bytes, hex encoded")
	assert.Len(t, hash, 128, "64 byte key, hex encoded")

	assert.True(t, VerifyPassword("correct horse", hash, salt))
	assert.False(t, VerifyPassword("battery staple", hash, salt))
	assert.False(t, VerifyPassword("correct horse", hash, ""))
	assert.False(t, VerifyPassword("correct horse", "", salt))

	again, salt2, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, salt, salt2, "each hash gets a fresh salt")
	assert.NotEqual(t, hash, again)
}
